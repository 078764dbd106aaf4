package manifest

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/infoboard/infoboard/internal/objstore"
)

type fakeStore struct {
	data    map[string][]byte
	opts    map[string]objstore.WriteOptions
	writes  int
	readErr error
	// read is how many bytes the last read consumed.
	read int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]byte{}, opts: map[string]objstore.WriteOptions{}}
}

func (f *fakeStore) ReadBlobLimit(_ context.Context, path string, limit int64) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	b, ok := f.data[path]
	if !ok {
		return nil, objstore.ErrNotFound
	}
	f.read = min(len(b), int(limit)+1)
	if int64(len(b)) > limit {
		return nil, objstore.ErrTooLarge
	}
	return b, nil
}

func (f *fakeStore) WriteBlob(_ context.Context, path string, data []byte, opts objstore.WriteOptions) (objstore.Metadata, error) {
	f.writes++
	f.data[path] = append([]byte(nil), data...)
	f.opts[path] = opts
	return objstore.Metadata{Path: path, Size: int64(len(data))}, nil
}

var t0 = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func TestCatalog(t *testing.T) {
	if len(Catalog) != 27 {
		t.Fatalf("expected 27 catalog slots, got %d", len(Catalog))
	}
	if Catalog[0].ID != "01ad" || Catalog[24].ID != "25ad" || Catalog[25].ID != "01video" || Catalog[26].ID != "02video" {
		t.Fatalf("unexpected catalog order: %v", Catalog)
	}
	if Catalog[24].Kind != KindImage || Catalog[26].Kind != KindVideo {
		t.Fatal("unexpected catalog kinds")
	}
}

func TestDefault(t *testing.T) {
	m := Default(0, t0)
	if m.Board.DurationMs != DefBoardDurationMs || m.Version != 1 || !m.UpdatedAt.Equal(t0) {
		t.Fatalf("unexpected header: %+v", m)
	}
	for _, s := range m.Slots {
		if s.Enabled || s.Path != "" || s.DurationMs != DefSlotDurationMs {
			t.Fatalf("slot %s not default: %+v", s.ID, s)
		}
		if s.UseVideoDuration != (s.Kind == KindVideo) {
			t.Fatalf("slot %s: wrong useVideoDuration", s.ID)
		}
	}
}

func TestEncode_NullsAbsentFields(t *testing.T) {
	data, err := Encode(Default(30000, t0))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{`"path": null`, `"contentType": null`, `"size": null`, `"cacheBuster": null`, `"updatedAt": "2026-04-01T09:30:00Z"`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %s in output", want)
		}
	}
}

func TestDecode_FieldLevelOverlay(t *testing.T) {
	doc := `{
  "version": 3,
  "board": {"durationMs": 20000},
  "slots": [
    {"id": "02ad", "enabled": true, "path": "carousel/02ad.png"},
    {"id": "01video", "kind": "image", "durationMs": null},
    {"id": "99ad", "kind": "image", "enabled": true, "path": "carousel/99ad.jpg"},
    {"id": "02ad", "enabled": false},
    null
  ]
}`
	m, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if m.Version != 3 || m.Board.DurationMs != 20000 {
		t.Fatalf("unexpected header: %+v", m)
	}
	if len(m.Slots) != len(Catalog)+1 {
		t.Fatalf("expected %d slots, got %d", len(Catalog)+1, len(m.Slots))
	}

	s, _ := m.Slot("02ad")
	if !s.Enabled || s.Path != "carousel/02ad.png" || s.DurationMs != DefSlotDurationMs || s.Kind != KindImage {
		t.Fatalf("02ad overlay wrong: %+v", s)
	}
	v, _ := m.Slot("01video")
	if v.Kind != KindVideo {
		t.Fatalf("catalog kind should win, got %s", v.Kind)
	}
	if v.DurationMs != 0 || !v.UseVideoDuration {
		t.Fatalf("01video overlay wrong: %+v", v)
	}
	if last := m.Slots[len(m.Slots)-1]; last.ID != "99ad" || !last.Enabled {
		t.Fatalf("extra slot not preserved: %+v", last)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for name, doc := range map[string]string{
		"empty":      "",
		"whitespace": "  \n",
		"array":      "[]",
		"null":       "null",
		"truncated":  `{"version": 1, "slots": [`,
		"bad slot":   `{"slots": [{"id": 7}]}`,
		"bad time":   `{"updatedAt": "yesterday"}`,
	} {
		if _, err := Decode([]byte(doc)); !errors.Is(err, ErrInvalidManifest) {
			t.Errorf("%s: expected ErrInvalidManifest, got %v", name, err)
		}
	}
}

func TestNormalize_SlotCount(t *testing.T) {
	tests := []struct {
		name   string
		slots  []Slot
		extras int
	}{
		{"none", nil, 0},
		{"catalog only", []Slot{{ID: "01ad"}, {ID: "02video"}}, 0},
		{"extras", []Slot{{ID: "x1"}, {ID: "01ad"}, {ID: "x2"}}, 2},
		{"duplicate extra", []Slot{{ID: "x1"}, {ID: "x1"}}, 1},
		{"duplicate catalog", []Slot{{ID: "03ad", Enabled: true, Path: "a"}, {ID: "03ad"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(&Manifest{Slots: tt.slots})
			if len(n.Slots) != len(Catalog)+tt.extras {
				t.Fatalf("expected %d slots, got %d", len(Catalog)+tt.extras, len(n.Slots))
			}
			counts := map[string]int{}
			for _, s := range n.Slots {
				counts[s.ID]++
			}
			for _, d := range Catalog {
				if counts[d.ID] != 1 {
					t.Fatalf("catalog slot %s appears %d times", d.ID, counts[d.ID])
				}
			}
		})
	}
	n := Normalize(&Manifest{Slots: []Slot{{ID: "03ad", Enabled: true, Path: "a"}, {ID: "03ad"}}})
	if s, _ := n.Slot("03ad"); !s.Enabled {
		t.Fatal("first occurrence should win")
	}
}

func TestNormalize_Nil(t *testing.T) {
	if n := Normalize(nil); len(n.Slots) != len(Catalog) {
		t.Fatalf("expected catalog slots, got %d", len(n.Slots))
	}
}

func TestClient_RoundTrip(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store, "", 30000, nil)
	ctx := context.Background()

	m := Default(30000, t0)
	m.Slots[0].Enabled = true
	m.Slots[0].Path = "carousel/01ad.jpg"
	m.Slots[0].ContentType = "image/jpeg"
	m.Slots[0].Size = 2048
	m.Slots[0].DurationMs = 5000
	m.Slots[0].CacheBuster = "1711963800000"
	m.Slots[0].UpdatedAt = t0
	m.Slots = append(m.Slots, Slot{ID: "26ad", Kind: KindImage, DurationMs: 7000})

	if err := c.Write(ctx, m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := c.Read(ctx, ReadOptions{})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, m) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, m)
	}

	opts := store.opts[DefPath]
	if opts.ContentType != "application/json" || opts.CacheControl != "no-cache" {
		t.Fatalf("unexpected write options: %+v", opts)
	}
	if !strings.Contains(string(store.data[DefPath]), "\n  \"version\": 1") {
		t.Fatal("expected indented JSON")
	}
}

func TestClient_NotFound(t *testing.T) {
	store := newFakeStore()
	c := NewClient(store, "", 25000, nil)
	timeNow = func() time.Time { return t0 }
	defer func() { timeNow = time.Now }()

	m, err := c.Read(context.Background(), ReadOptions{FallbackToDefault: true})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	for _, s := range m.Slots {
		if s.Enabled {
			t.Fatalf("slot %s enabled in default manifest", s.ID)
		}
	}
	if m.Board.DurationMs != 25000 || !m.UpdatedAt.Equal(t0) {
		t.Fatalf("unexpected default: %+v", m)
	}
	if store.writes != 0 {
		t.Fatalf("Read must not write, got %d writes", store.writes)
	}

	_, err = c.Read(context.Background(), ReadOptions{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_InvalidLeftUntouched(t *testing.T) {
	store := newFakeStore()
	store.data[DefPath] = []byte("{not json")
	c := NewClient(store, "", 0, nil)

	for _, fallback := range []bool{false, true} {
		_, err := c.Read(context.Background(), ReadOptions{FallbackToDefault: fallback})
		if !errors.Is(err, ErrInvalidManifest) {
			t.Fatalf("fallback=%v: expected ErrInvalidManifest, got %v", fallback, err)
		}
	}
	if store.writes != 0 || string(store.data[DefPath]) != "{not json" {
		t.Fatal("invalid manifest was modified")
	}
}

func TestClient_Oversized(t *testing.T) {
	store := newFakeStore()
	store.data[DefPath] = []byte(`{"version":1,"pad":"` + strings.Repeat("x", 4*MaxSize) + `"}`)
	c := NewClient(store, "", 0, nil)
	if _, err := c.Read(context.Background(), ReadOptions{}); !errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("expected ErrInvalidManifest, got %v", err)
	}
	if store.read > MaxSize+1 {
		t.Fatalf("read %d bytes of an oversized manifest, want at most %d", store.read, MaxSize+1)
	}
}

func TestClient_StoreError(t *testing.T) {
	store := newFakeStore()
	store.readErr = errors.New("disk on fire")
	c := NewClient(store, "", 0, nil)
	_, err := c.Read(context.Background(), ReadOptions{FallbackToDefault: true})
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidManifest) {
		t.Fatalf("expected a plain store error, got %v", err)
	}
}
