package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type wireSlot struct {
	ID               string     `json:"id"`
	Kind             Kind       `json:"kind"`
	Enabled          bool       `json:"enabled"`
	Path             *string    `json:"path"`
	ContentType      *string    `json:"contentType"`
	Size             *int64     `json:"size"`
	DurationMs       int        `json:"durationMs"`
	UseVideoDuration bool       `json:"useVideoDuration"`
	CacheBuster      *string    `json:"cacheBuster"`
	UpdatedAt        *time.Time `json:"updatedAt"`
}

type wireManifest struct {
	Version   int        `json:"version"`
	UpdatedAt *time.Time `json:"updatedAt"`
	Board     Board      `json:"board"`
	Slots     []Slot     `json:"slots"`
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}

// MarshalJSON writes s with null for absent optional fields.
func (s Slot) MarshalJSON() ([]byte, error) {
	w := wireSlot{
		ID:               s.ID,
		Kind:             s.Kind,
		Enabled:          s.Enabled,
		Path:             optString(s.Path),
		ContentType:      optString(s.ContentType),
		DurationMs:       s.DurationMs,
		UseVideoDuration: s.UseVideoDuration,
		CacheBuster:      optString(s.CacheBuster),
		UpdatedAt:        optTime(s.UpdatedAt),
	}
	if s.Size != 0 {
		w.Size = &s.Size
	}
	return json.Marshal(w)
}

// UnmarshalJSON overlays the fields present in data onto s. Fields absent
// from data keep their current value; a null clears the field.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for key, raw := range fields {
		var err error
		switch key {
		case "id":
			err = nullable(raw, &s.ID)
		case "kind":
			err = nullable(raw, &s.Kind)
		case "enabled":
			err = nullable(raw, &s.Enabled)
		case "path":
			err = nullable(raw, &s.Path)
		case "contentType":
			err = nullable(raw, &s.ContentType)
		case "size":
			err = nullable(raw, &s.Size)
		case "durationMs":
			err = nullable(raw, &s.DurationMs)
		case "useVideoDuration":
			err = nullable(raw, &s.UseVideoDuration)
		case "cacheBuster":
			err = nullable(raw, &s.CacheBuster)
		case "updatedAt":
			err = nullable(raw, &s.UpdatedAt)
		}
		if err != nil {
			return fmt.Errorf("slot field %s: %w", key, err)
		}
	}
	return nil
}

// nullable decodes raw into dst, storing the zero value for null.
func nullable[T any](raw json.RawMessage, dst *T) error {
	var p *T
	if err := json.Unmarshal(raw, &p); err != nil {
		return err
	}
	var zero T
	if p == nil {
		*dst = zero
		return nil
	}
	*dst = *p
	return nil
}

// MarshalJSON writes m in the stored document layout.
func (m Manifest) MarshalJSON() ([]byte, error) {
	slots := m.Slots
	if slots == nil {
		slots = []Slot{}
	}
	return json.Marshal(wireManifest{
		Version:   m.Version,
		UpdatedAt: optTime(m.UpdatedAt),
		Board:     m.Board,
		Slots:     slots,
	})
}

// Encode renders m as indented JSON.
func Encode(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Decode parses a stored manifest and normalizes it. Each stored slot is
// laid over the defaults of its catalog entry field by field, so a document
// written by an older version still gets defaults for fields it lacks.
func Decode(data []byte) (*Manifest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidManifest)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidManifest)
	}
	var doc struct {
		Version   int               `json:"version"`
		UpdatedAt *time.Time        `json:"updatedAt"`
		Board     *Board            `json:"board"`
		Slots     []json.RawMessage `json:"slots"`
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	m := &Manifest{Version: doc.Version, Slots: make([]Slot, 0, len(doc.Slots))}
	if doc.UpdatedAt != nil {
		m.UpdatedAt = *doc.UpdatedAt
	}
	if doc.Board != nil {
		m.Board = *doc.Board
	}
	for i, raw := range doc.Slots {
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			continue
		}
		var id struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrInvalidManifest, i, err)
		}
		var s Slot
		if def, ok := Lookup(id.ID); ok {
			s = DefaultSlot(def)
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: slot %d: %v", ErrInvalidManifest, i, err)
		}
		m.Slots = append(m.Slots, s)
	}
	return Normalize(m), nil
}
