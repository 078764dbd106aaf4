package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cws "github.com/coder/websocket"

	"github.com/infoboard/infoboard/internal/display"
	"github.com/infoboard/infoboard/internal/manifest"
)

type fakeDisplay struct {
	mu         sync.Mutex
	signals    []display.Signal
	refreshErr error
	status     display.Snapshot
	statusErr  error
	refreshes  int
}

func (d *fakeDisplay) Report(_ context.Context, sig display.Signal) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signals = append(d.signals, sig)
	return nil
}

func (d *fakeDisplay) RefreshManifest(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshes++
	return d.refreshErr
}

func (d *fakeDisplay) Status(context.Context) (display.Snapshot, error) {
	return d.status, d.statusErr
}

func (d *fakeDisplay) reported() []display.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]display.Signal(nil), d.signals...)
}

type fakeManifests struct {
	m   *manifest.Manifest
	err error
}

func (f *fakeManifests) Read(context.Context, manifest.ReadOptions) (*manifest.Manifest, error) {
	return f.m, f.err
}

const testToken = "test-rpc-secret"

func newTestServerWith(t *testing.T, d *fakeDisplay, mr *fakeManifests) (*Server, *Surface) {
	t.Helper()
	n := NewRPCNotifier(nil)
	surface := NewSurface(n, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go surface.Run(ctx)

	objects := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.URL.Path)
	})
	s := New(Config{
		AdminToken: testToken,
		Version:    "1.0.0",
		Commit:     "abc123",
		BuildType:  "release",
	}, nil, d, mr, surface, n, objects)
	t.Cleanup(s.rpc.Close)
	return s, surface
}

// rpcCall sends a JSON-RPC request to /rpc and returns the HTTP status
// and decoded response.
func rpcCall(t *testing.T, handler http.Handler, method string, params any, authToken string) (int, map[string]any) {
	t.Helper()
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		reqBody["params"] = params
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var result map[string]any
	if rr.Body.Len() > 0 {
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("unmarshal response: %v (body: %s)", err, rr.Body.String())
		}
	}
	return rr.Code, result
}

func errorCode(t *testing.T, resp map[string]any) float64 {
	t.Helper()
	errObj, ok := resp["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", resp)
	}
	return errObj["code"].(float64)
}

func TestRPCSystemGetVersion(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{})
	code, resp := rpcCall(t, s.Handler(), "system.getVersion", nil, testToken)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	result := resp["result"].(map[string]any)
	if result["version"] != "1.0.0" || result["commit"] != "abc123" || result["buildType"] != "release" {
		t.Fatalf("unexpected version result: %v", result)
	}
}

func TestRPCAuthRequired(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{})
	code, _ := rpcCall(t, s.Handler(), "display.status", nil, "")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
	code, _ = rpcCall(t, s.Handler(), "display.status", nil, "wrong")
	if code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestRPCCarouselRefresh(t *testing.T) {
	d := &fakeDisplay{status: display.Snapshot{StateName: "board", PlaylistLen: 3}}
	s, _ := newTestServerWith(t, d, &fakeManifests{})

	_, resp := rpcCall(t, s.Handler(), "carousel.refresh", nil, testToken)
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result, got %v", resp)
	}
	st := result["status"].(map[string]any)
	if st["state"] != "board" || st["playlistLength"].(float64) != 3 {
		t.Fatalf("unexpected status: %v", st)
	}
	if d.refreshes != 1 {
		t.Fatalf("expected 1 refresh, got %d", d.refreshes)
	}
}

func TestRPCCarouselRefresh_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code float64
	}{
		{"not found", manifest.ErrNotFound, -32001},
		{"invalid", manifest.ErrInvalidManifest, -32002},
		{"stopped", display.ErrStopped, -32003},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServerWith(t, &fakeDisplay{refreshErr: tt.err}, &fakeManifests{})
			_, resp := rpcCall(t, s.Handler(), "carousel.refresh", nil, testToken)
			if got := errorCode(t, resp); got != tt.code {
				t.Fatalf("expected code %v, got %v", tt.code, got)
			}
		})
	}
}

func TestRPCDisplayStatus_Stopped(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{statusErr: display.ErrStopped}, &fakeManifests{})
	_, resp := rpcCall(t, s.Handler(), "display.status", nil, testToken)
	if got := errorCode(t, resp); got != -32003 {
		t.Fatalf("expected -32003, got %v", got)
	}
}

func TestRPCManifestGet(t *testing.T) {
	m := manifest.Default(15000, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{m: m})

	_, resp := rpcCall(t, s.Handler(), "manifest.get", nil, testToken)
	result, ok := resp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result, got %v", resp)
	}
	b := result["board"].(map[string]any)
	if b["durationMs"].(float64) != 15000 {
		t.Fatalf("unexpected board: %v", b)
	}
	if slots := result["slots"].([]any); len(slots) != len(manifest.Catalog) {
		t.Fatalf("expected %d slots, got %d", len(manifest.Catalog), len(slots))
	}
}

func TestRPCManifestGet_NotFound(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{err: manifest.ErrNotFound})
	_, resp := rpcCall(t, s.Handler(), "manifest.get", nil, testToken)
	if got := errorCode(t, resp); got != -32001 {
		t.Fatalf("expected -32001, got %v", got)
	}

	s, _ = newTestServerWith(t, &fakeDisplay{}, &fakeManifests{err: errors.New("disk on fire")})
	_, resp = rpcCall(t, s.Handler(), "manifest.get", nil, testToken)
	if got := errorCode(t, resp); got != -32002 {
		t.Fatalf("expected -32002, got %v", got)
	}
}

func TestHealthAndObjects(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{})
	h := s.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "ok\n" {
		t.Fatalf("health: %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/objects/carousel/a.jpg", nil))
	if rr.Body.String() != "/carousel/a.jpg" {
		t.Fatalf("expected stripped object path, got %q", rr.Body.String())
	}
}

func dialDisplay(t *testing.T, s *Server) (*cws.Conn, context.Context) {
	t.Helper()
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(hs.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	wsURL := "ws" + strings.TrimPrefix(hs.URL, "http") + "/display/ws"
	conn, _, err := cws.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(cws.StatusNormalClosure, "") })
	return conn, ctx
}

func readMessage(t *testing.T, ctx context.Context, conn *cws.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestDisplayWebSocket_ReplayAndReport(t *testing.T) {
	d := &fakeDisplay{}
	s, surface := newTestServerWith(t, d, &fakeManifests{})
	conn, ctx := dialDisplay(t, s)

	// A new display is told to show the board.
	if msg := readMessage(t, ctx, conn); msg["method"] != NotifyShowBoard {
		t.Fatalf("expected %s first, got %v", NotifyShowBoard, msg)
	}

	req, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "display.report",
		"params":  map[string]any{"token": 4, "kind": "loaded"},
		"id":      1,
	})
	if err := conn.Write(ctx, cws.MessageText, req); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}
	if msg := readMessage(t, ctx, conn); msg["result"] == nil {
		t.Fatalf("expected result, got %v", msg)
	}
	sigs := d.reported()
	if len(sigs) != 1 || sigs[0].Token != 4 || sigs[0].Kind != display.SignalLoaded {
		t.Fatalf("unexpected signals: %+v", sigs)
	}

	surface.ShowImage(display.Cue{Token: 5, SlotID: "01ad", Kind: manifest.KindImage, URL: "http://x/a.jpg"})
	msg := readMessage(t, ctx, conn)
	if msg["method"] != NotifyImage {
		t.Fatalf("expected %s, got %v", NotifyImage, msg)
	}
	cue := msg["params"].(map[string]any)["cue"].(map[string]any)
	if cue["slot"] != "01ad" || cue["token"].(float64) != 5 {
		t.Fatalf("unexpected cue: %v", cue)
	}
}

func TestDisplayWebSocket_ReportValidation(t *testing.T) {
	d := &fakeDisplay{}
	s, _ := newTestServerWith(t, d, &fakeManifests{})
	conn, ctx := dialDisplay(t, s)
	readMessage(t, ctx, conn)

	req, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "display.report",
		"params":  map[string]any{"kind": "loaded"},
		"id":      1,
	})
	if err := conn.Write(ctx, cws.MessageText, req); err != nil {
		t.Fatal(err)
	}
	if got := errorCode(t, readMessage(t, ctx, conn)); got != -32602 {
		t.Fatalf("expected -32602, got %v", got)
	}
	if len(d.reported()) != 0 {
		t.Fatal("invalid report must not reach the display")
	}
}

func TestDisplayWebSocket_AdminMethodsNotExposed(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{})
	conn, ctx := dialDisplay(t, s)
	readMessage(t, ctx, conn)

	req, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "method": "carousel.refresh", "id": 1})
	if err := conn.Write(ctx, cws.MessageText, req); err != nil {
		t.Fatal(err)
	}
	if got := errorCode(t, readMessage(t, ctx, conn)); got != -32601 {
		t.Fatalf("expected method not found, got %v", got)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	s, _ := newTestServerWith(t, &fakeDisplay{}, &fakeManifests{})
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
