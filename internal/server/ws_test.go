package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	cws "github.com/coder/websocket"
)

func TestWSChannel_SendTimesOutOnStalledDisplay(t *testing.T) {
	result := make(chan error, 1)
	hs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := cws.Accept(w, r, nil)
		if err != nil {
			result <- err
			return
		}
		ch := &wsChannel{conn: conn, ctx: r.Context(), writeTimeout: 50 * time.Millisecond}
		frame := []byte(`"` + strings.Repeat("x", 1<<20) + `"`)
		for i := 0; i < 256; i++ {
			if err := ch.Send(frame); err != nil {
				result <- err
				return
			}
		}
		result <- nil
	}))
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// The client never reads, so the server's writes back up.
	conn, _, err := cws.Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.CloseNow()

	select {
	case err := <-result:
		if err == nil {
			t.Fatal("expected a send to a stalled display to fail")
		}
	case <-ctx.Done():
		t.Fatal("send to a stalled display never returned")
	}
}
