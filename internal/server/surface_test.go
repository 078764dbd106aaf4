package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/display"
	"github.com/infoboard/infoboard/pkg/logger"
)

func startSurface(t *testing.T) (*Surface, *RPCNotifier) {
	t.Helper()
	n := NewRPCNotifier(nil)
	s := NewSurface(n, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx)
	return s, n
}

func methods(t *testing.T, ps []pushed) []string {
	t.Helper()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Method
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSurface_AttachOnBoardReplaysStatusAndFrame(t *testing.T) {
	s, n := startSurface(t)
	s.SetStatus(display.Status{State: display.CarouselOK, Message: "carousel ok"})
	s.RenderBoard(board.Frame{LastUpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
	s.ShowBoard()

	cli, srv, cleanup := newTestServer(t)
	defer cleanup()
	if err := s.Attach(context.Background(), srv); err != nil {
		t.Fatal(err)
	}

	got := methods(t, []pushed{recvPush(t, cli), recvPush(t, cli), recvPush(t, cli)})
	want := []string{NotifyStatus, NotifyRender, NotifyShowBoard}
	if !equalStrings(got, want) {
		t.Fatalf("replay = %v, want %v", got, want)
	}

	// Registered after replay: later pushes arrive too.
	s.ShowLoadingIndicator("")
	if p := recvPush(t, cli); p.Method != NotifyLoading {
		t.Fatalf("expected %s after attach, got %s", NotifyLoading, p.Method)
	}
	if n.Count() != 1 {
		t.Fatalf("expected 1 registered display, got %d", n.Count())
	}
}

func TestSurface_AttachDuringMediaReplaysCue(t *testing.T) {
	s, _ := startSurface(t)
	s.ShowBoard()
	s.ShowLoadingIndicator("Loading…")
	cue := display.Cue{Token: 7, SlotID: "01video", Kind: "video", URL: "http://display.test/objects/carousel/a.mp4?v=3"}
	s.ShowVideo(cue, display.VideoOptions{Muted: true, MutedFallback: true})

	cli, srv, cleanup := newTestServer(t)
	defer cleanup()
	if err := s.Attach(context.Background(), srv); err != nil {
		t.Fatal(err)
	}

	first, second := recvPush(t, cli), recvPush(t, cli)
	if first.Method != NotifyVideo || second.Method != NotifyLoading {
		t.Fatalf("replay = [%s %s], want [%s %s]", first.Method, second.Method, NotifyVideo, NotifyLoading)
	}
	var vn VideoNotification
	if err := json.Unmarshal(first.Params, &vn); err != nil {
		t.Fatal(err)
	}
	if vn.Cue != cue || !vn.Options.Muted {
		t.Fatalf("unexpected video replay: %+v", vn)
	}
}

func TestSurface_ShowBoardClearsMedia(t *testing.T) {
	s, _ := startSurface(t)
	s.ShowImage(display.Cue{Token: 1, SlotID: "01ad", Kind: "image", URL: "http://x/a.jpg"})
	s.ShowBoard()

	cli, srv, cleanup := newTestServer(t)
	defer cleanup()
	if err := s.Attach(context.Background(), srv); err != nil {
		t.Fatal(err)
	}
	if p := recvPush(t, cli); p.Method != NotifyShowBoard {
		t.Fatalf("expected %s, got %s", NotifyShowBoard, p.Method)
	}
}

func fillQueue(s *Surface) {
	for i := 0; i < queueSize; i++ {
		s.ShowLoadingIndicator("")
	}
}

func drainQueue(s *Surface) {
	for len(s.queue) > 0 {
		<-s.queue
	}
}

func TestSurface_FullQueueKeepsLatestScreen(t *testing.T) {
	l := logger.NewMockLogger()
	// Not running: nothing drains the queue.
	s := NewSurface(NewRPCNotifier(nil), l)
	fillQueue(s)

	s.ShowLoadingIndicator("Loading…")
	s.ShowImage(display.Cue{Token: 4, SlotID: "01ad", Kind: "image", URL: "http://x/a.jpg"})
	s.ShowBoard()
	s.RenderBoard(board.Frame{LastUpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
	if !l.Contains("push queue full") {
		t.Fatal("expected a warning when the queue overflows")
	}

	// Space frees up, but the backlog is newer than anything queued so
	// later notifications must wait behind it.
	drainQueue(s)
	s.SetStatus(display.Status{State: display.CarouselOK})
	if len(s.queue) != 0 {
		t.Fatalf("notification jumped the backlog: %d queued", len(s.queue))
	}

	got := methods(t, func() []pushed {
		var ps []pushed
		for _, it := range s.backlog.items() {
			ps = append(ps, pushed{Method: it.method})
		}
		return ps
	}())
	want := []string{NotifyStatus, NotifyRender, NotifyShowBoard}
	if !equalStrings(got, want) {
		t.Fatalf("backlog = %v, want %v", got, want)
	}

	s.flushBacklog(context.Background())
	if !s.backlog.empty() {
		t.Fatal("backlog not flushed")
	}
	if !s.screen.onBoard || s.screen.media != nil || s.screen.frame == nil {
		t.Fatalf("screen not updated from backlog: %+v", s.screen)
	}
}

func TestSurface_BacklogWaitsForQueue(t *testing.T) {
	s := NewSurface(NewRPCNotifier(nil), nil)
	fillQueue(s)
	cue := display.Cue{Token: 9, SlotID: "02ad", Kind: "image", URL: "http://x/b.jpg"}
	s.ShowImage(cue)

	s.flushBacklog(context.Background())
	if s.backlog.empty() {
		t.Fatal("backlog flushed ahead of older queued notifications")
	}

	drainQueue(s)
	s.flushBacklog(context.Background())
	if s.screen.onBoard || s.screen.media == nil || s.screen.media.method != NotifyImage {
		t.Fatalf("expected the image to be on screen, got %+v", s.screen)
	}
}

func TestSurface_RunDeliversBacklog(t *testing.T) {
	s := NewSurface(NewRPCNotifier(nil), nil)
	fillQueue(s)
	s.ShowImage(display.Cue{Token: 2, SlotID: "03ad", Kind: "image", URL: "http://x/c.jpg"})
	s.ShowBoard()

	// Free one place so the display joins behind the queued notifications
	// and ahead of the backlog.
	<-s.queue
	cli, srv, cleanup := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Attach(ctx, srv); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	// The join replays the board, then the backlog delivers the board that
	// superseded the image.
	for i, want := range []string{NotifyShowBoard, NotifyShowBoard} {
		if p := recvPush(t, cli); p.Method != want {
			t.Fatalf("push %d: expected %s, got %s", i, want, p.Method)
		}
	}

	cancel()
	<-done
	go func() {
		for {
			if _, err := cli.Recv(); err != nil {
				return
			}
		}
	}()
	cleanup()
	if !s.backlog.empty() {
		t.Fatal("backlog not flushed")
	}
}

func TestSurface_AttachCanceled(t *testing.T) {
	s := NewSurface(NewRPCNotifier(nil), nil)
	for i := 0; i < queueSize; i++ {
		s.ShowBoard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Attach(ctx, nil); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
