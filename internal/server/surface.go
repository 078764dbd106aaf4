package server

import (
	"context"
	"sync"

	"github.com/creachadair/jrpc2"

	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/display"
	"github.com/infoboard/infoboard/pkg/logger"
)

// Notifications pushed to displays.
const (
	NotifyShowBoard = "display.board"
	NotifyRender    = "board.render"
	NotifyImage     = "media.image"
	NotifyVideo     = "media.video"
	NotifyLoading   = "media.loading"
	NotifyStatus    = "carousel.status"
)

// queueSize bounds the notifications waiting to be pushed.
const queueSize = 64

// ImageNotification is the payload of media.image.
type ImageNotification struct {
	Cue display.Cue `json:"cue"`
}

// VideoNotification is the payload of media.video.
type VideoNotification struct {
	Cue     display.Cue          `json:"cue"`
	Options display.VideoOptions `json:"options"`
}

// LoadingNotification is the payload of media.loading. An empty Text hides
// the indicator.
type LoadingNotification struct {
	Text string `json:"text"`
}

// EmptyResult is a placeholder for calls and notifications without data.
type EmptyResult struct{}

type pushItem struct {
	method string
	params any
	join   *jrpc2.Server
}

// screen is the last thing pushed of each kind, replayed to displays that
// connect late.
type screen struct {
	onBoard bool
	frame   *board.Frame
	media   *pushItem
	loading string
	status  *display.Status
}

// backlog holds notifications that did not fit in the queue, keeping only
// the latest of each kind. While it is not empty new notifications join it
// rather than the queue, so everything in the queue is older.
type backlog struct {
	status  *pushItem
	render  *pushItem
	screen  *pushItem
	loading *pushItem
}

func (b *backlog) empty() bool {
	return b.status == nil && b.render == nil && b.screen == nil && b.loading == nil
}

func (b *backlog) add(it pushItem) {
	switch it.method {
	case NotifyStatus:
		b.status = &it
	case NotifyRender:
		b.render = &it
	case NotifyShowBoard:
		b.screen = &it
		b.loading = nil
	case NotifyImage, NotifyVideo:
		b.screen = &it
	case NotifyLoading:
		b.loading = &it
	}
}

// items returns the backlog in replay order.
func (b *backlog) items() []pushItem {
	var out []pushItem
	for _, it := range []*pushItem{b.status, b.render, b.screen, b.loading} {
		if it != nil {
			out = append(out, *it)
		}
	}
	return out
}

// Surface renders the display machine's decisions by pushing JSON-RPC
// notifications to every connected display. Calls return immediately; a
// single goroutine pushes them in order.
type Surface struct {
	notifier *RPCNotifier
	log      logger.Logger
	queue    chan pushItem
	wake     chan struct{}

	mu      sync.Mutex
	backlog backlog

	// screen is owned by Run.
	screen screen
}

// NewSurface returns a Surface pushing through n. Call Run to start it.
func NewSurface(n *RPCNotifier, l logger.Logger) *Surface {
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Surface{
		notifier: n,
		log:      l,
		queue:    make(chan pushItem, queueSize),
		wake:     make(chan struct{}, 1),
		screen:   screen{onBoard: true},
	}
}

// Run pushes queued notifications until ctx is done.
func (s *Surface) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			s.handle(ctx, it)
		case <-s.wake:
		}
		s.flushBacklog(ctx)
	}
}

func (s *Surface) handle(ctx context.Context, it pushItem) {
	if it.join != nil {
		s.replay(ctx, it.join)
		s.notifier.Register(it.join)
		return
	}
	s.remember(it)
	s.notifier.Broadcast(ctx, it.method, it.params)
}

// flushBacklog pushes the backlog once the queue ahead of it has drained.
func (s *Surface) flushBacklog(ctx context.Context) {
	s.mu.Lock()
	if len(s.queue) > 0 || s.backlog.empty() {
		s.mu.Unlock()
		return
	}
	items := s.backlog.items()
	s.backlog = backlog{}
	s.mu.Unlock()
	for _, it := range items {
		s.handle(ctx, it)
	}
}

// Attach replays the current screen to srv and adds it to the broadcast
// set. Ordering with pushes already queued is preserved.
func (s *Surface) Attach(ctx context.Context, srv *jrpc2.Server) error {
	select {
	case s.queue <- pushItem{join: srv}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Surface) enqueue(method string, params any) {
	it := pushItem{method: method, params: params}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backlog.empty() {
		select {
		case s.queue <- it:
			return
		default:
			s.log.Warning("server: push queue full, coalescing %s", method)
		}
	}
	s.backlog.add(it)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Surface) remember(it pushItem) {
	switch it.method {
	case NotifyShowBoard:
		s.screen.onBoard = true
		s.screen.media = nil
		s.screen.loading = ""
	case NotifyRender:
		f := it.params.(board.Frame)
		s.screen.frame = &f
	case NotifyImage, NotifyVideo:
		s.screen.onBoard = false
		media := it
		s.screen.media = &media
	case NotifyLoading:
		s.screen.loading = it.params.(LoadingNotification).Text
	case NotifyStatus:
		st := it.params.(display.Status)
		s.screen.status = &st
	}
}

func (s *Surface) replay(ctx context.Context, srv *jrpc2.Server) {
	var items []pushItem
	if s.screen.status != nil {
		items = append(items, pushItem{method: NotifyStatus, params: *s.screen.status})
	}
	if s.screen.frame != nil {
		items = append(items, pushItem{method: NotifyRender, params: *s.screen.frame})
	}
	if s.screen.onBoard || s.screen.media == nil {
		items = append(items, pushItem{method: NotifyShowBoard, params: EmptyResult{}})
	} else {
		items = append(items, *s.screen.media)
		if s.screen.loading != "" {
			items = append(items, pushItem{method: NotifyLoading, params: LoadingNotification{Text: s.screen.loading}})
		}
	}
	for _, it := range items {
		if err := push(ctx, srv, it.method, it.params); err != nil {
			s.log.Warning("server: replay %s failed: %v", it.method, err)
			return
		}
	}
}

func (s *Surface) ShowBoard() {
	s.enqueue(NotifyShowBoard, EmptyResult{})
}

func (s *Surface) RenderBoard(f board.Frame) {
	s.enqueue(NotifyRender, f)
}

func (s *Surface) ShowImage(c display.Cue) {
	s.enqueue(NotifyImage, ImageNotification{Cue: c})
}

func (s *Surface) ShowVideo(c display.Cue, opts display.VideoOptions) {
	s.enqueue(NotifyVideo, VideoNotification{Cue: c, Options: opts})
}

func (s *Surface) ShowLoadingIndicator(text string) {
	s.enqueue(NotifyLoading, LoadingNotification{Text: text})
}

func (s *Surface) SetStatus(st display.Status) {
	s.enqueue(NotifyStatus, st)
}
