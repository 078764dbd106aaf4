package display

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/manifest"
	"github.com/infoboard/infoboard/internal/playlist"
	"github.com/infoboard/infoboard/pkg/logger"
)

// maxSleepCap bounds each wait so wall-clock jumps are noticed.
const maxSleepCap = 60 * time.Second

// ErrStopped is returned by calls made after Run has returned.
var ErrStopped = errors.New("display engine stopped")

// ManifestReader reads the carousel manifest.
type ManifestReader interface {
	Read(ctx context.Context, opts manifest.ReadOptions) (*manifest.Manifest, error)
}

// Refresher produces board frames.
type Refresher interface {
	Refresh(ctx context.Context) board.Frame
	Frame() board.Frame
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Machine Config
	// ReadManifestOnStartup performs one manifest read when Run starts.
	// Otherwise the manifest is only read on RefreshManifest.
	ReadManifestOnStartup bool
	// ManifestCron, when set, also refreshes the manifest on this schedule.
	ManifestCron string
	Log          logger.Logger
	// Now is the loop's clock. Tests replace it.
	Now func() time.Time
}

type boardResult struct {
	gen   uint64
	frame board.Frame
}

type manifestResult struct {
	m   *manifest.Manifest
	err error
}

type refreshRequest struct {
	reply chan error
}

type statusRequest struct {
	reply chan Snapshot
}

// Engine drives a Machine from a single goroutine.
type Engine struct {
	opts      EngineOptions
	board     Refresher
	manifests ManifestReader
	machine   *Machine
	log       logger.Logger
	now       func() time.Time

	signals   chan Signal
	refreshes chan refreshRequest
	statuses  chan statusRequest
	boardDone chan boardResult
	readDone  chan manifestResult
	stopped   chan struct{}

	// Owned by the loop goroutine.
	runCtx      context.Context
	boardGen    uint64
	boardCancel context.CancelFunc
	reading     bool
	waiters     []chan error
	cronNext    time.Time
}

// NewEngine wires a Machine to its collaborators.
func NewEngine(opts EngineOptions, s Surface, b Refresher, mr ManifestReader, urls URLResolver) *Engine {
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	e := &Engine{
		opts:      opts,
		board:     b,
		manifests: mr,
		log:       opts.Log,
		now:       opts.Now,
		signals:   make(chan Signal, 16),
		refreshes: make(chan refreshRequest),
		statuses:  make(chan statusRequest),
		boardDone: make(chan boardResult, 1),
		readDone:  make(chan manifestResult, 1),
		stopped:   make(chan struct{}),
	}
	e.machine = NewMachine(opts.Machine, s, (*engineRefresher)(e), urls, opts.Log)
	return e
}

// engineRefresher is the Engine seen as the machine's BoardRefresher. Its
// methods run on the loop goroutine.
type engineRefresher Engine

func (r *engineRefresher) Kick() {
	e := (*Engine)(r)
	if e.boardCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.runCtx)
	e.boardCancel = cancel
	e.boardGen++
	gen := e.boardGen
	go func() {
		defer cancel()
		frame := e.board.Refresh(ctx)
		select {
		case e.boardDone <- boardResult{gen: gen, frame: frame}:
		case <-e.runCtx.Done():
		}
	}()
}

func (r *engineRefresher) Cancel() {
	e := (*Engine)(r)
	if e.boardCancel != nil {
		e.boardCancel()
		e.boardCancel = nil
	}
}

// Report delivers a media signal from the surface.
func (e *Engine) Report(ctx context.Context, sig Signal) error {
	select {
	case e.signals <- sig:
		return nil
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshManifest re-reads the manifest and waits for the outcome. On
// failure the previous manifest stays in use and the error is returned.
// Concurrent calls share one read.
func (e *Engine) RefreshManifest(ctx context.Context) error {
	req := refreshRequest{reply: make(chan error, 1)}
	select {
	case e.refreshes <- req:
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-e.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a snapshot of the machine.
func (e *Engine) Status(ctx context.Context) (Snapshot, error) {
	req := statusRequest{reply: make(chan Snapshot, 1)}
	select {
	case e.statuses <- req:
	case <-e.stopped:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case s := <-req.reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Run owns the machine until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.stopped)
	e.runCtx = ctx
	defer (*engineRefresher)(e).Cancel()

	m := e.machine
	if f := e.board.Frame(); !f.LastUpdatedAt.IsZero() {
		m.BoardUpdated(f)
	}
	m.Start(e.now())
	if e.opts.ReadManifestOnStartup {
		e.startRead(nil)
	} else {
		m.SetStatus(Status{State: CarouselManual, Message: "carousel loads on manual refresh"})
	}
	e.scheduleCron(e.now())

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		next, ok := m.NextDeadline()
		if !e.cronNext.IsZero() && (!ok || e.cronNext.Before(next)) {
			next, ok = e.cronNext, true
		}
		if !ok {
			return nil
		}
		dur := next.Sub(e.now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	e.log.Info("display: engine started")
	timerCh := resetTimer()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("display: engine stopped")
			return nil

		case sig := <-e.signals:
			m.Signal(e.now(), sig)

		case res := <-e.boardDone:
			if res.gen == e.boardGen {
				e.boardCancel = nil
			}
			m.BoardUpdated(res.frame)

		case req := <-e.refreshes:
			e.startRead(req.reply)

		case res := <-e.readDone:
			e.finishRead(res)

		case req := <-e.statuses:
			req.reply <- m.Snapshot()

		case <-timerCh:
			now := e.now()
			m.Tick(now)
			if !e.cronNext.IsZero() && !e.cronNext.After(now) {
				e.startRead(nil)
				e.scheduleCron(now)
			}
		}
		timerCh = resetTimer()
	}
}

func (e *Engine) scheduleCron(now time.Time) {
	e.cronNext = time.Time{}
	if e.opts.ManifestCron == "" {
		return
	}
	next, err := gronx.NextTickAfter(e.opts.ManifestCron, now, false)
	if err != nil {
		e.log.Error("display: manifest cron %q: %v", e.opts.ManifestCron, err)
		return
	}
	e.cronNext = next
}

// startRead reads the manifest off the loop. reply, if set, receives the
// outcome.
func (e *Engine) startRead(reply chan error) {
	if reply != nil {
		e.waiters = append(e.waiters, reply)
	}
	if e.reading {
		return
	}
	e.reading = true
	e.machine.SetStatus(Status{State: CarouselLoading, Message: "loading carousel"})
	ctx := e.runCtx
	go func() {
		m, err := e.manifests.Read(ctx, manifest.ReadOptions{})
		select {
		case e.readDone <- manifestResult{m: m, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (e *Engine) finishRead(res manifestResult) {
	e.reading = false
	m := e.machine
	switch {
	case res.err == nil:
		m.SetManifest(res.m)
		n := len(playlist.Build(res.m, 0)) - 1
		m.SetStatus(Status{State: CarouselOK, Message: fmt.Sprintf("carousel ok, %d media items", n)})
		e.log.Info("display: manifest loaded, %d media items", n)
	case errors.Is(res.err, manifest.ErrNotFound):
		m.SetStatus(Status{State: CarouselNoManifest, Message: "no manifest yet"})
		e.log.Warning("display: %v", res.err)
	default:
		msg := "carousel refresh failed"
		if m.Manifest() != nil {
			msg += ", keeping previous manifest"
		}
		m.SetStatus(Status{State: CarouselDegraded, Message: msg + ": " + res.err.Error()})
		e.log.Error("display: manifest refresh: %v", res.err)
	}
	for _, w := range e.waiters {
		w <- res.err
	}
	e.waiters = nil
}
