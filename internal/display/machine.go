package display

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/manifest"
	"github.com/infoboard/infoboard/internal/playlist"
	"github.com/infoboard/infoboard/pkg/logger"
)

// Default timings.
const (
	DefBoardDuration     = 30 * time.Second
	DefRefreshInterval   = 30 * time.Second
	DefImageLoadTimeout  = 15 * time.Second
	DefVideoStartTimeout = 5 * time.Second

	// DefMediaDuration applies to media items without a usable duration.
	DefMediaDuration = 10 * time.Second

	safetyBuffer      = 1500 * time.Millisecond
	safetyMin         = 8 * time.Second
	safetyMax         = 180 * time.Second
	unknownVideoDur   = 20 * time.Second
	loadingText       = "Loading…"
	mutedFallbackText = "Audio blocked: tap to unmute"
)

// Config holds the machine's timings. Zero values take the defaults.
type Config struct {
	// BoardDuration is the board dwell when the manifest sets none, and
	// after a media failure.
	BoardDuration     time.Duration
	RefreshInterval   time.Duration
	ImageLoadTimeout  time.Duration
	VideoStartTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.BoardDuration <= 0 {
		c.BoardDuration = DefBoardDuration
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = DefRefreshInterval
	}
	if c.ImageLoadTimeout <= 0 {
		c.ImageLoadTimeout = DefImageLoadTimeout
	}
	if c.VideoStartTimeout <= 0 {
		c.VideoStartTimeout = DefVideoStartTimeout
	}
}

type mediaPhase int

const (
	phaseLoading mediaPhase = iota
	phasePlaying
)

// Machine is the display state machine. It is not safe for concurrent use;
// Engine serializes every call onto one goroutine.
type Machine struct {
	cfg       Config
	surface   Surface
	refresher BoardRefresher
	urls      URLResolver
	log       logger.Logger

	manifest *manifest.Manifest

	state     State
	index     int
	playlen   int
	current   playlist.Item
	cue       Cue
	token     uint64
	phase     mediaPhase
	muted     bool
	videoDur  float64
	refreshOn bool
	timers    deadlineHeap

	frame     board.Frame
	haveFrame bool
	status    Status
	lastErr   string
}

// URLResolver resolves media paths to display URLs.
type URLResolver interface {
	Resolve(ctx context.Context, path, buster string) (string, error)
	Reset()
}

// NewMachine returns a machine in the board state. Call Start before
// anything else.
func NewMachine(cfg Config, s Surface, r BoardRefresher, urls URLResolver, l logger.Logger) *Machine {
	cfg.setDefaults()
	if l == nil {
		l = logger.NewNopLogger()
	}
	return &Machine{
		cfg:       cfg,
		surface:   s,
		refresher: r,
		urls:      urls,
		log:       l,
		state:     StateBoard,
		playlen:   1,
	}
}

// Start shows the board and arms its dwell.
func (m *Machine) Start(now time.Time) {
	items := m.playlist()
	m.index = 0
	m.enterBoard(now, items[0].DurationMs)
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Manifest returns the cached manifest, or nil.
func (m *Machine) Manifest() *manifest.Manifest { return m.manifest }

// SetManifest replaces the cached manifest wholesale and forgets every
// resolved URL. It takes effect at the next advance.
func (m *Machine) SetManifest(mf *manifest.Manifest) {
	m.manifest = mf
	m.urls.Reset()
}

// SetStatus updates the carousel status line.
func (m *Machine) SetStatus(s Status) {
	m.status = s
	m.surface.SetStatus(s)
}

// BoardUpdated records a fresh board frame and renders it if the board is
// on screen.
func (m *Machine) BoardUpdated(f board.Frame) {
	m.frame = f
	m.haveFrame = true
	if m.state == StateBoard {
		m.surface.RenderBoard(f)
	}
}

// NextDeadline returns when Tick next has work to do.
func (m *Machine) NextDeadline() (time.Time, bool) {
	return m.timers.next()
}

// Tick fires every timer due at now. Timers are taken one at a time so a
// transition made by one never races another of the old state.
func (m *Machine) Tick(now time.Time) {
	for {
		d, ok := m.timers.popDue(now)
		if !ok {
			return
		}
		switch d.kind {
		case timerRefresh:
			m.refresher.Kick()
			m.timers.arm(deadline{kind: timerRefresh, at: now.Add(m.cfg.RefreshInterval)})
		case timerAdvance:
			if d.token == m.token {
				m.Advance(now)
			}
		case timerLoad:
			if d.token == m.token && m.state == StateMedia {
				m.loadTimedOut(now)
			}
		}
	}
}

// Advance moves to the next playlist entry. The playlist is rebuilt from
// the cached manifest every time so manifest changes apply on the next
// step.
func (m *Machine) Advance(now time.Time) {
	items := m.playlist()
	m.index = (m.index + 1) % len(items)
	item := items[m.index]
	if item.IsBoard() {
		m.enterBoard(now, item.DurationMs)
		return
	}
	m.enterMedia(now, item)
}

func (m *Machine) playlist() []playlist.Item {
	items := playlist.Build(m.manifest, int(m.cfg.BoardDuration/time.Millisecond))
	m.playlen = len(items)
	return items
}

// leave clears every timer owned by the current entry and invalidates its
// outstanding signals.
func (m *Machine) leave() {
	m.timers.disarm(timerAdvance)
	m.timers.disarm(timerLoad)
	m.token++
	m.phase = phaseLoading
	m.cue = Cue{}
	m.muted = false
	m.videoDur = 0
}

func (m *Machine) enterBoard(now time.Time, dwellMs int) {
	m.leave()
	m.state = StateBoard
	m.current = playlist.Item{Type: playlist.ItemBoard, DurationMs: dwellMs}
	m.surface.ShowBoard()
	if m.haveFrame {
		m.surface.RenderBoard(m.frame)
	}
	if !m.refreshOn {
		m.refreshOn = true
		m.refresher.Kick()
		m.timers.arm(deadline{kind: timerRefresh, at: now.Add(m.cfg.RefreshInterval)})
	}
	dwell := time.Duration(dwellMs) * time.Millisecond
	if dwell <= 0 {
		dwell = m.cfg.BoardDuration
	}
	m.timers.arm(deadline{kind: timerAdvance, at: now.Add(dwell), token: m.token})
}

func (m *Machine) enterMedia(now time.Time, item playlist.Item) {
	m.leave()
	if m.refreshOn {
		m.refreshOn = false
		m.timers.disarm(timerRefresh)
		m.refresher.Cancel()
	}
	m.state = StateMedia
	m.current = item

	// The resolver may hit the object store; bound it by the load timeout.
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ImageLoadTimeout)
	url, err := m.urls.Resolve(ctx, item.Path, item.CacheBuster)
	cancel()
	if err != nil {
		m.fail(now, fmt.Errorf("resolving %s: %w", item.Path, err))
		return
	}

	m.cue = Cue{Token: m.token, SlotID: item.SlotID, Kind: item.Kind, URL: url}
	m.surface.ShowLoadingIndicator(loadingText)
	if item.Kind == manifest.KindVideo {
		m.surface.ShowVideo(m.cue, VideoOptions{})
		m.timers.arm(deadline{kind: timerLoad, at: now.Add(m.cfg.VideoStartTimeout), token: m.token})
		return
	}
	m.surface.ShowImage(m.cue)
	m.timers.arm(deadline{kind: timerLoad, at: now.Add(m.cfg.ImageLoadTimeout), token: m.token})
}

// Signal resolves a media event. Signals for anything but the entry on
// screen are dropped.
func (m *Machine) Signal(now time.Time, sig Signal) {
	if m.state != StateMedia || sig.Token != m.token {
		return
	}
	if m.current.Kind == manifest.KindVideo {
		m.videoSignal(now, sig)
		return
	}
	switch sig.Kind {
	case SignalLoaded:
		if m.phase != phaseLoading {
			return
		}
		m.phase = phasePlaying
		m.timers.disarm(timerLoad)
		m.surface.ShowLoadingIndicator("")
		m.timers.arm(deadline{kind: timerAdvance, at: now.Add(m.itemDuration()), token: m.token})
	case SignalFailed:
		m.fail(now, fmt.Errorf("image %s: %s", m.current.Path, orDefault(sig.Detail, "load error")))
	}
}

func (m *Machine) videoSignal(now time.Time, sig Signal) {
	if sig.Duration > 0 && !math.IsInf(sig.Duration, 0) {
		m.videoDur = sig.Duration
	}
	switch sig.Kind {
	case SignalPlaying:
		if m.phase == phaseLoading {
			m.startPlayback(now)
		}
	case SignalRejected:
		if m.phase != phaseLoading {
			return
		}
		if m.muted {
			m.fail(now, fmt.Errorf("video %s: muted playback rejected", m.current.Path))
			return
		}
		m.muted = true
		m.surface.ShowVideo(m.cue, VideoOptions{Muted: true, MutedFallback: true})
		m.timers.arm(deadline{kind: timerLoad, at: now.Add(m.cfg.VideoStartTimeout), token: m.token})
	case SignalEnded:
		if m.current.UseVideoDuration {
			m.Advance(now)
		}
	case SignalFailed:
		m.fail(now, fmt.Errorf("video %s: %s", m.current.Path, orDefault(sig.Detail, "playback error")))
	}
}

func (m *Machine) loadTimedOut(now time.Time) {
	if m.current.Kind == manifest.KindVideo {
		// Start anyway; the safety timer still guarantees progress.
		m.log.Warning("display: video %s did not report playback within %s", m.current.Path, m.cfg.VideoStartTimeout)
		m.startPlayback(now)
		return
	}
	m.fail(now, fmt.Errorf("image %s: not loaded within %s", m.current.Path, m.cfg.ImageLoadTimeout))
}

func (m *Machine) startPlayback(now time.Time) {
	m.phase = phasePlaying
	m.timers.disarm(timerLoad)
	if m.muted {
		m.surface.ShowLoadingIndicator(mutedFallbackText)
	} else {
		m.surface.ShowLoadingIndicator("")
	}
	wait := m.itemDuration()
	if m.current.UseVideoDuration {
		wait = SafetyTimeout(m.videoDur)
	}
	m.timers.arm(deadline{kind: timerAdvance, at: now.Add(wait), token: m.token})
}

// fail abandons the current media item and falls back to the board with
// the default dwell. The index stays put so the next advance moves past
// the bad item.
func (m *Machine) fail(now time.Time, err error) {
	err = fmt.Errorf("%w: %v", ErrAssetLoad, err)
	m.lastErr = err.Error()
	m.log.Warning("display: %v", err)
	m.enterBoard(now, int(m.cfg.BoardDuration/time.Millisecond))
}

func (m *Machine) itemDuration() time.Duration {
	if m.current.DurationMs <= 0 {
		return DefMediaDuration
	}
	return time.Duration(m.current.DurationMs) * time.Millisecond
}

// SafetyTimeout bounds how long a video playing to its own end may stay on
// screen: its length plus a buffer, clamped to [8s, 180s]. A length of 0
// means unknown and counts as 20s.
func SafetyTimeout(seconds float64) time.Duration {
	d := unknownVideoDur
	if seconds > 0 && !math.IsNaN(seconds) && !math.IsInf(seconds, 0) {
		// Clamp before converting; huge reports would overflow Duration.
		d = time.Duration(min(seconds, safetyMax.Seconds()) * float64(time.Second))
	}
	d += safetyBuffer
	return min(max(d, safetyMin), safetyMax)
}

// Snapshot describes the machine.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		State:             m.state,
		StateName:         m.state.String(),
		Index:             m.index,
		PlaylistLen:       m.playlen,
		Muted:             m.muted,
		RefreshLoopActive: m.refreshOn && m.timers.armed(timerRefresh),
		ManifestLoaded:    m.manifest != nil,
		Carousel:          m.status,
		LastError:         m.lastErr,
		BoardUpdatedAt:    m.frame.LastUpdatedAt,
	}
	if m.state == StateMedia {
		s.Slot = m.current.SlotID
		s.MediaTimerActive = m.timers.armed(timerAdvance) || m.timers.armed(timerLoad)
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
