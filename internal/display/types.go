package display

import (
	"errors"
	"time"

	"github.com/infoboard/infoboard/internal/board"
	"github.com/infoboard/infoboard/internal/manifest"
)

// ErrAssetLoad marks a media item that could not be shown. The item is
// skipped and the board takes over.
var ErrAssetLoad = errors.New("asset load failed")

// State is what the screen is showing.
type State int

const (
	StateBoard State = iota
	StateMedia
)

func (s State) String() string {
	if s == StateBoard {
		return "board"
	}
	return "media"
}

// Cue identifies one media showing. The surface echoes Token back in every
// Signal about it.
type Cue struct {
	Token  uint64        `json:"token"`
	SlotID string        `json:"slot"`
	Kind   manifest.Kind `json:"kind"`
	URL    string        `json:"url"`
}

// VideoOptions controls how a video is started.
type VideoOptions struct {
	Muted bool `json:"muted"`
	// MutedFallback asks the surface to offer a tap-to-unmute affordance.
	MutedFallback bool `json:"mutedFallback"`
}

// Surface renders what the machine decides. It is a passive sink: calls
// never fail and never block on the display.
type Surface interface {
	// ShowBoard switches to the board and halts any media playback.
	ShowBoard()
	RenderBoard(f board.Frame)
	ShowImage(c Cue)
	ShowVideo(c Cue, opts VideoOptions)
	// ShowLoadingIndicator shows text over the media; "" hides it.
	ShowLoadingIndicator(text string)
	SetStatus(s Status)
}

// BoardRefresher runs board refreshes off the display loop.
type BoardRefresher interface {
	// Kick starts a refresh unless one is already running.
	Kick()
	// Cancel aborts a running refresh.
	Cancel()
}

// SignalKind is a media completion event reported by the surface.
type SignalKind string

const (
	SignalLoaded   SignalKind = "loaded"
	SignalFailed   SignalKind = "failed"
	SignalPlaying  SignalKind = "playing"
	SignalRejected SignalKind = "rejected"
	SignalEnded    SignalKind = "ended"
)

// Signal reports what happened to the media identified by Token.
type Signal struct {
	Token uint64     `json:"token"`
	Kind  SignalKind `json:"kind"`
	// Duration is the intrinsic video length in seconds, when known.
	Duration float64 `json:"duration,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// CarouselState summarizes the last manifest refresh.
type CarouselState string

const (
	CarouselLoading    CarouselState = "loading"
	CarouselOK         CarouselState = "ok"
	CarouselNoManifest CarouselState = "no-manifest"
	CarouselManual     CarouselState = "manual"
	CarouselDegraded   CarouselState = "degraded"
)

// Status is the carousel status line.
type Status struct {
	State   CarouselState `json:"state"`
	Message string        `json:"message"`
}

// Snapshot describes the machine for status reporting.
type Snapshot struct {
	State             State     `json:"-"`
	StateName         string    `json:"state"`
	Index             int       `json:"index"`
	PlaylistLen       int       `json:"playlistLength"`
	Slot              string    `json:"slot,omitempty"`
	Muted             bool      `json:"muted,omitempty"`
	RefreshLoopActive bool      `json:"refreshLoopActive"`
	MediaTimerActive  bool      `json:"mediaTimerActive"`
	ManifestLoaded    bool      `json:"manifestLoaded"`
	Carousel          Status    `json:"carousel"`
	LastError         string    `json:"lastError,omitempty"`
	BoardUpdatedAt    time.Time `json:"boardUpdatedAt"`
}
