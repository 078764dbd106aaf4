// Package playlist turns a manifest into the display's running order.
package playlist

import "github.com/infoboard/infoboard/internal/manifest"

// ItemType tells board items from media items.
type ItemType int

const (
	ItemBoard ItemType = iota
	ItemMedia
)

func (t ItemType) String() string {
	if t == ItemBoard {
		return "board"
	}
	return "media"
}

// Item is one entry of the playlist. Media fields are empty for the board.
type Item struct {
	Type             ItemType
	DurationMs       int
	SlotID           string
	Kind             manifest.Kind
	Path             string
	UseVideoDuration bool
	CacheBuster      string
}

// IsBoard reports whether it is the board entry.
func (it Item) IsBoard() bool { return it.Type == ItemBoard }

// Build returns the board followed by one media item per playable slot, in
// manifest order. A slot is playable when it is enabled, has a path and
// holds a known kind. Build never returns an empty list; m may be nil.
func Build(m *manifest.Manifest, defaultBoardMs int) []Item {
	boardMs := defaultBoardMs
	if m != nil && m.Board.DurationMs > 0 {
		boardMs = m.Board.DurationMs
	}
	items := []Item{{Type: ItemBoard, DurationMs: boardMs}}
	if m == nil {
		return items
	}
	for _, s := range m.Slots {
		if !s.Enabled || s.Path == "" || !s.Kind.Known() {
			continue
		}
		items = append(items, Item{
			Type:             ItemMedia,
			DurationMs:       s.DurationMs,
			SlotID:           s.ID,
			Kind:             s.Kind,
			Path:             s.Path,
			UseVideoDuration: s.UseVideoDuration,
			CacheBuster:      s.CacheBuster,
		})
	}
	return items
}
