// Package manifest reads and writes the carousel manifest, the document
// describing what each catalog slot currently holds and how long the board
// dwells between media.
package manifest

import "time"

// Manifest is the carousel document.
type Manifest struct {
	Version   int
	UpdatedAt time.Time
	Board     Board
	Slots     []Slot
}

// Board holds the board dwell.
type Board struct {
	DurationMs int `json:"durationMs"`
}

// Slot is one carousel position. Empty strings, a zero Size and a zero
// UpdatedAt are written as null.
type Slot struct {
	ID               string
	Kind             Kind
	Enabled          bool
	Path             string
	ContentType      string
	Size             int64
	DurationMs       int
	UseVideoDuration bool
	CacheBuster      string
	UpdatedAt        time.Time
}

// DefaultSlot returns the empty state of a catalog slot.
func DefaultSlot(d SlotDef) Slot {
	return Slot{
		ID:               d.ID,
		Kind:             d.Kind,
		DurationMs:       DefSlotDurationMs,
		UseVideoDuration: d.Kind == KindVideo,
	}
}

// Default returns a manifest with every catalog slot disabled.
func Default(boardDurationMs int, now time.Time) *Manifest {
	if boardDurationMs <= 0 {
		boardDurationMs = DefBoardDurationMs
	}
	m := &Manifest{
		Version:   1,
		UpdatedAt: now.UTC(),
		Board:     Board{DurationMs: boardDurationMs},
		Slots:     make([]Slot, len(Catalog)),
	}
	for i, d := range Catalog {
		m.Slots[i] = DefaultSlot(d)
	}
	return m
}

// Slot returns the slot with id.
func (m *Manifest) Slot(id string) (Slot, bool) {
	for _, s := range m.Slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

// Normalize returns m rearranged against the catalog: every catalog slot
// exactly once in catalog order, taken from m when present and from the
// defaults otherwise, followed by the slots m has that the catalog does
// not, in their stored order. The first slot with a given id wins and
// catalog kinds are authoritative.
func Normalize(m *Manifest) *Manifest {
	if m == nil {
		m = &Manifest{}
	}
	out := &Manifest{
		Version:   m.Version,
		UpdatedAt: m.UpdatedAt,
		Board:     m.Board,
		Slots:     make([]Slot, len(Catalog)),
	}
	index := make(map[string]int, len(Catalog))
	for i, d := range Catalog {
		out.Slots[i] = DefaultSlot(d)
		index[d.ID] = i
	}
	seen := make(map[string]bool, len(m.Slots))
	for _, s := range m.Slots {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		if i, ok := index[s.ID]; ok {
			s.Kind = Catalog[i].Kind
			out.Slots[i] = s
			continue
		}
		out.Slots = append(out.Slots, s)
	}
	return out
}
