package manifest

import "fmt"

// Kind is the media type a slot holds.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Known reports whether k is a kind the display can play.
func (k Kind) Known() bool {
	return k == KindImage || k == KindVideo
}

// SlotDef is one entry of the slot catalog.
type SlotDef struct {
	ID   string
	Kind Kind
}

const (
	imageSlots = 25
	// DefSlotDurationMs is how long a slot shows when nothing else is set.
	DefSlotDurationMs = 10000
	// DefBoardDurationMs is the board dwell of a default manifest.
	DefBoardDurationMs = 30000
)

// Catalog lists every slot in display order: 01ad..25ad, then the videos.
var Catalog = buildCatalog()

func buildCatalog() []SlotDef {
	defs := make([]SlotDef, 0, imageSlots+2)
	for i := 1; i <= imageSlots; i++ {
		defs = append(defs, SlotDef{ID: fmt.Sprintf("%02dad", i), Kind: KindImage})
	}
	return append(defs,
		SlotDef{ID: "01video", Kind: KindVideo},
		SlotDef{ID: "02video", Kind: KindVideo},
	)
}

// Lookup returns the catalog entry for id.
func Lookup(id string) (SlotDef, bool) {
	for _, d := range Catalog {
		if d.ID == id {
			return d, true
		}
	}
	return SlotDef{}, false
}
