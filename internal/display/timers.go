package display

import (
	"container/heap"
	"time"
)

type timerKind int

const (
	// timerAdvance moves to the next playlist item.
	timerAdvance timerKind = iota
	// timerLoad bounds how long a media item may take to load or start.
	timerLoad
	// timerRefresh fires the periodic board refresh.
	timerRefresh
)

func (k timerKind) String() string {
	switch k {
	case timerAdvance:
		return "advance"
	case timerLoad:
		return "load"
	case timerRefresh:
		return "refresh"
	}
	return "unknown"
}

// deadline is one pending timer. token ties media timers to the entry that
// armed them.
type deadline struct {
	kind  timerKind
	at    time.Time
	token uint64
}

// deadlineHeap implements container/heap.Interface, earliest first.
type deadlineHeap []deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *deadlineHeap) Push(x any) {
	*h = append(*h, x.(deadline))
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// arm replaces any pending timer of the same kind.
func (h *deadlineHeap) arm(d deadline) {
	h.disarm(d.kind)
	heap.Push(h, d)
}

// disarm removes the pending timer of kind, reporting whether there was one.
func (h *deadlineHeap) disarm(kind timerKind) bool {
	for i, d := range *h {
		if d.kind == kind {
			heap.Remove(h, i)
			return true
		}
	}
	return false
}

func (h deadlineHeap) armed(kind timerKind) bool {
	for _, d := range h {
		if d.kind == kind {
			return true
		}
	}
	return false
}

// popDue removes and returns the earliest timer if it is due at now.
func (h *deadlineHeap) popDue(now time.Time) (deadline, bool) {
	if h.Len() == 0 || (*h)[0].at.After(now) {
		return deadline{}, false
	}
	return heap.Pop(h).(deadline), true
}

func (h deadlineHeap) next() (time.Time, bool) {
	if len(h) == 0 {
		return time.Time{}, false
	}
	return h[0].at, true
}
