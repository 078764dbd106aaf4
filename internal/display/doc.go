// Package display decides what the screen shows at every instant.
//
// Machine is the state machine: it alternates between the board and the
// carousel's media items, owns every timer and resolves media completion
// signals at a single point. It does no I/O of its own and takes the
// current time as an argument, so tests drive it directly.
//
// Engine runs a Machine on one goroutine in the active-object style: feed
// refreshes and manifest reads run on worker goroutines and post their
// results back into the loop, and every pending deadline lives in a
// min-heap serviced by a single timer.
package display
