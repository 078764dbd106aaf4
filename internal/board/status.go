package board

import "strings"

// StatusClass groups free-text status values for styling.
type StatusClass string

const (
	StatusNone      StatusClass = ""
	StatusDone      StatusClass = "done"
	StatusCancelled StatusClass = "cancelled"
	StatusDelayed   StatusClass = "delayed"
)

// ClassifyStatus maps a status cell to its class. Matching is by stem so
// "COMPLETADO", "Completed" and "complete" all count as done.
func ClassifyStatus(text string) StatusClass {
	t := strings.ToUpper(strings.TrimSpace(text))
	switch {
	case strings.Contains(t, "COMPLET"):
		return StatusDone
	case strings.Contains(t, "CANCEL"):
		return StatusCancelled
	case strings.Contains(t, "DELAY"):
		return StatusDelayed
	}
	return StatusNone
}
