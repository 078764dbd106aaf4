package tabular

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient matches network failures and per-attempt timeouts.
	// These are retried; once the retry budget is spent the last one surfaces.
	ErrTransient = errors.New("tabular: transient network failure")
	// ErrUpstreamFormat matches responses that will not fix themselves on
	// retry: an HTML page instead of CSV, an empty sheet, a renamed column.
	ErrUpstreamFormat = errors.New("tabular: upstream format error")
)

// Reason says why a fetch failed.
type Reason int

const (
	ReasonNetwork          Reason = iota // transport error or attempt timeout
	ReasonHTTPStatus                     // non-2xx response
	ReasonWrongContentType               // HTML document instead of delimited text
	ReasonEmptyDataset                   // body parsed to zero rows
	ReasonInvalidURL                     // feed URL cannot be requested at all
)

func (r Reason) String() string {
	switch r {
	case ReasonNetwork:
		return "network"
	case ReasonHTTPStatus:
		return "http status"
	case ReasonWrongContentType:
		return "wrong content type"
	case ReasonEmptyDataset:
		return "empty dataset"
	case ReasonInvalidURL:
		return "invalid url"
	}
	return "unknown"
}

// FetchError is returned by Fetcher.Fetch for every failure.
type FetchError struct {
	URL      string
	Reason   Reason
	Status   int // set for ReasonHTTPStatus
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fetch %s: %s", e.URL, e.Reason)
	if e.Reason == ReasonHTTPStatus {
		fmt.Fprintf(&b, " %d", e.Status)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets callers test the failure class with errors.Is.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrTransient:
		return e.Reason == ReasonNetwork
	case ErrUpstreamFormat:
		return e.Reason == ReasonWrongContentType || e.Reason == ReasonEmptyDataset
	}
	return false
}

// MissingColumnError means none of the accepted aliases for a column was
// found in the header row. Rendering a guessed column would be worse than
// rendering nothing, so this is a hard failure for the feed.
type MissingColumnError struct {
	Label    string
	Tried    []string
	Observed []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: header not found (tried: %s; observed: %s)",
		e.Label, strings.Join(e.Tried, ", "), strings.Join(e.Observed, " | "))
}

// Is reports a missing column as an upstream schema problem.
func (e *MissingColumnError) Is(target error) bool {
	return target == ErrUpstreamFormat
}
