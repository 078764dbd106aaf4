// Package board keeps the tabular half of the display populated. Each feed
// is fetched and rendered independently; a failing feed keeps showing its
// last good rows under an error banner instead of going blank.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/infoboard/infoboard/pkg/logger"
	"github.com/infoboard/infoboard/pkg/tabular"
)

// DefMaxRows is how many rows each table shows.
const DefMaxRows = 7

// Row is one rendered table row.
type Row struct {
	Cells  []string    `json:"cells"`
	Status StatusClass `json:"status,omitempty"`
	// Blank rows pad the table to a fixed height.
	Blank bool `json:"blank,omitempty"`
}

// Table is what the display shows for one feed.
type Table struct {
	Feed    string   `json:"feed"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
	// Count is the number of data rows upstream, not the number shown.
	Count int `json:"count"`
	// FetchedAt is when Rows were fetched; zero if never.
	FetchedAt time.Time `json:"fetchedAt"`
	// Error is a sticky banner describing the latest failure, cleared by
	// the next success.
	Error string `json:"error,omitempty"`
	// Retrying is set when the latest failure was transient.
	Retrying bool `json:"retrying,omitempty"`
}

// Frame is a full board render.
type Frame struct {
	Projects      Table     `json:"projects"`
	Flights       Table     `json:"flights"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Fetcher retrieves one feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*tabular.Dataset, error)
}

// Snapshots persists the last good table of each feed.
type Snapshots interface {
	LoadSnapshot(ctx context.Context, feed string) (Table, bool, error)
	SaveSnapshot(ctx context.Context, t Table) error
}

// Options configures a Board.
type Options struct {
	MaxRows   int
	PadRows   bool
	Snapshots Snapshots // optional
	Log       logger.Logger
	Now       func() time.Time
}

// Board owns the latest table of every feed. It is safe for concurrent use:
// refreshes run off the display loop while the loop reads frames.
type Board struct {
	fetcher Fetcher
	feeds   []Feed
	opts    Options

	mu          sync.Mutex
	tables      map[string]Table
	lastUpdated time.Time
}

// New creates a Board for feeds.
func New(fetcher Fetcher, feeds []Feed, opts Options) *Board {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefMaxRows
	}
	if opts.Log == nil {
		opts.Log = logger.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	b := &Board{
		fetcher: fetcher,
		feeds:   feeds,
		opts:    opts,
		tables:  make(map[string]Table, len(feeds)),
	}
	for _, f := range feeds {
		b.tables[f.Name] = b.emptyTable(f)
	}
	return b
}

// Restore loads persisted snapshots so the first frame shows the last
// known rows while the first refresh is still in flight.
func (b *Board) Restore(ctx context.Context) error {
	if b.opts.Snapshots == nil {
		return nil
	}
	var errs []error
	for _, f := range b.feeds {
		t, ok, err := b.opts.Snapshots.LoadSnapshot(ctx, f.Name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name, err))
			continue
		}
		if !ok {
			continue
		}
		b.mu.Lock()
		b.tables[f.Name] = t
		if t.FetchedAt.After(b.lastUpdated) {
			b.lastUpdated = t.FetchedAt
		}
		b.mu.Unlock()
		b.opts.Log.Info("board: restored %d %s rows from %s", len(t.Rows), f.Name, t.FetchedAt.Format(time.RFC3339))
	}
	return errors.Join(errs...)
}

// Refresh fetches every feed in turn and returns the resulting frame.
// A failing feed never affects the other one.
func (b *Board) Refresh(ctx context.Context) Frame {
	for _, f := range b.feeds {
		if ctx.Err() != nil {
			break
		}
		b.refreshFeed(ctx, f)
	}
	b.mu.Lock()
	if ctx.Err() == nil {
		b.lastUpdated = b.opts.Now()
	}
	b.mu.Unlock()
	return b.Frame()
}

func (b *Board) refreshFeed(ctx context.Context, f Feed) {
	if f.URL == "" {
		b.fail(f, errors.New("feed URL not configured"))
		return
	}
	d, err := b.fetcher.Fetch(ctx, f.URL)
	if err == nil {
		var t Table
		t, err = BuildTable(f, d, b.opts.MaxRows, b.opts.PadRows)
		if err == nil {
			t.FetchedAt = b.opts.Now()
			b.mu.Lock()
			b.tables[f.Name] = t
			b.mu.Unlock()
			if b.opts.Snapshots != nil {
				if serr := b.opts.Snapshots.SaveSnapshot(ctx, t); serr != nil {
					b.opts.Log.Warning("board: saving %s snapshot: %v", f.Name, serr)
				}
			}
			return
		}
	}
	if errors.Is(err, context.Canceled) {
		// The board went off screen mid-fetch; nothing failed.
		return
	}
	b.fail(f, err)
}

func (b *Board) fail(f Feed, err error) {
	b.opts.Log.Error("board: %s feed: %v", f.Name, err)
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.tables[f.Name]
	t.Error = err.Error()
	t.Retrying = errors.Is(err, tabular.ErrTransient)
	b.tables[f.Name] = t
}

// Frame returns the current tables.
func (b *Board) Frame() Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Frame{
		Projects:      cloneTable(b.tables[FeedProjects]),
		Flights:       cloneTable(b.tables[FeedFlights]),
		LastUpdatedAt: b.lastUpdated,
	}
}

func (b *Board) emptyTable(f Feed) Table {
	t := Table{Feed: f.Name, Columns: f.Labels()}
	if b.opts.PadRows {
		t.Rows = pad(nil, b.opts.MaxRows, len(f.Columns))
	}
	return t
}

// BuildTable resolves f's columns in d and renders the newest maxRows rows,
// newest first. Every column must resolve; a missing one fails the table.
func BuildTable(f Feed, d *tabular.Dataset, maxRows int, padRows bool) (Table, error) {
	idx := make([]int, len(f.Columns))
	status := -1
	for i, c := range f.Columns {
		j, err := d.Index(c.Label, c.Aliases...)
		if err != nil {
			return Table{}, err
		}
		idx[i] = j
		if c.Status {
			status = i
		}
	}

	latest := tabular.Latest(d.Rows, maxRows)
	rows := make([]Row, 0, maxRows)
	for _, r := range latest {
		row := Row{Cells: make([]string, len(idx))}
		for i, j := range idx {
			row.Cells[i] = tabular.Field(r, j)
		}
		if status >= 0 {
			row.Status = ClassifyStatus(row.Cells[status])
			row.Cells[status] = strings.ToUpper(row.Cells[status])
		}
		rows = append(rows, row)
	}
	if padRows {
		rows = pad(rows, maxRows, len(idx))
	}
	return Table{
		Feed:    f.Name,
		Columns: f.Labels(),
		Rows:    rows,
		Count:   len(d.Rows),
	}, nil
}

func pad(rows []Row, n, width int) []Row {
	for len(rows) < n {
		rows = append(rows, Row{Cells: make([]string, width), Blank: true})
	}
	return rows
}

func cloneTable(t Table) Table {
	t.Columns = append([]string(nil), t.Columns...)
	rows := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		r.Cells = append([]string(nil), r.Cells...)
		rows[i] = r
	}
	t.Rows = rows
	return t
}
