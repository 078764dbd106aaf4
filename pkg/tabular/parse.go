package tabular

import "strings"

// Dataset is one parsed feed: a normalized header row plus the data rows
// in the order they appear upstream (oldest first).
type Dataset struct {
	RawHeaders []string
	Headers    []string
	Rows       [][]string
}

// Parse splits delimited text into rows and fields in a single scan.
//
// Inside quotes a doubled quote is a literal quote; any other quote toggles
// quoting. Outside quotes a comma ends a field and \n, \r or \r\n ends a
// row. Rows whose fields are all blank are dropped.
func Parse(text string) [][]string {
	var (
		rows     [][]string
		row      []string
		cur      strings.Builder
		inQuotes bool
		started  bool // cur or row holds something for the current line
	)
	endRow := func() {
		row = append(row, cur.String())
		cur.Reset()
		if !blankRow(row) {
			rows = append(rows, row)
		}
		row = nil
		started = false
	}

	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case ch == '"' && inQuotes && i+1 < len(text) && text[i+1] == '"':
			cur.WriteByte('"')
			started = true
			i++
		case ch == '"':
			inQuotes = !inQuotes
			started = true
		case ch == ',' && !inQuotes:
			row = append(row, cur.String())
			cur.Reset()
			started = true
		case (ch == '\n' || ch == '\r') && !inQuotes:
			if ch == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			if started {
				endRow()
			}
		default:
			cur.WriteByte(ch)
			started = true
		}
	}
	if started {
		endRow()
	}
	return rows
}

func blankRow(row []string) bool {
	for _, f := range row {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// NewDataset splits parsed rows into the header row and data rows.
// It returns nil when rows is empty.
func NewDataset(rows [][]string) *Dataset {
	if len(rows) == 0 {
		return nil
	}
	d := &Dataset{
		RawHeaders: rows[0],
		Headers:    make([]string, len(rows[0])),
		Rows:       rows[1:],
	}
	for i, h := range rows[0] {
		d.Headers[i] = NormalizeHeader(h)
	}
	return d
}

// Index returns the column of the first alias present in the header row.
// label names the column in the error when nothing matches.
func (d *Dataset) Index(label string, aliases ...string) (int, error) {
	for _, a := range aliases {
		want := NormalizeHeader(a)
		for i, h := range d.Headers {
			if h == want {
				return i, nil
			}
		}
	}
	return -1, &MissingColumnError{
		Label:    label,
		Tried:    aliases,
		Observed: d.RawHeaders,
	}
}

// Field returns row[i] trimmed, or "" when the row is too short.
func Field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Latest returns the last k rows, newest first. Upstream sheets are
// append-only, so the last row is the most recent one.
func Latest(rows [][]string, k int) [][]string {
	if k <= 0 {
		return nil
	}
	if len(rows) > k {
		rows = rows[len(rows)-k:]
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = r
	}
	return out
}
