// Package spreadsheet reads templates and writes reports as CSV or OOXML workbooks.
package spreadsheet

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Table is a header row plus data rows. Cells hold string, decimal.Decimal,
// float64, int, int64, bool or nil. A nil cell is left untouched when a table
// is overlaid onto an existing sheet.
type Table struct {
	Header []string
	Rows   [][]any
}

// Width is the widest row including the header.
func (t *Table) Width() int {
	w := len(t.Header)
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// Clone deep-copies the row slices. Cell values are immutable and shared.
func (t *Table) Clone() *Table {
	out := &Table{Header: append([]string(nil), t.Header...), Rows: make([][]any, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = append([]any(nil), r...)
	}
	return out
}

// FormatCell renders a cell for text output.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case float64:
		return decimal.NewFromFloat(val).String()
	}
	return fmt.Sprint(v)
}
