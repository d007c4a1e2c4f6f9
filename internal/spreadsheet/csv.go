package spreadsheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadCSV reads a CSV file whose first record is the header.
// Records may have differing field counts. Empty fields read as nil.
func ReadCSV(path string, sep rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = sep
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	t := &Table{}
	for first := true; ; first = false {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv %s: %w", path, err)
		}
		if first {
			t.Header = rec
			continue
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			if v != "" {
				row[i] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// WriteCSV writes the header and rows of t. With appendMode the records are
// appended to an existing file, otherwise the file is truncated.
func WriteCSV(path string, t *Table, sep rune, appendMode bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("opening csv %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.Comma = sep

	width := t.Width()
	if len(t.Header) > 0 {
		if err := w.Write(pad(t.Header, width)); err != nil {
			f.Close()
			return fmt.Errorf("writing csv %s: %w", path, err)
		}
	}
	for _, row := range t.Rows {
		rec := make([]string, width)
		for i, v := range row {
			rec[i] = FormatCell(v)
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("writing csv %s: %w", path, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("writing csv %s: %w", path, err)
	}
	return f.Close()
}

func pad(rec []string, width int) []string {
	if len(rec) >= width {
		return rec
	}
	out := make([]string, width)
	copy(out, rec)
	return out
}
