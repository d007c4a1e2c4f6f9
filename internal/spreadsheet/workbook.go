package spreadsheet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// ReadSheet reads sheet of a workbook. The first row is the header.
// Values are the raw cell values, not their formatted display text.
func ReadSheet(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}
	return tableFromRows(rows), nil
}

// OverlaySheet writes t onto sheet starting at A1: the header on row 1 and the
// rows below it. Nil cells are skipped so existing template content survives.
// The workbook and the sheet are created when missing. Legacy .xls targets
// are written in the OOXML format.
func OverlaySheet(path, sheet string, t *Table) error {
	f, created, err := openOrCreate(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := ensureSheet(f, sheet, created); err != nil {
		return err
	}

	for col, v := range t.Header {
		if v == "" {
			continue
		}
		if err := setCell(f, sheet, col+1, 1, v); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for col, v := range row {
			if v == nil {
				continue
			}
			if err := setCell(f, sheet, col+1, r+2, v); err != nil {
				return err
			}
		}
	}

	// WriteToBuffer does not check the file extension, SaveAs rejects .xls.
	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("encoding workbook %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// EvaluateFormulas recalculates every formula cell of sheet and returns the
// calculated values. Plain cells are returned as stored.
func EvaluateFormulas(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, path, err)
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	var errs []error
	for r := range rows {
		for len(rows[r]) < width {
			rows[r] = append(rows[r], "")
		}
		for c := range rows[r] {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			formula, err := f.GetCellFormula(sheet, cell)
			if err != nil {
				return nil, fmt.Errorf("reading formula %s: %w", cell, err)
			}
			if formula == "" {
				continue
			}
			value, err := f.CalcCellValue(sheet, cell)
			if err != nil {
				errs = append(errs, fmt.Errorf("cell %s (=%s): %w", cell, formula, err))
				continue
			}
			rows[r][c] = value
		}
	}
	return tableFromRows(rows), errors.Join(errs...)
}

func openOrCreate(path string) (*excelize.File, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	return f, false, nil
}

func ensureSheet(f *excelize.File, sheet string, created bool) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("looking up sheet %q: %w", sheet, err)
	}
	if idx >= 0 {
		return nil
	}
	if created {
		// a new workbook carries one empty default sheet
		if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
			return fmt.Errorf("renaming default sheet: %w", err)
		}
		return nil
	}
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating sheet %q: %w", sheet, err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if d, ok := v.(decimal.Decimal); ok {
		v = d.InexactFloat64()
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("writing cell %s: %w", cell, err)
	}
	return nil
}

func tableFromRows(rows [][]string) *Table {
	t := &Table{}
	for i, rec := range rows {
		if i == 0 {
			t.Header = rec
			continue
		}
		row := make([]any, len(rec))
		for j, v := range rec {
			if v != "" {
				row[j] = v
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
