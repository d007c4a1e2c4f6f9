package binding

import (
	"fmt"
	"strings"

	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
)

// Columns is the binding map of a table-style template, keyed by column index.
type Columns struct {
	TimestampIndex int
	Timestamp      TimestampColumn
	Data           map[int]DataColumn
}

// ParseColumns decodes the descriptor row of a table-style template.
// Empty and non-text cells leave their column unbound. Exactly one column
// must be a timestamp column; data columns without a raster inherit its raster.
func ParseColumns(row []any) (Columns, error) {
	cols := Columns{TimestampIndex: -1, Data: make(map[int]DataColumn)}

	for i, cell := range row {
		text, ok := cell.(string)
		if !ok || strings.TrimSpace(text) == "" {
			continue
		}

		fields, err := decodeObject(strings.TrimSpace(text))
		if err != nil {
			return Columns{}, coreerrors.Configurationf("column %d: malformed descriptor: %v", i, err)
		}

		b, err := DecodeColumn(fields)
		if err != nil {
			return Columns{}, fmt.Errorf("column %d: %w", i, err)
		}

		switch v := b.(type) {
		case TimestampColumn:
			if cols.TimestampIndex >= 0 {
				return Columns{}, coreerrors.Configurationf("column %d: second timestamp column (first is %d)", i, cols.TimestampIndex)
			}
			cols.TimestampIndex = i
			cols.Timestamp = v
		case DataColumn:
			cols.Data[i] = v
		}
	}

	if cols.TimestampIndex < 0 {
		return Columns{}, coreerrors.Configurationf("template has no timestamp column")
	}

	for i, dc := range cols.Data {
		if dc.Raster == "" {
			dc.Raster = cols.Timestamp.Raster
			cols.Data[i] = dc
		}
	}
	return cols, nil
}
