package builder

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/binding"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/aevon-lab/spreadsheet-report/internal/series"
	"github.com/aevon-lab/spreadsheet-report/internal/spreadsheet"
	"github.com/lestrrat-go/strftime"
	"github.com/shopspring/decimal"
)

// buildTable builds the row axis from the timestamp column and left-joins every
// data column onto it by formatted timestamp. Unbound columns stay nil.
func (b *Builder) buildTable(ctx context.Context, def definition.Report, w raster.Window, tpl *spreadsheet.Table, log *slog.Logger) (*spreadsheet.Table, bool, error) {
	if def.FirstRow >= len(tpl.Rows) {
		return nil, false, coreerrors.Configurationf("template has no descriptor row %d", def.FirstRow)
	}
	cols, err := binding.ParseColumns(tpl.Rows[def.FirstRow])
	if err != nil {
		return nil, false, err
	}

	// The timestamp column governs the whole report: any error here aborts it.
	tsRaster, err := raster.Parse(cols.Timestamp.Raster)
	if err != nil {
		return nil, false, err
	}
	grid, err := raster.Grid(w, tsRaster)
	if err != nil {
		return nil, false, err
	}
	format, err := strftime.New(cols.Timestamp.Format)
	if err != nil {
		return nil, false, coreerrors.Configurationf("timestamp format %q: %v", cols.Timestamp.Format, err)
	}

	width := tpl.Width()
	for i := range cols.Data {
		width = max(width, i+1)
	}

	out := &spreadsheet.Table{Header: make([]string, width), Rows: make([][]any, len(grid))}
	copy(out.Header, tpl.Header)

	keys := make([]string, len(grid))
	for i, t := range grid {
		keys[i] = format.FormatString(t.In(b.opts.Location))
		out.Rows[i] = make([]any, width)
		out.Rows[i][cols.TimestampIndex] = keys[i]
	}

	indexes := make([]int, 0, len(cols.Data))
	for i := range cols.Data {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	complete := true
	for _, col := range indexes {
		src := cols.Data[col].Source
		ok, err := b.fillColumn(ctx, def, w, src, col, grid, keys, format, out, log)
		if err != nil {
			return nil, false, err
		}
		complete = complete && ok
	}
	return out, complete, nil
}

func (b *Builder) fillColumn(
	ctx context.Context,
	def definition.Report,
	w raster.Window,
	src binding.Source,
	col int,
	grid []time.Time,
	keys []string,
	format *strftime.Strftime,
	out *spreadsheet.Table,
	log *slog.Logger,
) (bool, error) {
	log = log.With("column", col, "asset", src.Asset.String(), "attribute", src.Attribute)

	var (
		values   = make(map[string]decimal.Decimal)
		complete = true
		filler   = b.aligner.NewFiller(b.opts.Placeholder)
	)
	assetID, err := filler.ResolveAsset(ctx, src.Asset)
	var s *series.Series
	if err == nil {
		s, err = b.aligner.Align(ctx, src.WithAssetID(assetID), w)
	}
	switch {
	case errors.Is(err, coreerrors.ErrConfiguration):
		log.Error("[Builder] Skipping column", "error", err)
		return false, nil
	case errors.Is(err, coreerrors.ErrDataUnavailable):
		log.Warn("[Builder] No data for column, applying fill policy", "error", err)
		complete = false
	case err != nil:
		return false, err
	default:
		complete = s.Complete
		for _, p := range s.Points {
			key := format.FormatString(p.Time.In(b.opts.Location))
			if _, dup := values[key]; !dup {
				values[key] = p.Value
			}
		}
	}

	policy := src.FillPolicy
	if policy == "" {
		policy = def.FillPolicy
	}

	for i, key := range keys {
		if v, ok := values[key]; ok {
			out.Rows[i][col] = v
			continue
		}
		if policy != "" {
			out.Rows[i][col] = filler.Fill(ctx, src, policy, assetID, grid[i])
		}
	}

	if policy == "" {
		propagate(out.Rows, col, b.opts.Placeholder)
	}
	return complete, nil
}

// propagate fills nil cells of col from the nearest preceding value, then the
// nearest following one. Cells still empty get the placeholder.
func propagate(rows [][]any, col int, placeholder string) {
	var last any
	for _, r := range rows {
		if r[col] != nil {
			last = r[col]
		} else if last != nil {
			r[col] = last
		}
	}
	var next any
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i][col] != nil {
			next = rows[i][col]
		} else if next != nil {
			rows[i][col] = next
		}
	}
	for _, r := range rows {
		if r[col] == nil {
			r[col] = placeholder
		}
	}
}
