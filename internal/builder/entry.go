package builder

import (
	"context"
	"errors"
	"log/slog"
	"strings"
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

// buildEntry substitutes every embedded descriptor in place. It returns the
// full filled table and a patch holding only the changed cells.
func (b *Builder) buildEntry(ctx context.Context, def definition.Report, w raster.Window, tpl *spreadsheet.Table, log *slog.Logger) (*spreadsheet.Table, *spreadsheet.Table, bool, error) {
	out := tpl.Clone()
	patch := &spreadsheet.Table{Header: make([]string, len(tpl.Header)), Rows: make([][]any, len(tpl.Rows))}
	complete := true

	for i, text := range tpl.Header {
		v, changed, ok := b.substitute(ctx, def, w, text, log)
		if !changed {
			continue
		}
		complete = complete && ok
		out.Header[i] = spreadsheet.FormatCell(v)
		patch.Header[i] = out.Header[i]
	}

	for r, row := range tpl.Rows {
		patch.Rows[r] = make([]any, len(row))
		for c, cell := range row {
			text, isText := cell.(string)
			if !isText {
				continue
			}
			v, changed, ok := b.substitute(ctx, def, w, text, log)
			if !changed {
				continue
			}
			complete = complete && ok
			out.Rows[r][c] = v
			patch.Rows[r][c] = v
		}
	}
	return out, patch, complete, nil
}

// substitute replaces every descriptor block of text with its value. A result
// that is a plain number becomes a decimal, anything else stays text.
func (b *Builder) substitute(ctx context.Context, def definition.Report, w raster.Window, text string, log *slog.Logger) (any, bool, bool) {
	var (
		sb      strings.Builder
		last    int
		changed bool
		ok      = true
	)
	for bnd, block := range binding.Entries(text) {
		value, found := b.resolveEntry(ctx, def, w, bnd, log)
		ok = ok && found
		sb.WriteString(text[last:block.Start])
		sb.WriteString(spreadsheet.FormatCell(value))
		last = block.End
		changed = true
	}
	if !changed {
		return nil, false, true
	}
	sb.WriteString(text[last:])

	result := sb.String()
	if d, err := decimal.NewFromString(strings.TrimSpace(result)); err == nil {
		return d, true, ok
	}
	return result, true, ok
}

// resolveEntry returns the value of one entry binding and whether it came from data.
func (b *Builder) resolveEntry(ctx context.Context, def definition.Report, w raster.Window, bnd binding.Binding, log *slog.Logger) (any, bool) {
	switch v := bnd.(type) {
	case binding.TimestampStart:
		return b.formatTime(v.Format, w.Start, log), true
	case binding.TimestampEnd:
		return b.formatTime(v.Format, w.End.AddDate(0, 0, -1), log), true
	case binding.DataEntry:
		return b.resolveDataEntry(ctx, def, w, v.Source, log)
	}
	return b.opts.Placeholder, false
}

// resolveDataEntry reads the point stamped exactly at the window end from the
// range [end - 1 day, end + 1 day].
func (b *Builder) resolveDataEntry(ctx context.Context, def definition.Report, w raster.Window, src binding.Source, log *slog.Logger) (any, bool) {
	log = log.With("asset", src.Asset.String(), "attribute", src.Attribute, "mode", src.Mode)

	policy := src.FillPolicy
	if policy == "" {
		policy = def.FillPolicy
	}

	filler := b.aligner.NewFiller(b.opts.Placeholder)
	assetID, err := filler.ResolveAsset(ctx, src.Asset)
	var s *series.Series
	if err == nil {
		s, err = b.aligner.AlignRange(ctx, src.WithAssetID(assetID), w.End.AddDate(0, 0, -1), w.End.AddDate(0, 0, 1))
	}
	switch {
	case errors.Is(err, coreerrors.ErrConfiguration):
		log.Error("[Builder] Invalid entry descriptor", "error", err)
		return b.opts.Placeholder, false
	case err != nil:
		log.Warn("[Builder] No data for entry, applying fill policy", "error", err)
	default:
		if v, ok := s.At(w.End); ok {
			return v, true
		}
		log.Warn("[Builder] No value at window end, applying fill policy", "timestamp", w.End)
	}

	return filler.Fill(ctx, src, policy, assetID, w.End), false
}

// formatTime renders t in the report zone. A bad pattern is left in the cell verbatim.
func (b *Builder) formatTime(pattern string, t time.Time, log *slog.Logger) string {
	out, err := strftime.Format(pattern, t.In(b.opts.Location))
	if err != nil {
		log.Error("[Builder] Invalid timestamp format", "format", pattern, "error", err)
		return pattern
	}
	return out
}
