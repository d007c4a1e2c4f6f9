package series

import (
	"context"
	"log/slog"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/binding"
	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/shopspring/decimal"
)

// maxLookbackMonths bounds the "last" policy walk.
const maxLookbackMonths = 12

// Filler resolves values for gaps. Trend months and asset lookups, failed
// ones included, are reused for every later gap of the same Filler.
type Filler struct {
	aligner     *Aligner
	placeholder string
	trends      map[trendKey][]platform.AggregatedPoint
	assets      map[binding.AssetRef]assetLookup
}

type assetLookup struct {
	id  int64
	err error
}

type trendKey struct {
	assetID int64
	month   int64 // month start, unix seconds
}

// NewFiller returns a Filler writing placeholder where no value can be found.
func (a *Aligner) NewFiller(placeholder string) *Filler {
	return &Filler{
		aligner:     a,
		placeholder: placeholder,
		trends:      make(map[trendKey][]platform.AggregatedPoint),
		assets:      make(map[binding.AssetRef]assetLookup),
	}
}

// ResolveAsset is Aligner.ResolveAsset asking the platform at most once per ref.
func (f *Filler) ResolveAsset(ctx context.Context, ref binding.AssetRef) (int64, error) {
	if l, ok := f.assets[ref]; ok {
		return l.id, l.err
	}
	id, err := f.aligner.ResolveAsset(ctx, ref)
	if err != nil && ctx.Err() != nil {
		return 0, err
	}
	f.assets[ref] = assetLookup{id: id, err: err}
	if err != nil {
		slog.Warn("[Aligner] Cannot resolve asset", "asset", ref.String(), "error", err)
	}
	return id, err
}

// Placeholder is the "no data available" cell value.
func (f *Filler) Placeholder() string {
	return f.placeholder
}

// Fill returns the value substituted for src at the missing timestamp at:
// numeric zero for "zero", the last known trend value before at for "last",
// the placeholder for anything else. assetID 0 means not resolved yet.
func (f *Filler) Fill(ctx context.Context, src binding.Source, policy string, assetID int64, at time.Time) any {
	switch policy {
	case binding.FillZero:
		return decimal.Zero
	case binding.FillLast:
		if assetID == 0 {
			id, err := f.ResolveAsset(ctx, src.Asset)
			if err != nil {
				return f.placeholder
			}
			assetID = id
		}
		if v, ts, ok := f.LastKnown(ctx, assetID, src.Attribute, at); ok {
			slog.Warn("[Aligner] Substituting last known value",
				"asset_id", assetID,
				"attribute", src.Attribute,
				"missing", at.Format(time.RFC3339),
				"source_timestamp", ts.Format(time.RFC3339),
				"value", v.String())
			return v
		}
		slog.Warn("[Aligner] No last known value",
			"asset_id", assetID,
			"attribute", src.Attribute,
			"missing", at.Format(time.RFC3339),
			"lookback_months", maxLookbackMonths)
		return f.placeholder
	}
	return f.placeholder
}

// LastKnown walks back one calendar month at a time, starting with the month
// holding the last instant before before, and returns the latest trend value
// of attribute strictly before it.
func (f *Filler) LastKnown(ctx context.Context, assetID int64, attribute string, before time.Time) (decimal.Decimal, time.Time, bool) {
	month := raster.StartOfMonth(before.Add(-time.Nanosecond))
	for i := 0; i < maxLookbackMonths; i++ {
		if ctx.Err() != nil {
			return decimal.Zero, time.Time{}, false
		}

		from := month.AddDate(0, -i, 0)
		points, err := f.trendMonth(ctx, assetID, from)
		if err != nil {
			slog.Warn("[Aligner] Trend lookup failed",
				"asset_id", assetID,
				"month", from.Format("2006-01"),
				"error", err)
			continue
		}

		var (
			best   decimal.Decimal
			bestTS time.Time
			found  bool
		)
		for _, p := range points {
			if !p.Timestamp.Before(before) || (p.AssetID != 0 && p.AssetID != assetID) {
				continue
			}
			v, ok := p.Value(attribute)
			if !ok {
				continue
			}
			if !found || p.Timestamp.After(bestTS) {
				best, bestTS, found = v, p.Timestamp, true
			}
		}
		if found {
			return best, bestTS, true
		}
	}
	return decimal.Zero, time.Time{}, false
}

func (f *Filler) trendMonth(ctx context.Context, assetID int64, from time.Time) ([]platform.AggregatedPoint, error) {
	key := trendKey{assetID: assetID, month: from.Unix()}
	if points, ok := f.trends[key]; ok {
		return points, nil
	}
	points, err := f.aligner.platform.TrendSeries(ctx, assetID, from, from.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	f.trends[key] = points
	return points, nil
}
