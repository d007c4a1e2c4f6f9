package series

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/binding"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/shopspring/decimal"
)

// fetchMargin widens every platform query on both sides; the upstream API
// mixes inclusive and exclusive range bounds.
const fetchMargin = time.Second

// Point is one aligned value.
type Point struct {
	Time  time.Time
	Value decimal.Decimal
}

// Series is the aligned result of one binding over one window.
// Complete is only computed for tick rasters; calendar rasters always report true.
type Series struct {
	AssetID  int64
	Points   []Point
	Complete bool
	Missing  []time.Time

	byUnix map[int64]decimal.Decimal
}

// At returns the value at t.
func (s *Series) At(t time.Time) (decimal.Decimal, bool) {
	v, ok := s.byUnix[t.Unix()]
	return v, ok
}

// Aligner fetches aggregated series from the data platform and aligns them to a raster grid.
type Aligner struct {
	platform platform.DataPlatform
}

func NewAligner(p platform.DataPlatform) *Aligner {
	return &Aligner{platform: p}
}

// Align fetches src over w and checks it against the raster grid.
// An unknown raster is a configuration error. Platform failures are returned
// as data-unavailable errors so the caller can fall back to the fill policy.
func (a *Aligner) Align(ctx context.Context, src binding.Source, w raster.Window) (*Series, error) {
	r, err := raster.Parse(src.Raster)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, src, r, w.Start.Add(-fetchMargin), w.End.Add(fetchMargin), w)
}

// AlignRange is Align over an explicit fetch range [from, to] without grid checks.
func (a *Aligner) AlignRange(ctx context.Context, src binding.Source, from, to time.Time) (*Series, error) {
	r, err := raster.Parse(src.Raster)
	if err != nil {
		return nil, err
	}
	return a.fetch(ctx, src, r, from, to, raster.Window{})
}

func (a *Aligner) fetch(ctx context.Context, src binding.Source, r raster.Raster, from, to time.Time, grid raster.Window) (*Series, error) {
	assetID, err := a.ResolveAsset(ctx, src.Asset)
	if err != nil {
		return nil, err
	}

	raw, err := a.platform.AggregatedSeries(ctx, platform.SeriesQuery{
		AssetID:   assetID,
		Attribute: src.Attribute,
		Raster:    r.Token,
		Mode:      src.Mode,
		From:      from,
		To:        to,
	})
	if err != nil {
		return nil, coreerrors.DataUnavailablef("aggregated series of asset %d attribute %q: %v", assetID, src.Attribute, err)
	}

	s := &Series{AssetID: assetID, Complete: true, byUnix: make(map[int64]decimal.Decimal)}
	for _, p := range raw {
		if p.AssetID != assetID || p.Attribute != src.Attribute || !strings.EqualFold(p.Raster, r.Token) {
			continue
		}
		v, ok := p.Value(src.Mode)
		if !ok {
			continue
		}
		if _, dup := s.byUnix[p.Timestamp.Unix()]; dup {
			continue
		}
		s.byUnix[p.Timestamp.Unix()] = v
		s.Points = append(s.Points, Point{Time: p.Timestamp, Value: v})
	}
	sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Time.Before(s.Points[j].Time) })

	if len(s.Points) == 0 {
		slog.Warn("[Aligner] No matching points",
			"asset_id", assetID,
			"attribute", src.Attribute,
			"raster", r.Token,
			"mode", src.Mode)
	}

	if r.IsTick() && !grid.End.IsZero() {
		expected, err := raster.Grid(grid, r)
		if err != nil {
			return nil, err
		}
		for _, t := range expected {
			if _, ok := s.At(t); ok {
				continue
			}
			s.Complete = false
			s.Missing = append(s.Missing, t)
			slog.Warn("[Aligner] Missing timestamp",
				"asset_id", assetID,
				"attribute", src.Attribute,
				"raster", r.Token,
				"timestamp", t.Format(time.RFC3339))
		}
	}
	return s, nil
}

// ResolveAsset returns the numeric id of ref, asking the platform for GAIs.
func (a *Aligner) ResolveAsset(ctx context.Context, ref binding.AssetRef) (int64, error) {
	if !ref.IsGAI() {
		return ref.ID, nil
	}
	id, err := a.platform.ResolveAssetID(ctx, ref.GAI)
	if err != nil {
		return 0, coreerrors.DataUnavailablef("resolving asset %q: %v", ref.GAI, err)
	}
	if id <= 0 {
		return 0, coreerrors.DataUnavailablef("asset %q not found", ref.GAI)
	}
	return id, nil
}

func (s *Series) String() string {
	return fmt.Sprintf("series(asset=%d points=%d complete=%t missing=%d)", s.AssetID, len(s.Points), s.Complete, len(s.Missing))
}
