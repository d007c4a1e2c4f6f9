// Package platformtest provides an in-memory data platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
	"github.com/shopspring/decimal"
)

// Fake implements platform.DataPlatform over in-memory points.
// AggregatedSeries returns every aggregated point inside the queried range
// without further filtering, like a noisy upstream API.
type Fake struct {
	mu sync.Mutex

	GAIs       map[string]int64
	Aggregated []platform.AggregatedPoint
	Trends     []platform.AggregatedPoint

	ResolveErr    error
	AggregatedErr error
	TrendErr      error

	Queries      []platform.SeriesQuery
	TrendCalls   int
	ResolveCalls int
}

func NewFake() *Fake {
	return &Fake{GAIs: make(map[string]int64)}
}

func (f *Fake) ResolveAssetID(_ context.Context, gai string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ResolveCalls++
	if f.ResolveErr != nil {
		return 0, f.ResolveErr
	}
	id, ok := f.GAIs[gai]
	if !ok {
		return 0, fmt.Errorf("asset %q not found", gai)
	}
	return id, nil
}

func (f *Fake) AggregatedSeries(_ context.Context, q platform.SeriesQuery) ([]platform.AggregatedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Queries = append(f.Queries, q)
	if f.AggregatedErr != nil {
		return nil, f.AggregatedErr
	}
	var out []platform.AggregatedPoint
	for _, p := range f.Aggregated {
		if p.Timestamp.Before(q.From) || p.Timestamp.After(q.To) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *Fake) TrendSeries(_ context.Context, assetID int64, from, to time.Time) ([]platform.AggregatedPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.TrendCalls++
	if f.TrendErr != nil {
		return nil, f.TrendErr
	}
	var out []platform.AggregatedPoint
	for _, p := range f.Trends {
		if p.AssetID != assetID || p.Timestamp.Before(from) || !p.Timestamp.Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// AggregatedCalls returns how many aggregated series were requested.
func (f *Fake) AggregatedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Queries)
}

// Point builds an aggregated point with a single mode value.
func Point(ts time.Time, assetID int64, attribute, raster, mode string, value float64) platform.AggregatedPoint {
	return platform.AggregatedPoint{
		Timestamp: ts,
		AssetID:   assetID,
		Attribute: attribute,
		Raster:    raster,
		Values:    map[string]decimal.Decimal{mode: decimal.NewFromFloat(value)},
	}
}

// Trend builds a trend point carrying one attribute value.
func Trend(ts time.Time, assetID int64, attribute string, value float64) platform.AggregatedPoint {
	return platform.AggregatedPoint{
		Timestamp: ts,
		AssetID:   assetID,
		Values:    map[string]decimal.Decimal{attribute: decimal.NewFromFloat(value)},
	}
}
