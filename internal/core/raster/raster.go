package raster

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
)

// Unit is the calendar bucket of a calendar raster.
type Unit string

const (
	UnitNone  Unit = ""
	UnitDay   Unit = "DAY"
	UnitMonth Unit = "MONTH"
	UnitYear  Unit = "YEAR"
)

// Raster is a parsed raster token. Exactly one of Tick or Unit is set.
//
// Tick rasters: "S<n>", "M<n>", "H<n>" (seconds, minutes, hours).
// Calendar rasters: "DAY", "MONTH", "YEAR".
type Raster struct {
	Token string
	Tick  time.Duration
	Unit  Unit
}

// IsTick reports whether the raster has a fixed spacing. Only tick rasters are
// checked for point-by-point completeness.
func (r Raster) IsTick() bool {
	return r.Tick > 0
}

func (r Raster) String() string {
	return r.Token
}

// Parse parses a raster token. Unknown tokens are configuration errors.
func Parse(token string) (Raster, error) {
	t := strings.ToUpper(strings.TrimSpace(token))
	switch Unit(t) {
	case UnitDay, UnitMonth, UnitYear:
		return Raster{Token: t, Unit: Unit(t)}, nil
	}

	if len(t) < 2 {
		return Raster{}, coreerrors.Configurationf("unknown raster %q", token)
	}

	var unit time.Duration
	switch t[0] {
	case 'S':
		unit = time.Second
	case 'M':
		unit = time.Minute
	case 'H':
		unit = time.Hour
	default:
		return Raster{}, coreerrors.Configurationf("unknown raster %q", token)
	}

	n, err := strconv.Atoi(t[1:])
	if err != nil || n <= 0 {
		return Raster{}, coreerrors.Configurationf("unknown raster %q", token)
	}
	return Raster{Token: t, Tick: time.Duration(n) * unit}, nil
}

// Window is a half-open reporting window [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Grid returns the expected timestamps of r inside w. Tick grids start at
// w.Start and never contain a point at or beyond w.End. Calendar grids start
// at the bucket containing w.Start and stop once a bucket would begin in the
// last minute of the window or later.
func Grid(w Window, r Raster) ([]time.Time, error) {
	if !w.End.After(w.Start) {
		return nil, coreerrors.Configurationf("empty window %s", w)
	}

	if r.IsTick() {
		grid := make([]time.Time, 0, int(w.End.Sub(w.Start)/r.Tick)+1)
		for t := w.Start; t.Before(w.End); t = t.Add(r.Tick) {
			grid = append(grid, t)
		}
		return grid, nil
	}

	var (
		t    time.Time
		next func(time.Time) time.Time
	)
	switch r.Unit {
	case UnitDay:
		t = StartOfDay(w.Start)
		next = func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }
	case UnitMonth:
		t = StartOfMonth(w.Start)
		next = func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }
	case UnitYear:
		t = time.Date(w.Start.Year(), time.January, 1, 0, 0, 0, 0, w.Start.Location())
		next = func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }
	default:
		return nil, coreerrors.Configurationf("unknown raster %q", r.Token)
	}

	last := w.End.Add(-time.Minute)
	var grid []time.Time
	for ; !t.After(last); t = next(t) {
		grid = append(grid, t)
	}
	return grid, nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// StartOfMonth returns midnight of the first day of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthWindow is the calendar month [year-month-01, next month) in loc.
func MonthWindow(year int, month time.Month, loc *time.Location) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// YearWindow is the calendar year [year-01-01, year+1-01-01) in loc.
func YearWindow(year int, loc *time.Location) Window {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(1, 0, 0)}
}

// PreviousMonth is the full calendar month before the one containing ref.
// December rolls back into the previous year.
func PreviousMonth(ref time.Time, loc *time.Location) Window {
	ref = ref.In(loc)
	end := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
	return Window{Start: end.AddDate(0, -1, 0), End: end}
}

// PreviousYear is the full calendar year before the one containing ref.
func PreviousYear(ref time.Time, loc *time.Location) Window {
	return YearWindow(ref.In(loc).Year()-1, loc)
}

// ParsePeriod parses "YYYY-MM" into a month window and "YYYY" into a year
// window. The boolean reports whether the period is yearly.
func ParsePeriod(period string, loc *time.Location) (Window, bool, error) {
	period = strings.TrimSpace(period)
	if t, err := time.ParseInLocation("2006-01", period, loc); err == nil {
		return MonthWindow(t.Year(), t.Month(), loc), false, nil
	}
	if t, err := time.ParseInLocation("2006", period, loc); err == nil {
		return YearWindow(t.Year(), loc), true, nil
	}
	return Window{}, false, fmt.Errorf("invalid period %q (want YYYY-MM or YYYY)", period)
}
