package raster

import (
	"errors"
	"testing"
	"time"

	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantTick time.Duration
		wantUnit Unit
		wantErr  bool
	}{
		{name: "hour", input: "H1", wantTick: time.Hour},
		{name: "quarter hour", input: "M15", wantTick: 15 * time.Minute},
		{name: "seconds", input: "S30", wantTick: 30 * time.Second},
		{name: "lowercase", input: "h2", wantTick: 2 * time.Hour},
		{name: "day", input: "DAY", wantUnit: UnitDay},
		{name: "month", input: "MONTH", wantUnit: UnitMonth},
		{name: "year", input: "YEAR", wantUnit: UnitYear},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown prefix", input: "W1", wantErr: true},
		{name: "zero tick", input: "H0", wantErr: true},
		{name: "missing count", input: "H", wantErr: true},
		{name: "garbage count", input: "Hx", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Parse(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, errors.Is(err, coreerrors.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantTick, r.Tick)
			require.Equal(t, tc.wantUnit, r.Unit)
			require.Equal(t, tc.wantTick > 0, r.IsTick())
		})
	}
}

func TestGrid_HourTick(t *testing.T) {
	w := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
	}
	r, err := Parse("H1")
	require.NoError(t, err)

	grid, err := Grid(w, r)
	require.NoError(t, err)
	require.Equal(t, []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
	}, grid)
}

func TestGrid_TickPointCountAndSpacing(t *testing.T) {
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	windows := []time.Duration{time.Hour, 90 * time.Minute, 29 * 24 * time.Hour, 7*time.Hour + 30*time.Second}
	ticks := []string{"S30", "M15", "M7", "H1", "H6"}

	for _, length := range windows {
		for _, token := range ticks {
			r, err := Parse(token)
			require.NoError(t, err)
			w := Window{Start: start, End: start.Add(length)}

			grid, err := Grid(w, r)
			require.NoError(t, err)

			want := int(length / r.Tick)
			if length%r.Tick != 0 {
				want++
			}
			require.Len(t, grid, want, "window %s raster %s", length, token)
			for i, ts := range grid {
				require.True(t, ts.Before(w.End))
				if i > 0 {
					require.Equal(t, r.Tick, ts.Sub(grid[i-1]))
				}
			}
		}
	}
}

func TestGrid_MonthRollsOverYear(t *testing.T) {
	w := Window{
		Start: time.Date(2023, 11, 15, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	grid, err := Grid(w, Raster{Token: "MONTH", Unit: UnitMonth})
	require.NoError(t, err)
	require.Equal(t, []time.Time{
		time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}, grid)
}

func TestGrid_DayAndYear(t *testing.T) {
	loc := time.FixedZone("UTC+1", 3600)
	month := MonthWindow(2024, time.February, loc)

	days, err := Grid(month, Raster{Token: "DAY", Unit: UnitDay})
	require.NoError(t, err)
	require.Len(t, days, 29)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, loc), days[len(days)-1])

	years, err := Grid(YearWindow(2023, loc), Raster{Token: "YEAR", Unit: UnitYear})
	require.NoError(t, err)
	require.Equal(t, []time.Time{time.Date(2023, 1, 1, 0, 0, 0, 0, loc)}, years)
}

func TestGrid_RejectsEmptyWindowAndUnknownUnit(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Grid(Window{Start: ts, End: ts}, Raster{Token: "H1", Tick: time.Hour})
	require.ErrorIs(t, err, coreerrors.ErrConfiguration)

	_, err = Grid(Window{Start: ts, End: ts.Add(time.Hour)}, Raster{Token: "WEEK"})
	require.ErrorIs(t, err, coreerrors.ErrConfiguration)
}

func TestPreviousMonthAndYear(t *testing.T) {
	loc := time.UTC

	jan := PreviousMonth(time.Date(2024, 1, 20, 9, 0, 0, 0, loc), loc)
	require.Equal(t, time.Date(2023, 12, 1, 0, 0, 0, 0, loc), jan.Start)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), jan.End)

	jun := PreviousMonth(time.Date(2024, 6, 1, 0, 0, 0, 0, loc), loc)
	require.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, loc), jun.Start)

	year := PreviousYear(time.Date(2024, 3, 3, 0, 0, 0, 0, loc), loc)
	require.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, loc), year.Start)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, loc), year.End)
}

func TestParsePeriod(t *testing.T) {
	w, yearly, err := ParsePeriod("2024-02", time.UTC)
	require.NoError(t, err)
	require.False(t, yearly)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.End)

	w, yearly, err = ParsePeriod("2023", time.UTC)
	require.NoError(t, err)
	require.True(t, yearly)
	require.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)

	_, _, err = ParsePeriod("02/2024", time.UTC)
	require.Error(t, err)
}
