package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/platform"
	"github.com/aevon-lab/spreadsheet-report/internal/core/platform/platformtest"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/aevon-lab/spreadsheet-report/internal/series"
	"github.com/aevon-lab/spreadsheet-report/internal/spreadsheet"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const (
	tsDescriptor    = `{"timeStamp": "%Y-%m-%d %H:%M", "raster": "H1"}`
	powerDescriptor = `{"assetId": 7, "attribute": "power", "mode": "average"}`
)

func hour(h int) time.Time {
	return time.Date(2024, 1, 1, h, 0, 0, 0, time.UTC)
}

func threeHours() raster.Window {
	return raster.Window{Start: hour(0), End: hour(3)}
}

func writeTemplate(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newBuilder(t *testing.T, fake *platformtest.Fake, evaluate bool) (*Builder, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out")
	return New(series.NewAligner(fake), Options{
		OutputDir:        out,
		Placeholder:      "NAN",
		Location:         time.UTC,
		EvaluateFormulas: evaluate,
	}), out
}

func csvReport(name, template string) definition.Report {
	return definition.Report{
		Name:      name,
		Type:      definition.DataListSequential,
		Template:  template,
		FileType:  definition.FileCSV,
		Separator: ";",
	}
}

func TestCreate_TableZeroFillAndReuse(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTemplate(t, dir, "energy.csv",
		"Time;Power;Note\n"+tsDescriptor+";"+`{"assetId": 7, "attribute": "power", "mode": "average", "fillPolicy": "zero"}`+";\n")

	fake := platformtest.NewFake()
	fake.Aggregated = []platform.AggregatedPoint{
		platformtest.Point(hour(0), 7, "power", "H1", "average", 1),
		platformtest.Point(hour(2), 7, "power", "H1", "average", 3),
	}
	b, out := newBuilder(t, fake, false)
	def := csvReport("Energy Report", tpl)

	res, err := b.Create(context.Background(), def, threeHours())
	require.NoError(t, err)
	require.False(t, res.Reused)
	require.False(t, res.Complete)
	require.Equal(t, filepath.Join(out, "energy-report_2024-01-01_2024-01-01.csv"), res.Path)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, "Time;Power;Note\n"+
		"2024-01-01 00:00;1;\n"+
		"2024-01-01 01:00;0;\n"+
		"2024-01-01 02:00;3;\n", string(raw))

	calls := fake.AggregatedCalls()
	again, err := b.Create(context.Background(), def, threeHours())
	require.NoError(t, err)
	require.True(t, again.Reused)
	require.Equal(t, res.Path, again.Path)
	require.Equal(t, calls, fake.AggregatedCalls())

	_, err = os.Stat(res.Path + ".partial")
	require.True(t, os.IsNotExist(err))
}

func TestCreate_TableWithoutPolicyPropagatesValues(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTemplate(t, dir, "t.csv",
		"Time;Power;Empty\n"+tsDescriptor+";"+powerDescriptor+";"+`{"assetId": 9, "attribute": "power", "mode": "average"}`+"\n")

	fake := platformtest.NewFake()
	fake.Aggregated = []platform.AggregatedPoint{
		platformtest.Point(hour(1), 7, "power", "H1", "average", 5),
	}
	b, _ := newBuilder(t, fake, false)

	res, err := b.Create(context.Background(), csvReport("p", tpl), threeHours())
	require.NoError(t, err)

	got, err := spreadsheet.ReadCSV(res.Path, ';')
	require.NoError(t, err)
	require.Len(t, got.Rows, 3)
	for _, row := range got.Rows {
		require.Equal(t, "5", row[1])
		require.Equal(t, "NAN", row[2])
	}
}

func TestCreate_CompleteSeriesHasNoFallbacks(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTemplate(t, dir, "t.csv", "Time;Power\n"+tsDescriptor+";"+powerDescriptor+"\n")

	fake := platformtest.NewFake()
	for h := 0; h < 3; h++ {
		fake.Aggregated = append(fake.Aggregated, platformtest.Point(hour(h), 7, "power", "H1", "average", float64(10+h)))
	}
	b, _ := newBuilder(t, fake, false)

	res, err := b.Create(context.Background(), csvReport("c", tpl), threeHours())
	require.NoError(t, err)
	require.True(t, res.Complete)

	got, err := spreadsheet.ReadCSV(res.Path, ';')
	require.NoError(t, err)
	require.Equal(t, []any{"2024-01-01 00:00", "10"}, got.Rows[0])
	require.Equal(t, []any{"2024-01-01 02:00", "12"}, got.Rows[2])
	require.Equal(t, 0, fake.TrendCalls)
}

func TestCreate_BadDataRasterSkipsOnlyThatColumn(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTemplate(t, dir, "t.csv",
		"Time;Power;Broken\n"+tsDescriptor+";"+powerDescriptor+";"+`{"assetId": 7, "attribute": "power", "mode": "average", "raster": "W2"}`+"\n")

	fake := platformtest.NewFake()
	fake.Aggregated = []platform.AggregatedPoint{
		platformtest.Point(hour(0), 7, "power", "H1", "average", 1),
	}
	b, _ := newBuilder(t, fake, false)

	res, err := b.Create(context.Background(), csvReport("skip", tpl), threeHours())
	require.NoError(t, err)

	got, err := spreadsheet.ReadCSV(res.Path, ';')
	require.NoError(t, err)
	require.Equal(t, "1", got.Rows[0][1])
	require.Nil(t, got.Rows[0][2])
}

func TestCreate_ConfigurationErrorsAbortReport(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{name: "no timestamp column", template: "Power\n" + powerDescriptor + "\n"},
		{name: "bad timestamp raster", template: "Time\n" + `{"timeStamp": "%H", "raster": "Q1"}` + "\n"},
		{name: "missing descriptor row", template: "Time;Power\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tpl := writeTemplate(t, t.TempDir(), "t.csv", tc.template)
			b, out := newBuilder(t, platformtest.NewFake(), false)

			_, err := b.Create(context.Background(), csvReport("bad", tpl), threeHours())
			require.ErrorIs(t, err, coreerrors.ErrConfiguration)

			entries, _ := os.ReadDir(out)
			require.Empty(t, entries)
		})
	}
}

func TestCreate_CSVTemplateAppend(t *testing.T) {
	dir := t.TempDir()
	content := "Time;Power\n" + tsDescriptor + ";" + powerDescriptor + "\n"
	tpl := writeTemplate(t, dir, "t.csv", content)

	fake := platformtest.NewFake()
	for h := 0; h < 3; h++ {
		fake.Aggregated = append(fake.Aggregated, platformtest.Point(hour(h), 7, "power", "H1", "average", 1))
	}
	b, _ := newBuilder(t, fake, false)
	def := csvReport("append", tpl)
	def.FromTemplate = true

	res, err := b.Create(context.Background(), def, threeHours())
	require.NoError(t, err)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, content+"Time;Power\n2024-01-01 00:00;1\n2024-01-01 01:00;1\n2024-01-01 02:00;1\n", string(raw))
}

func TestCreate_EntrySubstitutesInPlace(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTemplate(t, dir, "entry.csv",
		"Title;Value\n"+
			`Period {"timeStampStart": "%d.%m.%Y"} - {"timeStampEnd": "%d.%m.%Y"};`+
			`{"assetId": 7, "attribute": "energy", "mode": "sum", "raster": "MONTH"}`+"\n"+
			"static;text\n")

	fake := platformtest.NewFake()
	fake.Aggregated = []platform.AggregatedPoint{
		platformtest.Point(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 7, "energy", "MONTH", "sum", 123.5),
	}
	b, _ := newBuilder(t, fake, false)
	def := csvReport("Entry", tpl)
	def.Type = definition.DataEntry

	res, err := b.Create(context.Background(), def, raster.MonthWindow(2024, time.February, time.UTC))
	require.NoError(t, err)
	require.True(t, res.Complete)

	raw, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Equal(t, "Title;Value\nPeriod 01.02.2024 - 29.02.2024;123.5\nstatic;text\n", string(raw))

	require.Len(t, fake.Queries, 1)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), fake.Queries[0].From)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), fake.Queries[0].To)
}

func TestCreate_EntryLastKnownValueFromTwoMonthsBack(t *testing.T) {
	dir := t.TempDir()
	tpl := writeTemplate(t, dir, "entry.csv",
		"Meter\n"+`{"assetId": 7, "attribute": "energy", "mode": "sum", "raster": "MONTH", "fillPolicy": "last"}`+"\n")

	fake := platformtest.NewFake()
	fake.Trends = []platform.AggregatedPoint{
		platformtest.Trend(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), 7, "energy", 99),
	}
	b, _ := newBuilder(t, fake, false)
	def := csvReport("Last", tpl)
	def.Type = definition.DataEntry

	res, err := b.Create(context.Background(), def, raster.MonthWindow(2024, time.February, time.UTC))
	require.NoError(t, err)
	require.False(t, res.Complete)

	got, err := spreadsheet.ReadCSV(res.Path, ';')
	require.NoError(t, err)
	require.Equal(t, "99", got.Rows[0][0])
}

func TestCreate_SpreadsheetOverlayAndFormulas(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "template.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Data"))
	require.NoError(t, f.SetCellValue("Data", "A1", "Time"))
	require.NoError(t, f.SetCellValue("Data", "B1", "Power"))
	require.NoError(t, f.SetCellValue("Data", "C1", "Double"))
	require.NoError(t, f.SetCellValue("Data", "A2", tsDescriptor))
	require.NoError(t, f.SetCellValue("Data", "B2", powerDescriptor))
	for r := 2; r <= 4; r++ {
		cell, _ := excelize.CoordinatesToCellName(3, r)
		src, _ := excelize.CoordinatesToCellName(2, r)
		require.NoError(t, f.SetCellFormula("Data", cell, src+"*2"))
	}
	require.NoError(t, f.SaveAs(tplPath))
	require.NoError(t, f.Close())

	fake := platformtest.NewFake()
	for h := 0; h < 3; h++ {
		fake.Aggregated = append(fake.Aggregated, platformtest.Point(hour(h), 7, "power", "H1", "average", float64(h+1)))
	}
	b, out := newBuilder(t, fake, true)
	def := definition.Report{
		Name:         "Workbook",
		Type:         definition.DataListParallel,
		Template:     tplPath,
		Sheet:        "Data",
		FileType:     definition.FileXLSX,
		FromTemplate: true,
	}

	res, err := b.Create(context.Background(), def, threeHours())
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, "workbook_2024-01-01_2024-01-01.calculated.csv"), res.Calculated)

	sheet, err := spreadsheet.ReadSheet(res.Path, "Data")
	require.NoError(t, err)
	require.Equal(t, "2024-01-01 00:00", sheet.Rows[0][0])
	require.Equal(t, "1", sheet.Rows[0][1])

	calc, err := spreadsheet.ReadCSV(res.Calculated, ',')
	require.NoError(t, err)
	require.Equal(t, "2", calc.Rows[0][2])
	require.Equal(t, "6", calc.Rows[2][2])
}

func TestCreate_SpreadsheetEntryWithoutTemplateCopyKeepsStaticText(t *testing.T) {
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "entry.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Data"))
	require.NoError(t, f.SetCellValue("Data", "A1", "Title"))
	require.NoError(t, f.SetCellValue("Data", "B1", "Value"))
	require.NoError(t, f.SetCellValue("Data", "A2", "Period"))
	require.NoError(t, f.SetCellValue("Data", "B2", `{"assetId": 7, "attribute": "energy", "mode": "sum", "raster": "MONTH"}`))
	require.NoError(t, f.SetCellValue("Data", "A3", "static"))
	require.NoError(t, f.SaveAs(tplPath))
	require.NoError(t, f.Close())

	fake := platformtest.NewFake()
	fake.Aggregated = []platform.AggregatedPoint{
		platformtest.Point(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), 7, "energy", "MONTH", "sum", 123.5),
	}
	b, _ := newBuilder(t, fake, false)
	def := definition.Report{
		Name:     "Entry Workbook",
		Type:     definition.DataEntry,
		Template: tplPath,
		Sheet:    "Data",
		FileType: definition.FileXLSX,
	}

	res, err := b.Create(context.Background(), def, raster.MonthWindow(2024, time.February, time.UTC))
	require.NoError(t, err)

	sheet, err := spreadsheet.ReadSheet(res.Path, "Data")
	require.NoError(t, err)
	require.Equal(t, []string{"Title", "Value"}, sheet.Header)
	require.Equal(t, "Period", sheet.Rows[0][0])
	require.Equal(t, "123.5", sheet.Rows[0][1])
	require.Equal(t, "static", sheet.Rows[1][0])
}

func TestCreate_AssetResolvedOncePerColumn(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(*platformtest.Fake)
		wantAggregated int
	}{
		{
			name:           "aggregated series unavailable",
			setup:          func(f *platformtest.Fake) { f.AggregatedErr = errors.New("platform down") },
			wantAggregated: 1,
		},
		{
			name:           "asset lookup failing",
			setup:          func(f *platformtest.Fake) { f.ResolveErr = errors.New("platform down") },
			wantAggregated: 0,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tpl := writeTemplate(t, t.TempDir(), "t.csv", "Time;Power\n"+tsDescriptor+";"+
				`{"assetGai": "meter-7", "attribute": "power", "mode": "average", "fillPolicy": "last"}`+"\n")

			fake := platformtest.NewFake()
			fake.GAIs["meter-7"] = 7
			tc.setup(fake)
			b, _ := newBuilder(t, fake, false)

			res, err := b.Create(context.Background(), csvReport("gai", tpl), raster.MonthWindow(2024, time.January, time.UTC))
			require.NoError(t, err)
			require.False(t, res.Complete)

			got, err := spreadsheet.ReadCSV(res.Path, ';')
			require.NoError(t, err)
			require.Len(t, got.Rows, 31*24)
			for _, row := range got.Rows {
				require.Equal(t, "NAN", row[1])
			}

			require.Equal(t, 1, fake.ResolveCalls)
			require.Equal(t, tc.wantAggregated, fake.AggregatedCalls())
		})
	}
}

func TestCreate_TemplateKindMismatch(t *testing.T) {
	tpl := writeTemplate(t, t.TempDir(), "t.csv", "Time\n"+tsDescriptor+"\n")
	b, _ := newBuilder(t, platformtest.NewFake(), false)
	def := csvReport("mismatch", tpl)
	def.FileType = definition.FileXLSX
	def.Sheet = "Data"
	def.FromTemplate = true

	_, err := b.Create(context.Background(), def, threeHours())
	require.ErrorIs(t, err, coreerrors.ErrConfiguration)
}

func TestCreate_ConcurrentCallsBuildOnce(t *testing.T) {
	tpl := writeTemplate(t, t.TempDir(), "t.csv", "Time;Power\n"+tsDescriptor+";"+powerDescriptor+"\n")
	fake := platformtest.NewFake()
	fake.Aggregated = []platform.AggregatedPoint{
		platformtest.Point(hour(0), 7, "power", "H1", "average", 1),
	}
	b, _ := newBuilder(t, fake, false)
	def := csvReport("shared", tpl)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := b.Create(context.Background(), def, threeHours())
			paths[i], errs[i] = res.Path, err
		}(i)
	}
	wg.Wait()

	for i := range paths {
		require.NoError(t, errs[i])
		require.Equal(t, paths[0], paths[i])
	}
	require.Equal(t, 1, fake.AggregatedCalls())
}
