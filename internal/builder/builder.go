package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/aevon-lab/spreadsheet-report/internal/core/slug"
	"github.com/aevon-lab/spreadsheet-report/internal/series"
	"github.com/aevon-lab/spreadsheet-report/internal/spreadsheet"
	"golang.org/x/sync/singleflight"
)

// Stage is the progress of one report build, logged on every transition.
type Stage string

const (
	StageIdle     Stage = "IDLE"
	StageTemplate Stage = "TEMPLATE"
	StageBind     Stage = "BIND"
	StageWrite    Stage = "WRITE"
	StageDone     Stage = "DONE"
)

// Options configures a Builder.
type Options struct {
	OutputDir        string
	Placeholder      string
	Location         *time.Location
	EvaluateFormulas bool
}

// Builder fills report templates with aligned platform data.
type Builder struct {
	aligner *series.Aligner
	opts    Options

	inflight singleflight.Group // keyed by output path
}

// Result describes a built (or reused) report file.
type Result struct {
	Path       string
	Reused     bool
	Complete   bool   // every tick series had all expected points
	Calculated string // path of the formula evaluation CSV, if written
}

func New(aligner *series.Aligner, opts Options) *Builder {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Builder{aligner: aligner, opts: opts}
}

// OutputPath is the deterministic file of def for w:
// <output_dir>/<slug(name)>_<start>_<end>.<ext>.
func (b *Builder) OutputPath(def definition.Report, w raster.Window) string {
	name := fmt.Sprintf("%s_%s_%s.%s",
		slug.Make(def.Name),
		w.Start.In(b.opts.Location).Format("2006-01-02"),
		w.End.In(b.opts.Location).Format("2006-01-02"),
		def.FileType)
	return filepath.Join(b.opts.OutputDir, name)
}

// Create builds def for w. An existing output file is reused without
// contacting the data platform. The file only appears at its final path once
// it is completely written. Concurrent calls for the same path share one build.
func (b *Builder) Create(ctx context.Context, def definition.Report, w raster.Window) (Result, error) {
	path := b.OutputPath(def, w)
	v, err, _ := b.inflight.Do(path, func() (any, error) {
		return b.create(ctx, def, w, path)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (b *Builder) create(ctx context.Context, def definition.Report, w raster.Window, path string) (Result, error) {
	log := slog.With("report", def.Name, "window_start", w.Start.Format(time.RFC3339), "window_end", w.End.Format(time.RFC3339))

	if _, err := os.Stat(path); err == nil {
		log.Info("[Builder] Reusing existing report", "path", path)
		return Result{Path: path, Reused: true, Complete: true}, nil
	}

	if err := os.MkdirAll(b.opts.OutputDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating output dir: %w", err)
	}

	tmp := path + ".partial"
	_ = os.Remove(tmp)

	res, err := b.build(ctx, def, w, tmp, log)
	if err != nil {
		_ = os.Remove(tmp)
		return Result{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Result{}, fmt.Errorf("publishing report %s: %w", path, err)
	}
	res.Path = path

	if def.FileType.IsSpreadsheet() && b.opts.EvaluateFormulas {
		res.Calculated = b.evaluate(path, def.Sheet, log)
	}

	log.Info("[Builder] Report created", "stage", StageDone, "path", path, "complete", res.Complete)
	return res, nil
}

func (b *Builder) build(ctx context.Context, def definition.Report, w raster.Window, tmp string, log *slog.Logger) (Result, error) {
	log.Debug("[Builder] Stage", "stage", StageTemplate, "template", def.Template)

	templateIsSheet := isSheetFile(def.Template)
	if def.FromTemplate {
		if templateIsSheet != def.FileType.IsSpreadsheet() {
			return Result{}, coreerrors.Configurationf("template %s cannot be copied to a %s report", filepath.Base(def.Template), def.FileType)
		}
		if err := copyFile(def.Template, tmp); err != nil {
			return Result{}, err
		}
	}

	var (
		tpl *spreadsheet.Table
		err error
	)
	if templateIsSheet {
		tpl, err = spreadsheet.ReadSheet(def.Template, def.Sheet)
	} else {
		tpl, err = spreadsheet.ReadCSV(def.Template, separator(def))
	}
	if err != nil {
		return Result{}, coreerrors.Configurationf("reading template: %v", err)
	}

	log.Debug("[Builder] Stage", "stage", StageBind, "type", def.Type)

	var (
		out      *spreadsheet.Table
		patch    *spreadsheet.Table
		complete bool
	)
	if def.Type.IsTable() {
		out, complete, err = b.buildTable(ctx, def, w, tpl, log)
		patch = out
	} else {
		out, patch, complete, err = b.buildEntry(ctx, def, w, tpl, log)
	}
	if err != nil {
		return Result{}, err
	}

	log.Debug("[Builder] Stage", "stage", StageWrite, "file_type", def.FileType)

	if def.FileType.IsSpreadsheet() {
		// Without a copied template the workbook is new and needs every cell.
		if !def.FromTemplate {
			patch = out
		}
		err = spreadsheet.OverlaySheet(tmp, def.Sheet, patch)
	} else {
		// Table reports are appended below the copied template; entry reports
		// already carry the whole template.
		appendMode := def.FromTemplate && def.Type.IsTable()
		if !appendMode {
			_ = os.Remove(tmp)
		}
		err = spreadsheet.WriteCSV(tmp, out, separator(def), appendMode)
	}
	if err != nil {
		return Result{}, fmt.Errorf("writing report: %w", err)
	}
	return Result{Complete: complete}, nil
}

// evaluate writes <report>.calculated.csv. Failures are logged, never fatal.
func (b *Builder) evaluate(path, sheet string, log *slog.Logger) string {
	calc, err := spreadsheet.EvaluateFormulas(path, sheet)
	if err != nil {
		log.Error("[Builder] Formula evaluation failed", "path", path, "error", err)
		if calc == nil {
			return ""
		}
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + ".calculated.csv"
	if err := spreadsheet.WriteCSV(out, calc, ',', false); err != nil {
		log.Error("[Builder] Writing calculated csv failed", "path", out, "error", err)
		return ""
	}
	return out
}

func separator(def definition.Report) rune {
	for _, r := range def.Separator {
		return r
	}
	return ','
}

func isSheetFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xls", ".xlsm":
		return true
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return coreerrors.Configurationf("template %s does not exist", src)
	}
	if err != nil {
		return fmt.Errorf("opening template: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("copying template: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying template: %w", err)
	}
	return out.Close()
}
