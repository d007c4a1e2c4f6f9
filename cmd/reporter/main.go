package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/builder"
	corecfg "github.com/aevon-lab/spreadsheet-report/internal/core/config"
	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage/filestore"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage/sqlstore"
	"github.com/aevon-lab/spreadsheet-report/internal/lifecycle"
	"github.com/aevon-lab/spreadsheet-report/internal/mail"
	"github.com/aevon-lab/spreadsheet-report/internal/migrations"
	"github.com/aevon-lab/spreadsheet-report/internal/platformclient"
	"github.com/aevon-lab/spreadsheet-report/internal/schedule"
	"github.com/aevon-lab/spreadsheet-report/internal/scheduler"
	"github.com/aevon-lab/spreadsheet-report/internal/series"
	"github.com/aevon-lab/spreadsheet-report/internal/server"
)

type onceFlags struct {
	kind       string
	name       string
	period     string
	outDir     string
	createOnly bool
}

func main() {
	configPath := flag.String("config", "reporter.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Build (and send) a single entity, then exit")
	var of onceFlags
	flag.StringVar(&of.kind, "kind", "report", "Entity kind for -once: report or user")
	flag.StringVar(&of.name, "name", "", "Entity name for -once")
	flag.StringVar(&of.period, "period", "", "Period for -once: YYYY-MM or YYYY (default: the entity's last period)")
	flag.StringVar(&of.outDir, "out", "", "Output directory for -once (default: reports.output_dir)")
	flag.BoolVar(&of.createOnly, "create-only", false, "With -once: build the reports without sending them")
	flag.Parse()

	// 0. Initialize Logger
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))
	slog.Info("Loaded config",
		"platform", cfg.Platform.BaseURL,
		"definitions", cfg.Reports.DefinitionsDir,
		"output", cfg.Reports.OutputDir,
		"state_backend", cfg.State.Backend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// 2. Initialize Platform client (data + mail)
	client := platformclient.New(platformclient.Options{
		BaseURL:   cfg.Platform.BaseURL,
		APIKey:    cfg.Platform.APIKey,
		ProjectID: cfg.Platform.ProjectID,
		Timeout:   cfg.Platform.Timeout(),
	})
	loc := cfg.Platform.Location()
	repo := definition.NewFileSystemRepository(cfg.Reports.DefinitionsDir)
	policy := mail.RetryPolicy{MaxAttempts: cfg.Mail.MaxAttempts, Interval: cfg.Mail.Interval()}
	newDelivery := func() *mail.Delivery { return mail.NewDelivery(client, policy) }

	newBuilder := func(outDir string) *builder.Builder {
		return builder.New(series.NewAligner(client), builder.Options{
			OutputDir:        outDir,
			Placeholder:      cfg.Reports.Placeholder,
			Location:         loc,
			EvaluateFormulas: cfg.Reports.EvaluateFormulas,
		})
	}

	// 3. Initialize Schedule state
	store, closeStore, err := openStateStore(ctx, cfg.State)
	if err != nil {
		slog.Error("Failed to initialize schedule state", "backend", cfg.State.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	tracker := schedule.NewTracker(store, loc)

	if *once {
		outDir := cfg.Reports.OutputDir
		if of.outDir != "" {
			outDir = of.outDir
		}
		svc := lifecycle.NewService(newBuilder(outDir), tracker, loc)
		if err := runOnce(ctx, repo, svc, newDelivery, loc, of); err != nil {
			slog.Error("Single run failed", "kind", of.kind, "name", of.name, "error", err)
			closeStore()
			os.Exit(1)
		}
		return
	}

	// 4. Initialize Scheduler
	svc := lifecycle.NewService(newBuilder(cfg.Reports.OutputDir), tracker, loc)
	registry := scheduler.NewRegistry(newDelivery)
	sched := scheduler.New(repo, svc, registry,
		scheduler.NewSweeper(cfg.Reports.OutputDir, cfg.Reports.RetentionPeriod()),
		scheduler.Options{Interval: cfg.Scheduler.Tick(), WorkerCount: cfg.Reports.WorkerCount},
	)

	schedDone := make(chan struct{})
	if cfg.Scheduler.Enabled {
		go func() {
			defer close(schedDone)
			if err := sched.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		close(schedDone)
		slog.Info("Report scheduler disabled by config")
	}

	// 5. Initialize Server; it blocks until ctx is cancelled.
	if cfg.Server.Enabled {
		srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), client, registry, cfg.Server.Mode)
		if err := srv.Run(ctx); err != nil {
			slog.Error("Server stopped with error", "error", err)
			cancel()
		}
	} else {
		<-ctx.Done()
	}

	<-schedDone
	slog.Info("Shutdown complete")
}

func openStateStore(ctx context.Context, cfg corecfg.StateConfig) (storage.StateStore, func(), error) {
	switch cfg.Backend {
	case "postgres", "sqlite":
		db, err := sqlstore.Open(cfg.Backend, cfg.DSN, cfg.MaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunMigrations(db, cfg.Backend, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		store := sqlstore.New(db)
		if err := store.ValidateSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return filestore.New(cfg.Dir), func() {}, nil
	}
}

// runOnce builds (and unless create-only, mails) one entity for one period
// without consulting or committing its schedule record.
func runOnce(ctx context.Context, repo definition.Repository, svc *lifecycle.Service, newDelivery func() *mail.Delivery, loc *time.Location, of onceFlags) error {
	set, err := repo.Load(ctx)
	if err != nil {
		return err
	}

	var res lifecycle.RecipientResolution
	switch definition.EntityKind(of.kind) {
	case definition.KindReport:
		def, ok := set.Report(of.name)
		if !ok {
			return fmt.Errorf("report %q not found", of.name)
		}
		res = lifecycle.ReportRecipients{Report: def}
	case definition.KindUser:
		u, ok := set.User(of.name)
		if !ok {
			return fmt.Errorf("user %q not found", of.name)
		}
		res = lifecycle.UserRecipients{User: u}
	default:
		return fmt.Errorf("unsupported kind %q (report, user)", of.kind)
	}

	w := svc.Window(res.Schedule(), time.Now())
	if of.period != "" {
		if w, _, err = raster.ParsePeriod(of.period, loc); err != nil {
			return err
		}
	}

	result, err := svc.Execute(ctx, lifecycle.NewEntity(res, newDelivery()), set, w, of.createOnly)
	if err != nil {
		return err
	}
	for _, f := range result.Files {
		fmt.Println(f)
	}
	slog.Info("Single run complete", "outcome", result.Outcome, "run_id", result.RunID, "window", w.String())
	return nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
