// Package lifecycle runs one entity through should-run check, report
// creation, mail delivery and schedule commit.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/builder"
	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/core/raster"
	"github.com/aevon-lab/spreadsheet-report/internal/schedule"
	"github.com/google/uuid"
)

// Result describes one run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Window    raster.Window
	Outcome   Outcome
	Files     []string
	SentAt    time.Time
}

// Service is shared by all entities; it holds no per-entity state.
type Service struct {
	builder *builder.Builder
	tracker *schedule.Tracker
	loc     *time.Location
	now     func() time.Time
}

func NewService(b *builder.Builder, tracker *schedule.Tracker, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{builder: b, tracker: tracker, loc: loc, now: time.Now}
}

// Window is the period an entity reports on when run at ref: the previous
// month for monthly entities, the previous year for yearly ones.
func (s *Service) Window(kind definition.ScheduleKind, ref time.Time) raster.Window {
	if kind == definition.Yearly {
		return raster.PreviousYear(ref, s.loc)
	}
	return raster.PreviousMonth(ref, s.loc)
}

// Run performs the scheduled lifecycle of e for the set loaded this cycle.
// The schedule record is committed only after a confirmed delivery and is
// stamped with the start of the run, the instant WasSent was checked at.
func (s *Service) Run(ctx context.Context, e *Entity, set *definition.Set) (Result, error) {
	r := e.Resolution()
	res := s.begin()
	log := slog.With("run_id", res.RunID, "entity", e.Key().String())

	if s.tracker.WasSent(ctx, e.Key(), res.StartedAt, r.Schedule()) {
		log.Debug("[Lifecycle] Already sent this period")
		res.Outcome = OutcomeSkipped
		e.record(res, nil)
		return res, nil
	}

	res.Window = s.Window(r.Schedule(), res.StartedAt)
	res, err := s.execute(ctx, e, r, set, res, false, log)
	if err != nil {
		return res, err
	}

	if err := s.tracker.Commit(ctx, e.Key(), res.StartedAt); err != nil {
		// delivered; the next cycle may send again
		log.Error("[Lifecycle] Sent but schedule record not committed", "error", err)
	}
	return res, nil
}

// Execute builds and, unless createOnly, sends e for w without consulting or
// committing the schedule record.
func (s *Service) Execute(ctx context.Context, e *Entity, set *definition.Set, w raster.Window, createOnly bool) (Result, error) {
	res := s.begin()
	res.Window = w
	log := slog.With("run_id", res.RunID, "entity", e.Key().String())
	return s.execute(ctx, e, e.Resolution(), set, res, createOnly, log)
}

func (s *Service) begin() Result {
	return Result{RunID: uuid.NewString(), StartedAt: s.now()}
}

func (s *Service) execute(ctx context.Context, e *Entity, r RecipientResolution, set *definition.Set, res Result, createOnly bool, log *slog.Logger) (Result, error) {
	log = log.With("window_start", res.Window.Start.Format(time.RFC3339), "window_end", res.Window.End.Format(time.RFC3339))
	log.Info("[Lifecycle] Run started")

	fail := func(err error) (Result, error) {
		res.Outcome = OutcomeFailed
		e.record(res, err)
		log.Error("[Lifecycle] Run failed", "error", err)
		return res, err
	}

	reports, err := r.Reports(set)
	if err != nil {
		return fail(err)
	}

	for _, def := range reports {
		built, err := s.builder.Create(ctx, def, res.Window)
		if err != nil {
			return fail(fmt.Errorf("report %q: %w", def.Name, err))
		}
		res.Files = append(res.Files, built.Path)
	}

	if createOnly {
		res.Outcome = OutcomeCreated
		e.record(res, nil)
		log.Info("[Lifecycle] Reports created", "files", len(res.Files))
		return res, nil
	}

	outcome, err := e.delivery.Send(ctx, r.Message(reports, res.Window, res.Files))
	if err != nil {
		return fail(err)
	}

	res.Outcome = OutcomeSent
	res.SentAt = outcome.CompletedAt
	e.record(res, nil)
	log.Info("[Lifecycle] Run completed", "job_id", outcome.JobID, "files", len(res.Files))
	return res, nil
}
