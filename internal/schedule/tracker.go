// Package schedule decides whether an entity was already sent for the current
// period and records successful sends.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
)

// NeverSent is the last-send date of an entity without a record.
var NeverSent = time.Date(1979, time.January, 1, 0, 0, 0, 0, time.UTC)

// WasSent reports whether lastSend falls into the same period as ref:
// the same month and year for monthly entities, the same year for yearly ones.
// ref is compared in loc, lastSend is a calendar date.
func WasSent(lastSend, ref time.Time, kind definition.ScheduleKind, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	ref = ref.In(loc)
	if kind == definition.Yearly {
		return lastSend.Year() == ref.Year()
	}
	return lastSend.Year() == ref.Year() && lastSend.Month() == ref.Month()
}

// Tracker evaluates and commits schedule records over a StateStore.
// Read failures are treated as never sent.
type Tracker struct {
	store storage.StateStore
	loc   *time.Location
}

func NewTracker(store storage.StateStore, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{store: store, loc: loc}
}

// LastSend returns the recorded date of key. A missing record is initialized
// with NeverSent.
func (t *Tracker) LastSend(ctx context.Context, key storage.EntityKey) time.Time {
	last, err := t.store.LastSend(ctx, key)
	switch {
	case err == nil:
		return last
	case errors.Is(err, storage.ErrNotFound):
		if err := t.store.SetLastSend(ctx, key, NeverSent); err != nil {
			slog.Error("[Tracker] Failed to initialize schedule record",
				"entity", key.String(),
				"error", coreerrors.Persistencef("%v", err))
		}
	default:
		slog.Error("[Tracker] Failed to read schedule record, assuming never sent",
			"entity", key.String(),
			"error", coreerrors.Persistencef("%v", err))
	}
	return NeverSent
}

// WasSent reports whether key was already sent in the period containing ref.
func (t *Tracker) WasSent(ctx context.Context, key storage.EntityKey, ref time.Time, kind definition.ScheduleKind) bool {
	return WasSent(t.LastSend(ctx, key), ref, kind, t.loc)
}

// Commit records sentAt as the last send of key, replacing any prior date.
// Only called after a confirmed delivery.
func (t *Tracker) Commit(ctx context.Context, key storage.EntityKey, sentAt time.Time) error {
	local := sentAt.In(t.loc)
	date := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if err := t.store.SetLastSend(ctx, key, date); err != nil {
		err = coreerrors.Persistencef("committing %s: %v", key, err)
		slog.Error("[Tracker] Failed to commit schedule record", "entity", key.String(), "error", err)
		return err
	}
	slog.Info("[Tracker] Schedule record committed", "entity", key.String(), "last_send", date.Format(storage.DateLayout))
	return nil
}
