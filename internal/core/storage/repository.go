package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
)

// ErrNotFound is returned when an entity has no schedule record yet.
var ErrNotFound = errors.New("schedule record not found")

// DateLayout is the on-disk form of a last-send date.
const DateLayout = "2006-01-02"

// EntityKey identifies one schedulable entity.
type EntityKey struct {
	Kind definition.EntityKind
	Name string
}

func (k EntityKey) String() string {
	return string(k.Kind) + "/" + k.Name
}

// StateStore persists the last successful send date per entity.
// Dates are calendar dates; the time of day is not stored.
type StateStore interface {
	// LastSend returns the stored date or ErrNotFound.
	LastSend(ctx context.Context, key EntityKey) (time.Time, error)

	// SetLastSend replaces the stored date.
	SetLastSend(ctx context.Context, key EntityKey, date time.Time) error
}
