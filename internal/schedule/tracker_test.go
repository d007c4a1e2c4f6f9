package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	coreerrors "github.com/aevon-lab/spreadsheet-report/internal/core/errors"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWasSent(t *testing.T) {
	tests := []struct {
		name     string
		lastSend time.Time
		ref      time.Time
		kind     definition.ScheduleKind
		want     bool
	}{
		{"monthly same month", date(2023, 11, 15), date(2023, 11, 20), definition.Monthly, true},
		{"monthly next month", date(2023, 11, 15), date(2023, 12, 1), definition.Monthly, false},
		{"monthly same month other year", date(2022, 11, 15), date(2023, 11, 20), definition.Monthly, false},
		{"yearly same year", date(2023, 1, 3), date(2023, 12, 31), definition.Yearly, true},
		{"yearly next year", date(2023, 12, 31), date(2024, 1, 1), definition.Yearly, false},
		{"never sent", NeverSent, date(2023, 11, 20), definition.Monthly, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := WasSent(tc.lastSend, tc.ref, tc.kind, time.UTC)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, WasSent(tc.lastSend, tc.ref, tc.kind, time.UTC))
		})
	}
}

func TestWasSent_ComparesReferenceInLocation(t *testing.T) {
	plusTwo := time.FixedZone("UTC+2", 2*3600)
	// 2023-11-30T23:00Z is already December at UTC+2.
	ref := time.Date(2023, 11, 30, 23, 0, 0, 0, time.UTC)

	assert.True(t, WasSent(date(2023, 11, 1), ref, definition.Monthly, time.UTC))
	assert.False(t, WasSent(date(2023, 11, 1), ref, definition.Monthly, plusTwo))
}

func TestTracker_FirstRunInitializesRecord(t *testing.T) {
	store := filestore.New(t.TempDir())
	tracker := NewTracker(store, time.UTC)
	key := storage.EntityKey{Kind: definition.KindReport, Name: "energy"}

	assert.False(t, tracker.WasSent(context.Background(), key, date(2023, 11, 20), definition.Monthly))

	stored, err := store.LastSend(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, NeverSent, stored)
}

func TestTracker_CommitRoundTrip(t *testing.T) {
	store := filestore.New(t.TempDir())
	tracker := NewTracker(store, time.UTC)
	key := storage.EntityKey{Kind: definition.KindUser, Name: "alice"}
	sentAt := time.Date(2023, 11, 15, 9, 30, 0, 0, time.UTC)

	require.NoError(t, tracker.Commit(context.Background(), key, sentAt))

	assert.True(t, tracker.WasSent(context.Background(), key, sentAt, definition.Monthly))
	assert.True(t, tracker.WasSent(context.Background(), key, date(2023, 11, 20), definition.Monthly))
	assert.False(t, tracker.WasSent(context.Background(), key, date(2023, 12, 1), definition.Monthly))
	assert.Equal(t, date(2023, 11, 15), tracker.LastSend(context.Background(), key))
}

type failingStore struct {
	readErr  error
	writeErr error
	writes   int
}

func (f *failingStore) LastSend(context.Context, storage.EntityKey) (time.Time, error) {
	return time.Time{}, f.readErr
}

func (f *failingStore) SetLastSend(context.Context, storage.EntityKey, time.Time) error {
	f.writes++
	return f.writeErr
}

func TestTracker_ReadFailureFailsOpen(t *testing.T) {
	store := &failingStore{readErr: errors.New("disk on fire")}
	tracker := NewTracker(store, time.UTC)
	key := storage.EntityKey{Kind: definition.KindReport, Name: "energy"}

	assert.False(t, tracker.WasSent(context.Background(), key, time.Now(), definition.Yearly))
	assert.Equal(t, 0, store.writes)
}

func TestTracker_CommitFailureIsPersistenceError(t *testing.T) {
	store := &failingStore{writeErr: errors.New("read-only file system")}
	tracker := NewTracker(store, time.UTC)

	err := tracker.Commit(context.Background(), storage.EntityKey{Kind: definition.KindReport, Name: "x"}, time.Now())
	require.ErrorIs(t, err, coreerrors.ErrPersistence)
}
