package lifecycle

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
	"github.com/aevon-lab/spreadsheet-report/internal/mail"
)

// Outcome of one lifecycle run.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeSkipped Outcome = "already_sent"
	OutcomeCreated Outcome = "created"
	OutcomeFailed  Outcome = "failed"
)

// Entity is one schedulable report or user. It owns its mail state machine
// and survives across control-loop cycles; its resolution is refreshed
// whenever definitions are reloaded.
type Entity struct {
	key      storage.EntityKey
	delivery *mail.Delivery
	running  atomic.Bool

	mu         sync.Mutex
	resolution RecipientResolution
	last       Snapshot
}

// Snapshot is a read-only view of an entity for the status API.
type Snapshot struct {
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Running     bool      `json:"running"`
	MailState   string    `json:"mail_state"`
	RunID       string    `json:"run_id,omitempty"`
	LastRun     time.Time `json:"last_run,omitempty"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastFiles   []string  `json:"last_files,omitempty"`
}

func NewEntity(r RecipientResolution, delivery *mail.Delivery) *Entity {
	return &Entity{key: r.Key(), delivery: delivery, resolution: r}
}

func (e *Entity) Key() storage.EntityKey {
	return e.key
}

// Resolution returns the current recipient resolution.
func (e *Entity) Resolution() RecipientResolution {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolution
}

// Update replaces the resolution after a definition reload.
func (e *Entity) Update(r RecipientResolution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolution = r
}

// TryBegin marks the entity running. It fails when a run is already in flight.
func (e *Entity) TryBegin() bool {
	return e.running.CompareAndSwap(false, true)
}

// End marks the entity idle again.
func (e *Entity) End() {
	e.running.Store(false)
}

func (e *Entity) record(res Result, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last.RunID = res.RunID
	e.last.LastRun = res.StartedAt
	e.last.LastOutcome = res.Outcome
	e.last.LastFiles = res.Files
	e.last.LastError = ""
	if err != nil {
		e.last.LastError = err.Error()
	}
}

// Snapshot returns the entity status.
func (e *Entity) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.last
	s.Kind = string(e.key.Kind)
	s.Name = e.key.Name
	s.Schedule = string(e.resolution.Schedule())
	s.Fingerprint = e.resolution.Fingerprint()
	s.Running = e.running.Load()
	s.MailState = string(e.delivery.State())
	s.LastFiles = append([]string(nil), e.last.LastFiles...)
	return s
}
