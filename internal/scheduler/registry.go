package scheduler

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aevon-lab/spreadsheet-report/internal/core/definition"
	"github.com/aevon-lab/spreadsheet-report/internal/core/storage"
	"github.com/aevon-lab/spreadsheet-report/internal/lifecycle"
	"github.com/aevon-lab/spreadsheet-report/internal/mail"
)

// Registry holds the schedulable entities across cycles, keyed by kind and name.
type Registry struct {
	newDelivery func() *mail.Delivery

	mu       sync.RWMutex
	entities map[storage.EntityKey]*lifecycle.Entity
}

// NewRegistry creates an empty registry. newDelivery builds the mail state
// machine owned by each new entity.
func NewRegistry(newDelivery func() *mail.Delivery) *Registry {
	return &Registry{
		newDelivery: newDelivery,
		entities:    make(map[storage.EntityKey]*lifecycle.Entity),
	}
}

// Sync reconciles the registry with set and returns the schedulable entities
// ordered by kind and name. Reports without recipients are only sent as part
// of a user bundle. Entities whose definition disappeared are dropped; a run
// already in flight finishes on its own.
func (r *Registry) Sync(set *definition.Set) []*lifecycle.Entity {
	wanted := make(map[storage.EntityKey]lifecycle.RecipientResolution, len(set.Reports)+len(set.Users))
	for _, rep := range set.Reports {
		if len(rep.Recipients) == 0 {
			slog.Debug("[Scheduler] Report has no recipients, not scheduled", "report", rep.Name)
			continue
		}
		res := lifecycle.ReportRecipients{Report: rep}
		wanted[res.Key()] = res
	}
	for _, u := range set.Users {
		res := lifecycle.UserRecipients{User: u}
		wanted[res.Key()] = res
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.entities {
		if _, ok := wanted[key]; !ok {
			slog.Info("[Scheduler] Entity removed", "entity", key.String())
			delete(r.entities, key)
		}
	}

	out := make([]*lifecycle.Entity, 0, len(wanted))
	for key, res := range wanted {
		e, ok := r.entities[key]
		if ok {
			if prev := e.Resolution().Fingerprint(); prev != res.Fingerprint() {
				slog.Info("[Scheduler] Definition changed", "entity", key.String(), "fingerprint", res.Fingerprint())
			}
			e.Update(res)
		} else {
			e = lifecycle.NewEntity(res, r.newDelivery())
			r.entities[key] = e
			slog.Info("[Scheduler] Entity registered", "entity", key.String())
		}
		out = append(out, e)
	}
	sortEntities(out)
	return out
}

// Get returns the entity registered under kind and name.
func (r *Registry) Get(kind definition.EntityKind, name string) (*lifecycle.Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[storage.EntityKey{Kind: kind, Name: name}]
	return e, ok
}

// Snapshot returns the status of every entity ordered by kind and name.
func (r *Registry) Snapshot() []lifecycle.Snapshot {
	r.mu.RLock()
	entities := make([]*lifecycle.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	r.mu.RUnlock()

	sortEntities(entities)
	out := make([]lifecycle.Snapshot, len(entities))
	for i, e := range entities {
		out[i] = e.Snapshot()
	}
	return out
}

func sortEntities(entities []*lifecycle.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		a, b := entities[i].Key(), entities[j].Key()
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Name < b.Name
	})
}
