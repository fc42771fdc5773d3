package repo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// ChangeType labels what a mutation did to a repository.
type ChangeType string

// Change types carried on every ChangeEvent.
const (
	Created ChangeType = "created"
	Updated ChangeType = "updated"
	Deleted ChangeType = "deleted"
)

// ChangeEvent captures one repository mutation: the snapshots before and
// after, stamped with a monotonic sequence number for deterministic ordering.
type ChangeEvent struct {
	Repo     string
	Type     ChangeType
	EntityID string
	Old      value.Value
	New      value.Value
	Seq      int64
	At       time.Time
}

// entry is one stored value. Entries keep insertion order; index 0 of the
// retrieval view is the most recently stored entry (reverse indexing).
type entry struct {
	id  string
	val value.Value
}

// repository holds one named collection. Its mutex linearizes mutations on
// this repository only; distinct repositories mutate concurrently.
type repository struct {
	mu      sync.Mutex
	entries []entry
}

// Manager mediates all repository access. Values never leave through a
// mutable reference - reads return the stored immutable Values directly.
type Manager struct {
	mu    sync.RWMutex
	repos map[string]*repository
	seq   atomic.Int64
	now   func() time.Time
}

// NewManager creates an empty repository manager.
func NewManager() *Manager {
	return &Manager{
		repos: make(map[string]*repository),
		now:   time.Now,
	}
}

// NewManagerAt creates a manager with a fixed clock for deterministic tests.
func NewManagerAt(now func() time.Time) *Manager {
	m := NewManager()
	m.now = now
	return m
}

// repoFor returns the named repository, creating it on first use.
func (m *Manager) repoFor(name string) *repository {
	m.mu.RLock()
	r, ok := m.repos[name]
	m.mu.RUnlock()
	if ok {
		return r
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok = m.repos[name]; ok {
		return r
	}
	r = &repository{}
	m.repos[name] = r
	return r
}

// entityID extracts the "id" field of a value as text, or "" if absent.
func entityID(v value.Value) string {
	id, ok := value.At(v, "id")
	if !ok {
		return ""
	}
	return value.Text(id)
}

// Store inserts or updates a value. A value whose "id" matches an existing
// entry updates it (capturing the old snapshot); everything else inserts.
// Updated entries move to the most-recent position.
func (m *Manager) Store(name string, v value.Value) ChangeEvent {
	r := m.repoFor(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := ChangeEvent{
		Repo: name,
		New:  v,
		Seq:  m.seq.Add(1),
		At:   m.now(),
	}

	id := entityID(v)
	ev.EntityID = id

	if id != "" {
		for i, e := range r.entries {
			if e.id == id {
				ev.Type = Updated
				ev.Old = e.val
				// Re-store moves the entry to the most-recent slot.
				r.entries = append(r.entries[:i], r.entries[i+1:]...)
				r.entries = append(r.entries, entry{id: id, val: v})
				return ev
			}
		}
	}

	ev.Type = Created
	r.entries = append(r.entries, entry{id: id, val: v})
	return ev
}

// Retrieve returns stored values matching the optional filter, most recent
// first (index 0 = last stored). Absent repositories yield an empty list -
// retrieval never fails.
func (m *Manager) Retrieve(name string, filter *lang.Predicate) (value.List, error) {
	m.mu.RLock()
	r, ok := m.repos[name]
	m.mu.RUnlock()
	if !ok {
		return value.List{}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(value.List, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		v := r.entries[i].val
		if filter != nil {
			match, err := filter.Eval(v)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// Delete removes the most recently stored entry matching the filter and
// returns the Deleted change event. A nil filter deletes the most recent
// entry. Reports false when nothing matched.
func (m *Manager) Delete(name string, filter *lang.Predicate) (ChangeEvent, bool, error) {
	m.mu.RLock()
	r, ok := m.repos[name]
	m.mu.RUnlock()
	if !ok {
		return ChangeEvent{}, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if filter != nil {
			match, err := filter.Eval(e.val)
			if err != nil {
				return ChangeEvent{}, false, err
			}
			if !match {
				continue
			}
		}
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		return ChangeEvent{
			Repo:     name,
			Type:     Deleted,
			EntityID: e.id,
			Old:      e.val,
			Seq:      m.seq.Add(1),
			At:       m.now(),
		}, true, nil
	}
	return ChangeEvent{}, false, nil
}

// Len reports the number of entries in a repository. Used by tests and the
// CLI summary output.
func (m *Manager) Len(name string) int {
	m.mu.RLock()
	r, ok := m.repos[name]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
