package bus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/verveworks/verve/internal/lang"
	"github.com/verveworks/verve/internal/value"
)

// Kind is the category of a routed event. Together with a key it forms the
// match target of a subscription.
type Kind int

// The four routed event categories.
const (
	// HTTPOperation matches a triggering operation by exact feature-set name.
	HTTPOperation Kind = iota + 1
	// DomainEvent matches an application event by type name.
	DomainEvent
	// RepositoryChange matches a mutation of a named repository.
	RepositoryChange
	// StateTransition matches an accepted transition of a named field.
	StateTransition
)

func (k Kind) String() string {
	switch k {
	case HTTPOperation:
		return "http-operation"
	case DomainEvent:
		return "domain-event"
	case RepositoryChange:
		return "repository-change"
	case StateTransition:
		return "state-transition"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Subscription routes events of one kind and key to a target feature set.
// Guard (domain events) and From/To (state observers) narrow the match.
// Subscriptions are built at load time and read-only during dispatch.
type Subscription struct {
	Kind   Kind
	Key    string
	Guard  *lang.Guard // DomainEvent only; nil = unguarded
	From   string      // StateTransition only; "" = any
	To     string      // StateTransition only; "" = any
	Target *lang.FeatureSet
}

// Table is the subscription table. Registration happens during load; once
// dispatch starts the table is only read, so Match takes no lock beyond the
// RWMutex read side.
type Table struct {
	mu   sync.RWMutex
	subs []Subscription
}

// NewTable creates an empty subscription table.
func NewTable() *Table {
	return &Table{}
}

// Register derives a feature set's subscription from its name and adds it.
func (t *Table) Register(fs *lang.FeatureSet) error {
	sub, err := ParseName(fs.Name)
	if err != nil {
		return fmt.Errorf("subscription for %q: %w", fs.Name, err)
	}
	sub.Target = fs

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	slog.Debug("subscription registered",
		"feature_set", fs.Name,
		"kind", sub.Kind.String(),
		"key", sub.Key,
	)
	return nil
}

// Match returns the feature sets subscribed to (kind, key) whose guards
// accept the payload, in registration order. Guard mismatches are silent
// no-routes, never errors.
func (t *Table) Match(kind Kind, key string, payload value.Value) []*lang.FeatureSet {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*lang.FeatureSet
	for _, sub := range t.subs {
		if sub.Kind != kind || sub.Key != key {
			continue
		}
		if sub.Guard != nil && !sub.Guard.Match(payload) {
			continue
		}
		if sub.Kind == StateTransition && !matchTransition(sub, payload) {
			continue
		}
		out = append(out, sub.Target)
	}
	return out
}

// matchTransition checks a state-observer's from/to restriction against the
// transition payload produced by the validator.
func matchTransition(sub Subscription, payload value.Value) bool {
	if sub.From == "" && sub.To == "" {
		return true
	}
	from, _ := value.At(payload, "from")
	to, _ := value.At(payload, "to")
	if sub.From != "" && value.Text(from) != sub.From {
		return false
	}
	if sub.To != "" && value.Text(to) != sub.To {
		return false
	}
	return true
}

// Len reports the number of registered subscriptions.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Subscriptions returns a copy of the table for introspection.
func (t *Table) Subscriptions() []Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Subscription, len(t.subs))
	copy(out, t.subs)
	return out
}
