package bus

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/verveworks/verve/internal/lang"
)

// Subscription naming conventions:
//
//	"place-order"                          → HTTPOperation "place-order"
//	"Order Handler"                        → DomainEvent "Order"
//	"Order Handler<status:paid,shipped>"   → guarded DomainEvent "Order"
//	"orders Observer"                      → RepositoryChange "orders"
//	"status StateObserver"                 → StateTransition "status", any
//	"status StateObserver<draft_to_placed>"→ StateTransition "status", draft→placed
var (
	handlerPattern       = regexp.MustCompile(`^(.+) Handler(?:<(.+)>)?$`)
	observerPattern      = regexp.MustCompile(`^(.+) Observer$`)
	stateObserverPattern = regexp.MustCompile(`^(.+) StateObserver(?:<(.+)>)?$`)
)

// ParseName maps a feature-set name onto its subscription. Names that match
// no convention subscribe as an HTTP operation under the exact name.
func ParseName(name string) (Subscription, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subscription{}, fmt.Errorf("empty feature-set name")
	}

	if m := stateObserverPattern.FindStringSubmatch(name); m != nil {
		sub := Subscription{Kind: StateTransition, Key: m[1]}
		if m[2] != "" {
			from, to, found := strings.Cut(m[2], "_to_")
			if !found {
				return Subscription{}, fmt.Errorf("state observer %q: want <from_to_to>, got %q", name, m[2])
			}
			sub.From = from
			sub.To = to
		}
		return sub, nil
	}

	if m := observerPattern.FindStringSubmatch(name); m != nil {
		return Subscription{Kind: RepositoryChange, Key: m[1]}, nil
	}

	if m := handlerPattern.FindStringSubmatch(name); m != nil {
		sub := Subscription{Kind: DomainEvent, Key: m[1]}
		if m[2] != "" {
			guard, err := lang.ParseGuard(m[2])
			if err != nil {
				return Subscription{}, fmt.Errorf("handler %q: %w", name, err)
			}
			sub.Guard = guard
		}
		return sub, nil
	}

	return Subscription{Kind: HTTPOperation, Key: name}, nil
}
