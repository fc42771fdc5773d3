package lang

import (
	"fmt"
	"strings"

	"github.com/verveworks/verve/internal/value"
)

// GuardClause is one AND-ed clause of a guard: a field path and the values
// any one of which satisfies it.
type GuardClause struct {
	Path   string
	Values []string
}

// Guard is a compound boolean predicate over an event payload.
// Clauses are AND-ed; values within a clause are OR-ed.
type Guard struct {
	Clauses []GuardClause
}

// ParseGuard parses guard syntax: semicolon-separated clauses, each
// "path:v1,v2,...". Field paths use dot notation into the payload.
//
// Example: "status:paid,shipped;tier:premium"
func ParseGuard(s string) (*Guard, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty guard expression")
	}

	var g Guard
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		path, rawValues, found := strings.Cut(part, ":")
		if !found {
			return nil, fmt.Errorf("guard clause %q: missing ':' separator", part)
		}
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, fmt.Errorf("guard clause %q: empty field path", part)
		}

		var values []string
		for _, v := range strings.Split(rawValues, ",") {
			v = strings.TrimSpace(v)
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("guard clause %q: no values", part)
		}

		g.Clauses = append(g.Clauses, GuardClause{Path: path, Values: values})
	}

	if len(g.Clauses) == 0 {
		return nil, fmt.Errorf("guard %q has no clauses", s)
	}
	return &g, nil
}

// Match evaluates the guard against a payload. Comparison is
// case-insensitive string equality on the field's text form. A missing
// field makes its clause false - a mismatch, never an error.
func (g *Guard) Match(payload value.Value) bool {
	for _, clause := range g.Clauses {
		field, ok := value.At(payload, clause.Path)
		if !ok {
			return false
		}
		text := value.Text(field)

		matched := false
		for _, want := range clause.Values {
			if strings.EqualFold(text, want) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}
