// Package state implements the guarded state-transition validator: a field
// assignment that only succeeds when the current value equals the expected
// one, producing a TransitionRecord for observer notification.
package state

import (
	"fmt"
	"time"

	"github.com/verveworks/verve/internal/value"
)

// TransitionRecord describes one accepted state transition.
type TransitionRecord struct {
	Object   string
	Field    string
	From     string
	To       string
	EntityID string
	Snapshot value.Value
	At       time.Time
}

// MismatchError is returned when the current field value is not the expected
// one. The field is left unchanged.
type MismatchError struct {
	Object   string
	Field    string
	Current  string
	Expected string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("state mismatch on %s.%s: current=%q expected=%q",
		e.Object, e.Field, e.Current, e.Expected)
}

// Accept checks that obj's field currently equals fromState and, if so,
// returns a copy with the field set to toState plus the transition record.
// The comparison is case-sensitive: states are enum-like values, unlike
// guard matching which is case-insensitive.
//
// No global transition table is consulted - only the current value.
func Accept(obj value.Value, objectName, field, fromState, toState string, now time.Time) (value.Value, TransitionRecord, error) {
	current, ok := value.At(obj, field)
	if !ok {
		return nil, TransitionRecord{}, &MismatchError{
			Object:   objectName,
			Field:    field,
			Current:  "",
			Expected: fromState,
		}
	}

	currentText := value.Text(current)
	if currentText != fromState {
		return nil, TransitionRecord{}, &MismatchError{
			Object:   objectName,
			Field:    field,
			Current:  currentText,
			Expected: fromState,
		}
	}

	updated, ok := value.Set(obj, field, value.Str(toState))
	if !ok {
		return nil, TransitionRecord{}, fmt.Errorf("cannot set field %q on %s: not a map path", field, objectName)
	}

	rec := TransitionRecord{
		Object:   objectName,
		Field:    field,
		From:     fromState,
		To:       toState,
		Snapshot: updated,
		At:       now,
	}
	if id, ok := value.At(obj, "id"); ok {
		rec.EntityID = value.Text(id)
	}
	return updated, rec, nil
}

// Payload renders the record as the event payload state observers receive.
func (r TransitionRecord) Payload() value.Map {
	m := value.Map{
		"object": value.Str(r.Object),
		"field":  value.Str(r.Field),
		"from":   value.Str(r.From),
		"to":     value.Str(r.To),
		"entity": r.Snapshot,
	}
	if r.EntityID != "" {
		m["entity_id"] = value.Str(r.EntityID)
	}
	return m
}
