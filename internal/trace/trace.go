// Package trace records an ordered, sequence-stamped account of what the
// runtime did: executions started and finished, statements dispatched,
// events emitted, handlers spawned. Traces back the golden tests and the
// CLI's --trace output.
package trace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Event is one recorded step.
type Event struct {
	Seq    int64
	Kind   string
	Name   string
	Detail map[string]string
}

// Recorder collects events. Safe for concurrent use: handler executions
// record from their own goroutines.
type Recorder struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event, stamping it with the next sequence number.
func (r *Recorder) Record(kind, name string, detail map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.events = append(r.events, Event{Seq: r.seq, Kind: kind, Name: name, Detail: detail})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len reports the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Format renders the trace as stable text, one event per line, detail keys
// sorted. Suitable for golden comparison.
func (r *Recorder) Format() []byte {
	var b strings.Builder
	for _, ev := range r.Events() {
		fmt.Fprintf(&b, "%04d %-20s %s", ev.Seq, ev.Kind, ev.Name)
		if len(ev.Detail) > 0 {
			keys := make([]string, 0, len(ev.Detail))
			for k := range ev.Detail {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, " %s=%s", k, ev.Detail[k])
			}
		}
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
