// Package emit delivers observability events from the harness and the
// built-in platforms to pluggable backends.
package emit

// Event is one observability record.
//
// The harness emits trial-level events (trial_start, trial_pass, trial_fail)
// and the platforms emit operator-level events (node_batch, run_complete).
type Event struct {
	// RunID identifies the harness run or platform execution.
	RunID string

	// Trial is the 1-indexed trial number. Zero for events outside a trial.
	Trial int

	// Node identifies the job shape or operator the event is about.
	// Empty for run-level events.
	Node string

	// Msg is the event name.
	Msg string

	// Meta carries additional structured data.
	// Common keys:
	//   - "duration_ms": elapsed time in milliseconds
	//   - "error": error text
	//   - "code": trial error code
	//   - "items": number of items involved
	//   - "attempt": retry attempt number
	Meta map[string]interface{}
}

// Emitter receives events.
//
// Implementations must be safe for concurrent use: the concurrent platform
// emits from every worker. Emit must not block for long and must not panic.
type Emitter interface {
	Emit(event Event)
}

// Multi fans every event out to each non-nil emitter in order.
func Multi(emitters ...Emitter) Emitter {
	var out multi
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multi []Emitter

func (m multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
