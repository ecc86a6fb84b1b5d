package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by run.
//
// It is meant for tests and post-run inspection:
//
//	emitter := emit.NewBufferedEmitter()
//	h := laws.New(local.New(), laws.WithEmitter(emitter), laws.WithRunID("run-1"))
//	...
//	failures := emitter.History("run-1", emit.Filter{Msg: "trial_fail"})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// Filter selects events. Zero fields match everything; set fields are ANDed.
type Filter struct {
	Node     string
	Msg      string
	MinTrial *int
	MaxTrial *int
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores event.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns the events of runID that match filter, in emission order.
// The result is a copy and never nil.
func (b *BufferedEmitter) History(runID string, filter Filter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Runs returns the run IDs that have events.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	runs := make([]string, 0, len(b.events))
	for id := range b.events {
		runs = append(runs, id)
	}
	return runs
}

// Clear removes the events of runID, or of every run if runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}

func (f Filter) matches(event Event) bool {
	if f.Node != "" && event.Node != f.Node {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinTrial != nil && event.Trial < *f.MinTrial {
		return false
	}
	if f.MaxTrial != nil && event.Trial > *f.MaxTrial {
		return false
	}
	return true
}
