// Package checkpoint remembers, per in-flight request, what has already been
// decided so timeout recovery never contradicts an earlier assignment.
package checkpoint

import "sync"

// State is one of Unspecified, VariationAssigned or TimedOut.
type State interface {
	isState()
}

type Unspecified struct{}

type VariationAssigned struct {
	VariationID string
}

type TimedOut struct{}

func (Unspecified) isState()       {}
func (VariationAssigned) isState() {}
func (TimedOut) isState()          {}

// AssignedID returns the variation id when s is VariationAssigned.
func AssignedID(s State) (string, bool) {
	if a, ok := s.(VariationAssigned); ok {
		return a.VariationID, true
	}
	return "", false
}

// Tracker maps request ids to their checkpoint state.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewTracker() *Tracker {
	return &Tracker{states: make(map[string]State)}
}

// Start registers a request id as Unspecified.
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[id] = Unspecified{}
}

// Get returns the state for id; unknown ids read as Unspecified.
func (t *Tracker) Get(id string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[id]; ok {
		return s
	}
	return Unspecified{}
}

// GetAndUpdate stores next and returns the previous state in one step.
func (t *Tracker) GetAndUpdate(id string, next State) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, ok := t.states[id]
	if !ok {
		prev = Unspecified{}
	}
	t.states[id] = next
	return prev
}

// Discard forgets id once its request has completed.
func (t *Tracker) Discard(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, id)
}

// Len reports the number of tracked requests.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}
