package turnengine

import "sync"

// BusySet tracks which sessions currently have a turn in flight. A session
// name is a member iff a turn for it is currently executing: add before
// invoking the agent, remove in a guaranteed-finally (spec §8 Testable
// Property 5). Grounded on the teacher's single-flight-per-key guard shape
// (hold a key while work runs, release in defer).
type BusySet struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// NewBusySet constructs an empty BusySet.
func NewBusySet() *BusySet {
	return &BusySet{busy: make(map[string]struct{})}
}

// TryAcquire marks sessionName busy and returns true, or returns false
// without side effects if it is already busy.
func (b *BusySet) TryAcquire(sessionName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.busy[sessionName]; ok {
		return false
	}
	b.busy[sessionName] = struct{}{}
	return true
}

// Release frees sessionName. Safe to call even if not held.
func (b *BusySet) Release(sessionName string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.busy, sessionName)
}

// IsBusy reports whether sessionName currently has a turn in flight.
func (b *BusySet) IsBusy(sessionName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.busy[sessionName]
	return ok
}
