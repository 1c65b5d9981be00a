// ABOUTME: Relay and door-sensor state with timed auto-release
// ABOUTME: Deadline is held iff the relay is energized; tick is the release path

package door

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time copy of the door/relay state.
type Snapshot struct {
	DoorOpen       bool
	RelayEnergized bool
	Deadline       time.Time
}

// State tracks the door sensor and the relay. The coordinator is its
// only writer; the web layer reads snapshots.
type State struct {
	mu       sync.Mutex
	doorOpen bool
	relayOn  bool
	deadline time.Time
}

// SetDoorOpen records the sensor reading. changed reports an edge since
// the last recorded state; unauthorized reports the door opening while
// the relay is not energized. Unauthorized fires once per transition,
// never repeatedly while the door is held open.
func (s *State) SetDoorOpen(open bool) (changed, unauthorized bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if open == s.doorOpen {
		return false, false
	}
	s.doorOpen = open
	return true, open && !s.relayOn
}

// Grant energizes the relay until now+d. Re-granting while energized
// extends the deadline; last write wins.
func (s *State) Grant(d time.Duration, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relayOn = true
	s.deadline = now.Add(d)
}

// Tick releases the relay when the deadline has passed. It reports
// whether a release happened this tick; before the deadline it never
// mutates state. This is the only de-energize path in normal operation.
func (s *State) Tick(now time.Time) (released bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.relayOn || now.Before(s.deadline) {
		return false
	}
	s.relayOn = false
	s.deadline = time.Time{}
	return true
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{DoorOpen: s.doorOpen, RelayEnergized: s.relayOn, Deadline: s.deadline}
}
