// ABOUTME: Tests for the relay/door state machine.
// ABOUTME: Validates timed release, grant extension, and edge-triggered intrusion detection.

package door

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_Grant_EnergizesUntilDeadline(t *testing.T) {
	s := &State{}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s.Grant(10*time.Second, now)

	snap := s.Snapshot()
	assert.True(t, snap.RelayEnergized)
	assert.Equal(t, now.Add(10*time.Second), snap.Deadline)
}

func TestState_Tick_ReleasesAtDeadline(t *testing.T) {
	s := &State{}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.Grant(10*time.Second, now)

	// Before the deadline nothing happens
	assert.False(t, s.Tick(now.Add(9*time.Second)))
	assert.True(t, s.Snapshot().RelayEnergized)

	// At the deadline the relay releases
	assert.True(t, s.Tick(now.Add(10*time.Second)))
	assert.False(t, s.Snapshot().RelayEnergized)

	// Subsequent ticks are no-ops
	assert.False(t, s.Tick(now.Add(11*time.Second)))
}

func TestState_Grant_ReGrantExtendsDeadline(t *testing.T) {
	s := &State{}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	s.Grant(10*time.Second, now)
	s.Grant(10*time.Second, now.Add(5*time.Second))

	// The original deadline has passed but the extension holds
	assert.False(t, s.Tick(now.Add(10*time.Second)))
	assert.True(t, s.Tick(now.Add(15*time.Second)))
}

func TestState_SetDoorOpen_EdgeDetection(t *testing.T) {
	s := &State{}

	changed, unauthorized := s.SetDoorOpen(true)
	assert.True(t, changed)
	assert.True(t, unauthorized)

	// Held open: no repeated edge
	changed, unauthorized = s.SetDoorOpen(true)
	assert.False(t, changed)
	assert.False(t, unauthorized)

	changed, unauthorized = s.SetDoorOpen(false)
	assert.True(t, changed)
	assert.False(t, unauthorized)
}

func TestState_SetDoorOpen_AuthorizedWhileEnergized(t *testing.T) {
	s := &State{}
	s.Grant(10*time.Second, time.Now())

	changed, unauthorized := s.SetDoorOpen(true)
	assert.True(t, changed)
	assert.False(t, unauthorized)
}
