// ABOUTME: In-memory peripheral implementations for hardware-free operation
// ABOUTME: Used by the daemon's sim mode and by package tests across the repo

package periph

import (
	"sync"
	"time"
)

// SimDoorSensor is a settable door sensor.
type SimDoorSensor struct {
	mu   sync.Mutex
	open bool
}

func (s *SimDoorSensor) SetOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

func (s *SimDoorSensor) IsOpen() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, nil
}

// SimTagReader queues injected tag presentations and hands them out one
// per Poll, mirroring the "new card present" semantics of the hardware.
type SimTagReader struct {
	mu    sync.Mutex
	queue []string
}

// Present injects a tag scan that the next Poll will report.
func (r *SimTagReader) Present(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, uid)
}

func (r *SimTagReader) Poll() (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return "", false, nil
	}
	uid := r.queue[0]
	r.queue = r.queue[1:]
	return uid, true, nil
}

// SimRelay records the strike state.
type SimRelay struct {
	mu        sync.Mutex
	energized bool
	changes   int
}

func (r *SimRelay) Set(energized bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.energized != energized {
		r.changes++
	}
	r.energized = energized
	return nil
}

func (r *SimRelay) Energized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.energized
}

// SimIndicator records the last color written and how many writes occurred.
type SimIndicator struct {
	mu     sync.Mutex
	color  Color
	writes int
}

func (i *SimIndicator) SetColor(c Color) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.color = c
	i.writes++
	return nil
}

func (i *SimIndicator) Color() Color {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.color
}

// SystemClock formats wall-clock time in the local zone. Synced gates
// availability: a controller bootstrapped without time sync keeps the
// clock unsynced and timestamps degrade to a placeholder.
type SystemClock struct {
	mu     sync.Mutex
	synced bool
}

// MarkSynced records that the time source completed synchronization.
func (c *SystemClock) MarkSynced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = true
}

func (c *SystemClock) Timestamp() (string, error) {
	c.mu.Lock()
	synced := c.synced
	c.mu.Unlock()
	if !synced {
		return "", ErrClockUnavailable
	}
	return time.Now().Format("2006-01-02 15:04:05"), nil
}

// FixedClock returns a canned timestamp or error, for tests.
type FixedClock struct {
	Value string
	Err   error
}

func (c *FixedClock) Timestamp() (string, error) {
	if c.Err != nil {
		return "", c.Err
	}
	return c.Value, nil
}
