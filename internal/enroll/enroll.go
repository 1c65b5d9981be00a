// ABOUTME: One-shot enrollment state machine pairing a pending user with a tag scan
// ABOUTME: Single slot with explicit request id; a second Begin is rejected, not aliased

package enroll

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyActive is returned by Begin while another enrollment is
	// awaiting its scan. The pending slot is never silently overwritten.
	ErrAlreadyActive = errors.New("an enrollment is already awaiting a tag scan")

	// ErrExpired is reported when the scan arrives after the deadline, or
	// by Tick when no scan arrived at all. No roster entry is created.
	ErrExpired = errors.New("enrollment wait expired")

	// ErrNotActive is returned by OnScan when no enrollment is pending.
	ErrNotActive = errors.New("no enrollment awaiting a scan")
)

// Roster is what the flow needs from the user directory.
type Roster interface {
	Add(name, pin, uid string) (int, error)
}

// Result describes a completed enrollment.
type Result struct {
	RequestID string
	Name      string
	UID       string
	Index     int
}

// Flow is the enrollment state machine: Idle -> AwaitingScan -> Idle.
// Process-wide single slot.
type Flow struct {
	mu        sync.Mutex
	active    bool
	requestID string
	name      string
	pin       string
	deadline  time.Time

	roster Roster
	logger *slog.Logger
}

// New creates an idle flow over the given roster.
func New(roster Roster, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		roster: roster,
		logger: logger.With("component", "enroll"),
	}
}

// Begin stages a pending record and starts the scan wait. Returns the
// request id identifying this enrollment.
func (f *Flow) Begin(name, pin string, timeout time.Duration, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active {
		return "", ErrAlreadyActive
	}
	f.active = true
	f.requestID = uuid.New().String()
	f.name = name
	f.pin = pin
	f.deadline = now.Add(timeout)
	f.logger.Info("enrollment started", "request_id", f.requestID, "name", name)
	return f.requestID, nil
}

// Active reports whether a scan is pending.
func (f *Flow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// PendingName returns the name staged for enrollment, if any.
func (f *Flow) PendingName() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name, f.active
}

// OnScan consumes an arriving tag scan. A scan past the deadline expires
// the flow without creating a record; otherwise the staged record is
// added to the roster and the flow returns to idle either way.
func (f *Flow) OnScan(uid string, now time.Time) (Result, error) {
	f.mu.Lock()
	if !f.active {
		f.mu.Unlock()
		return Result{}, ErrNotActive
	}
	requestID, name, pin := f.requestID, f.name, f.pin
	expired := now.After(f.deadline)
	f.resetLocked()
	f.mu.Unlock()

	if expired {
		f.logger.Info("enrollment scan arrived after deadline", "request_id", requestID, "name", name)
		return Result{}, ErrExpired
	}

	index, err := f.roster.Add(name, pin, uid)
	if err != nil {
		f.logger.Warn("enrollment add rejected", "request_id", requestID, "name", name, "error", err)
		return Result{}, err
	}
	f.logger.Info("enrollment completed", "request_id", requestID, "name", name, "uid", uid)
	return Result{RequestID: requestID, Name: name, UID: uid, Index: index}, nil
}

// Tick expires an active wait whose deadline has passed with no scan.
func (f *Flow) Tick(now time.Time) (name string, expired bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.active || !now.After(f.deadline) {
		return "", false
	}
	name = f.name
	f.resetLocked()
	f.logger.Info("enrollment timed out", "name", name)
	return name, true
}

func (f *Flow) resetLocked() {
	f.active = false
	f.requestID = ""
	f.name = ""
	f.pin = ""
	f.deadline = time.Time{}
}
