// ABOUTME: Bounded, time-ordered audit trail of access decisions
// ABOUTME: 15-entry in-memory window over an append-only line-file record

package history

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/latch-gateway/internal/storage"
)

// Window is how many events are retained in memory. The persisted record
// grows append-only over the device's lifetime; only the in-memory view
// is trimmed.
const Window = 15

// Header is the first line of the persisted history record.
const Header = "Timestamp,Method,ID,User,Status"

// Method identifies the channel an access decision arrived on.
type Method string

const (
	MethodRFID     Method = "RFID"
	MethodPIN      Method = "PIN"
	MethodWeb      Method = "WEB"
	MethodTelegram Method = "TELEGRAM"
	MethodSensor   Method = "SENSOR"
)

// Outcome is the result of an access decision.
type Outcome string

const (
	OutcomeGranted   Outcome = "Granted"
	OutcomeDenied    Outcome = "Denied"
	OutcomeIntrusion Outcome = "IntrusionAttempt"
)

// Event is one immutable audit entry. ID is assigned in memory and not
// persisted; the line format carries the remaining five fields.
type Event struct {
	ID         string
	Timestamp  string
	Method     Method
	Identifier string
	Actor      string
	Outcome    Outcome
}

// fieldSanitizer strips the characters that would break the line format.
// Identifier and Actor can carry free text from a chat session.
var fieldSanitizer = strings.NewReplacer(",", " ", "\n", " ", "\r", " ")

func (e Event) line() string {
	return fmt.Sprintf("%s,%s,%s,%s,%s",
		e.Timestamp, e.Method,
		fieldSanitizer.Replace(e.Identifier),
		fieldSanitizer.Replace(e.Actor),
		e.Outcome)
}

// Log is the access history. Append is durably append-only; the 16th
// in-memory entry silently evicts the 1st without touching storage.
type Log struct {
	mu     sync.Mutex
	events []Event // oldest first
	file   storage.LineFile
	logger *slog.Logger
}

// New creates an empty log over the given record file.
func New(file storage.LineFile, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		file:   file,
		logger: logger.With("component", "history"),
	}
}

// Load reads the persisted record, retaining only the newest Window
// entries in memory. Older lines stay on storage untouched.
func (l *Log) Load() error {
	lines, err := l.file.ReadLines()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = l.events[:0]
	for i, line := range lines {
		if i == 0 {
			// header
			continue
		}
		fields := strings.SplitN(line, ",", 5)
		if len(fields) != 5 {
			continue
		}
		l.events = append(l.events, Event{
			ID:         uuid.New().String(),
			Timestamp:  fields[0],
			Method:     Method(fields[1]),
			Identifier: fields[2],
			Actor:      fields[3],
			Outcome:    Outcome(fields[4]),
		})
		if len(l.events) > Window {
			l.events = l.events[1:]
		}
	}
	l.logger.Info("history loaded", "events", len(l.events))
	return nil
}

// Append records an event at the tail. The raw event is always appended
// to storage; a storage failure is logged and the in-memory window still
// advances.
func (l *Log) Append(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	l.mu.Lock()
	l.events = append(l.events, e)
	if len(l.events) > Window {
		l.events = l.events[1:]
	}
	l.mu.Unlock()

	if err := l.file.AppendLine(e.line()); err != nil {
		l.logger.Warn("event not persisted, continuing from memory", "error", err)
	}
	l.logger.Info("access event",
		"method", string(e.Method),
		"identifier", e.Identifier,
		"actor", e.Actor,
		"outcome", string(e.Outcome))
	return e
}

// Recent returns up to n events, most recent first. n <= 0 returns the
// whole window.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, 0, n)
	for i := len(l.events) - 1; i >= len(l.events)-n; i-- {
		out = append(out, l.events[i])
	}
	return out
}

// Len returns the in-memory window size.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
