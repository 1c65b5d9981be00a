// ABOUTME: Multi-step chat credential flow: open command, name step, PIN step
// ABOUTME: Single-slot session binding with per-step deadlines and poll-driven timeout

package conversation

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/latch-gateway/internal/directory"
)

// Chat commands. CommandStatus is accepted out-of-band from any session
// in any phase and never alters the flow.
const (
	CommandOpen   = "/open"
	CommandStatus = "/status"
)

// Phase is the flow state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingName
	PhaseAwaitingPin
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingName:
		return "awaiting-name"
	case PhaseAwaitingPin:
		return "awaiting-pin"
	default:
		return "unknown"
	}
}

// Outcome of handling one message.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeGranted
	OutcomeDenied
)

// Reply is a message the coordinator should deliver to a session.
type Reply struct {
	SessionID string
	Text      string
}

// Result is what one inbound message produced. When Outcome is Granted or
// Denied the coordinator appends exactly one access event (and grants on
// Granted); Actor and Identifier carry its fields.
type Result struct {
	Replies    []Reply
	Outcome    Outcome
	Actor      string
	Identifier string
}

// Lookup is what the flow needs from the user directory.
type Lookup interface {
	FindByName(name string) (directory.Record, bool)
}

// StatusFunc supplies the reply text for the out-of-band status command.
type StatusFunc func() string

// Flow drives a single remote chat session through name then PIN
// collection. Only one session may be mid-flow at a time; messages from
// other sessions are ignored while a flow is bound.
type Flow struct {
	mu        sync.Mutex
	phase     Phase
	sessionID string
	pending   directory.Record
	deadline  time.Time

	timeout time.Duration
	lookup  Lookup
	status  StatusFunc
	logger  *slog.Logger
}

// New creates an idle flow. timeout applies per step and is refreshed on
// the name-to-PIN transition.
func New(lookup Lookup, status StatusFunc, timeout time.Duration, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		timeout: timeout,
		lookup:  lookup,
		status:  status,
		logger:  logger.With("component", "conversation"),
	}
}

// Phase returns the current flow phase.
func (f *Flow) Phase() Phase {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.phase
}

// Handle consumes one inbound chat message.
func (f *Flow) Handle(sessionID, text string, now time.Time) Result {
	text = strings.TrimSpace(text)

	if text == CommandStatus {
		reply := "Status unavailable."
		if f.status != nil {
			reply = f.status()
		}
		return Result{Replies: []Reply{{SessionID: sessionID, Text: reply}}}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.phase {
	case PhaseIdle:
		if text != CommandOpen {
			return Result{}
		}
		f.phase = PhaseAwaitingName
		f.sessionID = sessionID
		f.deadline = now.Add(f.timeout)
		f.logger.Info("open requested, awaiting name", "session", sessionID)
		return Result{Replies: []Reply{{SessionID: sessionID, Text: "Please enter the user name."}}}

	case PhaseAwaitingName:
		if sessionID != f.sessionID {
			return Result{}
		}
		rec, found := f.lookup.FindByName(text)
		if !found {
			f.resetLocked()
			f.logger.Info("name not found", "session", sessionID, "name", text)
			return Result{
				Replies:    []Reply{{SessionID: sessionID, Text: fmt.Sprintf("User *%s* not found.", text)}},
				Outcome:    OutcomeDenied,
				Actor:      text,
				Identifier: "N/A",
			}
		}
		if !rec.HasPIN() {
			f.resetLocked()
			f.logger.Info("user has no pin configured", "session", sessionID, "name", text)
			return Result{
				Replies:    []Reply{{SessionID: sessionID, Text: fmt.Sprintf("User *%s* has no PIN configured.", text)}},
				Outcome:    OutcomeDenied,
				Actor:      text,
				Identifier: "N/A",
			}
		}
		f.phase = PhaseAwaitingPin
		f.pending = rec
		f.deadline = now.Add(f.timeout)
		f.logger.Info("name accepted, awaiting pin", "session", sessionID, "name", rec.Name)
		return Result{Replies: []Reply{{SessionID: sessionID, Text: fmt.Sprintf("Please enter the 4-digit PIN for *%s*.", rec.Name)}}}

	case PhaseAwaitingPin:
		if sessionID != f.sessionID {
			return Result{}
		}
		actor := f.pending.Name
		granted := directory.ValidPIN(text) && text == f.pending.PIN
		f.resetLocked()
		if granted {
			f.logger.Info("pin accepted", "session", sessionID, "name", actor)
			return Result{
				Replies:    []Reply{{SessionID: sessionID, Text: fmt.Sprintf("Access granted for *%s*.", actor)}},
				Outcome:    OutcomeGranted,
				Actor:      actor,
				Identifier: text,
			}
		}
		f.logger.Info("pin rejected", "session", sessionID, "name", actor)
		return Result{
			Replies:    []Reply{{SessionID: sessionID, Text: fmt.Sprintf("Incorrect or invalid PIN for *%s*. Access denied.", actor)}},
			Outcome:    OutcomeDenied,
			Actor:      actor,
			Identifier: text,
		}
	}
	return Result{}
}

// Tick expires an active flow whose deadline has passed, independent of
// message arrival. Returns the session that should be notified.
func (f *Flow) Tick(now time.Time) (sessionID string, expired bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.phase == PhaseIdle || !now.After(f.deadline) {
		return "", false
	}
	sessionID = f.sessionID
	f.resetLocked()
	f.logger.Info("conversation timed out", "session", sessionID)
	return sessionID, true
}

func (f *Flow) resetLocked() {
	f.phase = PhaseIdle
	f.sessionID = ""
	f.pending = directory.Record{}
	f.deadline = time.Time{}
}
