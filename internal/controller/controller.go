// ABOUTME: Access coordinator arbitrating every credential channel against the relay
// ABOUTME: Sole writer of door state and history; notifies the admin chat session

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/latch-gateway/internal/conversation"
	"github.com/2389/latch-gateway/internal/directory"
	"github.com/2389/latch-gateway/internal/door"
	"github.com/2389/latch-gateway/internal/enroll"
	"github.com/2389/latch-gateway/internal/history"
	"github.com/2389/latch-gateway/internal/periph"
	"github.com/2389/latch-gateway/internal/telegram"
)

// WebGrantMaxSeconds bounds the web timer form.
const WebGrantMaxSeconds = 3600

var (
	// ErrInvalidPIN is returned for a PIN presentation that is not exactly
	// four digits. No access event is recorded for malformed input.
	ErrInvalidPIN = errors.New("pin must be exactly 4 digits")

	// ErrInvalidDuration is returned for a web grant outside 1..3600s.
	ErrInvalidDuration = errors.New("grant duration must be between 1 and 3600 seconds")
)

// Messenger is the remote chat collaborator contract the coordinator
// consumes. SendMessage is best-effort.
type Messenger interface {
	SendMessage(ctx context.Context, sessionID, text string) bool
	PollNewMessages(ctx context.Context) ([]telegram.Message, error)
}

// Config holds coordinator timing.
type Config struct {
	FastTick      time.Duration // door/relay/rfid/indicator cadence
	SlowTick      time.Duration // chat ingestion cadence
	GrantDuration time.Duration // default relay hold for credential grants
	EnrollTimeout time.Duration // tag-scan wait for enrollments
	AdminSession  string        // chat session receiving notifications
}

// Deps are the collaborators the coordinator drives.
type Deps struct {
	Directory *directory.Directory
	History   *history.Log
	State     *door.State
	Indicator *door.Indicator
	Enroll    *enroll.Flow
	Convo     *conversation.Flow
	Chat      Messenger // nil when the chat channel is disabled
	Reader    periph.TagReader
	Sensor    periph.DoorSensor
	Relay     periph.Relay
	Clock     periph.Clock
	Logger    *slog.Logger
}

// Controller coordinates the credential channels, the relay, the audit
// trail and the chat notifications. It is the only writer of door state
// and history; the web layer calls in through its exported operations.
type Controller struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
}

// New creates a coordinator. Zero durations in cfg fall back to the
// source device's timings.
func New(deps Deps, cfg Config) *Controller {
	if cfg.FastTick <= 0 {
		cfg.FastTick = 50 * time.Millisecond
	}
	if cfg.SlowTick <= 0 {
		cfg.SlowTick = time.Second
	}
	if cfg.GrantDuration <= 0 {
		cfg.GrantDuration = 10 * time.Second
	}
	if cfg.EnrollTimeout <= 0 {
		cfg.EnrollTimeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:  cfg,
		deps: deps,
		log:  logger.With("component", "controller"),
	}
}

// Run drives the polling loops until ctx is cancelled. No channel
// failure terminates the loop.
func (c *Controller) Run(ctx context.Context) error {
	fast := time.NewTicker(c.cfg.FastTick)
	defer fast.Stop()
	slow := time.NewTicker(c.cfg.SlowTick)
	defer slow.Stop()

	c.log.Info("coordinator started",
		"fast_tick", c.cfg.FastTick,
		"slow_tick", c.cfg.SlowTick,
		"grant_duration", c.cfg.GrantDuration)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator stopped")
			return nil
		case now := <-fast.C:
			c.FastTick(now)
		case now := <-slow.C:
			c.SlowTick(ctx, now)
		}
	}
}

// FastTick runs one fast poll step. Ordering is fixed: door sensor, then
// relay timer, then RFID, then enrollment expiry, then indicator — so a
// grant in this tick is reflected in this tick's color.
func (c *Controller) FastTick(now time.Time) {
	c.checkDoor()
	c.checkRelayTimer(now)
	c.checkReader(now)
	if name, expired := c.deps.Enroll.Tick(now); expired {
		c.notifyAdmin(fmt.Sprintf("Enrollment for *%s* timed out without a tag scan.", name))
	}
	snap := c.deps.State.Snapshot()
	c.deps.Indicator.Refresh(snap.DoorOpen, snap.RelayEnergized, now)
}

// SlowTick runs one slow poll step: chat ingestion and the conversation
// timeout check.
func (c *Controller) SlowTick(ctx context.Context, now time.Time) {
	if c.deps.Chat != nil {
		msgs, err := c.deps.Chat.PollNewMessages(ctx)
		if err != nil {
			c.log.Warn("chat poll failed", "error", err)
		}
		for _, m := range msgs {
			c.ConversationMessage(ctx, m.SessionID, m.Text, now)
		}
	}
	if c.deps.Convo != nil {
		if sessionID, expired := c.deps.Convo.Tick(now); expired {
			c.send(sessionID, "Timed out waiting for a reply. Send /open to try again.")
		}
	}
}

// PresentTag handles an RFID presentation. While an enrollment awaits its
// scan the tag is consumed by the enrollment instead of authorizing.
func (c *Controller) PresentTag(uid string, now time.Time) {
	if c.deps.Enroll.Active() {
		res, err := c.deps.Enroll.OnScan(uid, now)
		switch {
		case err == nil:
			c.notifyAdmin(fmt.Sprintf("New user enrolled: *%s* (UID: %s)", res.Name, res.UID))
		case errors.Is(err, enroll.ErrExpired):
			c.notifyAdmin("Enrollment scan arrived too late; no user was added.")
		default:
			c.notifyAdmin(fmt.Sprintf("Enrollment failed: %v", err))
		}
		return
	}

	rec, found := c.deps.Directory.FindByUID(uid)
	if found {
		c.grant(history.MethodRFID, uid, rec.Name, c.cfg.GrantDuration, now)
		c.notifyAdmin(fmt.Sprintf("Access granted by RFID: %s (*%s*)", uid, rec.Name))
		return
	}
	c.deny(history.MethodRFID, uid, "N/A")
	c.notifyAdmin(fmt.Sprintf("Access denied by RFID: %s", uid))
}

// PresentPIN handles a PIN submission from the web channel. Malformed
// input is rejected without an access event; a well-formed PIN matches
// the earliest record carrying it.
func (c *Controller) PresentPIN(pin string, now time.Time) (granted bool, actor string, err error) {
	if !directory.ValidPIN(pin) {
		return false, "", ErrInvalidPIN
	}

	rec, found := c.deps.Directory.FindByPIN(pin)
	if found {
		c.grant(history.MethodPIN, pin, rec.Name, c.cfg.GrantDuration, now)
		c.notifyAdmin(fmt.Sprintf("Access granted by PIN: *%s*", rec.Name))
		return true, rec.Name, nil
	}
	c.deny(history.MethodPIN, pin, "N/A")
	c.notifyAdmin("Access denied by PIN")
	return false, "", nil
}

// WebGrant energizes the relay for a caller-chosen duration.
func (c *Controller) WebGrant(seconds int, now time.Time) error {
	if seconds < 1 || seconds > WebGrantMaxSeconds {
		return ErrInvalidDuration
	}
	c.grant(history.MethodWeb, "N/A", "N/A", time.Duration(seconds)*time.Second, now)
	c.notifyAdmin(fmt.Sprintf("Web access granted for %d seconds", seconds))
	return nil
}

// ConversationMessage forwards one chat message to the conversation flow
// and applies its outcome.
func (c *Controller) ConversationMessage(ctx context.Context, sessionID, text string, now time.Time) {
	if c.deps.Convo == nil {
		return
	}
	res := c.deps.Convo.Handle(sessionID, text, now)
	for _, r := range res.Replies {
		c.send(r.SessionID, r.Text)
	}
	switch res.Outcome {
	case conversation.OutcomeGranted:
		c.grant(history.MethodTelegram, res.Identifier, res.Actor, c.cfg.GrantDuration, now)
		c.notifyAdmin(fmt.Sprintf("Access granted by Telegram for *%s*", res.Actor))
	case conversation.OutcomeDenied:
		c.deny(history.MethodTelegram, res.Identifier, res.Actor)
	}
}

// AttachConversation wires the chat flow after construction. The flow
// takes the coordinator's status closure, so it is built second.
func (c *Controller) AttachConversation(f *conversation.Flow) {
	c.deps.Convo = f
}

// BeginEnrollment stages a new user awaiting a tag scan.
func (c *Controller) BeginEnrollment(name, pin string, now time.Time) (string, error) {
	return c.deps.Enroll.Begin(name, pin, c.cfg.EnrollTimeout, now)
}

// Snapshot returns the current door/relay state for presentation.
func (c *Controller) Snapshot() door.Snapshot {
	return c.deps.State.Snapshot()
}

// Visual returns the last derived indicator state.
func (c *Controller) Visual() door.Visual {
	return c.deps.Indicator.Current()
}

// GrantDuration returns the default grant hold.
func (c *Controller) GrantDuration() time.Duration {
	return c.cfg.GrantDuration
}

// NotifyAdmin sends a best-effort message to the admin chat session.
// Exposed for the web layer's roster-change notifications.
func (c *Controller) NotifyAdmin(text string) {
	c.notifyAdmin(text)
}

// StatusText renders the out-of-band chat status reply.
func (c *Controller) StatusText() string {
	snap := c.deps.State.Snapshot()
	doorState := "closed"
	if snap.DoorOpen {
		doorState = "open"
	}
	relayState := "locked"
	if snap.RelayEnergized {
		relayState = "unlocked"
	}
	return fmt.Sprintf("Door is *%s*, strike is *%s*.", doorState, relayState)
}

func (c *Controller) checkDoor() {
	open, err := c.deps.Sensor.IsOpen()
	if err != nil {
		c.log.Warn("door sensor read failed", "error", err)
		return
	}
	changed, unauthorized := c.deps.State.SetDoorOpen(open)
	if !changed {
		return
	}
	c.log.Info("door state changed", "open", open)
	if unauthorized {
		c.appendEvent(history.MethodSensor, "N/A", "Unknown", history.OutcomeIntrusion)
		c.notifyAdmin("🚨 *INTRUSION ALERT* 🚨\nDoor opened without authorization.")
	}
}

func (c *Controller) checkRelayTimer(now time.Time) {
	if c.deps.State.Tick(now) {
		if err := c.deps.Relay.Set(false); err != nil {
			c.log.Warn("relay release failed", "error", err)
		}
		c.log.Info("grant expired, relay released")
	}
}

func (c *Controller) checkReader(now time.Time) {
	uid, present, err := c.deps.Reader.Poll()
	if err != nil {
		c.log.Warn("tag reader poll failed", "error", err)
		return
	}
	if present {
		c.log.Info("tag presented", "uid", uid)
		c.PresentTag(uid, now)
	}
}

// grant is the single grant path: relay state, relay driver, audit event.
func (c *Controller) grant(method history.Method, identifier, actor string, d time.Duration, now time.Time) {
	c.deps.State.Grant(d, now)
	if err := c.deps.Relay.Set(true); err != nil {
		c.log.Warn("relay energize failed", "error", err)
	}
	c.appendEvent(method, identifier, actor, history.OutcomeGranted)
}

func (c *Controller) deny(method history.Method, identifier, actor string) {
	c.appendEvent(method, identifier, actor, history.OutcomeDenied)
}

// appendEvent stamps and records one audit entry. A failed clock degrades
// the timestamp to a placeholder and never blocks the decision.
func (c *Controller) appendEvent(method history.Method, identifier, actor string, outcome history.Outcome) {
	ts, err := c.deps.Clock.Timestamp()
	if err != nil {
		ts = "N/A"
	}
	c.deps.History.Append(history.Event{
		Timestamp:  ts,
		Method:     method,
		Identifier: identifier,
		Actor:      actor,
		Outcome:    outcome,
	})
}

func (c *Controller) notifyAdmin(text string) {
	c.send(c.cfg.AdminSession, text)
}

func (c *Controller) send(sessionID, text string) {
	if c.deps.Chat == nil || sessionID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !c.deps.Chat.SendMessage(ctx, sessionID, text) {
		c.log.Warn("chat delivery failed", "session", sessionID)
	}
}
