// ABOUTME: Visual status derivation from door/relay state and the pixel driver
// ABOUTME: Pure state table, 500ms blink sub-mode, edge-triggered transition logs

package door

import (
	"log/slog"
	"sync"
	"time"

	"github.com/2389/latch-gateway/internal/periph"
)

// Visual is the derived indicator state.
type Visual int

const (
	VisualLocked Visual = iota
	VisualGranted
	VisualOpenDuringGrant
	VisualBlinkingAlert
)

func (v Visual) String() string {
	switch v {
	case VisualLocked:
		return "locked"
	case VisualGranted:
		return "access-granted"
	case VisualOpenDuringGrant:
		return "door-open-during-grant"
	case VisualBlinkingAlert:
		return "blinking-alert"
	default:
		return "unknown"
	}
}

// BlinkPeriod is the on/off half-period of the alert blink.
const BlinkPeriod = 500 * time.Millisecond

// VisualFor derives the indicator state from door and relay state.
func VisualFor(doorOpen, relayEnergized bool) Visual {
	switch {
	case doorOpen && !relayEnergized:
		return VisualBlinkingAlert
	case !doorOpen && !relayEnergized:
		return VisualLocked
	case !doorOpen && relayEnergized:
		return VisualGranted
	default:
		return VisualOpenDuringGrant
	}
}

// Indicator refreshes the status pixel each fast tick. State changes are
// logged once per transition, never per tick.
type Indicator struct {
	out    periph.Indicator
	logger *slog.Logger

	mu         sync.Mutex
	known      bool
	last       Visual
	blinkOn    bool
	lastToggle time.Time
}

// NewIndicator creates an indicator refresher over the given pixel driver.
func NewIndicator(out periph.Indicator, logger *slog.Logger) *Indicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indicator{
		out:    out,
		logger: logger.With("component", "indicator"),
	}
}

// Refresh recomputes the visual state and drives the pixel. A grant
// earlier in the same tick is reflected in this tick's color.
func (i *Indicator) Refresh(doorOpen, relayEnergized bool, now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()

	v := VisualFor(doorOpen, relayEnergized)
	if !i.known || v != i.last {
		i.logger.Info("indicator state changed", "state", v.String())
		i.known = true
		i.last = v
		i.blinkOn = true
		i.lastToggle = now
	}

	color := periph.ColorRed
	switch v {
	case VisualLocked:
		color = periph.ColorRed
	case VisualGranted:
		color = periph.ColorGreen
	case VisualOpenDuringGrant:
		color = periph.ColorYellow
	case VisualBlinkingAlert:
		if now.Sub(i.lastToggle) >= BlinkPeriod {
			i.blinkOn = !i.blinkOn
			i.lastToggle = now
		}
		if i.blinkOn {
			color = periph.ColorRed
		} else {
			color = periph.ColorOff
		}
	}

	if err := i.out.SetColor(color); err != nil {
		i.logger.Warn("indicator write failed", "error", err)
	}
}

// Current returns the last derived visual state.
func (i *Indicator) Current() Visual {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.last
}
