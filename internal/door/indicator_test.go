// ABOUTME: Tests for the status indicator derivation and blink sub-mode.
// ABOUTME: Validates the state table and the 500ms alert blink toggle.

package door

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/2389/latch-gateway/internal/periph"
)

func TestVisualFor(t *testing.T) {
	tests := []struct {
		name     string
		doorOpen bool
		relayOn  bool
		want     Visual
	}{
		{"closed and locked", false, false, VisualLocked},
		{"closed during grant", false, true, VisualGranted},
		{"open during grant", true, true, VisualOpenDuringGrant},
		{"open without grant", true, false, VisualBlinkingAlert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VisualFor(tt.doorOpen, tt.relayOn))
		})
	}
}

func TestIndicator_Refresh_DrivesColors(t *testing.T) {
	out := &periph.SimIndicator{}
	ind := NewIndicator(out, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	ind.Refresh(false, false, now)
	assert.Equal(t, periph.ColorRed, out.Color())
	assert.Equal(t, VisualLocked, ind.Current())

	ind.Refresh(false, true, now)
	assert.Equal(t, periph.ColorGreen, out.Color())
	assert.Equal(t, VisualGranted, ind.Current())

	ind.Refresh(true, true, now)
	assert.Equal(t, periph.ColorYellow, out.Color())
	assert.Equal(t, VisualOpenDuringGrant, ind.Current())
}

func TestIndicator_Refresh_AlertBlinks(t *testing.T) {
	out := &periph.SimIndicator{}
	ind := NewIndicator(out, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	// Alert starts with the pixel lit
	ind.Refresh(true, false, now)
	assert.Equal(t, periph.ColorRed, out.Color())

	// Still within the half-period: no toggle
	ind.Refresh(true, false, now.Add(BlinkPeriod/2))
	assert.Equal(t, periph.ColorRed, out.Color())

	// Past the half-period: pixel off
	ind.Refresh(true, false, now.Add(BlinkPeriod))
	assert.Equal(t, periph.ColorOff, out.Color())

	// And back on after the next half-period
	ind.Refresh(true, false, now.Add(2*BlinkPeriod))
	assert.Equal(t, periph.ColorRed, out.Color())
}

func TestIndicator_Refresh_BlinkResetsOnReentry(t *testing.T) {
	out := &periph.SimIndicator{}
	ind := NewIndicator(out, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	ind.Refresh(true, false, now)
	ind.Refresh(true, false, now.Add(BlinkPeriod))
	assert.Equal(t, periph.ColorOff, out.Color())

	// Leaving and re-entering the alert restarts with the pixel lit
	ind.Refresh(false, false, now.Add(BlinkPeriod+time.Millisecond))
	ind.Refresh(true, false, now.Add(BlinkPeriod+2*time.Millisecond))
	assert.Equal(t, periph.ColorRed, out.Color())
}
