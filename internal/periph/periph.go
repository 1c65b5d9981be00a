// ABOUTME: Peripheral collaborator contracts for the door controller
// ABOUTME: Defines tag reader, door sensor, relay, indicator and clock interfaces

package periph

import "errors"

// ErrClockUnavailable is returned by a Clock whose time source never
// completed synchronization. Callers degrade timestamps to a placeholder
// rather than blocking an authorization decision.
var ErrClockUnavailable = errors.New("clock not synchronized")

// Color is the indicator output color.
type Color int

const (
	ColorOff Color = iota
	ColorRed
	ColorGreen
	ColorYellow
)

func (c Color) String() string {
	switch c {
	case ColorOff:
		return "off"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorYellow:
		return "yellow"
	default:
		return "unknown"
	}
}

// TagReader exposes the RFID reader. Poll is non-blocking: it reports
// whether a new tag was presented since the last call and, if so, its UID.
type TagReader interface {
	Poll() (uid string, present bool, err error)
}

// DoorSensor reports the current door position.
type DoorSensor interface {
	IsOpen() (bool, error)
}

// Relay drives the door strike.
type Relay interface {
	Set(energized bool) error
}

// Indicator drives the status pixel.
type Indicator interface {
	SetColor(c Color) error
}

// Clock produces formatted local timestamps for the audit trail.
// Implementations return ErrClockUnavailable until time sync completes.
type Clock interface {
	Timestamp() (string, error)
}
