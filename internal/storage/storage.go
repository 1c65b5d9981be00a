// ABOUTME: Line-record persistence contract backing the roster and audit trail
// ABOUTME: Mirrors the append/rewrite semantics of header-prefixed card files

package storage

import "errors"

// ErrUnavailable is returned when the backing medium cannot be read or
// written. Callers degrade to their in-memory state rather than failing
// the operation that triggered the write.
var ErrUnavailable = errors.New("storage unavailable")

// LineFile is a named record of text lines. The first line is a header
// and is written once at creation; data lines follow.
type LineFile interface {
	// ReadLines returns every non-empty line including the header.
	ReadLines() ([]string, error)

	// AppendLine durably appends a single data line.
	AppendLine(line string) error

	// Rewrite atomically replaces the whole record with the given lines.
	Rewrite(lines []string) error
}
