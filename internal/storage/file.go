// ABOUTME: Filesystem-backed LineFile implementation guarded by the shared bus
// ABOUTME: Acquires the storage device around every read, append and rewrite

package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/latch-gateway/internal/periph"
)

// File is a LineFile stored at a filesystem path. All I/O is performed
// while holding the peripheral bus for the storage device, matching the
// card reader's exclusive-bus requirement.
type File struct {
	path string
	bus  *periph.Bus
}

// NewFile returns a File at path. bus may not be nil.
func NewFile(path string, bus *periph.Bus) *File {
	return &File{path: path, bus: bus}
}

// EnsureHeader creates the record with the given header line when it
// does not exist yet. An existing record is left untouched.
func (f *File) EnsureHeader(header string) error {
	release := f.bus.Acquire(periph.DeviceStorage)
	defer release()

	if _, err := os.Stat(f.path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.WriteFile(f.path, []byte(header+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *File) ReadLines() ([]string, error) {
	release := f.bus.Acquire(periph.DeviceStorage)
	defer release()

	fh, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer fh.Close()

	var lines []string
	scanner := bufio.NewScanner(fh)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return lines, nil
}

func (f *File) AppendLine(line string) error {
	release := f.bus.Acquire(periph.DeviceStorage)
	defer release()

	fh, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer fh.Close()

	if _, err := fh.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Rewrite replaces the record through a temp-file rename so a crash
// mid-write never leaves a truncated roster behind.
func (f *File) Rewrite(lines []string) error {
	release := f.bus.Acquire(periph.DeviceStorage)
	defer release()

	tmp := f.path + ".tmp"
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
