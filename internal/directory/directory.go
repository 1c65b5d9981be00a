// ABOUTME: Bounded roster of credential records backed by line-file storage
// ABOUTME: Rewrite-on-change persistence, positional indices, lookup by uid/name/pin

package directory

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/latch-gateway/internal/storage"
)

// Capacity is the fixed roster size. A deliberate memory constraint of
// the installation, not an incidental slice bound.
const Capacity = 10

// Header is the first line of the persisted roster record.
const Header = "Name,PIN,UID"

var (
	// ErrInvalidCredential covers a record with neither credential, a PIN
	// that is not exactly four digits, or a field the line format cannot
	// carry.
	ErrInvalidCredential = errors.New("credential requires a 4-digit PIN or a tag UID")

	// ErrCapacityExceeded is returned by Add when the roster is full.
	ErrCapacityExceeded = errors.New("user roster is full")

	// ErrIndexOutOfRange is returned for edit/delete on a stale or bogus
	// index. Indices shift after a delete; callers re-query rather than
	// cache them.
	ErrIndexOutOfRange = errors.New("user index out of range")
)

// Record is one person's credentials. At least one of PIN and UID is
// always present; PIN, when present, is exactly four ASCII digits.
type Record struct {
	Name string
	PIN  string
	UID  string
}

// HasPIN reports whether the record can authorize by PIN.
func (r Record) HasPIN() bool { return r.PIN != "" }

// HasTag reports whether the record can authorize by tag scan.
func (r Record) HasTag() bool { return r.UID != "" }

// ValidPIN reports whether s is exactly four ASCII digits.
func ValidPIN(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Directory is the user roster. It exclusively owns its records; every
// mutation persists the full roster (rewrite-on-change). A storage
// failure is logged and the in-memory roster remains authoritative.
type Directory struct {
	mu     sync.Mutex
	users  []Record
	file   storage.LineFile
	logger *slog.Logger
}

// New creates an empty directory over the given record file.
func New(file storage.LineFile, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		file:   file,
		logger: logger.With("component", "directory"),
	}
}

// Load populates the roster from storage. Malformed lines (wrong field
// count) are skipped silently; loading stops at capacity.
func (d *Directory) Load() error {
	lines, err := d.file.ReadLines()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = d.users[:0]
	for i, line := range lines {
		if i == 0 {
			// header
			continue
		}
		if len(d.users) >= Capacity {
			break
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			continue
		}
		d.users = append(d.users, Record{Name: fields[0], PIN: fields[1], UID: fields[2]})
	}
	d.logger.Info("roster loaded", "users", len(d.users))
	return nil
}

// Add appends a record and persists the roster. Returns the new record's
// positional index.
func (d *Directory) Add(name, pin, uid string) (int, error) {
	if err := validate(name, pin, uid); err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.users) >= Capacity {
		return 0, ErrCapacityExceeded
	}
	d.users = append(d.users, Record{Name: name, PIN: pin, UID: uid})
	d.persistLocked()
	d.logger.Info("user added", "name", name, "has_pin", pin != "", "has_tag", uid != "")
	return len(d.users) - 1, nil
}

// Update replaces the record at index. The caller is responsible for
// carrying the stored UID forward when the tag is not being rescanned.
func (d *Directory) Update(index int, name, pin, uid string) error {
	if err := validate(name, pin, uid); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.users) {
		return ErrIndexOutOfRange
	}
	d.users[index] = Record{Name: name, PIN: pin, UID: uid}
	d.persistLocked()
	d.logger.Info("user updated", "index", index, "name", name)
	return nil
}

// Delete removes the record at index, shifting later entries down.
func (d *Directory) Delete(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.users) {
		return ErrIndexOutOfRange
	}
	name := d.users[index].Name
	d.users = append(d.users[:index], d.users[index+1:]...)
	d.persistLocked()
	d.logger.Info("user deleted", "index", index, "name", name)
	return nil
}

// Get returns a copy of the record at index.
func (d *Directory) Get(index int) (Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.users) {
		return Record{}, ErrIndexOutOfRange
	}
	return d.users[index], nil
}

// List returns a copy of the roster in insertion order.
func (d *Directory) List() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Record, len(d.users))
	copy(out, d.users)
	return out
}

// Len returns the roster size.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// FindByUID returns the earliest record with the given tag UID.
func (d *Directory) FindByUID(uid string) (Record, bool) {
	if uid == "" {
		return Record{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.UID == uid {
			return u, true
		}
	}
	return Record{}, false
}

// FindByName returns the earliest record with the given name.
func (d *Directory) FindByName(name string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Name == name {
			return u, true
		}
	}
	return Record{}, false
}

// FindByPIN returns the earliest record with the given PIN. PIN lookup is
// not scoped to a named user; colliding PINs resolve to the first match.
func (d *Directory) FindByPIN(pin string) (Record, bool) {
	if pin == "" {
		return Record{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.PIN == pin {
			return u, true
		}
	}
	return Record{}, false
}

// persistLocked rewrites the full roster record. Storage failures leave
// the in-memory roster authoritative and are logged once per mutation.
func (d *Directory) persistLocked() {
	lines := make([]string, 0, len(d.users)+1)
	lines = append(lines, Header)
	for _, u := range d.users {
		lines = append(lines, fmt.Sprintf("%s,%s,%s", u.Name, u.PIN, u.UID))
	}
	if err := d.file.Rewrite(lines); err != nil {
		d.logger.Warn("roster not persisted, continuing from memory", "error", err)
	}
}

func validate(name, pin, uid string) error {
	if pin == "" && uid == "" {
		return ErrInvalidCredential
	}
	if pin != "" && !ValidPIN(pin) {
		return ErrInvalidCredential
	}
	// The line format cannot carry field separators.
	for _, s := range []string{name, pin, uid} {
		if strings.ContainsAny(s, ",\n") {
			return ErrInvalidCredential
		}
	}
	return nil
}
