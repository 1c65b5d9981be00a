// ABOUTME: Tests for the one-shot enrollment state machine.
// ABOUTME: Validates the single pending slot, scan completion, expiry, and late scans.

package enroll

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoster struct {
	added []struct{ name, pin, uid string }
	err   error
}

func (f *fakeRoster) Add(name, pin, uid string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.added = append(f.added, struct{ name, pin, uid string }{name, pin, uid})
	return len(f.added) - 1, nil
}

func TestFlow_Begin(t *testing.T) {
	f := New(&fakeRoster{}, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	id, err := f.Begin("Alice", "1234", 30*time.Second, now)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, f.Active())

	name, active := f.PendingName()
	assert.True(t, active)
	assert.Equal(t, "Alice", name)
}

func TestFlow_Begin_SecondRejected(t *testing.T) {
	f := New(&fakeRoster{}, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first, err := f.Begin("Alice", "1234", 30*time.Second, now)
	require.NoError(t, err)

	// The pending slot is not overwritten
	_, err = f.Begin("Bob", "5678", 30*time.Second, now)
	assert.ErrorIs(t, err, ErrAlreadyActive)

	name, _ := f.PendingName()
	assert.Equal(t, "Alice", name)
	assert.NotEmpty(t, first)
}

func TestFlow_OnScan_CompletesEnrollment(t *testing.T) {
	roster := &fakeRoster{}
	f := New(roster, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	id, _ := f.Begin("Alice", "1234", 30*time.Second, now)

	res, err := f.OnScan("AA BB CC DD", now.Add(5*time.Second))
	require.NoError(t, err)
	assert.Equal(t, id, res.RequestID)
	assert.Equal(t, "Alice", res.Name)
	assert.Equal(t, "AA BB CC DD", res.UID)
	assert.Equal(t, 0, res.Index)

	require.Len(t, roster.added, 1)
	assert.Equal(t, "1234", roster.added[0].pin)
	assert.False(t, f.Active())
}

func TestFlow_OnScan_NotActive(t *testing.T) {
	f := New(&fakeRoster{}, nil)

	_, err := f.OnScan("AA BB", time.Now())
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestFlow_OnScan_LateScanExpiresWithoutRecord(t *testing.T) {
	roster := &fakeRoster{}
	f := New(roster, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	f.Begin("Alice", "1234", 30*time.Second, now)

	_, err := f.OnScan("AA BB", now.Add(31*time.Second))
	assert.ErrorIs(t, err, ErrExpired)
	assert.Empty(t, roster.added)
	assert.False(t, f.Active())
}

func TestFlow_OnScan_RosterRejection(t *testing.T) {
	wantErr := errors.New("roster full")
	f := New(&fakeRoster{err: wantErr}, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	f.Begin("Alice", "1234", 30*time.Second, now)

	_, err := f.OnScan("AA BB", now)
	assert.ErrorIs(t, err, wantErr)
	// The flow resets even when the add is rejected
	assert.False(t, f.Active())
}

func TestFlow_Tick_ExpiresDeadline(t *testing.T) {
	f := New(&fakeRoster{}, nil)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	f.Begin("Alice", "1234", 30*time.Second, now)

	// At the deadline the wait is still live
	_, expired := f.Tick(now.Add(30 * time.Second))
	assert.False(t, expired)

	name, expired := f.Tick(now.Add(31 * time.Second))
	assert.True(t, expired)
	assert.Equal(t, "Alice", name)
	assert.False(t, f.Active())

	// A fresh Begin works after expiry
	_, err := f.Begin("Bob", "", 30*time.Second, now.Add(time.Minute))
	assert.NoError(t, err)
}

func TestFlow_Tick_IdleNoop(t *testing.T) {
	f := New(&fakeRoster{}, nil)
	_, expired := f.Tick(time.Now())
	assert.False(t, expired)
}
