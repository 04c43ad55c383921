package realtime

import (
	"testing"
	"time"

	"example.com/potrack/internal/events"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for window-expiry tests.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestGuardSuppressesRepeatsWithinWindow(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuardWithClock(5*time.Second, clock.Now)

	key := events.FactKeyTrackUpdated("item1", "production", 80)

	require.True(t, guard.MarkProcessed(key))
	require.False(t, guard.MarkProcessed(key))

	clock.Advance(3 * time.Second)
	require.False(t, guard.MarkProcessed(key))

	clock.Advance(3 * time.Second)
	require.True(t, guard.MarkProcessed(key))
}

func TestGuardKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuardWithClock(5*time.Second, clock.Now)

	require.True(t, guard.MarkProcessed(events.FactKeyTrackUpdated("item1", "production", 80)))
	require.True(t, guard.MarkProcessed(events.FactKeyTrackUpdated("item1", "production", 85)))
	require.True(t, guard.MarkProcessed(events.FactKeyTrackUpdated("item1", "qc", 80)))
	require.True(t, guard.MarkProcessed(events.FactKeyTrackUpdated("item2", "production", 80)))
}

func TestGuardSweepsExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	guard := NewGuardWithClock(time.Second, clock.Now)

	for i := 0; i < 100; i++ {
		require.True(t, guard.MarkProcessed(events.FactKeyItemDelivered("item", i)))
	}
	clock.Advance(2 * time.Second)
	require.True(t, guard.MarkProcessed("sweep-trigger"))

	guard.mu.Lock()
	size := len(guard.seen)
	guard.mu.Unlock()
	require.Equal(t, 1, size)
}

func TestFactKeyKindsNeverCollide(t *testing.T) {
	// Different event kinds over the same ids must produce distinct keys.
	keys := []string{
		events.FactKeyPOCreated("PO-1"),
		events.FactKeyPOUrgent("PO-1"),
		events.FactKeyPOStatus("PO-1", "cancelled"),
		events.FactKeyFinance("PO-1", "paid"),
		events.FactKeyIssue(events.IssueCreated, "id"),
		events.FactKeyIssue(events.IssueResolved, "id"),
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		require.False(t, seen[k], "duplicate fact key %q", k)
		seen[k] = true
	}
}
