package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/potrack/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// stubWriteClient records write calls and returns scripted results.
type stubWriteClient struct {
	mu       sync.Mutex
	calls    []int
	fail     error
	respond  chan struct{} // when non-nil, writes block until signalled
	honorCtx bool
}

func (c *stubWriteClient) UpdateTrackProgress(ctx context.Context, itemID, department string, progress int, note string) error {
	return c.record(ctx, progress)
}

func (c *stubWriteClient) UpdateDeliveredQuantity(ctx context.Context, itemID string, quantity int) error {
	return c.record(ctx, quantity)
}

func (c *stubWriteClient) record(ctx context.Context, value int) error {
	c.mu.Lock()
	c.calls = append(c.calls, value)
	respond := c.respond
	fail := c.fail
	c.mu.Unlock()

	if respond != nil {
		select {
		case <-respond:
		case <-ctx.Done():
			if c.honorCtx {
				return ctx.Err()
			}
		}
	}
	return fail
}

func (c *stubWriteClient) callValues() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.calls))
	copy(out, c.calls)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, "condition not met in time")
}

const testDebounce = 20 * time.Millisecond

func TestOptimisticSetIsSynchronous(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	client := &stubWriteClient{}

	ctrl := NewProgressController(store, client, "a", models.DeptProduction, testDebounce, nil)
	defer ctrl.Close()

	ctrl.Set(70)
	// Visible immediately, before any write fires.
	require.Equal(t, 70, store.Get("a").Track(models.DeptProduction).Progress)
	require.Empty(t, client.callValues())
}

func TestOptimisticCommitLeavesValueInPlace(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	client := &stubWriteClient{}

	ctrl := NewProgressController(store, client, "a", models.DeptProduction, testDebounce, nil)
	defer ctrl.Close()

	ctrl.Set(70)
	waitFor(t, func() bool { return len(client.callValues()) == 1 })
	waitFor(t, func() bool { return !ctrl.Saving() })

	require.Equal(t, []int{70}, client.callValues())
	require.Equal(t, 70, store.Get("a").Track(models.DeptProduction).Progress)
}

func TestOptimisticRollbackOnFailure(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	client := &stubWriteClient{fail: errors.New("boom")}

	ctrl := NewProgressController(store, client, "a", models.DeptProduction, testDebounce, nil)
	defer ctrl.Close()

	require.Equal(t, 40, store.Get("a").Track(models.DeptProduction).Progress)

	ctrl.Set(70)
	require.Equal(t, 70, store.Get("a").Track(models.DeptProduction).Progress)

	waitFor(t, func() bool {
		return store.Get("a").Track(models.DeptProduction).Progress == 40
	})
	require.False(t, ctrl.Saving())
}

func TestOptimisticSupersedeCoalescesToOneWrite(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	client := &stubWriteClient{}

	ctrl := NewProgressController(store, client, "a", models.DeptProduction, testDebounce, nil)
	defer ctrl.Close()

	ctrl.Set(50)
	require.Equal(t, 50, store.Get("a").Track(models.DeptProduction).Progress)
	ctrl.Set(80)
	require.Equal(t, 80, store.Get("a").Track(models.DeptProduction).Progress)

	waitFor(t, func() bool { return len(client.callValues()) > 0 })
	waitFor(t, func() bool { return !ctrl.Saving() })

	// Exactly one write, for the final value.
	require.Equal(t, []int{80}, client.callValues())
	require.Equal(t, 80, store.Get("a").Track(models.DeptProduction).Progress)
}

func TestCancelledInFlightWriteDoesNotRollBack(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	respond := make(chan struct{})
	client := &stubWriteClient{respond: respond, honorCtx: true}

	ctrl := NewProgressController(store, client, "a", models.DeptProduction, testDebounce, nil)
	defer ctrl.Close()

	ctrl.Set(60)
	waitFor(t, func() bool { return len(client.callValues()) == 1 })

	// A newer edit cancels the write that is blocked in flight.
	ctrl.Set(90)
	waitFor(t, func() bool { return len(client.callValues()) == 2 })
	close(respond)

	waitFor(t, func() bool { return !ctrl.Saving() })
	require.Equal(t, []int{60, 90}, client.callValues())
	require.Equal(t, 90, store.Get("a").Track(models.DeptProduction).Progress)
}

func TestDeliveryControllerRollback(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	client := &stubWriteClient{fail: errors.New("rejected")}

	ctrl := NewDeliveryController(store, client, "a", testDebounce, nil)
	defer ctrl.Close()

	ctrl.Set(5)
	require.Equal(t, 5, store.Get("a").DeliveredQuantity)

	waitFor(t, func() bool { return store.Get("a").DeliveredQuantity == 0 })
}

func TestClosedControllerIgnoresEdits(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})
	client := &stubWriteClient{}

	ctrl := NewProgressController(store, client, "a", models.DeptProduction, testDebounce, nil)
	ctrl.Close()

	ctrl.Set(99)
	require.Equal(t, 40, store.Get("a").Track(models.DeptProduction).Progress)
	time.Sleep(3 * testDebounce)
	require.Empty(t, client.callValues())
}
