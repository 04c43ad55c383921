package realtime

import (
	"context"
	"sync"
	"time"

	"example.com/potrack/internal/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce is how long input must be quiet before the network write
// for a field fires. The visible value updates synchronously on every edit;
// only the write is coalesced.
const DefaultDebounce = 300 * time.Millisecond

// WriteClient issues the server writes behind optimistic edits. The
// controller only needs success or failure; it already holds the optimistic
// value locally.
type WriteClient interface {
	UpdateTrackProgress(ctx context.Context, itemID, department string, progress int, note string) error
	UpdateDeliveredQuantity(ctx context.Context, itemID string, quantity int) error
}

// FieldController drives optimistic updates for a single numeric field on a
// single entity: it writes the new value into the store immediately,
// debounces the network write, cancels a superseded in-flight write, and
// rolls the store back to the pre-edit value when the write fails.
//
// One controller owns one field-entity pair; edits to different fields or
// entities never interfere with each other.
type FieldController struct {
	store    *Store
	debounce time.Duration
	stats    *metrics.Metrics

	apply func(store *Store, value int)
	read  func(store *Store) (int, bool)
	write func(ctx context.Context, value int) error

	mu          sync.Mutex
	timer       *time.Timer
	cancel      context.CancelFunc
	generation  uint64
	baseline    int
	hasBaseline bool
	saving      bool
	closed      bool
}

// NewProgressController creates a controller for one department's progress
// track on one item. stats may be nil.
func NewProgressController(store *Store, client WriteClient, itemID, department string, debounce time.Duration, stats *metrics.Metrics) *FieldController {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FieldController{
		store:    store,
		debounce: debounce,
		stats:    stats,
		apply: func(s *Store, value int) {
			s.PatchTrack(itemID, department, TrackPatch{Progress: &value})
		},
		read: func(s *Store) (int, bool) {
			item := s.Get(itemID)
			if item == nil {
				return 0, false
			}
			track := item.Track(department)
			if track == nil {
				return 0, false
			}
			return track.Progress, true
		},
		write: func(ctx context.Context, value int) error {
			return client.UpdateTrackProgress(ctx, itemID, department, value, "")
		},
	}
}

// NewDeliveryController creates a controller for an item's delivered
// quantity. stats may be nil.
func NewDeliveryController(store *Store, client WriteClient, itemID string, debounce time.Duration, stats *metrics.Metrics) *FieldController {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FieldController{
		store:    store,
		debounce: debounce,
		stats:    stats,
		apply: func(s *Store, value int) {
			s.PatchItem(itemID, ItemPatch{DeliveredQuantity: &value})
		},
		read: func(s *Store) (int, bool) {
			item := s.Get(itemID)
			if item == nil {
				return 0, false
			}
			return item.DeliveredQuantity, true
		},
		write: func(ctx context.Context, value int) error {
			return client.UpdateDeliveredQuantity(ctx, itemID, value)
		},
	}
}

// Set records a user edit: the store is patched synchronously so the
// displayed value never lags, the pending write is rescheduled, and any
// write already in flight for this field is cancelled because the newer
// value supersedes it.
func (c *FieldController) Set(value int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	// The rollback target is the value before this editing burst started,
	// captured once and cleared when a write settles.
	if !c.hasBaseline {
		if current, ok := c.read(c.store); ok {
			c.baseline = current
			c.hasBaseline = true
		}
	}

	c.apply(c.store, value)

	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		c.fire(value)
	})
}

func (c *FieldController) fire(value int) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.generation++
	generation := c.generation
	c.saving = true
	c.mu.Unlock()

	if c.stats != nil {
		c.stats.IncrementCounter(metrics.OptimisticWrites)
	}
	err := c.write(ctx, value)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	// A newer edit owns the visible value now; this outcome is stale.
	if generation != c.generation {
		return
	}

	c.saving = false
	if c.cancel != nil {
		c.cancel = nil
	}

	switch {
	case err == nil:
		// The optimistic value is now presumed correct; the eventual
		// broadcast will reapply it, which is idempotent.
		c.hasBaseline = false
	case errors.Is(err, context.Canceled):
		// Superseded, not a failure. The newer write owns the store.
	default:
		log.Warn().Err(err).Int("value", value).Msg("Optimistic write failed, rolling back")
		if c.hasBaseline {
			c.apply(c.store, c.baseline)
			c.hasBaseline = false
		}
		if c.stats != nil {
			c.stats.IncrementCounter(metrics.OptimisticRollback)
		}
	}
}

// Saving reports whether a write for this field is in flight.
func (c *FieldController) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

// Close cancels the pending debounce and any in-flight write. The store is
// left as-is; a cancelled write never rolls back.
func (c *FieldController) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
