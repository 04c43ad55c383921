package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"example.com/potrack/internal/events"
	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/metrics"
	"example.com/potrack/internal/models"

	"github.com/rs/zerolog/log"
)

// Coordinator lifecycle states
const (
	stateUninitialized = iota
	stateConnecting
	stateSubscribed
	stateClosed
)

// Coordinator owns one subscription to the shared PO channel and translates
// each named event into store mutations and notifications. Live sync is an
// enhancement: when no transport is available the coordinator goes inert
// instead of failing, and the app falls back to manual refetches.
type Coordinator struct {
	bus    messaging.EventBus
	store  *Store
	notes  *NotificationStore
	guard  *Guard
	userID string
	stats  *metrics.Metrics

	mu    sync.Mutex
	state int
	sub   messaging.Subscription
}

// NewCoordinator creates a coordinator. currentUserID is the viewer's
// identity, used to suppress notifications for the viewer's own track
// updates. stats may be nil.
func NewCoordinator(bus messaging.EventBus, store *Store, notes *NotificationStore, currentUserID string, stats *metrics.Metrics) *Coordinator {
	return &Coordinator{
		bus:    bus,
		store:  store,
		notes:  notes,
		guard:  NewGuard(DefaultDedupWindow),
		userID: currentUserID,
		stats:  stats,
	}
}

// Start subscribes to the shared channel and binds one handler per event
// name. With no bus configured it logs and returns nil, leaving the
// coordinator permanently inert for this lifetime.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateUninitialized {
		return nil
	}

	if c.bus == nil {
		log.Warn().Msg("No realtime transport configured, live updates disabled")
		c.state = stateClosed
		return nil
	}

	c.state = stateConnecting
	sub, err := c.bus.Subscribe(events.Channel)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to subscribe to realtime channel, live updates disabled")
		c.state = stateClosed
		return nil
	}
	c.sub = sub

	bind(sub, events.POCreated, c.handlePOCreated)
	bind(sub, events.TrackUpdated, c.handleTrackUpdated)
	bind(sub, events.IssueCreated, c.handleIssueCreated)
	bind(sub, events.IssueResolved, c.handleIssueResolved)
	bind(sub, events.ItemDelivered, c.handleItemDelivered)
	bind(sub, events.POStatusChanged, c.handlePOStatusChanged)
	bind(sub, events.POUrgentChanged, c.handlePOUrgentChanged)
	bind(sub, events.FinanceUpdated, c.handleFinanceUpdated)

	c.state = stateSubscribed
	log.Info().Str("channel", events.Channel).Msg("Realtime sync subscribed")
	return nil
}

// Stop unbinds all handlers and closes the subscription. Safe to call even
// if the subscription never completed, and safe to call twice.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		for _, event := range []string{
			events.POCreated, events.TrackUpdated,
			events.IssueCreated, events.IssueResolved,
			events.ItemDelivered, events.POStatusChanged,
			events.POUrgentChanged, events.FinanceUpdated,
		} {
			c.sub.Off(event)
		}
		if err := c.sub.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close realtime subscription")
		}
		c.sub = nil
	}
	c.state = stateClosed
}

// bind wraps a typed handler with JSON decoding and panic containment so a
// malformed payload or a handler bug never takes down the subscription or
// the other handlers.
func bind[T any](sub messaging.Subscription, event string, handle func(payload *T)) {
	sub.On(event, func(data json.RawMessage) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("event", event).
					Interface("panic", r).
					Msg("Realtime handler panicked")
			}
		}()

		var payload T
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Error().Err(err).Str("event", event).Msg("Malformed realtime event payload")
			return
		}
		handle(&payload)
	})
}

func (c *Coordinator) applied(event string) {
	if c.stats != nil {
		c.stats.IncrementCounter(metrics.EventsApplied)
	}
	log.Debug().Str("event", event).Msg("Realtime event applied")
}

func (c *Coordinator) deduped(event string) {
	if c.stats != nil {
		c.stats.IncrementCounter(metrics.EventsDeduped)
	}
	log.Debug().Str("event", event).Msg("Duplicate realtime event suppressed")
}

func (c *Coordinator) notify(input NotificationInput, dedupKey string) {
	if c.notes.Add(input, dedupKey) && c.stats != nil {
		c.stats.IncrementCounter(metrics.NotificationsAdded)
	}
}

func (c *Coordinator) handlePOCreated(p *events.POCreatedPayload) {
	key := events.FactKeyPOCreated(p.PONumber)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.POCreated)
		return
	}

	c.store.PrependMany(p.Items)
	c.applied(events.POCreated)

	c.notify(NotificationInput{
		Type:    NotifySystem,
		Title:   fmt.Sprintf("New purchase order %s", p.PONumber),
		Message: fmt.Sprintf("%s created PO %s for %s with %d items", p.ActorName, p.PONumber, p.ClientName, len(p.Items)),
	}, key)
}

func (c *Coordinator) handleTrackUpdated(p *events.TrackUpdatedPayload) {
	key := events.FactKeyTrackUpdated(p.ItemID, p.TrackDepartment, p.NewProgress)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.TrackUpdated)
		return
	}

	track := p.Track
	c.store.PatchTrack(p.ItemID, p.TrackDepartment, TrackPatch{
		Progress:      &track.Progress,
		UpdatedByID:   &track.UpdatedByID,
		UpdatedByName: &track.UpdatedByName,
		UpdatedAt:     &track.UpdatedAt,
		Note:          &track.Note,
	})
	c.applied(events.TrackUpdated)

	// The viewer already watched their own slider move.
	if p.ActorID == c.userID {
		return
	}

	c.notify(NotificationInput{
		Type:     NotifyProgress,
		Title:    fmt.Sprintf("%s progress on %s", p.TrackDepartment, p.ItemName),
		Message:  fmt.Sprintf("%s moved %s from %d%% to %d%%", p.ActorName, p.TrackDepartment, p.OldProgress, p.NewProgress),
		ItemName: p.ItemName,
	}, key)
}

func (c *Coordinator) handleIssueCreated(p *events.IssuePayload) {
	key := events.FactKeyIssue(events.IssueCreated, p.Issue.ID)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.IssueCreated)
		return
	}

	c.store.UpsertIssue(p.ItemID, p.Issue)
	c.applied(events.IssueCreated)

	c.notify(NotificationInput{
		Type:     NotifyIssue,
		Title:    fmt.Sprintf("Issue on %s", p.ItemName),
		Message:  fmt.Sprintf("%s reported: %s (%s priority)", p.ActorName, p.Issue.Title, p.Issue.Priority),
		ItemName: p.ItemName,
	}, key)
}

func (c *Coordinator) handleIssueResolved(p *events.IssuePayload) {
	key := events.FactKeyIssue(events.IssueResolved, p.Issue.ID)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.IssueResolved)
		return
	}

	issue := p.Issue
	issue.Status = models.IssueStatusResolved
	c.store.UpsertIssue(p.ItemID, issue)
	c.applied(events.IssueResolved)

	c.notify(NotificationInput{
		Type:     NotifyIssue,
		Title:    fmt.Sprintf("Issue resolved on %s", p.ItemName),
		Message:  fmt.Sprintf("%s resolved: %s", p.ActorName, p.Issue.Title),
		ItemName: p.ItemName,
	}, key)
}

func (c *Coordinator) handleItemDelivered(p *events.ItemDeliveredPayload) {
	key := events.FactKeyItemDelivered(p.ItemID, p.DeliveredQuantity)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.ItemDelivered)
		return
	}

	qty := p.DeliveredQuantity
	delivered := p.Delivered
	c.store.PatchItem(p.ItemID, ItemPatch{
		DeliveredQuantity: &qty,
		Delivered:         &delivered,
	})
	c.applied(events.ItemDelivered)

	c.notify(NotificationInput{
		Type:     NotifyDelivery,
		Title:    fmt.Sprintf("Delivery on %s", p.ItemName),
		Message:  fmt.Sprintf("%s recorded %d/%d delivered for %s", p.ActorName, p.DeliveredQuantity, p.Quantity, p.ItemName),
		ItemName: p.ItemName,
	}, key)
}

func (c *Coordinator) handlePOStatusChanged(p *events.POStatusPayload) {
	key := events.FactKeyPOStatus(p.POID, p.NewStatus)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.POStatusChanged)
		return
	}

	if !models.IsTerminalStatus(p.NewStatus) {
		return
	}

	removed := c.store.RemoveByParent(p.POID)
	c.applied(events.POStatusChanged)
	if removed == 0 {
		return
	}

	c.notify(NotificationInput{
		Type:    NotifySystem,
		Title:   fmt.Sprintf("PO %s %s", p.PONumber, p.NewStatus),
		Message: fmt.Sprintf("%s marked PO %s as %s, %d items removed from the board", p.ActorName, p.PONumber, p.NewStatus, removed),
	}, key)
}

func (c *Coordinator) handlePOUrgentChanged(p *events.POUrgentPayload) {
	key := events.FactKeyPOUrgent(p.POID)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.POUrgentChanged)
		return
	}

	urgent := p.IsUrgent
	for _, id := range c.store.IDsForPOID(p.POID) {
		c.store.PatchItem(id, ItemPatch{PO: &POPatch{IsUrgent: &urgent}})
	}
	c.applied(events.POUrgentChanged)

	if !p.IsUrgent {
		return
	}

	c.notify(NotificationInput{
		Type:    NotifySystem,
		Title:   fmt.Sprintf("PO %s marked urgent", p.PONumber),
		Message: fmt.Sprintf("%s flagged PO %s as urgent", p.ActorName, p.PONumber),
	}, key)
}

func (c *Coordinator) handleFinanceUpdated(p *events.FinanceUpdatedPayload) {
	key := events.FactKeyFinance(p.PONumber, p.Action)
	if !c.guard.MarkProcessed(key) {
		c.deduped(events.FinanceUpdated)
		return
	}

	paid := p.IsPaid
	for _, id := range c.store.IDsForPONumber(p.PONumber) {
		c.store.PatchItem(id, ItemPatch{PO: &POPatch{IsPaid: &paid}})
	}
	c.applied(events.FinanceUpdated)

	var message string
	switch p.Action {
	case events.FinancePaid:
		message = fmt.Sprintf("%s marked PO %s as paid", p.ActorName, p.PONumber)
	case events.FinanceUnpaid:
		message = fmt.Sprintf("%s reverted payment on PO %s", p.ActorName, p.PONumber)
	case events.FinanceInvoiced:
		message = fmt.Sprintf("%s invoiced PO %s", p.ActorName, p.PONumber)
	case events.FinanceUninvoice:
		message = fmt.Sprintf("%s withdrew the invoice for PO %s", p.ActorName, p.PONumber)
	default:
		message = fmt.Sprintf("%s updated finance status on PO %s", p.ActorName, p.PONumber)
	}

	c.notify(NotificationInput{
		Type:    NotifySystem,
		Title:   fmt.Sprintf("Finance update on PO %s", p.PONumber),
		Message: message,
	}, key)
}
