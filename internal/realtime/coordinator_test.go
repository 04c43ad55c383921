package realtime

import (
	"context"
	"testing"

	"example.com/potrack/internal/events"
	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/models"

	"github.com/stretchr/testify/require"
)

const viewerID = "user-self"

func startCoordinator(t *testing.T) (*messaging.MemoryBus, *Store, *NotificationStore) {
	t.Helper()

	bus := messaging.NewMemoryBus()
	store := NewStore()
	notes := NewNotificationStore()

	coord := NewCoordinator(bus, store, notes, viewerID, nil)
	require.NoError(t, coord.Start())
	t.Cleanup(coord.Stop)

	return bus, store, notes
}

func publish(t *testing.T, bus *messaging.MemoryBus, event string, payload interface{}) {
	t.Helper()
	require.NoError(t, bus.Publish(context.Background(), events.Channel, event, payload))
}

func TestPOCreatedInjectsItemBatch(t *testing.T) {
	bus, store, notes := startCoordinator(t)

	publish(t, bus, events.POCreated, events.POCreatedPayload{
		ActorName:  "joan",
		PONumber:   "PO-200",
		ClientName: "Acme Fabrication",
		Items: []*models.ItemSnapshot{
			itemFixture("a", "po200", "PO-200"),
			itemFixture("b", "po200", "PO-200"),
			itemFixture("c", "po200", "PO-200"),
		},
	})

	require.Equal(t, []string{"a", "b", "c"}, store.OrderedIDs())
	for _, id := range []string{"a", "b", "c"} {
		require.NotNil(t, store.Get(id))
	}
	require.Equal(t, 1, notes.UnreadCount())
}

func TestDuplicateEventAppliedOnce(t *testing.T) {
	bus, store, notes := startCoordinator(t)

	payload := events.POCreatedPayload{
		ActorName: "joan",
		PONumber:  "PO-200",
		Items:     []*models.ItemSnapshot{itemFixture("a", "po200", "PO-200")},
	}
	publish(t, bus, events.POCreated, payload)
	publish(t, bus, events.POCreated, payload)

	require.Equal(t, []string{"a"}, store.OrderedIDs())
	require.Len(t, notes.List(), 1)
}

func TestTrackUpdateSelfSuppression(t *testing.T) {
	bus, store, notes := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	// The viewer's own update mutates the store but stays silent.
	publish(t, bus, events.TrackUpdated, events.TrackUpdatedPayload{
		ActorID:         viewerID,
		ActorName:       "me",
		ItemID:          "a",
		ItemName:        "Flange a",
		TrackDepartment: models.DeptProduction,
		OldProgress:     40,
		NewProgress:     60,
		Track:           models.TrackSnapshot{ID: "a-t1", Department: models.DeptProduction, Progress: 60},
	})

	require.Equal(t, 60, store.Get("a").Track(models.DeptProduction).Progress)
	require.Equal(t, 0, notes.UnreadCount())

	// Someone else's update does both.
	publish(t, bus, events.TrackUpdated, events.TrackUpdatedPayload{
		ActorID:         "user-other",
		ActorName:       "sam",
		ItemID:          "a",
		ItemName:        "Flange a",
		TrackDepartment: models.DeptProduction,
		OldProgress:     60,
		NewProgress:     80,
		Track:           models.TrackSnapshot{ID: "a-t1", Department: models.DeptProduction, Progress: 80},
	})

	require.Equal(t, 80, store.Get("a").Track(models.DeptProduction).Progress)
	require.Equal(t, 1, notes.UnreadCount())
}

func TestIssueResolvedForcesStatus(t *testing.T) {
	bus, store, _ := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	publish(t, bus, events.IssueCreated, events.IssuePayload{
		ActorName: "sam",
		ItemID:    "a",
		ItemName:  "Flange a",
		Issue: models.IssueSnapshot{
			ID:       "iss1",
			Title:    "Cracked weld",
			Priority: models.IssuePriorityHigh,
			Status:   models.IssueStatusOpen,
		},
	})
	require.Equal(t, models.IssueStatusOpen, store.Get("a").Issues[0].Status)

	publish(t, bus, events.IssueResolved, events.IssuePayload{
		ActorName: "sam",
		ItemID:    "a",
		ItemName:  "Flange a",
		Issue: models.IssueSnapshot{
			ID:       "iss1",
			Title:    "Cracked weld",
			Priority: models.IssuePriorityHigh,
			// Status deliberately left open; the handler forces resolved.
		},
	})

	issues := store.Get("a").Issues
	require.Len(t, issues, 1)
	require.Equal(t, models.IssueStatusResolved, issues[0].Status)
}

func TestItemDeliveredPatchesQuantity(t *testing.T) {
	bus, store, notes := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	publish(t, bus, events.ItemDelivered, events.ItemDeliveredPayload{
		ActorName:         "dispatch",
		ItemID:            "a",
		ItemName:          "Flange a",
		DeliveredQuantity: 10,
		Quantity:          10,
		Delivered:         true,
	})

	item := store.Get("a")
	require.Equal(t, 10, item.DeliveredQuantity)
	require.True(t, item.Delivered)
	require.Equal(t, 1, notes.UnreadCount())
}

func TestTerminalStatusRemovesItems(t *testing.T) {
	bus, store, notes := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("a", "po1", "PO-1"),
		itemFixture("b", "po2", "PO-2"),
	})

	// Non-terminal transition leaves the store alone and stays silent.
	publish(t, bus, events.POStatusChanged, events.POStatusPayload{
		ActorName: "admin",
		POID:      "po1",
		PONumber:  "PO-1",
		NewStatus: models.POStatusCompleted,
	})
	require.Equal(t, 2, store.Len())
	require.Equal(t, 0, notes.UnreadCount())

	publish(t, bus, events.POStatusChanged, events.POStatusPayload{
		ActorName: "admin",
		POID:      "po1",
		PONumber:  "PO-1",
		NewStatus: models.POStatusCancelled,
	})
	require.Equal(t, []string{"b"}, store.OrderedIDs())
	require.Equal(t, 1, notes.UnreadCount())
}

func TestUrgentToggleNotifiesOnlyWhenRaised(t *testing.T) {
	bus, store, notes := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("a", "po1", "PO-1"),
		itemFixture("b", "po1", "PO-1"),
		itemFixture("c", "po2", "PO-2"),
	})

	publish(t, bus, events.POUrgentChanged, events.POUrgentPayload{
		ActorName: "admin",
		POID:      "po1",
		PONumber:  "PO-1",
		IsUrgent:  true,
	})

	require.True(t, store.Get("a").PO.IsUrgent)
	require.True(t, store.Get("b").PO.IsUrgent)
	require.False(t, store.Get("c").PO.IsUrgent)
	require.Equal(t, 1, notes.UnreadCount())

	publish(t, bus, events.POUrgentChanged, events.POUrgentPayload{
		ActorName: "admin",
		POID:      "po1",
		PONumber:  "PO-1",
		IsUrgent:  false,
	})

	// Guard window still open for this PO, so the lowering is suppressed
	// as a redelivery of the same fact key; no extra notification either.
	require.Equal(t, 1, notes.UnreadCount())
}

func TestFinanceUpdateEndToEnd(t *testing.T) {
	bus, store, notes := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("a", "po100", "PO-100"),
		itemFixture("b", "po100", "PO-100"),
		itemFixture("c", "po2", "PO-2"),
	})

	publish(t, bus, events.FinanceUpdated, events.FinanceUpdatedPayload{
		ActorName: "finance",
		PONumber:  "PO-100",
		Action:    events.FinancePaid,
		IsPaid:    true,
	})

	require.True(t, store.Get("a").PO.IsPaid)
	require.True(t, store.Get("b").PO.IsPaid)
	require.False(t, store.Get("c").PO.IsPaid)

	list := notes.List()
	require.Len(t, list, 1)
	require.Contains(t, list[0].Title, "PO-100")
}

func TestMalformedPayloadDoesNotBreakSubsequentEvents(t *testing.T) {
	bus, store, _ := startCoordinator(t)
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	// Raw junk on a bound event name.
	require.NoError(t, bus.Publish(context.Background(), events.Channel, events.TrackUpdated, "not an object"))

	publish(t, bus, events.TrackUpdated, events.TrackUpdatedPayload{
		ActorID:         "user-other",
		ActorName:       "sam",
		ItemID:          "a",
		TrackDepartment: models.DeptProduction,
		NewProgress:     75,
		Track:           models.TrackSnapshot{Department: models.DeptProduction, Progress: 75},
	})

	require.Equal(t, 75, store.Get("a").Track(models.DeptProduction).Progress)
}

func TestCoordinatorWithoutTransportIsInert(t *testing.T) {
	store := NewStore()
	notes := NewNotificationStore()

	coord := NewCoordinator(nil, store, notes, viewerID, nil)
	require.NoError(t, coord.Start())
	require.NotPanics(t, coord.Stop)
	require.NotPanics(t, coord.Stop)
}

func TestStopUnbindsHandlers(t *testing.T) {
	bus := messaging.NewMemoryBus()
	store := NewStore()
	notes := NewNotificationStore()

	coord := NewCoordinator(bus, store, notes, viewerID, nil)
	require.NoError(t, coord.Start())
	coord.Stop()

	publish(t, bus, events.POCreated, events.POCreatedPayload{
		PONumber: "PO-9",
		Items:    []*models.ItemSnapshot{itemFixture("x", "po9", "PO-9")},
	})
	require.Equal(t, 0, store.Len())
}
