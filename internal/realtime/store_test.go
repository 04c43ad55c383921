package realtime

import (
	"testing"

	"example.com/potrack/internal/models"

	"github.com/stretchr/testify/require"
)

func itemFixture(id, poID, poNumber string) *models.ItemSnapshot {
	return &models.ItemSnapshot{
		ID:       id,
		POID:     poID,
		Name:     "Flange " + id,
		Quantity: 10,
		Unit:     "pcs",
		PO: models.POSummary{
			ID:         poID,
			PONumber:   poNumber,
			ClientName: "Acme Fabrication",
			Status:     models.POStatusActive,
		},
		Tracks: []models.TrackSnapshot{
			{ID: id + "-t1", Department: models.DeptProduction, Progress: 40},
			{ID: id + "-t2", Department: models.DeptQC, Progress: 0},
		},
	}
}

func TestReplaceAllClearsPriorOrder(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("a", "po1", "PO-1"),
		itemFixture("b", "po1", "PO-1"),
	})
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("c", "po2", "PO-2"),
	})

	require.Equal(t, []string{"c"}, store.OrderedIDs())
	require.Nil(t, store.Get("a"))
	require.NotNil(t, store.Get("c"))
}

func TestPrependManyKeepsBatchOrderAtHead(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("old", "po1", "PO-1")})

	store.PrependMany([]*models.ItemSnapshot{
		itemFixture("n1", "po2", "PO-2"),
		itemFixture("n2", "po2", "PO-2"),
		itemFixture("n3", "po2", "PO-2"),
	})

	require.Equal(t, []string{"n1", "n2", "n3", "old"}, store.OrderedIDs())
	for _, id := range []string{"n1", "n2", "n3"} {
		require.NotNil(t, store.Get(id))
	}
}

func TestPrependManyIntoEmptyStore(t *testing.T) {
	store := NewStore()
	store.PrependMany([]*models.ItemSnapshot{
		itemFixture("a", "po1", "PO-1"),
		itemFixture("b", "po1", "PO-1"),
		itemFixture("c", "po1", "PO-1"),
	})

	require.Len(t, store.OrderedIDs(), 3)
	require.Equal(t, []string{"a", "b", "c"}, store.OrderedIDs())
}

func TestPrependManyCollidingIDKeepsPosition(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("a", "po1", "PO-1"),
		itemFixture("b", "po1", "PO-1"),
	})

	updated := itemFixture("b", "po1", "PO-1")
	updated.Name = "Renamed"
	store.PrependMany([]*models.ItemSnapshot{updated})

	require.Equal(t, []string{"a", "b"}, store.OrderedIDs())
	require.Equal(t, "Renamed", store.Get("b").Name)
}

func TestRemoveByParentScoping(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{
		itemFixture("a", "po1", "PO-1"),
		itemFixture("b", "po10", "PO-10"),
		itemFixture("c", "po1", "PO-1"),
	})

	removed := store.RemoveByParent("po1")

	require.Equal(t, 2, removed)
	require.Equal(t, []string{"b"}, store.OrderedIDs())
	require.NotNil(t, store.Get("b"))

	// No-op when nothing matches
	require.Equal(t, 0, store.RemoveByParent("po-does-not-exist"))
}

func TestPatchTrackIsIdempotent(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	progress := 80
	name := "mary"
	patch := TrackPatch{Progress: &progress, UpdatedByName: &name}

	store.PatchTrack("a", models.DeptProduction, patch)
	first := store.Get("a")

	store.PatchTrack("a", models.DeptProduction, patch)
	second := store.Get("a")

	require.Equal(t, first, second)
	require.Equal(t, 80, second.Track(models.DeptProduction).Progress)
	require.Equal(t, "mary", second.Track(models.DeptProduction).UpdatedByName)
	// The other track is untouched
	require.Equal(t, 0, second.Track(models.DeptQC).Progress)
}

func TestPatchTrackMissingEntitiesAreNoOps(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	progress := 55
	require.NotPanics(t, func() {
		store.PatchTrack("missing-item", models.DeptProduction, TrackPatch{Progress: &progress})
		store.PatchTrack("a", "no-such-department", TrackPatch{Progress: &progress})
	})
	require.Equal(t, 40, store.Get("a").Track(models.DeptProduction).Progress)
}

func TestPatchItemMergesEmbeddedSummary(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	qty := 7
	delivered := false
	urgent := true
	store.PatchItem("a", ItemPatch{
		DeliveredQuantity: &qty,
		Delivered:         &delivered,
		PO:                &POPatch{IsUrgent: &urgent},
	})

	item := store.Get("a")
	require.Equal(t, 7, item.DeliveredQuantity)
	require.False(t, item.Delivered)
	require.True(t, item.PO.IsUrgent)
	// Unpatched summary fields survive
	require.Equal(t, "Acme Fabrication", item.PO.ClientName)

	// Missing id is a benign no-op
	require.NotPanics(t, func() {
		store.PatchItem("missing", ItemPatch{DeliveredQuantity: &qty})
	})
}

func TestUpsertIssueReplacesByID(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	store.UpsertIssue("a", models.IssueSnapshot{
		ID:       "iss1",
		Title:    "Surface finish out of spec",
		Priority: models.IssuePriorityHigh,
		Status:   models.IssueStatusOpen,
	})
	store.UpsertIssue("a", models.IssueSnapshot{
		ID:       "iss2",
		Title:    "Late material",
		Priority: models.IssuePriorityLow,
		Status:   models.IssueStatusOpen,
	})

	resolved := models.IssueSnapshot{
		ID:       "iss1",
		Title:    "Surface finish out of spec",
		Priority: models.IssuePriorityHigh,
		Status:   models.IssueStatusResolved,
	}
	store.UpsertIssue("a", resolved)

	item := store.Get("a")
	require.Len(t, item.Issues, 2)
	require.Equal(t, models.IssueStatusResolved, item.Issues[0].Status)
	require.Equal(t, "iss2", item.Issues[1].ID)

	// Missing item is a no-op
	store.UpsertIssue("missing", resolved)
	require.Nil(t, store.Get("missing"))
	require.Len(t, store.Get("a").Issues, 2)
}

func TestStoreReadsReturnCopies(t *testing.T) {
	store := NewStore()
	store.ReplaceAll([]*models.ItemSnapshot{itemFixture("a", "po1", "PO-1")})

	item := store.Get("a")
	item.Name = "mutated"
	item.Tracks[0].Progress = 99

	fresh := store.Get("a")
	require.Equal(t, "Flange a", fresh.Name)
	require.Equal(t, 40, fresh.Track(models.DeptProduction).Progress)
}
