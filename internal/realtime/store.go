// Package realtime implements the client-side live view of work items:
// a normalized entity store, a bounded notification feed, event
// deduplication, the sync coordinator that applies broadcast events, and
// the optimistic controllers for user-initiated edits.
package realtime

import (
	"sync"
	"time"

	"example.com/potrack/internal/models"
)

// Store is the normalized client-side copy of all work items in the active
// view, keyed by id, with a separate ordering list (newest PO first).
//
// Every operation is synchronous, total and idempotent: reapplying the same
// patch yields the same state, and patches targeting ids that are not loaded
// are benign no-ops, because a filtered or paged view legitimately may not
// hold every entity the server broadcasts about.
type Store struct {
	mu    sync.RWMutex
	items map[string]*models.ItemSnapshot
	order []string
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{items: make(map[string]*models.ItemSnapshot)}
}

// TrackPatch carries partial progress-track fields. Nil fields are left
// untouched.
type TrackPatch struct {
	Progress      *int
	UpdatedByID   *string
	UpdatedByName *string
	UpdatedAt     *time.Time
	Note          *string
}

// POPatch carries partial fields of the embedded PO summary
type POPatch struct {
	IsUrgent *bool
	IsPaid   *bool
	Status   *string
}

// ItemPatch carries partial top-level item fields
type ItemPatch struct {
	DeliveredQuantity *int
	Delivered         *bool
	DeliveredAt       *time.Time
	PO                *POPatch
}

// ReplaceAll wholesale-replaces the store contents, used on initial load
// and refetch. Prior order is discarded.
func (s *Store) ReplaceAll(items []*models.ItemSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make(map[string]*models.ItemSnapshot, len(items))
	s.order = make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if _, exists := s.items[item.ID]; !exists {
			s.order = append(s.order, item.ID)
		}
		s.items[item.ID] = item.Clone()
	}
}

// PrependMany inserts a batch of new items at the head of the order,
// preserving batch order. An id that already exists is overwritten in place
// without moving its position.
func (s *Store) PrependMany(items []*models.ItemSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		if _, exists := s.items[item.ID]; !exists {
			head = append(head, item.ID)
		}
		s.items[item.ID] = item.Clone()
	}
	if len(head) > 0 {
		s.order = append(head, s.order...)
	}
}

// RemoveByParent removes every item whose parent PO id matches and returns
// how many were removed. No-op if none match.
func (s *Store) RemoveByParent(poID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		item := s.items[id]
		if item != nil && item.POID == poID {
			delete(s.items, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed
}

// PatchTrack merges fields into the one track matching department inside
// the given item. No-op if the item is not loaded or has no such track.
func (s *Store) PatchTrack(itemID, department string, patch TrackPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items[itemID]
	if item == nil {
		return
	}
	track := item.Track(department)
	if track == nil {
		return
	}

	if patch.Progress != nil {
		track.Progress = *patch.Progress
	}
	if patch.UpdatedByID != nil {
		track.UpdatedByID = *patch.UpdatedByID
	}
	if patch.UpdatedByName != nil {
		track.UpdatedByName = *patch.UpdatedByName
	}
	if patch.UpdatedAt != nil {
		track.UpdatedAt = *patch.UpdatedAt
	}
	if patch.Note != nil {
		track.Note = *patch.Note
	}
}

// PatchItem shallow-merges top-level fields, including the embedded PO
// summary, into an item. No-op if the item is not loaded.
func (s *Store) PatchItem(itemID string, patch ItemPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items[itemID]
	if item == nil {
		return
	}

	if patch.DeliveredQuantity != nil {
		item.DeliveredQuantity = *patch.DeliveredQuantity
	}
	if patch.Delivered != nil {
		item.Delivered = *patch.Delivered
	}
	if patch.DeliveredAt != nil {
		item.DeliveredAt = patch.DeliveredAt
	}
	if patch.PO != nil {
		if patch.PO.IsUrgent != nil {
			item.PO.IsUrgent = *patch.PO.IsUrgent
		}
		if patch.PO.IsPaid != nil {
			item.PO.IsPaid = *patch.PO.IsPaid
		}
		if patch.PO.Status != nil {
			item.PO.Status = *patch.PO.Status
		}
	}
}

// UpsertIssue replaces the issue with a matching id under the item, or
// appends it. No-op if the item is not loaded.
func (s *Store) UpsertIssue(itemID string, issue models.IssueSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := s.items[itemID]
	if item == nil {
		return
	}

	for i := range item.Issues {
		if item.Issues[i].ID == issue.ID {
			item.Issues[i] = issue
			return
		}
	}
	item.Issues = append(item.Issues, issue)
}

// Get returns a copy of the item, or nil if it is not loaded.
func (s *Store) Get(id string) *models.ItemSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.items[id]
	if item == nil {
		return nil
	}
	return item.Clone()
}

// OrderedIDs returns the current display order.
func (s *Store) OrderedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// List returns copies of all loaded items in display order.
func (s *Store) List() []*models.ItemSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ItemSnapshot, 0, len(s.order))
	for _, id := range s.order {
		if item := s.items[id]; item != nil {
			out = append(out, item.Clone())
		}
	}
	return out
}

// Len returns the number of loaded items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// IDsForPOID returns ids of loaded items belonging to the PO. The store
// keeps no secondary index by parent, a linear scan is fine at view sizes.
func (s *Store) IDsForPOID(poID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, id := range s.order {
		if item := s.items[id]; item != nil && item.POID == poID {
			out = append(out, id)
		}
	}
	return out
}

// IDsForPONumber returns ids of loaded items whose embedded summary carries
// the PO number.
func (s *Store) IDsForPONumber(poNumber string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, id := range s.order {
		if item := s.items[id]; item != nil && item.PO.PONumber == poNumber {
			out = append(out, id)
		}
	}
	return out
}
