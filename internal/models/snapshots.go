package models

import "time"

// The snapshot types below are the denormalized wire shapes carried by
// realtime events and held in the client-side store. Items always travel
// with their PO context embedded so no follow-up fetch is needed.

// POSummary is the embedded purchase-order context on a work item snapshot
type POSummary struct {
	ID           string     `json:"id"`
	PONumber     string     `json:"po_number"`
	ClientName   string     `json:"client_name"`
	OrderDate    *time.Time `json:"order_date"`
	DeliveryDate *time.Time `json:"delivery_date"`
	IsUrgent     bool       `json:"is_urgent"`
	IsOutsourced bool       `json:"is_outsourced"`
	IsPaid       bool       `json:"is_paid"`
	Status       string     `json:"status"`
}

// TrackSnapshot mirrors ProgressTrack on the wire
type TrackSnapshot struct {
	ID            string    `json:"id"`
	Department    string    `json:"department"`
	Progress      int       `json:"progress"`
	UpdatedByID   string    `json:"updated_by_id"`
	UpdatedByName string    `json:"updated_by_name"`
	UpdatedAt     time.Time `json:"updated_at"`
	Note          string    `json:"note"`
}

// IssueSnapshot mirrors Issue on the wire
type IssueSnapshot struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	Priority      string     `json:"priority"`
	Status        string     `json:"status"`
	CreatedByID   string     `json:"created_by_id"`
	CreatedByName string     `json:"created_by_name"`
	ResolvedByID  *string    `json:"resolved_by_id"`
	ResolvedAt    *time.Time `json:"resolved_at"`
}

// ItemSnapshot is the full denormalized work item as seen by clients
type ItemSnapshot struct {
	ID                string          `json:"id"`
	POID              string          `json:"po_id"`
	Name              string          `json:"name"`
	Specification     string          `json:"specification"`
	Quantity          int             `json:"quantity"`
	Unit              string          `json:"unit"`
	DeliveredQuantity int             `json:"delivered_quantity"`
	Delivered         bool            `json:"delivered"`
	DeliveredAt       *time.Time      `json:"delivered_at"`
	PO                POSummary       `json:"po"`
	Tracks            []TrackSnapshot `json:"tracks"`
	Issues            []IssueSnapshot `json:"issues"`
}

// Clone returns a deep copy of the snapshot. Store reads hand out copies
// so callers can never mutate store state behind its back.
func (s *ItemSnapshot) Clone() *ItemSnapshot {
	out := *s
	out.Tracks = make([]TrackSnapshot, len(s.Tracks))
	copy(out.Tracks, s.Tracks)
	out.Issues = make([]IssueSnapshot, len(s.Issues))
	copy(out.Issues, s.Issues)
	return &out
}

// Track returns the track for a department, or nil if the item has none.
func (s *ItemSnapshot) Track(department string) *TrackSnapshot {
	for i := range s.Tracks {
		if s.Tracks[i].Department == department {
			return &s.Tracks[i]
		}
	}
	return nil
}

// SnapshotPO builds the embedded summary from a purchase order row.
func SnapshotPO(po *PurchaseOrder) POSummary {
	return POSummary{
		ID:           po.ID.String(),
		PONumber:     po.PONumber,
		ClientName:   po.ClientName,
		OrderDate:    po.OrderDate,
		DeliveryDate: po.DeliveryDate,
		IsUrgent:     po.IsUrgent,
		IsOutsourced: po.IsOutsourced,
		IsPaid:       po.IsPaid,
		Status:       po.Status,
	}
}

// SnapshotTrack builds the wire shape from a progress track row.
func SnapshotTrack(t *ProgressTrack) TrackSnapshot {
	snap := TrackSnapshot{
		ID:            t.ID.String(),
		Department:    t.Department,
		Progress:      t.Progress,
		UpdatedByName: t.UpdatedByName,
		UpdatedAt:     t.UpdatedAt,
		Note:          t.Note,
	}
	if t.UpdatedByID != nil {
		snap.UpdatedByID = t.UpdatedByID.String()
	}
	return snap
}

// SnapshotIssue builds the wire shape from an issue row.
func SnapshotIssue(is *Issue) IssueSnapshot {
	snap := IssueSnapshot{
		ID:            is.ID.String(),
		Title:         is.Title,
		Description:   is.Description,
		Priority:      is.Priority,
		Status:        is.Status,
		CreatedByID:   is.CreatedByID.String(),
		CreatedByName: is.CreatedByName,
		ResolvedAt:    is.ResolvedAt,
	}
	if is.ResolvedByID != nil {
		id := is.ResolvedByID.String()
		snap.ResolvedByID = &id
	}
	return snap
}

// SnapshotItem builds the full denormalized item, embedding the PO summary
// and the item's tracks and issues.
func SnapshotItem(item *WorkItem, po *PurchaseOrder) *ItemSnapshot {
	snap := &ItemSnapshot{
		ID:                item.ID.String(),
		POID:              item.POID.String(),
		Name:              item.Name,
		Specification:     item.Specification,
		Quantity:          item.Quantity,
		Unit:              item.Unit,
		DeliveredQuantity: item.DeliveredQuantity,
		Delivered:         item.Delivered,
		DeliveredAt:       item.DeliveredAt,
		PO:                SnapshotPO(po),
		Tracks:            make([]TrackSnapshot, 0, len(item.Tracks)),
		Issues:            make([]IssueSnapshot, 0, len(item.Issues)),
	}
	for i := range item.Tracks {
		snap.Tracks = append(snap.Tracks, SnapshotTrack(&item.Tracks[i]))
	}
	for i := range item.Issues {
		snap.Issues = append(snap.Issues, SnapshotIssue(&item.Issues[i]))
	}
	return snap
}
