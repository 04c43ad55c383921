// Package events defines the realtime event contract shared by the
// publishing service and the client sync layer: the channel name, the
// named event payloads, and the deduplication fact keys.
package events

import (
	"encoding/json"
	"fmt"

	"example.com/potrack/internal/models"
)

// Channel is the single shared pub/sub channel all PO events travel on.
const Channel = "po-updates"

// Event names
const (
	POCreated       = "po.created"
	TrackUpdated    = "track.updated"
	IssueCreated    = "issue.created"
	IssueResolved   = "issue.resolved"
	ItemDelivered   = "item.delivered"
	POStatusChanged = "po.status_changed"
	POUrgentChanged = "po.urgent_changed"
	FinanceUpdated  = "finance.updated"
)

// Envelope is the common wire structure for every event on the channel
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// POCreatedPayload carries the full denormalized item batch so clients
// need no follow-up fetch
type POCreatedPayload struct {
	ActorName  string                 `json:"actorName"`
	PONumber   string                 `json:"poNumber"`
	ClientName string                 `json:"clientName"`
	Items      []*models.ItemSnapshot `json:"items"`
}

// TrackUpdatedPayload announces a department progress change
type TrackUpdatedPayload struct {
	ActorID         string               `json:"actorId"`
	ActorName       string               `json:"actorName"`
	PONumber        string               `json:"poNumber"`
	ItemID          string               `json:"itemId"`
	ItemName        string               `json:"itemName"`
	TrackDepartment string               `json:"trackDepartment"`
	OldProgress     int                  `json:"oldProgress"`
	NewProgress     int                  `json:"newProgress"`
	Track           models.TrackSnapshot `json:"track"`
}

// IssuePayload announces an issue created or resolved; both arrive with
// the same shape and are applied with upsert semantics
type IssuePayload struct {
	ActorName string               `json:"actorName"`
	PONumber  string               `json:"poNumber"`
	ItemID    string               `json:"itemId"`
	ItemName  string               `json:"itemName"`
	Issue     models.IssueSnapshot `json:"issue"`
}

// ItemDeliveredPayload announces a delivered-quantity change
type ItemDeliveredPayload struct {
	ActorName         string `json:"actorName"`
	PONumber          string `json:"poNumber"`
	ItemID            string `json:"itemId"`
	ItemName          string `json:"itemName"`
	DeliveredQuantity int    `json:"deliveredQuantity"`
	Quantity          int    `json:"quantity"`
	Delivered         bool   `json:"delivered"`
}

// POStatusPayload announces a purchase-order status transition
type POStatusPayload struct {
	ActorName string `json:"actorName"`
	POID      string `json:"poId"`
	PONumber  string `json:"poNumber"`
	NewStatus string `json:"newStatus"`
}

// POUrgentPayload announces an urgent-flag toggle
type POUrgentPayload struct {
	ActorName string `json:"actorName"`
	POID      string `json:"poId"`
	PONumber  string `json:"poNumber"`
	IsUrgent  bool   `json:"isUrgent"`
}

// Finance actions carried by FinanceUpdatedPayload
const (
	FinancePaid      = "paid"
	FinanceUnpaid    = "unpaid"
	FinanceInvoiced  = "invoiced"
	FinanceUninvoice = "uninvoiced"
)

// FinanceUpdatedPayload announces a paid/invoiced flag change
type FinanceUpdatedPayload struct {
	ActorName string `json:"actorName"`
	PONumber  string `json:"poNumber"`
	Action    string `json:"action"`
	IsPaid    bool   `json:"isPaid"`
}

// Fact keys identify the fact an event announces, never its delivery.
// Two broadcasts of the same fact must collide on the same key, so keys
// deliberately exclude timestamps and actors. Every constructor prefixes
// its event name so distinct event kinds can never produce the same key.

// FactKeyPOCreated keys a new purchase order by its number.
func FactKeyPOCreated(poNumber string) string {
	return fmt.Sprintf("%s:%s", POCreated, poNumber)
}

// FactKeyTrackUpdated keys a progress change by item, department and the
// new value.
func FactKeyTrackUpdated(itemID, department string, newProgress int) string {
	return fmt.Sprintf("%s:%s:%s:%d", TrackUpdated, itemID, department, newProgress)
}

// FactKeyIssue keys issue creation and resolution by the issue id.
func FactKeyIssue(event, issueID string) string {
	return fmt.Sprintf("%s:%s", event, issueID)
}

// FactKeyItemDelivered keys a delivery by item and the new quantity.
func FactKeyItemDelivered(itemID string, deliveredQuantity int) string {
	return fmt.Sprintf("%s:%s:%d", ItemDelivered, itemID, deliveredQuantity)
}

// FactKeyPOStatus keys a status transition by PO and the new status.
func FactKeyPOStatus(poID, newStatus string) string {
	return fmt.Sprintf("%s:%s:%s", POStatusChanged, poID, newStatus)
}

// FactKeyPOUrgent keys an urgent toggle by PO.
func FactKeyPOUrgent(poID string) string {
	return fmt.Sprintf("%s:%s", POUrgentChanged, poID)
}

// FactKeyFinance keys a finance change by PO number and action.
func FactKeyFinance(poNumber, action string) string {
	return fmt.Sprintf("%s:%s:%s", FinanceUpdated, poNumber, action)
}
