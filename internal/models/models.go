package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Department tags for progress tracks. At most one track per department
// per work item.
const (
	DeptDrafting   = "drafting"
	DeptPurchasing = "purchasing"
	DeptProduction = "production"
	DeptQC         = "qc"
	DeptDelivery   = "delivery"
	DeptFinance    = "finance"
)

// Departments lists all department tags in display order.
var Departments = []string{
	DeptDrafting,
	DeptPurchasing,
	DeptProduction,
	DeptQC,
	DeptDelivery,
	DeptFinance,
}

// Purchase order statuses
const (
	POStatusActive    = "active"
	POStatusCompleted = "completed"
	POStatusCancelled = "cancelled"
	POStatusArchived  = "archived"
)

// IsTerminalStatus reports whether a PO status removes its items from
// active views.
func IsTerminalStatus(status string) bool {
	return status == POStatusCancelled || status == POStatusArchived
}

// Issue priorities and statuses
const (
	IssuePriorityHigh   = "high"
	IssuePriorityMedium = "medium"
	IssuePriorityLow    = "low"

	IssueStatusOpen     = "open"
	IssueStatusResolved = "resolved"
)

// PurchaseOrder represents a customer purchase order
type PurchaseOrder struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	PONumber     string         `gorm:"not null;uniqueIndex" json:"po_number"`
	ClientName   string         `gorm:"not null" json:"client_name"`
	OrderDate    *time.Time     `json:"order_date"`
	DeliveryDate *time.Time     `json:"delivery_date"`
	IsUrgent     bool           `gorm:"not null;default:false" json:"is_urgent"`
	IsOutsourced bool           `gorm:"not null;default:false" json:"is_outsourced"`
	IsPaid       bool           `gorm:"not null;default:false" json:"is_paid"`
	IsInvoiced   bool           `gorm:"not null;default:false" json:"is_invoiced"`
	Status       string         `gorm:"not null;default:'active'" json:"status"`
	Items        []WorkItem     `gorm:"foreignKey:POID" json:"-"`
}

// WorkItem is a line item of a purchase order tracked through
// departmental progress
type WorkItem struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
	POID              uuid.UUID       `gorm:"type:uuid;not null;index" json:"po_id"`
	Name              string          `gorm:"not null" json:"name"`
	Specification     string          `json:"specification"`
	Quantity          int             `gorm:"not null;default:1" json:"quantity"`
	Unit              string          `gorm:"not null;default:'pcs'" json:"unit"`
	DeliveredQuantity int             `gorm:"not null;default:0" json:"delivered_quantity"`
	Delivered         bool            `gorm:"not null;default:false" json:"delivered"`
	DeliveredAt       *time.Time      `json:"delivered_at"`
	PurchaseOrder     PurchaseOrder   `gorm:"foreignKey:POID" json:"-"`
	Tracks            []ProgressTrack `gorm:"foreignKey:ItemID" json:"-"`
	Issues            []Issue         `gorm:"foreignKey:ItemID" json:"-"`
}

// ProgressTrack is one department's completion percentage for a work item
type ProgressTrack struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	ItemID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:ux_item_department" json:"item_id"`
	Department    string         `gorm:"not null;uniqueIndex:ux_item_department" json:"department"`
	Progress      int            `gorm:"not null;default:0" json:"progress"`
	UpdatedByID   *uuid.UUID     `gorm:"type:uuid" json:"updated_by_id"`
	UpdatedByName string         `json:"updated_by_name"`
	Note          string         `json:"note"`
	WorkItem      WorkItem       `gorm:"foreignKey:ItemID" json:"-"`
}

// Issue is a reported problem against a work item
type Issue struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
	ItemID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"item_id"`
	Title         string         `gorm:"not null" json:"title"`
	Description   *string        `json:"description"`
	Priority      string         `gorm:"not null;default:'medium'" json:"priority"`
	Status        string         `gorm:"not null;default:'open'" json:"status"`
	CreatedByID   uuid.UUID      `gorm:"type:uuid;not null" json:"created_by_id"`
	CreatedByName string         `gorm:"not null" json:"created_by_name"`
	ResolvedByID  *uuid.UUID     `gorm:"type:uuid" json:"resolved_by_id"`
	ResolvedAt    *time.Time     `json:"resolved_at"`
	WorkItem      WorkItem       `gorm:"foreignKey:ItemID" json:"-"`
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&PurchaseOrder{},
		&WorkItem{},
		&ProgressTrack{},
		&Issue{},
	)

	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	return nil
}
