package repositories

import (
	"context"
	"time"

	"example.com/potrack/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// PurchaseOrderRepository provides access to purchase orders
type PurchaseOrderRepository struct {
	db         *gorm.DB // Write database
	readOnlyDB *gorm.DB // Read-only database
}

// NewPurchaseOrderRepository creates a new purchase order repository
func NewPurchaseOrderRepository(db *gorm.DB, readOnlyDB *gorm.DB) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create persists a purchase order with its items and tracks in one
// transaction
func (r *PurchaseOrderRepository) Create(ctx context.Context, po *models.PurchaseOrder) error {
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return errors.Wrap(err, "failed to create purchase order")
	}
	return nil
}

// GetByID gets a purchase order by id
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.readOnlyDB.WithContext(ctx).First(&po, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get purchase order by id")
	}
	return &po, nil
}

// GetByNumber gets a purchase order by its PO number
func (r *PurchaseOrderRepository) GetByNumber(ctx context.Context, poNumber string) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	err := r.readOnlyDB.WithContext(ctx).Where("po_number = ?", poNumber).First(&po).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get purchase order by number")
	}
	return &po, nil
}

// UpdateStatus sets the status of a purchase order
func (r *PurchaseOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	err := r.db.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Update("status", status).Error
	return errors.Wrap(err, "failed to update purchase order status")
}

// SetUrgent sets the urgent flag of a purchase order
func (r *PurchaseOrderRepository) SetUrgent(ctx context.Context, id uuid.UUID, urgent bool) error {
	err := r.db.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Update("is_urgent", urgent).Error
	return errors.Wrap(err, "failed to update purchase order urgent flag")
}

// SetFinance sets the paid and invoiced flags of a purchase order
func (r *PurchaseOrderRepository) SetFinance(ctx context.Context, id uuid.UUID, isPaid, isInvoiced bool) error {
	err := r.db.WithContext(ctx).Model(&models.PurchaseOrder{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_paid":     isPaid,
			"is_invoiced": isInvoiced,
		}).Error
	return errors.Wrap(err, "failed to update purchase order finance flags")
}

// WorkItemRepository provides access to work items
type WorkItemRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewWorkItemRepository creates a new work item repository
func NewWorkItemRepository(db *gorm.DB, readOnlyDB *gorm.DB) *WorkItemRepository {
	return &WorkItemRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByID gets a work item with its tracks, issues and parent PO
func (r *WorkItemRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WorkItem, error) {
	var item models.WorkItem
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Tracks").
		Preload("Issues").
		Preload("PurchaseOrder").
		First(&item, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get work item by id")
	}
	return &item, nil
}

// ListActive lists items of non-terminal purchase orders, newest PO first
func (r *WorkItemRepository) ListActive(ctx context.Context) ([]models.WorkItem, error) {
	var items []models.WorkItem
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Tracks").
		Preload("Issues").
		Preload("PurchaseOrder").
		Joins("JOIN purchase_orders ON purchase_orders.id = work_items.po_id").
		Where("purchase_orders.status NOT IN ?", []string{models.POStatusCancelled, models.POStatusArchived}).
		Where("purchase_orders.deleted_at IS NULL").
		Order("purchase_orders.created_at DESC, work_items.created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active work items")
	}
	return items, nil
}

// ListByPO lists items belonging to one purchase order
func (r *WorkItemRepository) ListByPO(ctx context.Context, poID uuid.UUID) ([]models.WorkItem, error) {
	var items []models.WorkItem
	err := r.readOnlyDB.WithContext(ctx).
		Preload("Tracks").
		Preload("Issues").
		Where("po_id = ?", poID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list work items by purchase order")
	}
	return items, nil
}

// UpdateDelivery sets the delivered quantity and derived delivered state
func (r *WorkItemRepository) UpdateDelivery(ctx context.Context, id uuid.UUID, deliveredQuantity int, delivered bool, deliveredAt *time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.WorkItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivered_quantity": deliveredQuantity,
			"delivered":          delivered,
			"delivered_at":       deliveredAt,
		}).Error
	return errors.Wrap(err, "failed to update work item delivery")
}

// ProgressTrackRepository provides access to progress tracks
type ProgressTrackRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewProgressTrackRepository creates a new progress track repository
func NewProgressTrackRepository(db *gorm.DB, readOnlyDB *gorm.DB) *ProgressTrackRepository {
	return &ProgressTrackRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// GetByItemAndDepartment gets the single track for a department on an item
func (r *ProgressTrackRepository) GetByItemAndDepartment(ctx context.Context, itemID uuid.UUID, department string) (*models.ProgressTrack, error) {
	var track models.ProgressTrack
	err := r.readOnlyDB.WithContext(ctx).
		Where("item_id = ? AND department = ?", itemID, department).
		First(&track).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get progress track")
	}
	return &track, nil
}

// UpdateProgress sets progress, updater identity and note on a track
func (r *ProgressTrackRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, updatedByID uuid.UUID, updatedByName, note string) error {
	updates := map[string]interface{}{
		"progress":        progress,
		"updated_by_id":   updatedByID,
		"updated_by_name": updatedByName,
	}
	if note != "" {
		updates["note"] = note
	}
	err := r.db.WithContext(ctx).Model(&models.ProgressTrack{}).
		Where("id = ?", id).
		Updates(updates).Error
	return errors.Wrap(err, "failed to update progress track")
}

// IssueRepository provides access to issues
type IssueRepository struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
}

// NewIssueRepository creates a new issue repository
func NewIssueRepository(db *gorm.DB, readOnlyDB *gorm.DB) *IssueRepository {
	return &IssueRepository{
		db:         db,
		readOnlyDB: readOnlyDB,
	}
}

// Create persists an issue
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	if err := r.db.WithContext(ctx).Create(issue).Error; err != nil {
		return errors.Wrap(err, "failed to create issue")
	}
	return nil
}

// GetByID gets an issue by id
func (r *IssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	err := r.readOnlyDB.WithContext(ctx).First(&issue, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get issue by id")
	}
	return &issue, nil
}

// Resolve marks an issue resolved with the resolver identity
func (r *IssueRepository) Resolve(ctx context.Context, id uuid.UUID, resolvedByID uuid.UUID, resolvedAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.Issue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         models.IssueStatusResolved,
			"resolved_by_id": resolvedByID,
			"resolved_at":    resolvedAt,
		}).Error
	return errors.Wrap(err, "failed to resolve issue")
}
