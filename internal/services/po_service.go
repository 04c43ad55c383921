package services

import (
	"context"
	"time"

	"example.com/potrack/internal/cache"
	"example.com/potrack/internal/events"
	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/metrics"
	"example.com/potrack/internal/models"
	"example.com/potrack/internal/repositories"
	"example.com/potrack/internal/search"
	"example.com/potrack/internal/tracing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Repository interfaces consumed by the service. The concrete types in
// the repositories package satisfy these; tests substitute mocks.

type purchaseOrderRepo interface {
	Create(ctx context.Context, po *models.PurchaseOrder) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	GetByNumber(ctx context.Context, poNumber string) (*models.PurchaseOrder, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SetUrgent(ctx context.Context, id uuid.UUID, urgent bool) error
	SetFinance(ctx context.Context, id uuid.UUID, isPaid, isInvoiced bool) error
}

type workItemRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.WorkItem, error)
	ListActive(ctx context.Context) ([]models.WorkItem, error)
	ListByPO(ctx context.Context, poID uuid.UUID) ([]models.WorkItem, error)
	UpdateDelivery(ctx context.Context, id uuid.UUID, deliveredQuantity int, delivered bool, deliveredAt *time.Time) error
}

type progressTrackRepo interface {
	GetByItemAndDepartment(ctx context.Context, itemID uuid.UUID, department string) (*models.ProgressTrack, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, updatedByID uuid.UUID, updatedByName, note string) error
}

type issueRepo interface {
	Create(ctx context.Context, issue *models.Issue) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedByID uuid.UUID, resolvedAt time.Time) error
}

type activityIndexer interface {
	IndexActivity(ctx context.Context, activity *search.Activity) error
}

// Actor identifies the user performing an operation
type Actor struct {
	ID   uuid.UUID
	Name string
}

// POService handles purchase-order business logic. Every successful write
// broadcasts an event on the realtime channel and records an activity
// entry; both are best-effort and never fail the operation.
type POService struct {
	db         *gorm.DB
	readOnlyDB *gorm.DB
	poRepo     purchaseOrderRepo
	itemRepo   workItemRepo
	trackRepo  progressTrackRepo
	issueRepo  issueRepo
	cache      *cache.RedisCache
	bus        messaging.EventBus
	indexer    activityIndexer
	tracer     tracing.Tracer
	stats      *metrics.Metrics
}

// activeItemsCacheKey caches the denormalized active-items list between
// writes; every published event invalidates it
const activeItemsCacheKey = "items:active"

const activeItemsCacheTTL = 30 * time.Second

// NewPOService creates a new purchase-order service
func NewPOService(
	db *gorm.DB,
	readOnlyDB *gorm.DB,
	redisCache *cache.RedisCache,
	bus messaging.EventBus,
	elasticClient *search.ElasticClient,
	tracer tracing.Tracer,
	stats *metrics.Metrics,
) *POService {
	s := &POService{
		db:         db,
		readOnlyDB: readOnlyDB,
		poRepo:     repositories.NewPurchaseOrderRepository(db, readOnlyDB),
		itemRepo:   repositories.NewWorkItemRepository(db, readOnlyDB),
		trackRepo:  repositories.NewProgressTrackRepository(db, readOnlyDB),
		issueRepo:  repositories.NewIssueRepository(db, readOnlyDB),
		cache:      redisCache,
		bus:        bus,
		tracer:     tracer,
		stats:      stats,
	}
	if elasticClient != nil {
		s.indexer = elasticClient
	}
	return s
}

// CreateWorkItemInput is one line item of a new purchase order
type CreateWorkItemInput struct {
	Name          string `json:"name" binding:"required"`
	Specification string `json:"specification"`
	Quantity      int    `json:"quantity"`
	Unit          string `json:"unit"`
}

// CreatePurchaseOrderInput is the request to create a purchase order
type CreatePurchaseOrderInput struct {
	PONumber     string                `json:"po_number" binding:"required"`
	ClientName   string                `json:"client_name" binding:"required"`
	OrderDate    *time.Time            `json:"order_date"`
	DeliveryDate *time.Time            `json:"delivery_date"`
	IsUrgent     bool                  `json:"is_urgent"`
	IsOutsourced bool                  `json:"is_outsourced"`
	Items        []CreateWorkItemInput `json:"items" binding:"required"`
}

// ListWorkItems returns the denormalized snapshots of every item on a
// non-terminal purchase order, newest PO first
func (s *POService) ListWorkItems(ctx context.Context) ([]*models.ItemSnapshot, error) {
	txn := s.tracer.StartTransaction("list-work-items")
	defer s.tracer.EndTransaction(txn)

	if s.cache != nil {
		var cached []*models.ItemSnapshot
		if err := s.cache.Get(ctx, activeItemsCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	items, err := s.itemRepo.ListActive(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	snapshots := make([]*models.ItemSnapshot, 0, len(items))
	for i := range items {
		snapshots = append(snapshots, models.SnapshotItem(&items[i], &items[i].PurchaseOrder))
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, activeItemsCacheKey, snapshots, activeItemsCacheTTL); err != nil {
			log.Debug().Err(err).Msg("failed to cache active items")
		}
	}
	return snapshots, nil
}

// CreatePurchaseOrder persists a purchase order with its items, one
// zeroed progress track per department per item, and announces the
// full item batch
func (s *POService) CreatePurchaseOrder(ctx context.Context, input *CreatePurchaseOrderInput, actor Actor) (*models.PurchaseOrder, error) {
	txn := s.tracer.StartTransaction("create-purchase-order")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "po_number", input.PONumber)

	if len(input.Items) == 0 {
		return nil, errors.New("purchase order requires at least one item")
	}

	if existing, err := s.poRepo.GetByNumber(ctx, input.PONumber); err == nil && existing != nil {
		return nil, errors.Errorf("purchase order %s already exists", input.PONumber)
	}

	po := &models.PurchaseOrder{
		ID:           uuid.New(),
		PONumber:     input.PONumber,
		ClientName:   input.ClientName,
		OrderDate:    input.OrderDate,
		DeliveryDate: input.DeliveryDate,
		IsUrgent:     input.IsUrgent,
		IsOutsourced: input.IsOutsourced,
		Status:       models.POStatusActive,
	}

	for _, in := range input.Items {
		quantity := in.Quantity
		if quantity <= 0 {
			quantity = 1
		}
		unit := in.Unit
		if unit == "" {
			unit = "pcs"
		}

		item := models.WorkItem{
			ID:            uuid.New(),
			POID:          po.ID,
			Name:          in.Name,
			Specification: in.Specification,
			Quantity:      quantity,
			Unit:          unit,
		}
		for _, dept := range models.Departments {
			item.Tracks = append(item.Tracks, models.ProgressTrack{
				ID:         uuid.New(),
				ItemID:     item.ID,
				Department: dept,
			})
		}
		po.Items = append(po.Items, item)
	}

	if err := s.poRepo.Create(ctx, po); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	snapshots := make([]*models.ItemSnapshot, 0, len(po.Items))
	for i := range po.Items {
		snapshots = append(snapshots, models.SnapshotItem(&po.Items[i], po))
	}

	s.publish(ctx, events.POCreated, &events.POCreatedPayload{
		ActorName:  actor.Name,
		PONumber:   po.PONumber,
		ClientName: po.ClientName,
		Items:      snapshots,
	})
	s.index(ctx, &search.Activity{
		Event:     events.POCreated,
		PONumber:  po.PONumber,
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
		Detail:    po.ClientName,
	})

	return po, nil
}

// UpdateTrackProgress sets one department's progress on an item and
// announces the change with the previous value
func (s *POService) UpdateTrackProgress(ctx context.Context, itemID uuid.UUID, department string, progress int, note string, actor Actor) (*models.ProgressTrack, error) {
	txn := s.tracer.StartTransaction("update-track-progress")
	defer s.tracer.EndTransaction(txn)

	if progress < 0 || progress > 100 {
		return nil, errors.Errorf("progress %d out of range", progress)
	}

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	track, err := s.trackRepo.GetByItemAndDepartment(ctx, itemID, department)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	oldProgress := track.Progress

	if err := s.trackRepo.UpdateProgress(ctx, track.ID, progress, actor.ID, actor.Name, note); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	track.Progress = progress
	track.UpdatedByID = &actor.ID
	track.UpdatedByName = actor.Name
	track.Note = note
	track.UpdatedAt = time.Now().UTC()

	s.publish(ctx, events.TrackUpdated, &events.TrackUpdatedPayload{
		ActorID:         actor.ID.String(),
		ActorName:       actor.Name,
		PONumber:        item.PurchaseOrder.PONumber,
		ItemID:          item.ID.String(),
		ItemName:        item.Name,
		TrackDepartment: department,
		OldProgress:     oldProgress,
		NewProgress:     progress,
		Track:           models.SnapshotTrack(track),
	})
	s.index(ctx, &search.Activity{
		Event:      events.TrackUpdated,
		PONumber:   item.PurchaseOrder.PONumber,
		ItemID:     item.ID.String(),
		Department: department,
		ActorID:    actor.ID.String(),
		ActorName:  actor.Name,
	})

	return track, nil
}

// SetDeliveredQuantity records a delivery against an item. The quantity
// is capped at the ordered quantity and the item flips to delivered
// when fully covered.
func (s *POService) SetDeliveredQuantity(ctx context.Context, itemID uuid.UUID, quantity int, actor Actor) (*models.WorkItem, error) {
	txn := s.tracer.StartTransaction("set-delivered-quantity")
	defer s.tracer.EndTransaction(txn)

	if quantity < 0 {
		return nil, errors.Errorf("delivered quantity %d out of range", quantity)
	}

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if quantity > item.Quantity {
		quantity = item.Quantity
	}
	delivered := quantity >= item.Quantity

	var deliveredAt *time.Time
	if delivered {
		now := time.Now().UTC()
		deliveredAt = &now
	}

	if err := s.itemRepo.UpdateDelivery(ctx, itemID, quantity, delivered, deliveredAt); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	item.DeliveredQuantity = quantity
	item.Delivered = delivered
	item.DeliveredAt = deliveredAt

	s.publish(ctx, events.ItemDelivered, &events.ItemDeliveredPayload{
		ActorName:         actor.Name,
		PONumber:          item.PurchaseOrder.PONumber,
		ItemID:            item.ID.String(),
		ItemName:          item.Name,
		DeliveredQuantity: quantity,
		Quantity:          item.Quantity,
		Delivered:         delivered,
	})
	s.index(ctx, &search.Activity{
		Event:     events.ItemDelivered,
		PONumber:  item.PurchaseOrder.PONumber,
		ItemID:    item.ID.String(),
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
	})

	return item, nil
}

// CreateIssueInput is the request to report an issue against an item
type CreateIssueInput struct {
	Title       string  `json:"title" binding:"required"`
	Description *string `json:"description"`
	Priority    string  `json:"priority"`
}

// CreateIssue reports an issue against a work item
func (s *POService) CreateIssue(ctx context.Context, itemID uuid.UUID, input *CreateIssueInput, actor Actor) (*models.Issue, error) {
	txn := s.tracer.StartTransaction("create-issue")
	defer s.tracer.EndTransaction(txn)

	item, err := s.itemRepo.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}

	priority := input.Priority
	if priority == "" {
		priority = models.IssuePriorityMedium
	}

	issue := &models.Issue{
		ID:            uuid.New(),
		ItemID:        itemID,
		Title:         input.Title,
		Description:   input.Description,
		Priority:      priority,
		Status:        models.IssueStatusOpen,
		CreatedByID:   actor.ID,
		CreatedByName: actor.Name,
	}

	if err := s.issueRepo.Create(ctx, issue); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.publish(ctx, events.IssueCreated, &events.IssuePayload{
		ActorName: actor.Name,
		PONumber:  item.PurchaseOrder.PONumber,
		ItemID:    item.ID.String(),
		ItemName:  item.Name,
		Issue:     models.SnapshotIssue(issue),
	})
	s.index(ctx, &search.Activity{
		Event:     events.IssueCreated,
		PONumber:  item.PurchaseOrder.PONumber,
		ItemID:    item.ID.String(),
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
		Detail:    issue.Title,
	})

	return issue, nil
}

// ResolveIssue marks an issue resolved. Resolving an already resolved
// issue is a no-op that still returns the issue.
func (s *POService) ResolveIssue(ctx context.Context, issueID uuid.UUID, actor Actor) (*models.Issue, error) {
	txn := s.tracer.StartTransaction("resolve-issue")
	defer s.tracer.EndTransaction(txn)

	issue, err := s.issueRepo.GetByID(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if issue.Status == models.IssueStatusResolved {
		return issue, nil
	}

	item, err := s.itemRepo.GetByID(ctx, issue.ItemID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.issueRepo.Resolve(ctx, issueID, actor.ID, now); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	issue.Status = models.IssueStatusResolved
	issue.ResolvedByID = &actor.ID
	issue.ResolvedAt = &now

	s.publish(ctx, events.IssueResolved, &events.IssuePayload{
		ActorName: actor.Name,
		PONumber:  item.PurchaseOrder.PONumber,
		ItemID:    item.ID.String(),
		ItemName:  item.Name,
		Issue:     models.SnapshotIssue(issue),
	})
	s.index(ctx, &search.Activity{
		Event:     events.IssueResolved,
		PONumber:  item.PurchaseOrder.PONumber,
		ItemID:    item.ID.String(),
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
		Detail:    issue.Title,
	})

	return issue, nil
}

// SetFinanceStatus updates the paid or invoiced flag of a purchase order
// and announces the corresponding finance action
func (s *POService) SetFinanceStatus(ctx context.Context, poID uuid.UUID, action string, actor Actor) (*models.PurchaseOrder, error) {
	txn := s.tracer.StartTransaction("set-finance-status")
	defer s.tracer.EndTransaction(txn)

	po, err := s.poRepo.GetByID(ctx, poID)
	if err != nil {
		return nil, err
	}

	switch action {
	case events.FinancePaid:
		po.IsPaid = true
	case events.FinanceUnpaid:
		po.IsPaid = false
	case events.FinanceInvoiced:
		po.IsInvoiced = true
	case events.FinanceUninvoice:
		po.IsInvoiced = false
	default:
		return nil, errors.Errorf("unknown finance action %q", action)
	}

	if err := s.poRepo.SetFinance(ctx, poID, po.IsPaid, po.IsInvoiced); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.publish(ctx, events.FinanceUpdated, &events.FinanceUpdatedPayload{
		ActorName: actor.Name,
		PONumber:  po.PONumber,
		Action:    action,
		IsPaid:    po.IsPaid,
	})
	s.index(ctx, &search.Activity{
		Event:     events.FinanceUpdated,
		PONumber:  po.PONumber,
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
		Detail:    action,
	})

	return po, nil
}

// SetUrgent toggles the urgent flag of a purchase order
func (s *POService) SetUrgent(ctx context.Context, poID uuid.UUID, urgent bool, actor Actor) (*models.PurchaseOrder, error) {
	txn := s.tracer.StartTransaction("set-urgent")
	defer s.tracer.EndTransaction(txn)

	po, err := s.poRepo.GetByID(ctx, poID)
	if err != nil {
		return nil, err
	}

	if err := s.poRepo.SetUrgent(ctx, poID, urgent); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	po.IsUrgent = urgent

	s.publish(ctx, events.POUrgentChanged, &events.POUrgentPayload{
		ActorName: actor.Name,
		POID:      po.ID.String(),
		PONumber:  po.PONumber,
		IsUrgent:  urgent,
	})
	s.index(ctx, &search.Activity{
		Event:     events.POUrgentChanged,
		PONumber:  po.PONumber,
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
	})

	return po, nil
}

// ChangeStatus transitions a purchase order to a new status
func (s *POService) ChangeStatus(ctx context.Context, poID uuid.UUID, status string, actor Actor) (*models.PurchaseOrder, error) {
	txn := s.tracer.StartTransaction("change-status")
	defer s.tracer.EndTransaction(txn)

	switch status {
	case models.POStatusActive, models.POStatusCompleted, models.POStatusCancelled, models.POStatusArchived:
	default:
		return nil, errors.Errorf("unknown purchase order status %q", status)
	}

	po, err := s.poRepo.GetByID(ctx, poID)
	if err != nil {
		return nil, err
	}

	if err := s.poRepo.UpdateStatus(ctx, poID, status); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}
	po.Status = status

	s.publish(ctx, events.POStatusChanged, &events.POStatusPayload{
		ActorName: actor.Name,
		POID:      po.ID.String(),
		PONumber:  po.PONumber,
		NewStatus: status,
	})
	s.index(ctx, &search.Activity{
		Event:     events.POStatusChanged,
		PONumber:  po.PONumber,
		ActorID:   actor.ID.String(),
		ActorName: actor.Name,
		Detail:    status,
	})

	return po, nil
}

// publish broadcasts an event on the realtime channel. Failures are
// logged, never returned: the database write already succeeded and
// clients reconcile on their next full fetch.
func (s *POService) publish(ctx context.Context, event string, payload interface{}) {
	// Any broadcast means the active-items list changed
	if s.cache != nil {
		if err := s.cache.Delete(ctx, activeItemsCacheKey); err != nil {
			log.Debug().Err(err).Msg("failed to invalidate active items cache")
		}
	}
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, events.Channel, event, payload); err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to publish event")
		return
	}
	if s.stats != nil {
		s.stats.IncrementCounter(metrics.EventsPublished)
	}
}

// index records an activity entry, best-effort
func (s *POService) index(ctx context.Context, activity *search.Activity) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexActivity(ctx, activity); err != nil {
		log.Error().Err(err).Str("event", activity.Event).Msg("failed to index activity")
	}
}
