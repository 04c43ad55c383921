package services

import (
	"context"
	"encoding/json"
	"time"

	"example.com/potrack/internal/messaging"
	"example.com/potrack/internal/metrics"
	"example.com/potrack/internal/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// erpFinanceChange is the payload of an upstream FinanceStatusChanged message
type erpFinanceChange struct {
	PONumber string `json:"po_number"`
	Action   string `json:"action"`
}

// HandleErpMessage dispatches one upstream ERP queue message. Returning
// an error abandons the message for redelivery.
func (s *POService) HandleErpMessage(ctx context.Context, msg *messaging.ErpMessage) error {
	log.Info().Str("event_type", msg.EventType).Msg("processing ERP message")

	switch msg.EventType {
	case messaging.ErpPOImported:
		var input CreatePurchaseOrderInput
		if err := json.Unmarshal(msg.Data, &input); err != nil {
			return errors.Wrap(err, "failed to unmarshal ERP purchase order")
		}

		// Redeliveries of an already imported PO are acknowledged, not retried
		if existing, err := s.poRepo.GetByNumber(ctx, input.PONumber); err == nil && existing != nil {
			log.Info().Str("po_number", input.PONumber).Msg("purchase order already imported, skipping")
			return nil
		}

		if _, err := s.CreatePurchaseOrder(ctx, &input, Actor{Name: "ERP"}); err != nil {
			return err
		}

	case messaging.ErpFinanceChanged:
		var change erpFinanceChange
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			return errors.Wrap(err, "failed to unmarshal ERP finance change")
		}

		po, err := s.poRepo.GetByNumber(ctx, change.PONumber)
		if err != nil {
			return err
		}
		if _, err := s.SetFinanceStatus(ctx, po.ID, change.Action, Actor{Name: "ERP"}); err != nil {
			return err
		}

	default:
		log.Warn().Str("event_type", msg.EventType).Msg("ignoring unknown ERP message type")
		return nil
	}

	if s.stats != nil {
		s.stats.IncrementCounter(metrics.ErpMessagesBridged)
	}
	return nil
}

// ReconcileDeliveries repairs items whose delivered flag fell out of
// step with the recorded quantities, e.g. after a partial write during
// an outage. Runs on a schedule from the worker.
func (s *POService) ReconcileDeliveries(ctx context.Context) error {
	log.Info().Msg("starting delivery reconciliation")

	var stale []models.WorkItem
	err := s.db.WithContext(ctx).
		Where("delivered_quantity >= quantity AND delivered = ?", false).
		Find(&stale).Error
	if err != nil {
		return errors.Wrap(err, "failed to find stale work items")
	}

	for i := range stale {
		item := &stale[i]
		now := time.Now().UTC()
		err := s.db.WithContext(ctx).Model(&models.WorkItem{}).
			Where("id = ?", item.ID).
			Updates(map[string]interface{}{
				"delivered":    true,
				"delivered_at": &now,
			}).Error
		if err != nil {
			log.Error().Err(err).Str("item_id", item.ID.String()).Msg("failed to reconcile work item")
			continue
		}
		log.Info().Str("item_id", item.ID.String()).Msg("reconciled delivered flag")
	}

	log.Info().Int("count", len(stale)).Msg("delivery reconciliation finished")
	return nil
}
