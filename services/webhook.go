package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// Gateway event types the engine acts on. Anything else is an unknown event:
// persisted, acknowledged and completed without side effects.
const (
	EventTypePaymentCaptured = "payment.captured"
	EventTypePaymentFailed   = "payment.failed"
)

// InboundEvent is a parsed gateway webhook, reduced to the fields the engine
// consumes. Raw keeps the full payload for the event row.
type InboundEvent struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Raw       string `json:"-"`
}

// WebhookService is the idempotent ingestion path for asynchronous gateway
// events. The uniqueness constraint on event_id plus the
// received -> processing -> terminal status gate are the only concurrency
// control; no lock is held.
type WebhookService struct {
	db     *gorm.DB
	orders *OrderStore
	states *PaymentStateStore
	subs   *SubscriptionService
	ledger *RevenueLedger
}

// NewWebhookService wires the webhook processor.
func NewWebhookService(db *gorm.DB, orders *OrderStore, states *PaymentStateStore, subs *SubscriptionService, ledger *RevenueLedger) *WebhookService {
	return &WebhookService{db: db, orders: orders, states: states, subs: subs, ledger: ledger}
}

// Ingest records the event in status received. A previously seen event id is
// reported as duplicate with the existing row; no side effect runs for it.
// This insert is the idempotency boundary.
func (s *WebhookService) Ingest(event InboundEvent) (*models.WebhookEvent, bool, error) {
	row := models.WebhookEvent{
		EventID:   event.EventID,
		EventType: event.EventType,
		OrderID:   event.OrderID,
		PaymentID: event.PaymentID,
		Status:    models.WebhookStatusReceived,
		Payload:   event.Raw,
	}

	if err := s.db.Create(&row).Error; err != nil {
		// The unique index on event_id rejects re-deliveries; anything else
		// is a real datastore failure.
		var existing models.WebhookEvent
		lookupErr := s.db.Where("event_id = ?", event.EventID).First(&existing).Error
		if lookupErr == nil {
			utils.LogInfo("Webhook event %s already seen, status: %s", event.EventID, existing.Status)
			return &existing, true, nil
		}
		return nil, false, fmt.Errorf("failed to record webhook event %s: %w", event.EventID, err)
	}

	utils.LogInfo("Webhook event %s recorded, type: %s", event.EventID, event.EventType)
	return &row, false, nil
}

// Process runs the business effect for an ingested event and records exactly
// one terminal status. Reprocessing is allowed only for events that
// previously failed; completed events are a no-op.
func (s *WebhookService) Process(eventID string) error {
	var row models.WebhookEvent
	if err := s.db.Where("event_id = ?", eventID).First(&row).Error; err != nil {
		return err
	}

	switch row.Status {
	case models.WebhookStatusCompleted:
		utils.LogInfo("Webhook event %s already completed, skipping", eventID)
		return nil
	case models.WebhookStatusProcessing:
		utils.LogInfo("Webhook event %s already in flight, skipping", eventID)
		return nil
	}

	// Claim the event. The conditional update loses to a concurrent worker
	// that claimed it first.
	res := s.db.Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status IN ?", eventID, []string{models.WebhookStatusReceived, models.WebhookStatusFailed}).
		Update("status", models.WebhookStatusProcessing)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		utils.LogInfo("Webhook event %s claimed elsewhere, skipping", eventID)
		return nil
	}

	if err := s.apply(&row); err != nil {
		now := time.Now()
		s.db.Model(&models.WebhookEvent{}).
			Where("event_id = ? AND status = ?", eventID, models.WebhookStatusProcessing).
			Updates(map[string]interface{}{
				"status":        models.WebhookStatusFailed,
				"error_message": err.Error(),
				"processed_at":  now,
			})
		utils.LogError("Webhook event %s failed: %v", eventID, err)
		return err
	}

	now := time.Now()
	return s.db.Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, models.WebhookStatusProcessing).
		Updates(map[string]interface{}{
			"status":       models.WebhookStatusCompleted,
			"processed_at": now,
		}).Error
}

func (s *WebhookService) apply(row *models.WebhookEvent) error {
	switch row.EventType {
	case EventTypePaymentCaptured:
		return s.applyPaymentCaptured(row)
	case EventTypePaymentFailed:
		return s.applyPaymentFailed(row)
	default:
		utils.LogInfo("Webhook event %s has unknown type %q, acknowledged without effect", row.EventID, row.EventType)
		return nil
	}
}

// applyPaymentCaptured covers gateways that deliver the capture webhook
// before the user's browser returns: the ledger gets its entry and the
// subscription activates even when the synchronous path never runs.
func (s *WebhookService) applyPaymentCaptured(row *models.WebhookEvent) error {
	if row.OrderID == "" {
		return errors.New("payment.captured event carries no order id")
	}

	var order models.PaymentOrder
	if err := s.db.Where("order_id = ?", row.OrderID).First(&order).Error; err != nil {
		return fmt.Errorf("order %s not found for captured payment: %w", row.OrderID, err)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		entry, _, err := s.ledger.EnsureForOrder(tx, &models.RevenueLedgerEntry{
			OrderID:   order.OrderID,
			PaymentID: row.PaymentID,
			UserID:    order.UserID,
			Amount:    order.Amount,
			Currency:  order.Currency,
			PlanCode:  order.PlanCode,
			Status:    models.RevenueStatusPending,
			Source:    models.RevenueSourceWebhook,
		})
		if err != nil {
			return err
		}

		if order.Status != models.OrderStatusPaid {
			if err := s.orders.TransitionTx(tx, order.OrderID, models.OrderStatusPaid, map[string]interface{}{
				"payment_id": row.PaymentID,
			}); err != nil {
				return err
			}
			if err := s.states.TransitionTx(tx, order.OrderID, models.PaymentStateSuccess, nil); err != nil &&
				!errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, ErrTerminalState) {
				return err
			}
		}

		var sub models.Subscription
		err = tx.Where("user_id = ? AND status = ?", order.UserID, models.SubscriptionStatusActive).First(&sub).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			plan, planErr := planForOrder(tx, &order)
			if planErr != nil {
				return planErr
			}
			if _, err := s.subs.ActivateTx(tx, order.UserID, order.PlanCode, order.Amount, order.Currency, plan.IsTrial, plan.TrialDays); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if entry.Status == models.RevenueStatusPending {
			now := time.Now()
			if err := tx.Model(&models.RevenueLedgerEntry{}).
				Where("id = ? AND status = ?", entry.ID, models.RevenueStatusPending).
				Updates(map[string]interface{}{
					"status":       models.RevenueStatusConfirmed,
					"confirmed_at": now,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *WebhookService) applyPaymentFailed(row *models.WebhookEvent) error {
	if row.OrderID == "" {
		return errors.New("payment.failed event carries no order id")
	}

	err := s.states.Transition(row.OrderID, models.PaymentStateFailed, map[string]interface{}{
		"error_message": "gateway reported payment failure",
	})
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, ErrTerminalState) {
		return err
	}
	return nil
}
