package services

import (
	"fmt"
	"time"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// PaymentStateStore owns the client-facing payment session records. Sessions
// are freely re-creatable on retry while the order stays canonical.
type PaymentStateStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewPaymentStateStore creates a store whose sessions expire ttl after
// creation.
func NewPaymentStateStore(db *gorm.DB, ttl time.Duration) *PaymentStateStore {
	return &PaymentStateStore{db: db, ttl: ttl}
}

// Create inserts a new pending session for an order.
func (s *PaymentStateStore) Create(state *models.PaymentState) error {
	if state.Status == "" {
		state.Status = models.PaymentStatePending
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = time.Now().Add(s.ttl)
	}
	if err := s.db.Create(state).Error; err != nil {
		return fmt.Errorf("failed to create payment state for order %s: %w", state.OrderID, err)
	}
	return nil
}

// Get returns the latest session for an order. A pending session whose
// expiry has passed is transitioned to expired before it is returned, so
// callers observing the session ahead of any background job still see the
// correct status.
func (s *PaymentStateStore) Get(orderID string) (*models.PaymentState, error) {
	var state models.PaymentState
	err := s.db.Where("order_id = ?", orderID).Order("id DESC").First(&state).Error
	if err != nil {
		return nil, err
	}

	if state.Status == models.PaymentStatePending && time.Now().After(state.ExpiresAt) {
		if err := s.Transition(state.OrderID, models.PaymentStateExpired, map[string]interface{}{
			"error_message": "payment session expired",
		}); err != nil {
			return nil, err
		}
		state.Status = models.PaymentStateExpired
		state.ErrorMessage = "payment session expired"
	}

	return &state, nil
}

// Transition moves the latest session for orderID to newStatus. Only pending
// sessions may move; everything else is terminal and rejected with
// ErrTerminalState.
func (s *PaymentStateStore) Transition(orderID string, newStatus string, fields map[string]interface{}) error {
	return s.TransitionTx(s.db, orderID, newStatus, fields)
}

// TransitionTx is Transition running on the caller's transaction handle.
func (s *PaymentStateStore) TransitionTx(tx *gorm.DB, orderID string, newStatus string, fields map[string]interface{}) error {
	var state models.PaymentState
	if err := tx.Where("order_id = ?", orderID).Order("id DESC").First(&state).Error; err != nil {
		return err
	}

	if models.IsTerminalPaymentState(state.Status) {
		utils.LogError("Rejected payment state transition %s -> %s for order %s", state.Status, newStatus, orderID)
		return fmt.Errorf("payment state for order %s: %s -> %s: %w", orderID, state.Status, newStatus, ErrTerminalState)
	}

	// Expired is only reachable from pending once the expiry has passed.
	if newStatus == models.PaymentStateExpired && time.Now().Before(state.ExpiresAt) {
		return fmt.Errorf("payment state for order %s has not expired yet", orderID)
	}

	updates := map[string]interface{}{"status": newStatus}
	for k, v := range fields {
		updates[k] = v
	}

	res := tx.Model(&models.PaymentState{}).
		Where("id = ? AND status = ?", state.ID, state.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment state for order %s: %w", orderID, ErrConcurrentUpdate)
	}
	return nil
}
