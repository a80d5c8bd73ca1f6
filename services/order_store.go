package services

import (
	"errors"
	"fmt"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// ErrTerminalState is returned by store transitions that try to move a record
// out of a terminal status.
var ErrTerminalState = errors.New("status is terminal")

// ErrConcurrentUpdate is returned when a guarded transition lost a race with
// another writer.
var ErrConcurrentUpdate = errors.New("record changed concurrently")

// OrderStore owns PaymentOrder persistence and its guarded status
// transitions.
type OrderStore struct {
	db *gorm.DB
}

// NewOrderStore creates an order store on the given database handle.
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db}
}

// Create inserts a new order in status created.
func (s *OrderStore) Create(order *models.PaymentOrder) error {
	if order.Status == "" {
		order.Status = models.OrderStatusCreated
	}
	if err := s.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create payment order %s: %w", order.OrderID, err)
	}
	return nil
}

// Get loads an order by its gateway order id, scoped to the owning user.
func (s *OrderStore) Get(orderID string, userID uint) (*models.PaymentOrder, error) {
	var order models.PaymentOrder
	err := s.db.Where("order_id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Transition moves an order to newStatus. Transitions out of a terminal
// status are rejected with ErrTerminalState.
func (s *OrderStore) Transition(orderID string, newStatus string, fields map[string]interface{}) error {
	return s.TransitionTx(s.db, orderID, newStatus, fields)
}

// TransitionTx is Transition running on the caller's transaction handle.
func (s *OrderStore) TransitionTx(tx *gorm.DB, orderID string, newStatus string, fields map[string]interface{}) error {
	var order models.PaymentOrder
	if err := tx.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return err
	}

	if models.IsTerminalOrderStatus(order.Status) {
		utils.LogError("Rejected order transition %s -> %s for order %s", order.Status, newStatus, orderID)
		return fmt.Errorf("order %s: %s -> %s: %w", orderID, order.Status, newStatus, ErrTerminalState)
	}

	updates := map[string]interface{}{"status": newStatus}
	for k, v := range fields {
		updates[k] = v
	}

	// Conditional on the observed status so a concurrent transition cannot
	// be overwritten.
	res := tx.Model(&models.PaymentOrder{}).
		Where("order_id = ? AND status = ?", orderID, order.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrConcurrentUpdate)
	}
	return nil
}
