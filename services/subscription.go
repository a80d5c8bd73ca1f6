package services

import (
	"errors"
	"time"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// Paid plans bill every 30 days after the period end; a calendar month of
// access is granted per payment.
const paidBillingOffsetDays = 30

// SubscriptionResult is the outcome of a user-facing lifecycle operation.
// Failures that the user can cause (cancelling twice, reactivating an active
// subscription) come back as Success=false rather than an error.
type SubscriptionResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	EffectiveDate *time.Time `json:"effective_date,omitempty"`
}

// SubscriptionSnapshot is the read model returned by status queries and the
// verification response.
type SubscriptionSnapshot struct {
	PlanCode          string     `json:"plan"`
	Status            string     `json:"status"`
	StartDate         time.Time  `json:"start_date"`
	EndDate           time.Time  `json:"end_date"`
	DaysRemaining     int        `json:"days_remaining"`
	AutoRenew         bool       `json:"auto_renew"`
	IsTrial           bool       `json:"is_trial"`
	NextBillingDate   *time.Time `json:"next_billing_date,omitempty"`
	NextPaymentAmount float64    `json:"next_payment_amount"`
	Currency          string     `json:"currency"`
}

// SubscriptionService owns the subscription state machine and its billing
// date arithmetic. Expired is the only terminal status; cancelled
// subscriptions can be reactivated.
type SubscriptionService struct {
	db       *gorm.DB
	notifier Notifier
}

// NewSubscriptionService creates the lifecycle manager.
func NewSubscriptionService(db *gorm.DB, notifier Notifier) *SubscriptionService {
	return &SubscriptionService{db: db, notifier: notifier}
}

// Activate creates or refreshes the user's subscription after a successful
// payment. An existing active subscription is updated in place (upgrade and
// renewal reuse the row); there is never a second active row for a user.
func (s *SubscriptionService) Activate(userID uint, planCode string, amount float64, currency string, isTrial bool, trialDays int) (*models.Subscription, error) {
	sub, err := s.ActivateTx(s.db, userID, planCode, amount, currency, isTrial, trialDays)
	if err != nil {
		return nil, err
	}
	s.emit(EventSubscriptionActivated, sub, "")
	return sub, nil
}

// ActivateTx is Activate on the caller's transaction handle, without event
// emission. The verification path runs it inside its activation transaction
// and emits its own confirmation event after commit.
func (s *SubscriptionService) ActivateTx(tx *gorm.DB, userID uint, planCode string, amount float64, currency string, isTrial bool, trialDays int) (*models.Subscription, error) {
	now := time.Now()

	endDate := now.AddDate(0, 1, 0)
	if isTrial {
		endDate = now.AddDate(0, 0, trialDays)
	}
	nextBilling := endDate
	if !isTrial {
		nextBilling = endDate.AddDate(0, 0, paidBillingOffsetDays)
	}

	var sub models.Subscription
	err := tx.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lastPayment := now
	sub.UserID = userID
	sub.PlanCode = planCode
	sub.Status = models.SubscriptionStatusActive
	sub.StartDate = now
	sub.EndDate = endDate
	sub.AutoRenew = true
	sub.IsTrial = isTrial
	sub.LastPaymentDate = &lastPayment
	sub.NextBillingDate = &nextBilling
	sub.NextPaymentAmount = amount
	sub.Currency = currency
	sub.CancellationReason = ""
	sub.CancelledAt = nil

	if err := tx.Save(&sub).Error; err != nil {
		return nil, err
	}
	utils.LogInfo("Activated subscription for user ID: %d, plan: %s, trial: %v, end date: %s",
		userID, planCode, isTrial, endDate.Format("2006-01-02"))
	return &sub, nil
}

// Cancel moves an active subscription to cancelled. With immediate=false the
// end date is preserved and the user keeps access until it passes; with
// immediate=true access ends now. Auto-renew is always switched off.
// Cancelling an already-cancelled subscription is a failed result, not an
// error.
func (s *SubscriptionService) Cancel(userID uint, reason string, immediate bool) (*SubscriptionResult, error) {
	var sub models.Subscription
	err := s.db.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &SubscriptionResult{Success: false, Message: "No subscription found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if sub.Status != models.SubscriptionStatusActive {
		return &SubscriptionResult{
			Success: false,
			Message: "Subscription is not active and cannot be cancelled",
		}, nil
	}

	now := time.Now()
	effective := sub.EndDate
	updates := map[string]interface{}{
		"status":              models.SubscriptionStatusCancelled,
		"auto_renew":          false,
		"cancellation_reason": reason,
		"cancelled_at":        now,
	}
	if immediate {
		effective = now
		updates["end_date"] = now
	}

	res := s.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusActive).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return &SubscriptionResult{Success: false, Message: "Subscription changed concurrently, please retry"}, nil
	}

	sub.Status = models.SubscriptionStatusCancelled
	sub.EndDate = effective
	s.emit(EventSubscriptionCancelled, &sub, reason)
	utils.LogInfo("Cancelled subscription for user ID: %d, immediate: %v, effective: %s",
		userID, immediate, effective.Format("2006-01-02"))

	return &SubscriptionResult{
		Success:       true,
		Message:       "Subscription cancelled",
		EffectiveDate: &effective,
	}, nil
}

// Reactivate restores a cancelled subscription. Only legal from cancelled;
// anything else is a user-visible failure with no mutation.
func (s *SubscriptionService) Reactivate(userID uint) (*SubscriptionResult, error) {
	var sub models.Subscription
	err := s.db.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &SubscriptionResult{Success: false, Message: "No subscription found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if sub.Status != models.SubscriptionStatusCancelled {
		return &SubscriptionResult{
			Success: false,
			Message: "Only a cancelled subscription can be reactivated",
		}, nil
	}

	now := time.Now()
	endDate := now.AddDate(0, 1, 0)
	nextBilling := endDate.AddDate(0, 0, paidBillingOffsetDays)

	res := s.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusCancelled).
		Updates(map[string]interface{}{
			"status":              models.SubscriptionStatusActive,
			"end_date":            endDate,
			"next_billing_date":   nextBilling,
			"auto_renew":          true,
			"cancellation_reason": "",
			"cancelled_at":        nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return &SubscriptionResult{Success: false, Message: "Subscription changed concurrently, please retry"}, nil
	}

	sub.Status = models.SubscriptionStatusActive
	sub.EndDate = endDate
	s.emit(EventSubscriptionReactivated, &sub, "")
	utils.LogInfo("Reactivated subscription for user ID: %d, new end date: %s", userID, endDate.Format("2006-01-02"))

	return &SubscriptionResult{Success: true, Message: "Subscription reactivated", EffectiveDate: &endDate}, nil
}

// SetAutoRenew toggles the auto-renew flag without touching the status.
func (s *SubscriptionService) SetAutoRenew(userID uint, enabled bool) (*SubscriptionResult, error) {
	var sub models.Subscription
	err := s.db.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &SubscriptionResult{Success: false, Message: "No subscription found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.Model(&sub).Update("auto_renew", enabled).Error; err != nil {
		return nil, err
	}
	utils.LogInfo("Set auto-renew to %v for user ID: %d", enabled, userID)

	message := "Auto-renew enabled"
	if !enabled {
		message = "Auto-renew disabled"
	}
	return &SubscriptionResult{Success: true, Message: message}, nil
}

// Renew extends an active subscription after a successful renewal charge.
// The update is conditional on status still being active so a cancellation
// racing the sweep wins; renewed=false with a nil error means the
// subscription changed underneath and the caller should skip silently.
func (s *SubscriptionService) Renew(subscriptionID uint) (renewed bool, sub *models.Subscription, err error) {
	var current models.Subscription
	if err := s.db.First(&current, subscriptionID).Error; err != nil {
		return false, nil, err
	}

	now := time.Now()
	endDate := current.EndDate.AddDate(0, 1, 0)
	nextBilling := endDate.AddDate(0, 0, paidBillingOffsetDays)

	res := s.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ? AND auto_renew = ?", subscriptionID, models.SubscriptionStatusActive, true).
		Updates(map[string]interface{}{
			"end_date":          endDate,
			"last_payment_date": now,
			"next_billing_date": nextBilling,
			"is_trial":          false,
		})
	if res.Error != nil {
		return false, nil, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil, nil
	}

	current.EndDate = endDate
	current.LastPaymentDate = &now
	current.NextBillingDate = &nextBilling
	s.emit(EventSubscriptionRenewed, &current, "")
	return true, &current, nil
}

// Suspend marks an active subscription suspended after a failed renewal
// charge. Conditional on status=active like Renew; suspended=false with a
// nil error means the row changed concurrently.
func (s *SubscriptionService) Suspend(subscriptionID uint, reason string) (suspended bool, err error) {
	res := s.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, models.SubscriptionStatusActive).
		Updates(map[string]interface{}{
			"status":     models.SubscriptionStatusSuspended,
			"auto_renew": false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	var sub models.Subscription
	if err := s.db.First(&sub, subscriptionID).Error; err == nil {
		s.emit(EventSubscriptionSuspended, &sub, reason)
	}
	utils.LogInfo("Suspended subscription ID: %d: %s", subscriptionID, reason)
	return true, nil
}

// Status returns the user's subscription snapshot, or nil when the user has
// never subscribed.
func (s *SubscriptionService) Status(userID uint) (*SubscriptionSnapshot, error) {
	var sub models.Subscription
	err := s.db.Where("user_id = ?", userID).Order("id DESC").First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Snapshot(&sub), nil
}

// Snapshot builds the read model for a subscription row.
func Snapshot(sub *models.Subscription) *SubscriptionSnapshot {
	daysRemaining := int(time.Until(sub.EndDate).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}
	return &SubscriptionSnapshot{
		PlanCode:          sub.PlanCode,
		Status:            sub.Status,
		StartDate:         sub.StartDate,
		EndDate:           sub.EndDate,
		DaysRemaining:     daysRemaining,
		AutoRenew:         sub.AutoRenew,
		IsTrial:           sub.IsTrial,
		NextBillingDate:   sub.NextBillingDate,
		NextPaymentAmount: sub.NextPaymentAmount,
		Currency:          sub.Currency,
	}
}

// emit dispatches a lifecycle event. Dispatch failures are logged and never
// surfaced; notifications are best-effort.
func (s *SubscriptionService) emit(eventType string, sub *models.Subscription, message string) {
	event := LifecycleEvent{
		Type:     eventType,
		UserID:   sub.UserID,
		PlanCode: sub.PlanCode,
		EndDate:  sub.EndDate,
		Amount:   sub.NextPaymentAmount,
		Currency: sub.Currency,
		Message:  message,
	}

	var user models.User
	if err := s.db.First(&user, sub.UserID).Error; err == nil {
		event.Email = user.Email
	}

	if err := s.notifier.Dispatch(event); err != nil {
		utils.LogError("Failed to dispatch %s event for user ID: %d: %v", eventType, sub.UserID, err)
	}
}
