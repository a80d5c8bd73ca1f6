package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/razorpay/razorpay-go"
	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// ChargeAttempter attempts the renewal charge against the payment gateway.
type ChargeAttempter interface {
	Charge(sub *models.Subscription) error
}

// SweepResult counts one sweep's outcomes.
type SweepResult struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// RenewalSweeper is the periodic batch job that renews or suspends
// subscriptions whose billing period has elapsed. It may run concurrently
// with user-initiated cancel/reactivate calls; every write re-validates
// status=active at write time and skips silently when it has changed.
type RenewalSweeper struct {
	db       *gorm.DB
	subs     *SubscriptionService
	ledger   *RevenueLedger
	charger  ChargeAttempter
	notifier Notifier
}

// NewRenewalSweeper wires the sweep.
func NewRenewalSweeper(db *gorm.DB, subs *SubscriptionService, ledger *RevenueLedger, charger ChargeAttempter, notifier Notifier) *RenewalSweeper {
	return &RenewalSweeper{db: db, subs: subs, ledger: ledger, charger: charger, notifier: notifier}
}

// Run sweeps all active auto-renew subscriptions whose end date has passed.
// Per-subscription failures are counted and never abort the batch.
func (s *RenewalSweeper) Run(ctx context.Context) SweepResult {
	var result SweepResult

	var due []models.Subscription
	err := s.db.Where("status = ? AND auto_renew = ? AND end_date <= ?",
		models.SubscriptionStatusActive, true, time.Now()).
		Find(&due).Error
	if err != nil {
		utils.LogError("Renewal sweep query failed: %v", err)
		result.Errors++
		return result
	}

	utils.LogInfo("Renewal sweep started, %d subscriptions due", len(due))

	for i := range due {
		select {
		case <-ctx.Done():
			utils.LogInfo("Renewal sweep cancelled after %d of %d", i, len(due))
			return result
		default:
		}

		sub := &due[i]
		if err := s.renewOne(sub); err != nil {
			utils.LogError("Renewal failed for subscription ID: %d, user ID: %d: %v", sub.ID, sub.UserID, err)
			result.Errors++
			continue
		}
		result.Processed++
	}

	utils.LogInfo("Renewal sweep finished: processed %d, errors %d", result.Processed, result.Errors)
	return result
}

// renewOne charges and extends a single subscription. A nil return counts as
// processed; a subscription that was cancelled mid-sweep is skipped silently
// and counted as processed with no write.
func (s *RenewalSweeper) renewOne(sub *models.Subscription) error {
	if err := s.charger.Charge(sub); err != nil {
		suspended, suspendErr := s.subs.Suspend(sub.ID, fmt.Sprintf("renewal charge failed: %v", err))
		if suspendErr != nil {
			return fmt.Errorf("charge failed and suspension failed: %v / %w", err, suspendErr)
		}
		if !suspended {
			// Cancelled or already suspended mid-sweep; nothing to do.
			return nil
		}
		s.notifyRenewalFailed(sub, err)
		return fmt.Errorf("charge failed: %w", err)
	}

	renewed, renewedSub, err := s.subs.Renew(sub.ID)
	if err != nil {
		return err
	}
	if !renewed {
		utils.LogInfo("Subscription ID: %d changed mid-sweep, skipping extension", sub.ID)
		return nil
	}

	return s.ledger.Append(&models.RevenueLedgerEntry{
		OrderID:   fmt.Sprintf("renewal_%d_%s", sub.ID, uuid.New().String()[:8]),
		UserID:    sub.UserID,
		Amount:    sub.NextPaymentAmount,
		Currency:  sub.Currency,
		PlanCode:  renewedSub.PlanCode,
		Status:    models.RevenueStatusConfirmed,
		Source:    models.RevenueSourceRenewal,
	})
}

// notifyRenewalFailed tells the user their renewal charge was declined.
// Best-effort like all notifications.
func (s *RenewalSweeper) notifyRenewalFailed(sub *models.Subscription, chargeErr error) {
	event := LifecycleEvent{
		Type:     EventRenewalFailed,
		UserID:   sub.UserID,
		PlanCode: sub.PlanCode,
		EndDate:  sub.EndDate,
		Amount:   sub.NextPaymentAmount,
		Currency: sub.Currency,
		Message:  "Your renewal payment did not go through. Update your payment method to keep your subscription.",
	}
	var user models.User
	if err := s.db.First(&user, sub.UserID).Error; err == nil {
		event.Email = user.Email
	}
	utils.LogInfo("Renewal charge declined for user ID: %d: %v", sub.UserID, chargeErr)
	if err := s.notifier.Dispatch(event); err != nil {
		utils.LogError("Failed to dispatch renewal failure notice for user ID: %d: %v", sub.UserID, err)
	}
}

// Start runs the sweep on a fixed interval until the context is cancelled.
// The HTTP trigger remains as a manual override for operators.
func (s *RenewalSweeper) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		utils.LogInfo("Renewal sweep scheduler started, interval: %v", interval)
		for {
			select {
			case <-ctx.Done():
				utils.LogInfo("Renewal sweep scheduler stopped")
				return
			case <-ticker.C:
				s.Run(ctx)
			}
		}
	}()
}

// GatewayCharger attempts renewal charges through the payment gateway's
// server-to-server order API.
type GatewayCharger struct {
	client *razorpay.Client
}

// NewGatewayCharger creates a charger using the gateway credentials.
func NewGatewayCharger(key, secret string) *GatewayCharger {
	return &GatewayCharger{client: razorpay.NewClient(key, secret)}
}

// Charge creates a capture order for the renewal amount. A gateway rejection
// is a failed charge.
func (c *GatewayCharger) Charge(sub *models.Subscription) error {
	amountPaise := int(sub.NextPaymentAmount * 100)
	data := map[string]interface{}{
		"amount":          amountPaise,
		"currency":        sub.Currency,
		"receipt":         fmt.Sprintf("renewal_rcptid_%d", sub.ID),
		"payment_capture": 1,
		"notes": map[string]interface{}{
			"kind":    "subscription_renewal",
			"user_id": fmt.Sprintf("%d", sub.UserID),
			"plan":    sub.PlanCode,
		},
	}
	if _, err := c.client.Order.Create(data, nil); err != nil {
		return fmt.Errorf("gateway renewal charge failed for subscription ID %d: %w", sub.ID, err)
	}
	return nil
}
