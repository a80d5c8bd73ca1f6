package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// Verification error codes.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeHighRiskPayment        = "HIGH_RISK_PAYMENT"
	CodeInvalidSignature       = "INVALID_SIGNATURE"
	CodeUserVerificationFailed = "USER_VERIFICATION_FAILED"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeActivationFailed       = "ACTIVATION_FAILED"
	CodeSystemError            = "SYSTEM_ERROR"
)

// VerificationError carries one of the verification error codes alongside a
// caller-facing message.
type VerificationError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the unwrap interface.
func (e *VerificationError) Unwrap() error {
	return e.Err
}

func verificationError(code, message string, err error) *VerificationError {
	return &VerificationError{Code: code, Message: message, Err: err}
}

// VerifyRequest is the synchronous verification input: the fields the
// gateway redirect carries plus the request metadata the fraud scorer reads.
type VerifyRequest struct {
	OrderID           string `json:"order_id" binding:"required"`
	PaymentID         string `json:"payment_id" binding:"required"`
	Signature         string `json:"signature" binding:"required"`
	UserID            uint   `json:"user_id" binding:"required"`
	UserEmail         string `json:"user_email" binding:"required"`
	UserAgent         string `json:"user_agent,omitempty"`
	IPAddress         string `json:"ip_address,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint,omitempty"`
}

// VerificationDetail reports how far verification got, for the caller's
// audit trail.
type VerificationDetail struct {
	SignatureVerified     bool         `json:"signature_verified"`
	UserVerified          bool         `json:"user_verified"`
	OrderVerified         bool         `json:"order_verified"`
	SubscriptionActivated bool         `json:"subscription_activated"`
	RiskScore             float64      `json:"risk_score"`
	FraudChecks           []FraudCheck `json:"fraud_checks"`
}

// VerifyResult is the successful outcome of the synchronous path.
type VerifyResult struct {
	Message      string                `json:"message"`
	Subscription *SubscriptionSnapshot `json:"subscription"`
	Verification *VerificationDetail   `json:"verification"`
}

// PaymentVerifier orchestrates the synchronous "user just paid" path: fraud
// scoring, signature verification, identity and order checks, and the
// single-transaction activation.
type PaymentVerifier struct {
	db       *gorm.DB
	signer   *SignatureVerifier
	scorer   *FraudScorer
	attempts *AttemptStore
	orders   *OrderStore
	states   *PaymentStateStore
	subs     *SubscriptionService
	ledger   *RevenueLedger
	notifier Notifier
}

// NewPaymentVerifier wires the verification orchestrator.
func NewPaymentVerifier(
	db *gorm.DB,
	signer *SignatureVerifier,
	scorer *FraudScorer,
	attempts *AttemptStore,
	orders *OrderStore,
	states *PaymentStateStore,
	subs *SubscriptionService,
	ledger *RevenueLedger,
	notifier Notifier,
) *PaymentVerifier {
	return &PaymentVerifier{
		db:       db,
		signer:   signer,
		scorer:   scorer,
		attempts: attempts,
		orders:   orders,
		states:   states,
		subs:     subs,
		ledger:   ledger,
		notifier: notifier,
	}
}

// Verify runs the verification pipeline, short-circuiting on the first
// failure. Each failure maps to a distinct code; datastore failures during
// activation surface as ACTIVATION_FAILED with the full context logged for
// manual reconciliation.
func (v *PaymentVerifier) Verify(req VerifyRequest) (*VerifyResult, *VerificationError) {
	utils.LogInfo("Payment verification started for order %s, user ID: %d", req.OrderID, req.UserID)

	detail := &VerificationDetail{}

	// Step 1: request shape.
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, verificationError(CodeInvalidRequest, "order_id, payment_id and signature are required", nil)
	}
	if req.UserID == 0 {
		return nil, verificationError(CodeInvalidRequest, "user_id is required", nil)
	}
	if ok, msg := utils.ValidateEmail(req.UserEmail); !ok {
		return nil, verificationError(CodeInvalidRequest, msg, nil)
	}

	// Step 2: fraud scoring gates everything else; fail closed before the
	// signature check reveals anything.
	risk, checks, err := v.scorer.Score(FraudInput{
		UserID:            req.UserID,
		Email:             req.UserEmail,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
		DeviceFingerprint: req.DeviceFingerprint,
	})
	if err != nil {
		utils.LogError("Fraud scoring failed for order %s: %v", req.OrderID, err)
		return nil, verificationError(CodeSystemError, "Verification is temporarily unavailable", err)
	}
	detail.RiskScore = risk
	detail.FraudChecks = checks

	if err := v.attempts.RecordAttempt(req.UserID, req.OrderID, req.IPAddress, req.DeviceFingerprint); err != nil {
		utils.LogError("Failed to record payment attempt for order %s: %v", req.OrderID, err)
	}

	if risk >= HighRiskThreshold {
		v.recordFraudAttempt(req, risk, checks)
		return nil, verificationError(CodeHighRiskPayment,
			"This payment was flagged by our risk checks. Please contact support.", nil)
	}

	// Step 3: signature. A mismatch is security-relevant and audited.
	if !v.signer.Verify(req.OrderID, req.PaymentID, req.Signature) {
		v.recordSecurityViolation(req)
		return nil, verificationError(CodeInvalidSignature,
			"Payment signature verification failed. Do not retry; contact support.", nil)
	}
	detail.SignatureVerified = true

	// Step 4: the user id and email must belong to the same account.
	var user models.User
	if err := v.db.First(&user, req.UserID).Error; err != nil {
		utils.LogError("User lookup failed for user ID: %d: %v", req.UserID, err)
		return nil, verificationError(CodeUserVerificationFailed,
			"We could not verify your account. Please contact support.", err)
	}
	if !strings.EqualFold(user.Email, req.UserEmail) || user.IsBlocked {
		utils.LogError("User verification failed for user ID: %d, order %s", req.UserID, req.OrderID)
		return nil, verificationError(CodeUserVerificationFailed,
			"We could not verify your account. Please contact support.", nil)
	}
	detail.UserVerified = true

	// Step 5: the order must exist and belong to the user.
	order, err := v.orders.Get(req.OrderID, req.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, verificationError(CodeOrderNotFound,
				"Order not found. Please contact support with your payment reference.", nil)
		}
		return nil, verificationError(CodeSystemError, "Verification is temporarily unavailable", err)
	}
	detail.OrderVerified = true

	// Step 6: a replayed client call for an already-paid order is answered
	// with the existing subscription snapshot, not an error.
	if order.Status == models.OrderStatusPaid {
		utils.LogInfo("Order %s already paid, returning existing subscription for user ID: %d", req.OrderID, req.UserID)
		snapshot, err := v.subs.Status(req.UserID)
		if err != nil {
			return nil, verificationError(CodeSystemError, "Verification is temporarily unavailable", err)
		}
		detail.SubscriptionActivated = snapshot != nil && snapshot.Status == models.SubscriptionStatusActive
		return &VerifyResult{
			Message:      "Payment already verified",
			Subscription: snapshot,
			Verification: detail,
		}, nil
	}

	// Step 7: one logical unit - session success, order paid, subscription
	// active, ledger entry. Must reach a terminal outcome once started.
	var sub *models.Subscription
	txErr := v.db.Transaction(func(tx *gorm.DB) error {
		if err := v.states.TransitionTx(tx, req.OrderID, models.PaymentStateSuccess, nil); err != nil {
			// The session may be absent when the webhook path ran first, or
			// already terminal when a status poll lazily expired it before
			// the redirect arrived. Sessions are freely re-creatable; only
			// the order is canonical, so neither case blocks activation.
			if !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, ErrTerminalState) {
				return err
			}
			utils.LogInfo("No usable payment session for order %s, continuing: %v", req.OrderID, err)
		}

		if err := v.orders.TransitionTx(tx, req.OrderID, models.OrderStatusPaid, map[string]interface{}{
			"payment_id": req.PaymentID,
		}); err != nil {
			return err
		}

		plan, err := planForOrder(tx, order)
		if err != nil {
			return err
		}
		sub, err = v.subs.ActivateTx(tx, req.UserID, order.PlanCode, order.Amount, order.Currency, plan.IsTrial, plan.TrialDays)
		if err != nil {
			return err
		}

		_, _, err = v.ledger.EnsureForOrder(tx, &models.RevenueLedgerEntry{
			OrderID:   order.OrderID,
			PaymentID: req.PaymentID,
			UserID:    req.UserID,
			Amount:    order.Amount,
			Currency:  order.Currency,
			PlanCode:  order.PlanCode,
			Status:    models.RevenueStatusConfirmed,
			Source:    models.RevenueSourceVerification,
		})
		return err
	})
	if txErr != nil {
		utils.LogError("Activation failed for order %s, user ID: %d, payment %s: %v",
			req.OrderID, req.UserID, req.PaymentID, txErr)
		return nil, verificationError(CodeActivationFailed,
			"Your payment was verified but activation failed. Our team has been notified.", txErr)
	}
	detail.SubscriptionActivated = true

	// Step 8: best-effort confirmation.
	event := LifecycleEvent{
		Type:     EventPaymentConfirmed,
		UserID:   req.UserID,
		Email:    user.Email,
		PlanCode: sub.PlanCode,
		EndDate:  sub.EndDate,
		Amount:   order.Amount,
		Currency: order.Currency,
	}
	if err := v.notifier.Dispatch(event); err != nil {
		utils.LogError("Failed to dispatch payment confirmation for order %s: %v", req.OrderID, err)
	}

	utils.LogInfo("Payment verification completed for order %s, user ID: %d", req.OrderID, req.UserID)
	return &VerifyResult{
		Message:      "Payment verified and subscription activated",
		Subscription: Snapshot(sub),
		Verification: detail,
	}, nil
}

func (v *PaymentVerifier) recordFraudAttempt(req VerifyRequest, risk float64, checks []FraudCheck) {
	detail, err := json.Marshal(checks)
	if err != nil {
		detail = []byte("[]")
	}
	attempt := models.FraudAttempt{
		UserID:            req.UserID,
		OrderID:           req.OrderID,
		Email:             req.UserEmail,
		UserAgent:         req.UserAgent,
		IPAddress:         req.IPAddress,
		DeviceFingerprint: req.DeviceFingerprint,
		RiskScore:         risk,
		CheckDetail:       string(detail),
	}
	if err := v.db.Create(&attempt).Error; err != nil {
		utils.LogError("Failed to persist fraud attempt audit for order %s: %v", req.OrderID, err)
	}
	utils.LogError("High risk payment blocked for order %s, user ID: %d, risk: %.2f", req.OrderID, req.UserID, risk)
}

func (v *PaymentVerifier) recordSecurityViolation(req VerifyRequest) {
	violation := models.SecurityViolation{
		UserID:        req.UserID,
		OrderID:       req.OrderID,
		PaymentID:     req.PaymentID,
		ViolationType: models.ViolationInvalidSignature,
		Detail:        "payment signature did not match order/payment pair",
		IPAddress:     req.IPAddress,
	}
	if err := v.db.Create(&violation).Error; err != nil {
		utils.LogError("Failed to persist security violation audit for order %s: %v", req.OrderID, err)
	}
	utils.LogError("Invalid payment signature for order %s, user ID: %d", req.OrderID, req.UserID)
}

func planForOrder(tx *gorm.DB, order *models.PaymentOrder) (*models.Plan, error) {
	var plan models.Plan
	err := tx.Where("code = ?", order.PlanCode).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Plans can be retired between checkout and verification; fall back
		// to a paid activation with the order's own amount.
		return &models.Plan{Code: order.PlanCode, Amount: order.Amount, Currency: order.Currency}, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
