package services

import (
	"testing"
	"time"

	"github.com/renewly/renewly/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testGatewaySecret = "test_gateway_secret"

func newTestVerifier(t *testing.T, db *gorm.DB, recorder *eventRecorder) *PaymentVerifier {
	t.Helper()
	signer := NewSignatureVerifier(testGatewaySecret)
	attempts := NewAttemptStore(db)
	return NewPaymentVerifier(
		db,
		signer,
		NewFraudScorer(attempts),
		attempts,
		NewOrderStore(db),
		NewPaymentStateStore(db, 30*time.Minute),
		NewSubscriptionService(db, recorder),
		NewRevenueLedger(db),
		recorder,
	)
}

func cleanVerifyRequest(userID uint, orderID, email string) VerifyRequest {
	signer := NewSignatureVerifier(testGatewaySecret)
	paymentID := "pay_" + orderID
	return VerifyRequest{
		OrderID:           orderID,
		PaymentID:         paymentID,
		Signature:         signer.Sign(orderID, paymentID),
		UserID:            userID,
		UserEmail:         email,
		UserAgent:         "Mozilla/5.0 (X11; Linux x86_64)",
		IPAddress:         "203.0.113.20",
		DeviceFingerprint: "fp-" + orderID,
	}
}

func TestPaymentVerifier_HappyPath(t *testing.T) {
	db := openTestDB(t)
	recorder := &eventRecorder{}
	verifier := newTestVerifier(t, db, recorder)
	user := seedUser(t, db, "happy@example.com")
	seedPlan(t, db, "pro_monthly", 999)
	seedOrder(t, db, "order_happy", user.ID, "pro_monthly", 999)
	require.NoError(t, NewPaymentStateStore(db, 30*time.Minute).Create(&models.PaymentState{
		OrderID: "order_happy", UserID: user.ID, PlanCode: "pro_monthly", Amount: 999, Currency: "INR",
	}))

	result, verr := verifier.Verify(cleanVerifyRequest(user.ID, "order_happy", "happy@example.com"))
	require.Nil(t, verr)

	assert.Equal(t, "Payment verified and subscription activated", result.Message)
	require.NotNil(t, result.Subscription)
	assert.Equal(t, models.SubscriptionStatusActive, result.Subscription.Status)
	assert.Equal(t, "pro_monthly", result.Subscription.PlanCode)
	assert.True(t, result.Verification.SignatureVerified)
	assert.True(t, result.Verification.UserVerified)
	assert.True(t, result.Verification.OrderVerified)
	assert.True(t, result.Verification.SubscriptionActivated)
	assert.Less(t, result.Verification.RiskScore, HighRiskThreshold)

	var order models.PaymentOrder
	require.NoError(t, db.Where("order_id = ?", "order_happy").First(&order).Error)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, "pay_order_happy", order.PaymentID)

	var state models.PaymentState
	require.NoError(t, db.Where("order_id = ?", "order_happy").First(&state).Error)
	assert.Equal(t, models.PaymentStateSuccess, state.Status)

	entry, err := NewRevenueLedger(db).GetByOrderID("order_happy")
	require.NoError(t, err)
	assert.Equal(t, models.RevenueStatusConfirmed, entry.Status)
	assert.Equal(t, models.RevenueSourceVerification, entry.Source)
	assert.Equal(t, 999.0, entry.Amount)

	assert.Contains(t, recorder.types(), EventPaymentConfirmed)
}

func TestPaymentVerifier_ReplayedCallIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "replay@example.com")
	seedPlan(t, db, "pro_monthly", 999)
	seedOrder(t, db, "order_replay", user.ID, "pro_monthly", 999)

	req := cleanVerifyRequest(user.ID, "order_replay", "replay@example.com")
	_, verr := verifier.Verify(req)
	require.Nil(t, verr)

	result, verr := verifier.Verify(req)
	require.Nil(t, verr)
	assert.Equal(t, "Payment already verified", result.Message)
	require.NotNil(t, result.Subscription)
	assert.Equal(t, models.SubscriptionStatusActive, result.Subscription.Status)

	var ledgerCount int64
	require.NoError(t, db.Model(&models.RevenueLedgerEntry{}).Where("order_id = ?", "order_replay").Count(&ledgerCount).Error)
	assert.Equal(t, int64(1), ledgerCount)
}

func TestPaymentVerifier_ExpiredSessionDoesNotBlockActivation(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "slowpay@example.com")
	seedPlan(t, db, "pro_monthly", 999)
	seedOrder(t, db, "order_slow", user.ID, "pro_monthly", 999)

	states := NewPaymentStateStore(db, 30*time.Minute)
	require.NoError(t, states.Create(&models.PaymentState{
		OrderID:   "order_slow",
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))

	// A status poll lands before the gateway redirect and lazily expires
	// the session.
	got, err := states.Get("order_slow")
	require.NoError(t, err)
	require.Equal(t, models.PaymentStateExpired, got.Status)

	result, verr := verifier.Verify(cleanVerifyRequest(user.ID, "order_slow", "slowpay@example.com"))
	require.Nil(t, verr)
	assert.Equal(t, "Payment verified and subscription activated", result.Message)

	var order models.PaymentOrder
	require.NoError(t, db.Where("order_id = ?", "order_slow").First(&order).Error)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	// The expired session stays as it ended; the order is canonical.
	var state models.PaymentState
	require.NoError(t, db.Where("order_id = ?", "order_slow").First(&state).Error)
	assert.Equal(t, models.PaymentStateExpired, state.Status)

	entry, err := NewRevenueLedger(db).GetByOrderID("order_slow")
	require.NoError(t, err)
	assert.Equal(t, models.RevenueStatusConfirmed, entry.Status)
}

func TestPaymentVerifier_HighRiskBlocksBeforeSignature(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "scam@mailinator.com")
	seedOrder(t, db, "order_risky", user.ID, "pro_monthly", 999)

	// Disposable email plus automation user agent plus three prior attempts;
	// the optional metadata is absent so every evaluable check fails.
	attempts := NewAttemptStore(db)
	for i := 0; i < 3; i++ {
		require.NoError(t, attempts.RecordAttempt(user.ID, "order_risky", "", ""))
	}

	req := VerifyRequest{
		OrderID:   "order_risky",
		PaymentID: "pay_risky",
		Signature: "not-even-checked",
		UserID:    user.ID,
		UserEmail: "scam@mailinator.com",
		UserAgent: "python-requests/2.31",
	}

	result, verr := verifier.Verify(req)
	assert.Nil(t, result)
	require.NotNil(t, verr)
	assert.Equal(t, CodeHighRiskPayment, verr.Code)

	var audit models.FraudAttempt
	require.NoError(t, db.Where("order_id = ?", "order_risky").First(&audit).Error)
	assert.Equal(t, user.ID, audit.UserID)
	assert.GreaterOrEqual(t, audit.RiskScore, HighRiskThreshold)
	assert.Contains(t, audit.CheckDetail, "disposable_email")

	// Activation never ran.
	var order models.PaymentOrder
	require.NoError(t, db.Where("order_id = ?", "order_risky").First(&order).Error)
	assert.Equal(t, models.OrderStatusCreated, order.Status)
}

func TestPaymentVerifier_InvalidSignatureIsAudited(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "forged@example.com")
	seedOrder(t, db, "order_forged", user.ID, "pro_monthly", 999)

	req := cleanVerifyRequest(user.ID, "order_forged", "forged@example.com")
	req.Signature = NewSignatureVerifier("wrong_secret").Sign(req.OrderID, req.PaymentID)

	result, verr := verifier.Verify(req)
	assert.Nil(t, result)
	require.NotNil(t, verr)
	assert.Equal(t, CodeInvalidSignature, verr.Code)

	var violation models.SecurityViolation
	require.NoError(t, db.Where("order_id = ?", "order_forged").First(&violation).Error)
	assert.Equal(t, models.ViolationInvalidSignature, violation.ViolationType)
	assert.Equal(t, user.ID, violation.UserID)

	var order models.PaymentOrder
	require.NoError(t, db.Where("order_id = ?", "order_forged").First(&order).Error)
	assert.Equal(t, models.OrderStatusCreated, order.Status)
}

func TestPaymentVerifier_EmailMismatchFailsUserCheck(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "real@example.com")
	seedOrder(t, db, "order_mismatch", user.ID, "pro_monthly", 999)

	_, verr := verifier.Verify(cleanVerifyRequest(user.ID, "order_mismatch", "someone-else@example.com"))
	require.NotNil(t, verr)
	assert.Equal(t, CodeUserVerificationFailed, verr.Code)
}

func TestPaymentVerifier_BlockedUserRejected(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "blocked@example.com")
	require.NoError(t, db.Model(user).Update("is_blocked", true).Error)
	seedOrder(t, db, "order_blocked", user.ID, "pro_monthly", 999)

	_, verr := verifier.Verify(cleanVerifyRequest(user.ID, "order_blocked", "blocked@example.com"))
	require.NotNil(t, verr)
	assert.Equal(t, CodeUserVerificationFailed, verr.Code)
}

func TestPaymentVerifier_OrderNotFound(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "noorder@example.com")

	_, verr := verifier.Verify(cleanVerifyRequest(user.ID, "order_missing", "noorder@example.com"))
	require.NotNil(t, verr)
	assert.Equal(t, CodeOrderNotFound, verr.Code)
}

func TestPaymentVerifier_OrderOwnedByAnotherUser(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	owner := seedUser(t, db, "towner@example.com")
	caller := seedUser(t, db, "tcaller@example.com")
	seedOrder(t, db, "order_foreign", owner.ID, "pro_monthly", 999)

	_, verr := verifier.Verify(cleanVerifyRequest(caller.ID, "order_foreign", "tcaller@example.com"))
	require.NotNil(t, verr)
	assert.Equal(t, CodeOrderNotFound, verr.Code)
}

func TestPaymentVerifier_RequestValidation(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})

	cases := []struct {
		name string
		req  VerifyRequest
	}{
		{"missing order id", VerifyRequest{PaymentID: "p", Signature: "s", UserID: 1, UserEmail: "a@example.com"}},
		{"missing payment id", VerifyRequest{OrderID: "o", Signature: "s", UserID: 1, UserEmail: "a@example.com"}},
		{"missing signature", VerifyRequest{OrderID: "o", PaymentID: "p", UserID: 1, UserEmail: "a@example.com"}},
		{"missing user id", VerifyRequest{OrderID: "o", PaymentID: "p", Signature: "s", UserEmail: "a@example.com"}},
		{"bad email", VerifyRequest{OrderID: "o", PaymentID: "p", Signature: "s", UserID: 1, UserEmail: "not-an-email"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, verr := verifier.Verify(tc.req)
			require.NotNil(t, verr)
			assert.Equal(t, CodeInvalidRequest, verr.Code)
		})
	}
}

func TestPaymentVerifier_RetiredPlanFallsBackToOrderAmount(t *testing.T) {
	db := openTestDB(t)
	verifier := newTestVerifier(t, db, &eventRecorder{})
	user := seedUser(t, db, "retired@example.com")
	// No plan row exists for the order's plan code.
	seedOrder(t, db, "order_retired", user.ID, "legacy_monthly", 799)

	result, verr := verifier.Verify(cleanVerifyRequest(user.ID, "order_retired", "retired@example.com"))
	require.Nil(t, verr)
	require.NotNil(t, result.Subscription)
	assert.Equal(t, "legacy_monthly", result.Subscription.PlanCode)
	assert.False(t, result.Subscription.IsTrial)

	entry, err := NewRevenueLedger(db).GetByOrderID("order_retired")
	require.NoError(t, err)
	assert.Equal(t, 799.0, entry.Amount)
}
