package services

import (
	"testing"
	"time"

	"github.com/renewly/renewly/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRevenueLedger_AppendAssignsReferenceAndTimestamps(t *testing.T) {
	db := openTestDB(t)
	ledger := NewRevenueLedger(db)

	entry := &models.RevenueLedgerEntry{
		OrderID: "order_rl1", UserID: 1, Amount: 999, Currency: "INR",
		PlanCode: "pro_monthly", Status: models.RevenueStatusConfirmed,
		Source: models.RevenueSourceVerification,
	}
	require.NoError(t, ledger.Append(entry))

	assert.NotEmpty(t, entry.ReferenceID)
	require.NotNil(t, entry.ConfirmedAt)
	assert.WithinDuration(t, time.Now(), *entry.ConfirmedAt, 5*time.Second)
}

func TestRevenueLedger_AppendDefaultsToPending(t *testing.T) {
	db := openTestDB(t)
	ledger := NewRevenueLedger(db)

	entry := &models.RevenueLedgerEntry{OrderID: "order_rl2", UserID: 1, Amount: 499, Currency: "INR"}
	require.NoError(t, ledger.Append(entry))

	assert.Equal(t, models.RevenueStatusPending, entry.Status)
	assert.Nil(t, entry.ConfirmedAt)
}

func TestRevenueLedger_EnsureForOrderIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ledger := NewRevenueLedger(db)

	first := &models.RevenueLedgerEntry{
		OrderID: "order_rl3", UserID: 1, Amount: 999, Currency: "INR",
		Status: models.RevenueStatusConfirmed, Source: models.RevenueSourceVerification,
	}
	entry, created, err := ledger.EnsureForOrder(db, first)
	require.NoError(t, err)
	assert.True(t, created)

	// A second funding attempt for the same order returns the existing entry.
	second := &models.RevenueLedgerEntry{
		OrderID: "order_rl3", UserID: 1, Amount: 999, Currency: "INR",
		Status: models.RevenueStatusPending, Source: models.RevenueSourceWebhook,
	}
	got, created, errAgain := ledger.EnsureForOrder(db, second)
	require.NoError(t, errAgain)
	assert.False(t, created)
	assert.Equal(t, entry.ReferenceID, got.ReferenceID)
	assert.Equal(t, models.RevenueSourceVerification, got.Source)

	var count int64
	require.NoError(t, db.Model(&models.RevenueLedgerEntry{}).Where("order_id = ?", "order_rl3").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRevenueLedger_ConfirmAdvancesPendingOnly(t *testing.T) {
	db := openTestDB(t)
	ledger := NewRevenueLedger(db)

	entry := &models.RevenueLedgerEntry{OrderID: "order_rl4", UserID: 1, Amount: 999, Currency: "INR"}
	require.NoError(t, ledger.Append(entry))
	require.NoError(t, ledger.Confirm(entry.ID))

	got, err := ledger.GetByOrderID("order_rl4")
	require.NoError(t, err)
	assert.Equal(t, models.RevenueStatusConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	firstConfirmed := *got.ConfirmedAt

	// A second confirm does not move the timestamp.
	require.NoError(t, ledger.Confirm(entry.ID))
	got, err = ledger.GetByOrderID("order_rl4")
	require.NoError(t, err)
	assert.Equal(t, firstConfirmed.Unix(), got.ConfirmedAt.Unix())
}

func TestRevenueLedger_ListBetween(t *testing.T) {
	db := openTestDB(t)
	ledger := NewRevenueLedger(db)

	for _, orderID := range []string{"order_w1", "order_w2"} {
		require.NoError(t, ledger.Append(&models.RevenueLedgerEntry{
			OrderID: orderID, UserID: 1, Amount: 999, Currency: "INR",
			Status: models.RevenueStatusConfirmed, Source: models.RevenueSourceVerification,
		}))
	}

	entries, err := ledger.ListBetween(time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = ledger.ListBetween(time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlanCatalog_SeedIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	catalog := NewPlanCatalog(db)

	require.NoError(t, catalog.Seed())
	require.NoError(t, catalog.Seed())

	plans, err := catalog.List()
	require.NoError(t, err)
	assert.Len(t, plans, 3)

	plan, err := catalog.Get("pro_trial")
	require.NoError(t, err)
	assert.True(t, plan.IsTrial)
	assert.Equal(t, 14, plan.TrialDays)

	_, err = catalog.Get("nonexistent")
	assert.Error(t, err)
}
