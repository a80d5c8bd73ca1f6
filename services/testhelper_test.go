package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/renewly/renewly/config"
	"github.com/renewly/renewly/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB returns an isolated in-memory database with the full schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := models.User{Email: email, FirstName: "Test", LastName: "User"}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func seedPlan(t *testing.T, db *gorm.DB, code string, amount float64) *models.Plan {
	t.Helper()
	plan := models.Plan{Code: code, Name: code, Amount: amount, Currency: "INR", Active: true}
	require.NoError(t, db.Create(&plan).Error)
	return &plan
}

func seedOrder(t *testing.T, db *gorm.DB, orderID string, userID uint, planCode string, amount float64) *models.PaymentOrder {
	t.Helper()
	order := models.PaymentOrder{
		OrderID:  orderID,
		UserID:   userID,
		PlanCode: planCode,
		Amount:   amount,
		Currency: "INR",
		Status:   models.OrderStatusCreated,
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func seedActiveSubscription(t *testing.T, db *gorm.DB, userID uint, endDate time.Time) *models.Subscription {
	t.Helper()
	next := endDate.AddDate(0, 0, 30)
	sub := models.Subscription{
		UserID:            userID,
		PlanCode:          "pro_monthly",
		Status:            models.SubscriptionStatusActive,
		StartDate:         endDate.AddDate(0, -1, 0),
		EndDate:           endDate,
		AutoRenew:         true,
		NextBillingDate:   &next,
		NextPaymentAmount: 999,
		Currency:          "INR",
	}
	require.NoError(t, db.Create(&sub).Error)
	return &sub
}

// eventRecorder captures dispatched lifecycle events for assertions.
type eventRecorder struct {
	events []LifecycleEvent
}

func (r *eventRecorder) Dispatch(event LifecycleEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) types() []string {
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
