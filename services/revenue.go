package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// RevenueLedger is the append-only record of confirmed and expected monetary
// transactions. Entries are never mutated except for status advancement and
// never deleted.
type RevenueLedger struct {
	db *gorm.DB
}

// NewRevenueLedger creates the ledger on the given database handle.
func NewRevenueLedger(db *gorm.DB) *RevenueLedger {
	return &RevenueLedger{db: db}
}

// Append inserts a new ledger entry with a fresh reference id.
func (l *RevenueLedger) Append(entry *models.RevenueLedgerEntry) error {
	return l.AppendTx(l.db, entry)
}

// AppendTx is Append on the caller's transaction handle.
func (l *RevenueLedger) AppendTx(tx *gorm.DB, entry *models.RevenueLedgerEntry) error {
	if entry.ReferenceID == "" {
		entry.ReferenceID = uuid.New().String()
	}
	if entry.Status == "" {
		entry.Status = models.RevenueStatusPending
	}
	if entry.Status == models.RevenueStatusConfirmed && entry.ConfirmedAt == nil {
		now := time.Now()
		entry.ConfirmedAt = &now
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append ledger entry for order %s: %w", entry.OrderID, err)
	}
	utils.LogInfo("Appended revenue ledger entry %s for order %s, source: %s, status: %s",
		entry.ReferenceID, entry.OrderID, entry.Source, entry.Status)
	return nil
}

// EnsureForOrder appends an entry for the order unless one already exists,
// in which case the existing entry is returned unchanged. Both the
// synchronous verification path and the webhook path fund the same order at
// most once through this guard.
func (l *RevenueLedger) EnsureForOrder(tx *gorm.DB, entry *models.RevenueLedgerEntry) (*models.RevenueLedgerEntry, bool, error) {
	var existing models.RevenueLedgerEntry
	err := tx.Where("order_id = ?", entry.OrderID).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if err := l.AppendTx(tx, entry); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Confirm advances a pending entry to confirmed and stamps confirmed-at.
func (l *RevenueLedger) Confirm(entryID uint) error {
	now := time.Now()
	res := l.db.Model(&models.RevenueLedgerEntry{}).
		Where("id = ? AND status = ?", entryID, models.RevenueStatusPending).
		Updates(map[string]interface{}{
			"status":       models.RevenueStatusConfirmed,
			"confirmed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	return nil
}

// GetByOrderID returns the ledger entry for an order, if any.
func (l *RevenueLedger) GetByOrderID(orderID string) (*models.RevenueLedgerEntry, error) {
	var entry models.RevenueLedgerEntry
	err := l.db.Where("order_id = ?", orderID).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListBetween returns entries created inside [start, end], newest first.
func (l *RevenueLedger) ListBetween(start, end time.Time) ([]models.RevenueLedgerEntry, error) {
	var entries []models.RevenueLedgerEntry
	err := l.db.Where("created_at >= ? AND created_at <= ?", start, end).
		Order("created_at DESC").
		Find(&entries).Error
	return entries, err
}
