package services

import (
	"errors"

	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// PlanCatalog reads the purchasable plan tiers.
type PlanCatalog struct {
	db *gorm.DB
}

// NewPlanCatalog creates the catalog on the given database handle.
func NewPlanCatalog(db *gorm.DB) *PlanCatalog {
	return &PlanCatalog{db: db}
}

// Get returns an active plan by code.
func (c *PlanCatalog) Get(code string) (*models.Plan, error) {
	var plan models.Plan
	err := c.db.Where("code = ? AND active = ?", code, true).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// List returns all active plans.
func (c *PlanCatalog) List() ([]models.Plan, error) {
	var plans []models.Plan
	err := c.db.Where("active = ?", true).Order("amount ASC").Find(&plans).Error
	return plans, err
}

// Seed inserts the default plan catalog when it is empty.
func (c *PlanCatalog) Seed() error {
	defaults := []models.Plan{
		{Code: "starter_monthly", Name: "Starter", Amount: 499, Currency: "INR", Active: true},
		{Code: "pro_monthly", Name: "Pro", Amount: 999, Currency: "INR", Active: true},
		{Code: "pro_trial", Name: "Pro Trial", Amount: 0, Currency: "INR", IsTrial: true, TrialDays: 14, Active: true},
	}

	for _, plan := range defaults {
		var existing models.Plan
		err := c.db.Where("code = ?", plan.Code).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := c.db.Create(&plan).Error; err != nil {
				return err
			}
			utils.LogInfo("Seeded plan %s", plan.Code)
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
