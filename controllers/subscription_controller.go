package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/renewly/renewly/models"
	"github.com/renewly/renewly/services"
	"github.com/renewly/renewly/utils"
)

// SubscriptionController exposes the user-facing lifecycle operations.
type SubscriptionController struct {
	subs *services.SubscriptionService
}

// NewSubscriptionController wires the controller.
func NewSubscriptionController(subs *services.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{subs: subs}
}

// Cancel cancels the caller's subscription. Without immediate the existing
// end date stays the access-loss date.
// POST /v1/subscription/cancel
func (sc *SubscriptionController) Cancel(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Reason    string `json:"reason"`
		Immediate bool   `json:"immediate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	result, err := sc.subs.Cancel(user.ID, req.Reason, req.Immediate)
	if err != nil {
		utils.LogError("Cancel failed for user ID: %d: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to cancel subscription", nil)
		return
	}
	if !result.Success {
		utils.BadRequest(c, result.Message, nil)
		return
	}

	utils.Success(c, result.Message, gin.H{
		"effective_date": result.EffectiveDate,
	})
}

// Reactivate restores a cancelled subscription.
// POST /v1/subscription/reactivate
func (sc *SubscriptionController) Reactivate(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := sc.subs.Reactivate(user.ID)
	if err != nil {
		utils.LogError("Reactivate failed for user ID: %d: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to reactivate subscription", nil)
		return
	}
	if !result.Success {
		utils.BadRequest(c, result.Message, nil)
		return
	}

	utils.Success(c, result.Message, nil)
}

// SetAutoRenew toggles automatic renewal without touching the status.
// POST /v1/subscription/auto-renew
func (sc *SubscriptionController) SetAutoRenew(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request. enabled is required", err.Error())
		return
	}

	result, err := sc.subs.SetAutoRenew(user.ID, *req.Enabled)
	if err != nil {
		utils.LogError("Auto-renew toggle failed for user ID: %d: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to update auto-renew", nil)
		return
	}
	if !result.Success {
		utils.BadRequest(c, result.Message, nil)
		return
	}

	utils.Success(c, result.Message, nil)
}

// Status returns the caller's subscription snapshot.
// GET /v1/subscription/status
func (sc *SubscriptionController) Status(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	snapshot, err := sc.subs.Status(user.ID)
	if err != nil {
		utils.LogError("Status query failed for user ID: %d: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to fetch subscription status", nil)
		return
	}
	if snapshot == nil {
		utils.Success(c, "No active subscription", gin.H{"subscription": nil})
		return
	}

	utils.Success(c, "Subscription status retrieved", gin.H{"subscription": snapshot})
}

func currentUser(c *gin.Context) (models.User, bool) {
	userVal, exists := c.Get("user")
	if !exists {
		utils.LogError("User not found in context")
		utils.Unauthorized(c, "User not found")
		return models.User{}, false
	}
	return userVal.(models.User), true
}
