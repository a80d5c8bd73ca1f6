package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/renewly/renewly/services"
	"github.com/renewly/renewly/utils"
)

// SweepController exposes the manual renewal sweep trigger. The scheduler
// runs the same sweep on its interval; this endpoint is the operator
// override and is mounted behind the operator token middleware.
type SweepController struct {
	sweeper *services.RenewalSweeper
}

// NewSweepController wires the controller.
func NewSweepController(sweeper *services.RenewalSweeper) *SweepController {
	return &SweepController{sweeper: sweeper}
}

// Trigger runs one sweep synchronously and reports its counters.
// POST /internal/sweep
func (sc *SweepController) Trigger(c *gin.Context) {
	utils.LogInfo("Manual renewal sweep triggered from %s", c.ClientIP())
	result := sc.sweeper.Run(c.Request.Context())
	utils.Success(c, "Renewal sweep completed", gin.H{
		"processed": result.Processed,
		"errors":    result.Errors,
	})
}
