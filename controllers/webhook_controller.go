package controllers

import (
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/renewly/renewly/services"
	"github.com/renewly/renewly/utils"
)

// WebhookController ingests asynchronous gateway events. The gateway gets
// its acknowledgement as soon as the event row reaches received, so
// gateway-side retry storms never depend on business-effect latency.
type WebhookController struct {
	svc *services.WebhookService
}

// NewWebhookController wires the controller.
func NewWebhookController(svc *services.WebhookService) *WebhookController {
	return &WebhookController{svc: svc}
}

// Handle accepts one gateway event.
// POST /webhooks/payment
func (wc *WebhookController) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.LogError("Failed to read webhook body: %v", err)
		utils.BadRequest(c, "Unreadable payload", nil)
		return
	}

	var event services.InboundEvent
	if err := json.Unmarshal(body, &event); err != nil {
		utils.LogError("Failed to parse webhook payload: %v", err)
		utils.BadRequest(c, "Malformed payload", nil)
		return
	}
	if event.EventID == "" {
		utils.BadRequest(c, "event_id is required", nil)
		return
	}
	event.Raw = string(body)

	row, duplicate, err := wc.svc.Ingest(event)
	if err != nil {
		utils.LogError("Failed to ingest webhook event %s: %v", event.EventID, err)
		utils.InternalServerError(c, "Failed to record event", nil)
		return
	}

	if duplicate {
		// The earlier delivery owns processing; just acknowledge.
		utils.Success(c, "Event already received", gin.H{"event_id": row.EventID, "status": row.Status})
		return
	}

	utils.Success(c, "Event received", gin.H{"event_id": row.EventID, "status": row.Status})

	go func(eventID string) {
		if err := wc.svc.Process(eventID); err != nil {
			utils.LogError("Webhook processing failed for event %s: %v", eventID, err)
		}
	}(row.EventID)
}
