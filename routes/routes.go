package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/renewly/renewly/controllers"
	"github.com/renewly/renewly/middleware"
	"github.com/renewly/renewly/utils"
	"gorm.io/gorm"
)

// Deps carries everything the router needs, wired by main.
type Deps struct {
	DB         *gorm.DB
	JWTSecret  string
	SweepToken string

	Payment      *controllers.PaymentController
	Subscription *controllers.SubscriptionController
	Webhook      *controllers.WebhookController
	Sweep        *controllers.SweepController
	Report       *controllers.RevenueReportController
}

// SetupRouter initializes and returns the Gin router with all routes.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()

	router.Use(utils.LoggerMiddleware())
	router.Use(utils.RecoveryMiddleware())
	router.Use(utils.RequestIDMiddleware())
	router.Use(utils.CORSMiddleware())
	router.Use(utils.SecurityHeadersMiddleware())

	// Gateway-facing webhook ingestion; deduplicated inside, so no auth
	// beyond the event id contract.
	router.POST("/webhooks/payment", d.Webhook.Handle)

	api := router.Group("/v1")
	{
		auth := middleware.AuthMiddleware(d.DB, d.JWTSecret)

		payment := api.Group("/payment", auth)
		{
			payment.POST("/initiate", d.Payment.Initiate)
			payment.POST("/verify", d.Payment.Verify)
			payment.GET("/receipt/:orderId", d.Report.Receipt)
		}

		subscription := api.Group("/subscription", auth)
		{
			subscription.POST("/cancel", d.Subscription.Cancel)
			subscription.POST("/reactivate", d.Subscription.Reactivate)
			subscription.POST("/auto-renew", d.Subscription.SetAutoRenew)
			subscription.GET("/status", d.Subscription.Status)
		}
	}

	internal := router.Group("/internal", middleware.OperatorTokenMiddleware(d.SweepToken))
	{
		internal.POST("/sweep", d.Sweep.Trigger)
		internal.GET("/revenue/export", d.Report.ExportExcel)
	}

	return router
}
