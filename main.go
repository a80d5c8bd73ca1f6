package main

import (
	"context"
	"log"

	"github.com/renewly/renewly/config"
	"github.com/renewly/renewly/controllers"
	"github.com/renewly/renewly/routes"
	"github.com/renewly/renewly/services"
	"github.com/renewly/renewly/utils"
)

func main() {
	if err := utils.InitLogger("logs"); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError("Error loading config: %v", err)
		log.Fatal("Error loading config:", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.LogError("Error initializing database: %v", err)
		log.Fatal("Error initializing database:", err)
	}

	plans := services.NewPlanCatalog(db)
	if err := plans.Seed(); err != nil {
		utils.LogError("Failed to seed plan catalog: %v", err)
		log.Fatal("Failed to seed plan catalog:", err)
	}

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.SMTPHost != "" {
		notifier = services.NewEmailNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	}

	signer := services.NewSignatureVerifier(cfg.RazorpaySecret)
	attempts := services.NewAttemptStore(db)
	scorer := services.NewFraudScorer(attempts)
	orders := services.NewOrderStore(db)
	states := services.NewPaymentStateStore(db, cfg.PaymentStateTTL)
	subs := services.NewSubscriptionService(db, notifier)
	ledger := services.NewRevenueLedger(db)
	verifier := services.NewPaymentVerifier(db, signer, scorer, attempts, orders, states, subs, ledger, notifier)
	webhooks := services.NewWebhookService(db, orders, states, subs, ledger)

	charger := services.NewGatewayCharger(cfg.RazorpayKey, cfg.RazorpaySecret)
	sweeper := services.NewRenewalSweeper(db, subs, ledger, charger, notifier)
	sweeper.Start(context.Background(), cfg.SweepInterval)

	router := routes.SetupRouter(routes.Deps{
		DB:           db,
		JWTSecret:    cfg.JWTSecret,
		SweepToken:   cfg.SweepToken,
		Payment:      controllers.NewPaymentController(verifier, orders, states, plans, cfg.RazorpayKey, cfg.RazorpaySecret),
		Subscription: controllers.NewSubscriptionController(subs),
		Webhook:      controllers.NewWebhookController(webhooks),
		Sweep:        controllers.NewSweepController(sweeper),
		Report:       controllers.NewRevenueReportController(ledger, orders),
	})

	utils.LogInfo("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		utils.LogError("Error starting server: %v", err)
		log.Fatal("Error starting server:", err)
	}
}
