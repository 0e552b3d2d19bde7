package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pk65arya/PayoutAutomationSystem/internal/config"
	"github.com/pk65arya/PayoutAutomationSystem/internal/gateway"
	"github.com/pk65arya/PayoutAutomationSystem/internal/handlers"
	"github.com/pk65arya/PayoutAutomationSystem/internal/mail"
	"github.com/pk65arya/PayoutAutomationSystem/internal/middleware"
	"github.com/pk65arya/PayoutAutomationSystem/internal/repository"
	"github.com/pk65arya/PayoutAutomationSystem/internal/services"
)

func RegisterRoutes(app *fiber.App, cfg *config.Config, db *pgxpool.Pool) error {
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	var storageService services.StorageService
	if cfg.SupabaseURL != "" && cfg.SupabaseBucket != "" && cfg.SupabaseServiceKey != "" {
		storageService = services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey)
	}
	mailer := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	stripeClient := gateway.NewStripeClient(cfg.StripeAPIKey, cfg.StripeWebhookSecret)

	auditService := services.NewAuditService(auditRepo)
	sessionService := services.NewSessionService(sessionRepo, userRepo, auditService)
	paymentService := services.NewPaymentService(db, paymentRepo, sessionRepo, userRepo, auditService, stripeClient)
	receiptService := services.NewReceiptService(paymentRepo, userRepo, storageService, mailer, auditService)

	authHandler := handlers.NewAuthHandler(userRepo, cfg.JWTSecret)
	userHandler := handlers.NewUserHandler(userRepo)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	paymentHandler := handlers.NewPaymentHandler(paymentService, receiptService, auditService, stripeClient)
	auditHandler := handlers.NewAuditHandler(auditService)

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	// Processor callbacks authenticate via signature, not via JWT.
	api.Post("/webhooks/stripe", paymentHandler.Webhook)

	protected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	users := protected.Group("/users")
	users.Get("/mentors", userHandler.ListMentors)
	users.Put("/bank-details", userHandler.UpdateBankDetails)
	users.Put("/:id/bank-details", userHandler.UpdateBankDetails)
	users.Get("/:id", userHandler.GetUser)

	sessions := protected.Group("/sessions")
	sessions.Post("", sessionHandler.CreateSession)
	sessions.Get("", sessionHandler.ListSessions)
	sessions.Post("/calculate", sessionHandler.CalculateSession)
	sessions.Get("/:id", sessionHandler.GetSession)
	sessions.Put("/:id", sessionHandler.UpdateSession)
	sessions.Delete("/:id", sessionHandler.DeleteSession)
	sessions.Post("/:id/approve", sessionHandler.ApproveSession)
	sessions.Post("/:id/reject", sessionHandler.RejectSession)

	payments := protected.Group("/payments")
	payments.Post("", paymentHandler.CreatePayment)
	payments.Get("", paymentHandler.ListPayments)
	payments.Post("/simulate", paymentHandler.SimulatePayment)
	payments.Get("/:id", paymentHandler.GetPayment)
	payments.Delete("/:id", paymentHandler.DeletePayment)
	payments.Post("/:id/settle", paymentHandler.SettlePayment)
	payments.Post("/:id/confirm", paymentHandler.ConfirmPayment)
	payments.Put("/:id/status", paymentHandler.UpdateStatus)
	payments.Post("/:id/receipt", paymentHandler.GenerateReceipt)
	payments.Post("/:id/receipt/send", paymentHandler.SendReceipt)
	payments.Get("/:id/audit", paymentHandler.AuditTrail)

	protected.Get("/audit-logs", auditHandler.ListAuditLogs)

	return registerDocsRoutes(app, cfg)
}
