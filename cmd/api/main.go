package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/temidayoh/esusu/docs"
	"github.com/temidayoh/esusu/internal/config"
	"github.com/temidayoh/esusu/internal/contribution"
	"github.com/temidayoh/esusu/internal/database"
	"github.com/temidayoh/esusu/internal/group"
	"github.com/temidayoh/esusu/internal/notification"
	"github.com/temidayoh/esusu/internal/payment"
	"github.com/temidayoh/esusu/internal/user"
	"github.com/temidayoh/esusu/pkg/logging"
	mw "github.com/temidayoh/esusu/pkg/middleware"
)

// @title           Esusu API
// @version         1.0
// @description     Rotating savings group management and payment reconciliation API
// @BasePath        /api/v1
func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	logging.Setup()

	// Load configuration
	cfg := config.Load()

	// Initialize database connection
	db, err := database.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("connected to database")

	// Contribution feature
	contributionRepo := contribution.NewRepository(db)
	contributionService := contribution.NewService(contributionRepo, cfg.PenaltyPercent, cfg.GracePeriod)
	contributionHandler := contribution.NewHandler(contributionService)

	// Notification feature
	notificationRepo := notification.NewRepository(db)
	notificationService := notification.NewService(notificationRepo)
	notificationHandler := notification.NewHandler(notificationService)

	// User feature
	userRepo := user.NewRepository(db)
	userService := user.NewService(userRepo, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	// Group feature
	groupRepo := group.NewRepository(db, contributionRepo)
	groupService := group.NewService(groupRepo, notificationService)
	groupHandler := group.NewHandler(groupService)

	// Payment feature (reconciliation engine + provider client)
	providerClient := payment.NewClient(cfg.ProviderBaseURL, cfg.ProviderSecret, cfg.VerifyTimeout)
	paymentRepo := payment.NewRepository(db, groupRepo, contributionRepo, notificationRepo)
	paymentService := payment.NewService(paymentRepo, providerClient, "paystack", cfg.VerifyTimeout, groupRepo, contributionRepo)
	paymentHandler := payment.NewHandler(paymentService)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints: registration and the provider webhook
		r.Post("/users", userHandler.Register)
		r.Post("/payments/webhook", paymentHandler.Webhook)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(cfg.JWTSecret))

			r.Mount("/users", userHandler.Routes())
			r.Mount("/groups", groupHandler.Routes())
			r.Mount("/contributions", contributionHandler.Routes())
			r.Mount("/payments", paymentHandler.Routes())
			r.Mount("/notifications", notificationHandler.Routes())
		})
	})

	slog.Info("server starting", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
