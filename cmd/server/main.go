package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	billingapp "github.com/flowmetry/backend/internal/application/billing"
	"github.com/flowmetry/backend/internal/application/ingestion"
	domainbilling "github.com/flowmetry/backend/internal/domain/billing"
	"github.com/flowmetry/backend/internal/infrastructure/billing"
	"github.com/flowmetry/backend/internal/infrastructure/config"
	"github.com/flowmetry/backend/internal/infrastructure/logger"
	"github.com/flowmetry/backend/internal/infrastructure/persistence"
	"github.com/flowmetry/backend/internal/infrastructure/ratelimit"
	"github.com/flowmetry/backend/internal/infrastructure/scheduler"
	"github.com/flowmetry/backend/internal/infrastructure/security"
	"github.com/flowmetry/backend/internal/interfaces/http/handler"
	"github.com/flowmetry/backend/internal/interfaces/http/middleware"
	"github.com/flowmetry/backend/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Flowmetry Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize Redis for rate limit counters
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis", zap.Error(err))
		}
	}()
	counterStore := ratelimit.NewRedisCounterStore(redisClient, "ratelimit")

	// Initialize repositories
	recordRepo := persistence.NewExecutionRecordRepository(db.DB)
	budgetRepo := persistence.NewUsageBudgetRepository(db.DB)
	tenantRepo := persistence.NewTenantRepository(db.DB)
	metricRepo := persistence.NewSLAMetricRepository(db.DB)
	creditRepo := persistence.NewSLACreditRepository(db.DB)

	// Webhook and internal request authentication
	webhookVerifier := security.NewWebhookVerifier(cfg.Webhook.Secret, cfg.Webhook.PreviousSecrets)
	serviceVerifier := security.NewServiceVerifier(cfg.Internal.Secret, cfg.Internal.MaxSkew)

	// Initialize application services
	rateLimiter := ingestion.NewRateLimiter(counterStore, ingestion.RateLimiterConfig{
		Window:      cfg.RateLimit.Window,
		APIKeyLimit: cfg.RateLimit.APIKeyLimit,
		IPLimit:     cfg.RateLimit.IPLimit,
	}, log)

	pricePerExecution, err := decimal.NewFromString(cfg.Usage.PricePerExecutionUSD)
	if err != nil {
		log.Fatal("Invalid price per execution", zap.Error(err))
	}
	webhookService := ingestion.NewWebhookService(webhookVerifier, rateLimiter, recordRepo,
		ingestion.WebhookServiceConfig{DefaultCostPerExecution: pricePerExecution}, log)

	defaultMonthlyUSD, err := decimal.NewFromString(cfg.Budget.DefaultMonthlyUSD)
	if err != nil {
		log.Fatal("Invalid default monthly budget", zap.Error(err))
	}
	budgetService := billingapp.NewBudgetService(budgetRepo, recordRepo, billingapp.BudgetServiceConfig{
		DefaultMonthlyUSD: defaultMonthlyUSD,
		DefaultBehavior:   domainbilling.LimitBehavior(cfg.Budget.DefaultBehavior),
	}, log)

	var creditIssuer billingapp.CreditIssuer
	if cfg.Stripe.APIKey != "" {
		adapter, err := billing.NewStripeAdapter(cfg.Stripe.APIKey, log)
		if err != nil {
			log.Fatal("Failed to initialize Stripe adapter", zap.Error(err))
		}
		creditIssuer = adapter
		log.Info("Stripe credit issuance enabled")
	} else {
		log.Warn("Stripe API key not configured, SLA credits will stay in calculated state")
	}

	creditService := billingapp.NewSLACreditService(tenantRepo, metricRepo, creditRepo, creditIssuer,
		billingapp.SLACreditServiceConfig{
			TargetSLA:          cfg.SLA.TargetSLA,
			IssueTimeout:       cfg.SLA.IssueTimeout,
			CreditExpiryMonths: cfg.SLA.CreditExpiryMonths,
		}, log)

	// Monthly credit job and ledger retention
	if cfg.SLA.SchedulerEnabled {
		schedulerConfig := scheduler.DefaultSLACreditSchedulerConfig()
		schedulerConfig.RunDay = cfg.SLA.RunDay
		schedulerConfig.RunHour = cfg.SLA.RunHour
		schedulerConfig.RetentionDays = cfg.Usage.RetentionDays
		creditScheduler := scheduler.NewSLACreditScheduler(creditService, recordRepo, log, schedulerConfig)
		if err := creditScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start SLA credit scheduler", zap.Error(err))
		}
		defer func() {
			if err := creditScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping SLA credit scheduler", zap.Error(err))
			}
		}()
		log.Info("SLA credit scheduler started",
			zap.Int("run_day", schedulerConfig.RunDay),
			zap.Int("run_hour", schedulerConfig.RunHour),
		)
	}

	// Initialize HTTP handlers
	webhookHandler := handler.NewExecutionWebhookHandler(webhookService, cfg.RateLimit.APIKeys)
	budgetHandler := handler.NewBudgetHandler(budgetService)
	creditHandler := handler.NewSLACreditHandler(creditService, serviceVerifier, log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	middleware.SetupValidator()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	engine.GET("/health", handler.Health(db))

	// Webhook ingestion at the root, with its own body cap
	webhookRoutes := router.NewDomainGroup("webhook", "/webhook")
	webhookRoutes.Use(middleware.BodyLimit(cfg.Webhook.MaxBodySize))
	webhookRoutes.POST("/execution", webhookHandler.Handle)

	// Service-to-service trigger endpoints
	internalRoutes := router.NewDomainGroup("internal", "/internal")
	internalRoutes.POST("/sla-credits/run", creditHandler.Run)

	// Tenant-facing settings API
	tenantRoutes := router.NewDomainGroup("tenants", "/tenants")
	tenantRoutes.GET("/:id/budget", budgetHandler.Get)
	tenantRoutes.PUT("/:id/budget", budgetHandler.Update)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.RegisterRoot(webhookRoutes)
	r.RegisterRoot(internalRoutes)
	r.Register(tenantRoutes)
	r.Setup()

	server := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}
