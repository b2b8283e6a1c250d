package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"fraudwallet-api/internal/alert"
	"fraudwallet-api/internal/baseline"
	"fraudwallet-api/internal/config"
	"fraudwallet-api/internal/controller"
	"fraudwallet-api/internal/database"
	"fraudwallet-api/internal/engine"
	"fraudwallet-api/internal/external"
	"fraudwallet-api/internal/middleware"
	"fraudwallet-api/internal/monitoring"
	"fraudwallet-api/internal/risk"
	"fraudwallet-api/internal/scheduler"
	"fraudwallet-api/internal/service"
	"fraudwallet-api/pkg/logger"
)

// @title FraudWallet API
// @version 1.0
// @description Transaction risk scoring and wallet freeze management API

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Logging)

	logrus.WithFields(logrus.Fields{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
		"port":       cfg.Server.Port,
	}).Info("Starting FraudWallet API")

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApp(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.cleanup()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logrus.WithField("address", server.Addr).Info("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	cancel()
	logrus.Info("Server exited")
}

// Application holds the wired dependencies and their teardown.
type Application struct {
	config  *config.Config
	router  *gin.Engine
	cleanup func()
}

func initializeApp(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := database.Initialize(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repos := db.Repositories

	var publisher external.EventPublisher
	if cfg.RabbitMQ.Enabled {
		publisher, err = external.NewRabbitPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
	} else {
		logrus.Warn("RabbitMQ disabled, events will not be published")
		publisher = external.NewNoopPublisher()
	}

	metrics := monitoring.NewMetricsService()
	auditLog := logger.AuditLogger(cfg.Logging)

	evaluator := risk.NewEvaluator(cfg.Risk, repos.Transactions, repos.Devices, repos.Locations)
	baselines := baseline.NewTracker(repos.Baselines, repos.Transactions)
	alerts := alert.NewEmitter(repos.Alerts, publisher, auditLog)

	walletEngine := engine.NewWalletEngine(engine.Config{
		Accounts:            repos.Accounts,
		Txns:                repos.Transactions,
		Devices:             repos.Devices,
		Locations:           repos.Locations,
		Evaluator:           evaluator,
		Baselines:           baselines,
		Alerts:              alerts,
		Locks:               repos.LockManager,
		Metrics:             metrics,
		Publisher:           publisher,
		ConfirmationTimeout: cfg.Risk.ConfirmationTimeout,
	})

	walletService := service.NewWalletService(
		repos.Accounts,
		repos.Transactions,
		repos.Devices,
		repos.Locations,
		repos.Alerts,
		walletEngine,
		baselines,
	)

	jobs := scheduler.New(walletEngine, baselines, cfg.Risk.SweepInterval, cfg.Risk.BaselineRecomputeCron)
	if err := jobs.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	health := monitoring.NewHealthChecker(version)
	health.RegisterCheck("mongodb", func(ctx context.Context) error {
		return db.MongoDB.Client().Ping(ctx, nil)
	})
	health.RegisterCheck("redis", func(ctx context.Context) error {
		return db.RedisDB.Ping(ctx).Err()
	})

	router := setupRouter(cfg, walletService, metrics, health)

	cleanup := func() {
		logrus.Info("Cleaning up application resources...")
		jobs.Stop()
		if err := publisher.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close event publisher")
		}
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := db.Close(closeCtx); err != nil {
			logrus.WithError(err).Warn("Failed to close database connections")
		}
	}

	return &Application{
		config:  cfg,
		router:  router,
		cleanup: cleanup,
	}, nil
}

func setupRouter(
	cfg *config.Config,
	walletService service.WalletService,
	metrics monitoring.MetricsService,
	health *monitoring.HealthChecker,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	logging := middleware.NewLoggingMiddleware(logrus.StandardLogger(), metrics)
	router.Use(logging.RequestLogging())

	rateLimit := middleware.NewRateLimitMiddleware(50, 100)
	router.Use(rateLimit.Limit())

	auth := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret, cfg.Auth.InternalKey)
	router.Use(auth.JWTAuth())

	router.GET("/health", func(c *gin.Context) {
		status := health.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
			"service":    "fraudwallet-api",
		})
	})

	if cfg.Monitoring.EnableMetrics {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	walletController := controller.NewWalletController(walletService)

	api := router.Group("/api")
	{
		accounts := api.Group("/accounts")
		{
			accounts.POST("", auth.RequireAdmin(), walletController.CreateAccount)

			scoped := accounts.Group("/:accountId", auth.RequireAccountMatch())
			{
				scoped.GET("/balance", walletController.GetBalance)
				scoped.GET("/stats", walletController.GetStats)
				scoped.GET("/transactions", walletController.GetTransactionHistory)
				scoped.GET("/transactions/:txnId", walletController.GetTransaction)
				scoped.GET("/risk/timeline", walletController.GetRiskTimeline)
				scoped.GET("/baseline", walletController.GetBaseline)
				scoped.POST("/baseline/recompute", walletController.RecomputeBaseline)
				scoped.GET("/alerts", walletController.ListAlerts)
				scoped.POST("/alerts/:alertId/resolve", walletController.ResolveAlert)
				scoped.POST("/alerts/resolve-all", walletController.ResolveAllAlerts)
				scoped.GET("/devices", walletController.ListDevices)
				scoped.DELETE("/devices/:fingerprint", walletController.RemoveDevice)
				scoped.GET("/locations", walletController.ListLocations)
				scoped.DELETE("/locations/:name", walletController.RemoveLocation)
				scoped.PUT("/settings", walletController.UpdateSecuritySettings)
				scoped.POST("/freeze", auth.RequireAdmin(), walletController.FreezeAccount)
				scoped.POST("/unfreeze", auth.RequireAdmin(), walletController.UnfreezeAccount)
			}
		}

		transactions := api.Group("/transactions")
		{
			transactions.POST("", walletController.SendTransaction)
			transactions.POST("/evaluate", walletController.EvaluateTransaction)
			transactions.POST("/:txnId/confirm", walletController.ConfirmTransaction)
			transactions.POST("/:txnId/timeout", auth.RequireAdmin(), walletController.TimeoutTransaction)
		}
	}

	return router
}
