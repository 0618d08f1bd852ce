package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/medibook/admin-api/api/swagger"
	"github.com/medibook/admin-api/internal/handler"
	"github.com/medibook/admin-api/internal/middleware"
	"github.com/medibook/admin-api/internal/models"
	"github.com/medibook/admin-api/internal/repository"
	"github.com/medibook/admin-api/internal/service"
	"github.com/medibook/admin-api/internal/session"
	"github.com/medibook/admin-api/pkg/cache"
	"github.com/medibook/admin-api/pkg/config"
	"github.com/medibook/admin-api/pkg/database"
	"github.com/medibook/admin-api/pkg/jobs"
	"github.com/medibook/admin-api/pkg/logger"
	corsmiddleware "github.com/medibook/admin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/medibook/admin-api/pkg/middleware/requestid"
	"github.com/medibook/admin-api/pkg/storage"
)

// @title MediBook Admin API
// @version 1.0.0
// @description Admin approval workflow API for the MediBook booking platform
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Override.Backend == "redis" {
			logr.Fatal("redis is required for the configured override backend", zap.Error(err))
		}
		logr.Warn("redis unavailable, review queue caching disabled", zap.Error(err))
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	providerRepo := repository.NewProviderRepository(db)
	organizationRepo := repository.NewOrganizationRepository(db)
	requirementRepo := repository.NewRequirementRepository(db)
	invitationRepo := repository.NewInvitationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	exportRepo := repository.NewExportRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	var sessionStore session.Store
	var memStore *session.MemoryStore
	if cfg.Override.Backend == "redis" {
		sessionStore = session.NewRedisStore(redisClient)
	} else {
		memStore = session.NewMemoryStore(cfg.Override.SweepInterval, logr)
		defer memStore.Close()
		sessionStore = memStore
	}

	exportStorage, err := storage.NewLocalStorage(cfg.AuditExport.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.AuditExport.SignedURLSecret, cfg.AuditExport.SignedURLTTL)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authRepo := struct {
		*repository.UserRepository
		*repository.AuditRepository
	}{userRepo, auditRepo}
	authSvc := service.NewAuthService(authRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "medibook-admin-api",
		SingleSession:      true,
	})

	approvalOpts := []service.ApprovalServiceOption{service.WithApprovalMetrics(metricsSvc)}
	if cacheRepo != nil {
		approvalOpts = append(approvalOpts, service.WithApprovalCache(cacheRepo))
	}
	approvalSvc := service.NewApprovalService(auditRepo, logr, []service.ApprovableStore{
		providerRepo,
		organizationRepo,
		requirementRepo,
	}, approvalOpts...)

	reviewOpts := []service.ReviewServiceOption{service.WithReviewMetrics(metricsSvc)}
	if cacheRepo != nil {
		reviewOpts = append(reviewOpts, service.WithReviewCache(cacheRepo))
	}
	reviewSvc := service.NewReviewService(providerRepo, organizationRepo, requirementRepo, cfg.Review.QueueCacheTTL, logr, reviewOpts...)

	overrideSvc := service.NewOverrideService(sessionStore, userRepo, auditRepo, cfg.Override, logr,
		service.WithOverrideMetrics(metricsSvc))
	invitationSvc := service.NewInvitationService(invitationRepo, userRepo, auditRepo, validate, cfg.Invitations.TTL, logr)
	auditSvc := service.NewAuditService(auditRepo, logr)
	userSvc := service.NewUserService(userRepo, auditRepo, logr)

	exportWorker := service.NewExportWorker(exportRepo, auditRepo, exportStorage,
		cfg.AuditExport.MaxRows, cfg.AuditExport.WorkerRetries, logr).WithMetrics(metricsSvc)
	exportQueue := jobs.NewQueue("audit_export", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.AuditExport.WorkerConcurrency,
		MaxRetries: cfg.AuditExport.WorkerRetries,
		Logger:     logr,
	})
	exportQueue.Start(ctx)
	defer exportQueue.Stop()

	exportSvc := service.NewExportService(exportRepo, exportQueue, signer, exportStorage, auditRepo, cfg.AuditExport, logr)
	exportSvc.RecoverPendingJobs(ctx)
	exportSvc.StartCleanup(ctx)

	authHandler := handler.NewAuthHandler(authSvc)
	providerHandler := handler.NewProviderHandler(reviewSvc, approvalSvc)
	organizationHandler := handler.NewOrganizationHandler(reviewSvc, approvalSvc)
	requirementHandler := handler.NewRequirementHandler(reviewSvc, approvalSvc)
	overrideHandler := handler.NewOverrideHandler(overrideSvc)
	invitationHandler := handler.NewInvitationHandler(invitationSvc)
	auditHandler := handler.NewAuditHandler(auditSvc, exportSvc)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	api.POST("/invitations/accept", invitationHandler.Accept)
	api.GET("/audit/downloads/:token", auditHandler.DownloadExport)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	providers := protected.Group("/providers")
	providers.GET("", middleware.RequirePermission(models.PermApproveProviders), providerHandler.List)
	providers.GET("/:id", middleware.RequirePermission(models.PermApproveProviders), providerHandler.Get)
	providers.POST("/:id/approve", providerHandler.Approve)
	providers.POST("/:id/reject", providerHandler.Reject)

	organizations := protected.Group("/organizations")
	organizations.GET("", middleware.RequirePermission(models.PermApproveOrganizations), organizationHandler.List)
	organizations.GET("/:id", middleware.RequirePermission(models.PermApproveOrganizations), organizationHandler.Get)
	organizations.POST("/:id/approve", organizationHandler.Approve)
	organizations.POST("/:id/reject", organizationHandler.Reject)

	requirements := protected.Group("/requirements")
	requirements.GET("", middleware.RequirePermission(models.PermApproveRequirements), requirementHandler.List)
	requirements.GET("/:id", middleware.RequirePermission(models.PermApproveRequirements), requirementHandler.Get)
	requirements.POST("/:id/approve", requirementHandler.Approve)
	requirements.POST("/:id/reject", requirementHandler.Reject)

	override := protected.Group("/override")
	override.POST("", overrideHandler.Initiate)
	override.GET("", overrideHandler.GetActive)
	override.DELETE("", overrideHandler.End)

	invitations := protected.Group("/invitations")
	invitations.POST("", invitationHandler.Create)
	invitations.GET("", invitationHandler.List)
	invitations.DELETE("/:id", invitationHandler.Revoke)

	audit := protected.Group("/audit")
	audit.GET("", auditHandler.List)
	audit.POST("/exports", auditHandler.CreateExport)
	audit.GET("/exports/:id", auditHandler.ExportStatus)

	users := protected.Group("/users")
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.DELETE("/:id", userHandler.Deactivate)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
}
