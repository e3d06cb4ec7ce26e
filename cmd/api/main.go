package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/acadhub/curricula-api/api/swagger"
	"github.com/acadhub/curricula-api/internal/handler"
	"github.com/acadhub/curricula-api/internal/middleware"
	"github.com/acadhub/curricula-api/internal/models"
	"github.com/acadhub/curricula-api/internal/repository"
	"github.com/acadhub/curricula-api/internal/service"
	"github.com/acadhub/curricula-api/internal/workflow"
	"github.com/acadhub/curricula-api/pkg/cache"
	"github.com/acadhub/curricula-api/pkg/config"
	"github.com/acadhub/curricula-api/pkg/database"
	"github.com/acadhub/curricula-api/pkg/logger"
	corsmiddleware "github.com/acadhub/curricula-api/pkg/middleware/cors"
	reqidmiddleware "github.com/acadhub/curricula-api/pkg/middleware/requestid"
	"github.com/acadhub/curricula-api/pkg/storage"
)

// @title Curricula API
// @version 1.0.0
// @description Versioned approval workflow for courses, degrees, and enrollments
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, queue caching disabled", "error", err)
		redisClient = nil
	}

	// repositories
	entityRepo := repository.NewEntityRepository(db)
	collaboratorRepo := repository.NewCollaboratorRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	userRepo := repository.NewUserRepository(db)

	// services
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, auditRepo, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "curricula-api",
	})

	var dispatcher service.NotificationDispatcher = service.NopDispatcher{}
	if cfg.Notifications.Enabled {
		dispatcher = service.NewLogDispatcher(logr)
	}

	approvalOpts := []service.ApprovalServiceOption{
		service.WithNotificationDispatcher(dispatcher),
		service.WithEntityReasonRule(workflow.ReasonRule{
			Min: cfg.Workflow.EntityReasonMin,
			Max: cfg.Workflow.EntityReasonMax,
		}),
		service.WithForkRetries(cfg.Workflow.ForkRetries),
		service.WithTransitionRecorder(metricsSvc),
		service.WithTimelineReader(auditRepo),
	}
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient)
		approvalOpts = append(approvalOpts, service.WithApprovalQueueCache(
			service.NewApprovalQueueCache(cacheRepo, cfg.Approvals.QueueCacheTTL, logr)))
	}
	approvalSvc := service.NewApprovalService(entityRepo, collaboratorRepo, userRepo, auditRepo, logr, approvalOpts...)

	enrollmentSvc := service.NewEnrollmentService(
		enrollmentRepo, auditRepo, dispatcher,
		workflow.ReasonRule{Min: cfg.Workflow.EnrollmentReasonMin, Max: cfg.Workflow.EnrollmentReasonMax},
		cfg.Enrollments.MaxBatch, logr,
	)

	collaboratorSvc := service.NewCollaboratorService(collaboratorRepo, entityRepo, userRepo, auditRepo, logr)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		exportSvc = service.NewExportService(
			entityRepo, auditRepo, exportStore,
			storage.NewSignedURLSigner(cfg.Exports.URLSecret, cfg.Exports.URLTTL),
			service.ExportConfig{
				APIPrefix: cfg.APIPrefix,
				ResultTTL: cfg.Exports.ResultTTL,
				Workers:   cfg.Exports.Workers,
			},
			logr,
		)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(reqidmiddleware.Middleware())
	router.Use(logger.GinMiddleware(logr))
	router.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	router.Use(middleware.Metrics(metricsSvc))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(authSvc)
	entityHandler := handler.NewEntityHandler(approvalSvc)
	collaboratorHandler := handler.NewCollaboratorHandler(collaboratorSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)

	authRequired := middleware.JWT(authSvc)
	api := router.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authRequired, authHandler.Logout)

	staffOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleHOD, models.RoleFaculty)
	hodOnly := middleware.RequireRoles(models.RoleAdmin, models.RoleHOD)

	for _, segment := range []string{"courses", "degrees"} {
		resource := strings.TrimSuffix(segment, "s")
		entities := api.Group("/"+segment, authRequired, handler.EntityType(segment))
		entities.GET("", entityHandler.List)
		entities.GET("/:id", entityHandler.Get)
		entities.GET("/:id/lineage", entityHandler.Lineage)
		entities.GET("/:id/timeline", entityHandler.Timeline)

		entities.POST("", staffOnly, entityHandler.Create)
		entities.PUT("/:id", staffOnly, entityHandler.Update)
		entities.POST("/:id/submit", staffOnly, entityHandler.Submit)
		entities.POST("/:id/decide", hodOnly, entityHandler.Decide)
		entities.POST("/:id/publish", staffOnly, entityHandler.Publish)
		entities.POST("/:id/edit-request", staffOnly, entityHandler.RequestEdit)

		entities.GET("/:id/collaborators", collaboratorHandler.List)
		entities.POST("/:id/collaborators", staffOnly, collaboratorHandler.Add)
		entities.DELETE("/:id/collaborators/:userId", staffOnly, collaboratorHandler.Remove)

		if exportSvc != nil {
			exportHandler := handler.NewExportHandler(exportSvc)
			entities.POST("/:id/export", staffOnly,
				middleware.Audit(auditRepo, models.AuditActionExport, resource),
				exportHandler.Request)
		}
	}

	api.GET("/approvals/pending", authRequired, hodOnly, entityHandler.PendingApprovals)

	if cfg.Enrollments.Enabled {
		enrollments := api.Group("/enrollments", authRequired)
		enrollments.POST("", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Create)
		enrollments.POST("/:id/submit", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Submit)
		enrollments.GET("/mine", enrollmentHandler.ListMine)
		enrollments.GET("/pending", hodOnly, enrollmentHandler.Pending)
		enrollments.POST("/decide", hodOnly, enrollmentHandler.Decide)
	}

	serverCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		exports.GET("/jobs/:id", authRequired, exportHandler.Status)
		exports.GET("/download", exportHandler.Download)

		exportSvc.Start(serverCtx)
		defer exportSvc.Stop()
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-serverCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
