package main

import (
	"context"
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

	_ "github.com/Jabarteley/academic-staff-service-request/api/swagger"
	"github.com/Jabarteley/academic-staff-service-request/internal/handler"
	"github.com/Jabarteley/academic-staff-service-request/internal/middleware"
	"github.com/Jabarteley/academic-staff-service-request/internal/models"
	"github.com/Jabarteley/academic-staff-service-request/internal/repository"
	"github.com/Jabarteley/academic-staff-service-request/internal/service"
	"github.com/Jabarteley/academic-staff-service-request/pkg/cache"
	"github.com/Jabarteley/academic-staff-service-request/pkg/config"
	"github.com/Jabarteley/academic-staff-service-request/pkg/database"
	"github.com/Jabarteley/academic-staff-service-request/pkg/jobs"
	"github.com/Jabarteley/academic-staff-service-request/pkg/logger"
	corsmiddleware "github.com/Jabarteley/academic-staff-service-request/pkg/middleware/cors"
	reqidmiddleware "github.com/Jabarteley/academic-staff-service-request/pkg/middleware/requestid"
)

// @title Academic Staff Service Request API
// @version 1.0.0
// @description Workflow-routed service requests for academic staff
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	orgRepo := repository.NewOrgRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	timelineRepo := repository.NewTimelineRepository(db)
	configRepo := repository.NewWorkflowConfigRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var cacheRepo *repository.CacheRepository
	if cfg.Workflow.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, workflow config cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "academic-staff-service-request",
		SingleSession:      cfg.JWT.SingleSession,
	})

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)

	resolver := service.NewApproverResolver(userRepo, logr)

	auditorRoles := make([]models.UserRole, 0, len(cfg.Workflow.AuditorRoles))
	for _, role := range cfg.Workflow.AuditorRoles {
		auditorRoles = append(auditorRoles, models.UserRole(role))
	}

	workflowSvc := service.NewWorkflowService(
		requestRepo,
		configRepo,
		orgRepo,
		userRepo,
		resolver,
		timelineRepo,
		notificationSvc,
		userRepo,
		workflowCache(cacheRepo),
		metricsSvc,
		validate,
		logr,
		service.WorkflowServiceConfig{
			ConfigCacheTTL: cfg.Workflow.ConfigCacheTTL,
			CacheEnabled:   cacheRepo != nil,
		},
	)

	requestSvc := service.NewRequestService(requestRepo, timelineRepo, auditorRoles, logr)
	configSvc := service.NewWorkflowConfigService(configRepo, configCacheInvalidator(cacheRepo), userRepo, validate, logr)
	directorySvc := service.NewDirectoryService(userRepo, orgRepo, userRepo, validate, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	requestHandler := handler.NewRequestHandler(workflowSvc, requestSvc)
	configHandler := handler.NewWorkflowConfigHandler(configSvc)
	directoryHandler := handler.NewDirectoryHandler(directorySvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

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

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	requests := api.Group("/requests", middleware.JWT(authSvc))
	{
		requests.POST("", requestHandler.Create)
		requests.GET("", requestHandler.List)
		requests.GET("/:id", requestHandler.Get)
		requests.GET("/:id/timeline", requestHandler.Timeline)
		requests.POST("/:id/submit", requestHandler.Submit)
		requests.POST("/:id/action", requestHandler.Action)
		requests.POST("/:id/resubmit", requestHandler.Resubmit)
		requests.POST("/:id/cancel", requestHandler.Cancel)
		requests.POST("/:id/complete", middleware.RequireRoles(models.RoleRegistrar, models.RoleSysAdmin), requestHandler.Complete)
	}

	configs := api.Group("/workflow-configs", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleSysAdmin, models.RoleRegistrar))
	{
		configs.GET("", configHandler.List)
		configs.PUT("", middleware.RequireRoles(models.RoleSysAdmin), configHandler.Upsert)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.POST("", middleware.RequireRoles(models.RoleSysAdmin), directoryHandler.CreateUser)
		users.GET("", middleware.RequireRoles(models.RoleSysAdmin, models.RoleRegistrar), directoryHandler.ListUsers)
		users.GET("/:id", middleware.RBAC(string(models.RoleSysAdmin), string(models.RoleRegistrar), "SELF"), directoryHandler.GetUser)
		users.PUT("/:id", middleware.RequireRoles(models.RoleSysAdmin), directoryHandler.UpdateUser)
	}

	faculties := api.Group("/faculties", middleware.JWT(authSvc))
	{
		faculties.GET("", directoryHandler.ListFaculties)
		faculties.POST("", middleware.RequireRoles(models.RoleSysAdmin), directoryHandler.CreateFaculty)
		faculties.PUT("/:id/dean", middleware.RequireRoles(models.RoleSysAdmin), directoryHandler.AssignDean)
	}

	departments := api.Group("/departments", middleware.JWT(authSvc))
	{
		departments.GET("", directoryHandler.ListDepartments)
		departments.POST("", middleware.RequireRoles(models.RoleSysAdmin), directoryHandler.CreateDepartment)
		departments.PUT("/:id/hod", middleware.RequireRoles(models.RoleSysAdmin), directoryHandler.AssignHOD)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/read-all", notificationHandler.MarkAllRead)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
		notifications.DELETE("/:id", notificationHandler.Delete)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

// workflowCache avoids handing the engine a typed-nil interface when redis
// is not configured.
func workflowCache(repo *repository.CacheRepository) service.ConfigCache {
	if repo == nil {
		return nil
	}
	return repo
}

func configCacheInvalidator(repo *repository.CacheRepository) service.CacheInvalidator {
	if repo == nil {
		return nil
	}
	return repo
}
