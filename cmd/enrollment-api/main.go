package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-enrollment-api/api/swagger"
	"github.com/noah-isme/course-enrollment-api/internal/handler"
	internalmiddleware "github.com/noah-isme/course-enrollment-api/internal/middleware"
	"github.com/noah-isme/course-enrollment-api/internal/models"
	"github.com/noah-isme/course-enrollment-api/internal/repository"
	"github.com/noah-isme/course-enrollment-api/internal/service"
	"github.com/noah-isme/course-enrollment-api/pkg/cache"
	"github.com/noah-isme/course-enrollment-api/pkg/config"
	"github.com/noah-isme/course-enrollment-api/pkg/database"
	"github.com/noah-isme/course-enrollment-api/pkg/export"
	"github.com/noah-isme/course-enrollment-api/pkg/jobs"
	"github.com/noah-isme/course-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-enrollment-api/pkg/middleware/requestid"
)

// @title Course Enrollment API
// @version 1.0.0
// @description Student admission into courses with prerequisite, credit, schedule and seat rules
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		if version, err := database.Version(ctx, db); err == nil {
			logr.Info("migrations applied", zap.Int64("version", version))
		}
	}

	var redisClient *redis.Client
	if cfg.Catalog.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("catalog cache disabled, redis unavailable", zap.Error(err))
		}
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Catalog.CacheTTL, logr, cfg.Catalog.CacheEnabled && redisClient != nil)

	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)

	auditSvc := service.NewAuditService(userRepo, metricsSvc, logr, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: 200 * time.Millisecond,
	})
	auditSvc.Start(context.Background())
	defer auditSvc.Stop()

	validate := validator.New()
	authSvc := service.NewAuthService(userRepo, studentRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	clock := cfg.Enrollment.Now
	admissionSvc := service.NewAdmissionService(courseRepo, enrollmentRepo, studentRepo, cacheSvc, metricsSvc, auditSvc, logr, service.AdmissionConfig{
		MaxCreditsPerTerm:  cfg.Enrollment.MaxCreditsPerTerm,
		CancellationWindow: cfg.Enrollment.CancellationWindow,
		Clock:              clock,
	})
	cancellationSvc := service.NewCancellationService(enrollmentRepo, cacheSvc, metricsSvc, auditSvc, logr, clock)
	querySvc := service.NewQueryService(courseRepo, enrollmentRepo, cacheSvc, cfg.Catalog.CacheTTL, logr)
	exportSvc := service.NewExportService(enrollmentRepo, courseRepo, logr, export.NewCSVExporter(), export.NewPDFExporter())

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(querySvc)
	enrollmentHandler := handler.NewEnrollmentHandler(admissionSvc, cancellationSvc, querySvc, exportSvc).WithClock(clock)

	dependencies := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if redisClient != nil {
		dependencies["redis"] = cacheRepo
	}
	metricsHandler := handler.NewMetricsHandler(metricsSvc, dependencies)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc))
	secured.GET("/auth/me", authHandler.Me)

	courses := secured.Group("/courses")
	courses.GET("", courseHandler.List)
	courses.GET("/filter", courseHandler.Filter)

	enrollments := secured.Group("/enrollments")
	enrollments.GET("/:id/courses", internalmiddleware.RBAC(models.RoleStudent, models.RoleAdmin), enrollmentHandler.Courses)

	own := enrollments.Group("")
	own.Use(internalmiddleware.RBAC(models.RoleStudent), internalmiddleware.RequireStudent())
	own.POST("", enrollmentHandler.Enroll)
	own.POST("/check", enrollmentHandler.Check)
	own.GET("/me", enrollmentHandler.Mine)
	own.GET("/me/export",
		internalmiddleware.Audit(auditSvc, models.AuditActionExport, "enrollment_export"),
		enrollmentHandler.Export,
	)
	own.DELETE("/:id/cancel", enrollmentHandler.Cancel)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
