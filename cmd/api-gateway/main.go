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

	_ "github.com/promtec/orientation-api/api/swagger"
	migrations "github.com/promtec/orientation-api/db"
	"github.com/promtec/orientation-api/internal/handler"
	"github.com/promtec/orientation-api/internal/middleware"
	"github.com/promtec/orientation-api/internal/repository"
	"github.com/promtec/orientation-api/internal/service"
	"github.com/promtec/orientation-api/pkg/cache"
	"github.com/promtec/orientation-api/pkg/config"
	"github.com/promtec/orientation-api/pkg/crypto"
	"github.com/promtec/orientation-api/pkg/database"
	"github.com/promtec/orientation-api/pkg/letter"
	"github.com/promtec/orientation-api/pkg/logger"
	corsmiddleware "github.com/promtec/orientation-api/pkg/middleware/cors"
	reqidmiddleware "github.com/promtec/orientation-api/pkg/middleware/requestid"
	"github.com/promtec/orientation-api/pkg/notify"
)

// @title Orientation API
// @version 1.0.0
// @description Slot allocation service for the vocational orientation program
// @BasePath /api
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, db, migrations.Migrations, "migrations"); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	codec, err := crypto.NewFieldCodec(cfg.Crypto.StudentFieldKey)
	if err != nil {
		logr.Sugar().Fatalw("failed to init field codec", "error", err)
	}

	slotRepo := repository.NewSlotRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db, codec)
	studentRepo := repository.NewStudentRepository(db, codec)
	schoolRepo := repository.NewSchoolRepository(db)
	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	var notifier service.Notifier
	if cfg.SMTP.Enabled {
		notifier = notify.NewSMTPNotifier(cfg.SMTP, cfg.Organization, logr)
	} else {
		notifier = notify.NewLogNotifier(logr)
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, cfg.JWT, validate, logr)
	activitySvc := service.NewActivityService(activityRepo, userRepo, enrollmentRepo, notifier, metricsSvc, cfg.Activity, logr)
	slotSvc := service.NewSlotService(slotRepo, enrollmentRepo, schoolRepo, userRepo, cacheRepo, notifier, cfg.Slots, cfg.Organization, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, slotRepo, studentRepo, schoolRepo, userRepo, activitySvc, metricsSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, enrollmentRepo, validate, logr)

	letters := letter.NewBuilder(cfg.Organization)

	authHandler := handler.NewAuthHandler(authSvc)
	slotHandler := handler.NewSlotHandler(slotSvc, enrollmentSvc, letters)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	go activitySvc.Run(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/organization", slotHandler.Organization)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.GET("/slots", slotHandler.List)
		authed.GET("/slots/dates", slotHandler.Dates)
		authed.GET("/slots/options", slotHandler.Options)
		authed.GET("/slots/:id", slotHandler.Get)
		authed.GET("/slots/:id/capacity", slotHandler.Capacity)
		authed.GET("/slots/:id/enrollments", slotHandler.Enrollments)

		authed.POST("/enrollments", enrollmentHandler.Create)
		authed.PUT("/enrollments/:id/waiting-list", enrollmentHandler.SetWaitingList)
		authed.DELETE("/enrollments/:id", enrollmentHandler.Delete)

		authed.GET("/students/:id", studentHandler.Get)
		authed.PUT("/students/:id", studentHandler.Update)
	}

	admin := authed.Group("")
	admin.Use(middleware.AdminOnly())
	{
		admin.POST("/slots", slotHandler.Create)
		admin.PUT("/slots/:id", slotHandler.Update)
		admin.DELETE("/slots/:id", slotHandler.Delete)
		admin.POST("/slots/:id/confirm", slotHandler.Confirm)
		admin.GET("/slots/:id/letter", slotHandler.Letter)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
