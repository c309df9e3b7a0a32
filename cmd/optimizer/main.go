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
	"go.uber.org/zap"

	"github.com/univtimetable/optimizer-api/internal/handler"
	"github.com/univtimetable/optimizer-api/internal/llm"
	"github.com/univtimetable/optimizer-api/internal/middleware"
	"github.com/univtimetable/optimizer-api/internal/optimizer"
	"github.com/univtimetable/optimizer-api/internal/repository"
	"github.com/univtimetable/optimizer-api/internal/service"
	"github.com/univtimetable/optimizer-api/pkg/cache"
	"github.com/univtimetable/optimizer-api/pkg/config"
	"github.com/univtimetable/optimizer-api/pkg/database"
	"github.com/univtimetable/optimizer-api/pkg/logger"
	corsmiddleware "github.com/univtimetable/optimizer-api/pkg/middleware/cors"
	reqidmiddleware "github.com/univtimetable/optimizer-api/pkg/middleware/requestid"
)

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
		logr.Sugar().Warnw("redis unavailable, progress publishing disabled", "error", err)
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	var chat optimizer.ChatClient
	if cfg.LLM.ClientID != "" && cfg.LLM.ClientSecret != "" {
		chat = llm.NewClient(cfg.LLM, logr)
	} else {
		logr.Warn("LLM credentials not configured, improvers disabled")
	}

	courseLoadRepo := repository.NewCourseLoadRepository(db)
	preferenceRepo := repository.NewTeacherPreferenceRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	generationRepo := repository.NewGenerationRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	metricsSvc := service.NewMetricsService()
	contextSvc := service.NewContextService(courseLoadRepo, preferenceRepo, classroomRepo, logr)
	generationSvc := service.NewGenerationService(
		generationRepo, scheduleRepo, contextSvc, cacheRepo, chat,
		metricsSvc, cfg.Optimizer, validator.New(), logr,
	)
	generationSvc.Start()
	defer generationSvc.Stop()
	scheduleSvc := service.NewScheduleService(scheduleRepo, logr)

	generationHandler := handler.NewGenerationHandler(generationSvc, cfg.Optimizer)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.EnableJsonDecoderDisallowUnknownFields()

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

	api := r.Group(cfg.APIPrefix)
	{
		jobs := api.Group("/optimizer/jobs")
		{
			jobs.POST("", generationHandler.Start)
			jobs.GET("", generationHandler.List)
			jobs.GET("/:id", generationHandler.Status)
			jobs.POST("/:id/cancel", generationHandler.Cancel)
			jobs.GET("/:id/actions", generationHandler.Actions)
			jobs.GET("/:id/actions/stats", generationHandler.ActionStats)
		}

		schedules := api.Group("/schedules")
		{
			schedules.GET("/active", scheduleHandler.Active)
			schedules.GET("/teacher/:id", scheduleHandler.ByTeacher)
			schedules.GET("/group/:id", scheduleHandler.ByGroup)
			schedules.GET("/conflicts/:generationId", scheduleHandler.Conflicts)
		}

		api.GET("/metrics/summary", metricsHandler.Snapshot)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
