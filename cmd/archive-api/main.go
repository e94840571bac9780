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
	"go.uber.org/zap"

	_ "github.com/MoainAlabbasi/telegram-archive-bot/api/swagger"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/handler"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/middleware"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/repository"
	"github.com/MoainAlabbasi/telegram-archive-bot/internal/service"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/cache"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/config"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/database"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/logger"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/mailer"
	corsmiddleware "github.com/MoainAlabbasi/telegram-archive-bot/pkg/middleware/cors"
	reqidmiddleware "github.com/MoainAlabbasi/telegram-archive-bot/pkg/middleware/requestid"
	"github.com/MoainAlabbasi/telegram-archive-bot/pkg/telegram"
)

// @title Telegram Archive API
// @version 1.0.0
// @description File archive over the Telegram Bot API with OTP-gated accounts and opaque sessions
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
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	fileRepo := repository.NewFileRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	storage := telegram.NewClient(cfg.Telegram)
	sender := mailer.New(cfg.SMTP)

	activationSvc := service.NewActivationService(userRepo, sender, validate, logr, cfg.Auth)
	authSvc := service.NewAuthService(userRepo, validate, logr, cfg.Auth)
	userSvc := service.NewUserService(userRepo, logr)
	permSvc := service.NewPermissionService(userRepo, roleRepo, validate, logr)

	var fileCache service.FileCache
	if cacheRepo != nil {
		fileCache = cacheRepo
	}
	fileSvc := service.NewFileService(fileRepo, storage, fileCache, logr, metricsSvc, cfg.Auth, cfg.Files)
	sweepSvc := service.NewSweepService(fileRepo, fileSvc, logr, cfg.Sweep)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	handler.Register(api, handler.Services{
		Activation: activationSvc,
		Auth:       authSvc,
		Users:      userSvc,
		Perms:      permSvc,
		Files:      fileSvc,
		Metrics:    metricsSvc,
	}, cfg.Files)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepSvc.Run(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down", zap.Duration("grace", 10*time.Second))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
