package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/commongroundz/backend/internal/cache"
	"github.com/commongroundz/backend/internal/config"
	"github.com/commongroundz/backend/internal/database"
	"github.com/commongroundz/backend/internal/events"
	"github.com/commongroundz/backend/internal/handlers"
	"github.com/commongroundz/backend/internal/logger"
	"github.com/commongroundz/backend/internal/metrics"
	"github.com/commongroundz/backend/internal/middleware"
	"github.com/commongroundz/backend/internal/querycache"
	"github.com/commongroundz/backend/internal/social"
	"github.com/commongroundz/backend/internal/tags"
	"github.com/commongroundz/backend/internal/telemetry"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("=== Common Groundz server starting ===",
		zap.String("environment", cfg.Environment),
	)

	metrics.Initialize()

	tp, err := telemetry.InitTracer(telemetry.Config{
		ServiceName:  cfg.ServiceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Enabled:      cfg.TracingEnabled,
		SamplingRate: cfg.TracingSampling,
	})
	if err != nil {
		logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		logger.Log.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword)
	if err != nil {
		// Redis degrades features (trending cache, rate limits), it
		// doesn't gate startup
		logger.Log.Warn("Redis unavailable, continuing without it", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}

	// Typed event bus wires mutations to cache invalidation
	bus := events.NewBus()

	qc := querycache.New(querycache.DefaultOptions())
	unbind := qc.BindBus(bus)
	defer unbind()
	stopSweeper := qc.StartSweeper(time.Minute)
	defer stopSweeper()

	tagStore := tags.NewGormStore(database.DB)
	tagService := tags.NewService(tagStore, bus)
	ranker := tags.NewRanker(tagStore, redisClient)
	socialService := social.NewService(database.DB, qc, bus)

	h := handlers.NewHandlers(database.DB, tagService, ranker, socialService, qc, bus)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"} // Configure properly for production
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	if redisClient != nil {
		r.Use(middleware.RedisRateLimitMiddleware(300, time.Minute))
	}

	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		hashtags := api.Group("/hashtags")
		{
			hashtags.GET("/trending", h.GetTrendingTags)
			hashtags.GET("/:tag/related", h.GetRelatedTags)
			hashtags.GET("/:tag/posts", h.GetPostsByTag)
		}

		entities := api.Group("/entities")
		{
			entities.GET("", h.ListEntities)
			entities.GET("/:slug", h.GetEntity)
			entities.GET("/:slug/stats", h.GetEntityStats)
		}

		api.GET("/users/:id/follow-counts", h.GetFollowCounts)

		authed := api.Group("", middleware.AuthMiddleware(jwtSecret))
		{
			authed.POST("/posts", h.CreatePost)
			authed.PUT("/posts/:id", h.UpdatePost)
			authed.POST("/users/:id/follow", h.FollowUser)
			authed.DELETE("/users/:id/follow", h.UnfollowUser)
			authed.POST("/session/visibility", h.ReportVisibility)
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Common Groundz backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if tp != nil {
		if err := tp.Shutdown(ctx); err != nil {
			logger.Log.Warn("Tracer shutdown failed", zap.Error(err))
		}
	}

	logger.Log.Info("Server exited")
}
