package main

import (
	"context"
	"log"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reviewguard/reviewguard/internal/detection"
	"github.com/reviewguard/reviewguard/pkg/common"
	"github.com/reviewguard/reviewguard/pkg/config"
	"github.com/reviewguard/reviewguard/pkg/database"
	"github.com/reviewguard/reviewguard/pkg/logger"
	"github.com/reviewguard/reviewguard/pkg/middleware"
	"github.com/reviewguard/reviewguard/pkg/redis"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load("detection")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Server.Environment); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Connect to PostgreSQL
	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)
	logger.Info("Connected to PostgreSQL")

	// Connect to Redis
	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Connected to Redis")

	// Optional NATS publisher for analysis events
	var publisher detection.EventPublisher
	if cfg.NATS.Enabled {
		natsPublisher, err := detection.NewNATSPublisher(&cfg.NATS)
		if err != nil {
			logger.Warn("NATS unavailable, analysis events disabled", zap.Error(err))
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
			logger.Info("Connected to NATS", zap.String("subject", cfg.NATS.Subject))
		}
	}

	// Build the detection engine
	classifier := detection.LoadClassifier(&cfg.Classifier)
	repo := detection.NewRepository(pool)
	activity := detection.NewActivityTracker(redisClient.Client, cfg.Detection.UserRateWindow, cfg.Detection.ProductRateWindow)
	service := detection.NewService(repo, detection.NewEngine(cfg.Detection.DuplicateThreshold), activity, cfg.Detection)
	analyzer := detection.NewAnalyzer(cfg.Detection.BurstGap)
	orchestrator := detection.NewOrchestrator(repo, classifier, analyzer, publisher, cfg.Detection.BatchWorkers)
	handler := detection.NewHandler(service, orchestrator)

	// Set up Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics(cfg.Server.ServiceName))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", middleware.CorrelationIDHeader}
	router.Use(cors.New(corsConfig))

	// Health check and metrics (no auth required)
	router.GET("/healthz", common.HealthCheckWithDeps(cfg.Server.ServiceName, version, map[string]func() error{
		"postgres": func() error { return pool.Ping(context.Background()) },
		"redis":    func() error { return redisClient.Ping(context.Background()).Err() },
	}))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	addr := ":" + cfg.Server.Port
	logger.Info("Detection service starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
