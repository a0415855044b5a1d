package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/eda-agent/backend/internal/api/handlers"
	"github.com/eda-agent/backend/internal/cache/redis"
	"github.com/eda-agent/backend/internal/dataset"
	"github.com/eda-agent/backend/internal/intent"
	"github.com/eda-agent/backend/internal/llm"
	"github.com/eda-agent/backend/internal/metrics"
	"github.com/eda-agent/backend/internal/middleware/ratelimit"
	"github.com/eda-agent/backend/internal/middleware/security"
	"github.com/eda-agent/backend/internal/plot"
	"github.com/eda-agent/backend/internal/profile"
	"github.com/eda-agent/backend/internal/query"
	"github.com/eda-agent/backend/internal/storage/fs"
	"github.com/eda-agent/backend/internal/storage/sqlite"
	"github.com/eda-agent/backend/pkg/config"
	appLogger "github.com/eda-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting EDA Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	store, err := fs.NewStore(cfg.Storage.DatasetDir, cfg.Storage.ProfileDir, cfg.Storage.PlotDir)
	if err != nil {
		appLogger.Fatal("Failed to create filesystem store", zap.Error(err))
	}

	var profileCache profile.ByteCache
	var artifactCache plot.ArtifactCache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		profileCache = redisClient
		artifactCache = redisClient
	}

	reader := dataset.NewReader(store, cfg.Profile.ChunkRows)

	aggregator := profile.NewAggregator(reader, profile.AggregatorConfig{
		SketchEpsilon:   cfg.Profile.SketchEpsilon,
		TopK:            cfg.Profile.TopK,
		LabelColumn:     cfg.Profile.LabelColumn,
		TypeTolerance:   cfg.Profile.TypeTolerance,
		ProgressBatches: cfg.Profile.ProgressBatches,
	})

	profiles := profile.NewStore(store, aggregator, profileCache, sqliteClient)

	plotEngine := plot.NewEngine(reader, store, profiles, artifactCache, plot.Config{
		DefaultBins:   cfg.Plot.DefaultBins,
		DefaultSample: cfg.Plot.DefaultSample,
		MaxPerClass:   cfg.Plot.MaxPerClass,
	})

	var llmExtractor intent.Extractor
	var composer query.Composer
	if cfg.LLM.APIKey != "" {
		llmClient := llm.NewClient(
			cfg.LLM.APIKey,
			cfg.LLM.Model,
			cfg.LLM.Temperature,
			cfg.LLM.MaxTokens,
			cfg.LLM.TimeoutSec,
		)
		llmExtractor = llmClient
		composer = llmClient
	} else {
		appLogger.Info("No LLM API key configured, using rule-based intent extraction")
	}

	dispatcher := query.NewDispatcher(sqliteClient, profiles, plotEngine, llmExtractor, composer, cfg.Plot.StaticPathPrefix)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	datasetHandler := handlers.NewDatasetHandler(store, sqliteClient, profiles)
	profileHandler := handlers.NewProfileHandler(profiles)
	plotHandler := handlers.NewPlotHandler(plotEngine, handlers.PlotDefaults{
		ValueColumn: "Amount",
		TimeColumn:  "Time",
		ClassColumn: cfg.Profile.LabelColumn,
	}, cfg.Plot.StaticPathPrefix)
	askHandler := handlers.NewAskHandler(dispatcher)
	wsHandler := handlers.NewWebSocketHandler(profiles)

	app.Static(cfg.Plot.StaticPathPrefix, store.PlotDir())

	app.Post("/upload/", datasetHandler.HandleUpload)
	app.Get("/dataset/:dataset", datasetHandler.HandleGet)

	app.Get("/profile/show/:dataset", profileHandler.HandleShow)
	app.Get("/profile/:dataset", profileHandler.HandleGenerate)
	app.Delete("/profile/:dataset", profileHandler.HandleInvalidate)

	app.Get("/plot/amount_hist/:dataset", plotHandler.HandleHistogram)
	app.Get("/plot/time_series/:dataset", plotHandler.HandleTimeSeries)
	app.Get("/plot/corr_heatmap/:dataset", plotHandler.HandleCorrHeatmap)
	app.Get("/plot/box_amount_by_class/:dataset", plotHandler.HandleBoxByClass)
	app.Get("/plot/scatter_pca/:dataset", plotHandler.HandleScatterPCA)

	app.Post("/agent/ask", askHandler.HandleAsk)
	app.Get("/agent/history/:dataset", askHandler.HandleHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/profile", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})
	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
