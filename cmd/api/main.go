package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/qaim-khanx/essaygradingbot/internal/config"
	"github.com/qaim-khanx/essaygradingbot/internal/database"
	"github.com/qaim-khanx/essaygradingbot/internal/handler"
	"github.com/qaim-khanx/essaygradingbot/internal/middleware"
	"github.com/qaim-khanx/essaygradingbot/internal/repository"
	"github.com/qaim-khanx/essaygradingbot/internal/router"
	"github.com/qaim-khanx/essaygradingbot/internal/service"
	"github.com/qaim-khanx/essaygradingbot/pkg/ai"
	"github.com/qaim-khanx/essaygradingbot/pkg/grading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("app", cfg.AppName).Logger()
	if cfg.AppEnv == "development" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, driver, err := database.Open(cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open %s database: %v", driver, err)
	}
	logger.Info().Str("driver", driver).Msg("grading store ready")

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher service.EventPublisher
	if cfg.NATSURL != "" {
		conn, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer conn.Drain()
		publisher = conn
	}

	var essayGrader service.EssayGrader
	if cfg.OpenAIAPIKey != "" {
		completer, err := ai.NewOpenAICompleter(ai.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			BaseURL:     cfg.OpenAIBaseURL,
			MaxTokens:   cfg.OpenAIMaxTokens,
			Temperature: cfg.OpenAITemperature,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("failed to create completion client: %v", err)
		}

		g, err := grading.NewGrader(completer, grading.Config{
			CallTimeout: cfg.CallTimeout,
			Sequential:  !cfg.Concurrent,
			RangePolicy: grading.RangePolicy(cfg.OutOfRangePolicy),
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("failed to create grader: %v", err)
		}
		essayGrader = g
	} else {
		logger.Warn().Msg("no openai api key configured; grading endpoints will answer 503")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	gradingRepo := repository.NewEssayGradingRepository(db)
	gradingService := service.NewEssayGradingService(gradingRepo, essayGrader, redisClient, publisher, validate, logger, service.EssayGradingConfig{
		Model:        cfg.OpenAIModel,
		CacheTTL:     cfg.CacheTTL,
		MaxLength:    cfg.EssayMaxLength,
		EventSubject: cfg.NATSSubject,
		RangePolicy:  cfg.OutOfRangePolicy,
	})
	gradingHandler := handler.NewEssayGradingHandler(gradingService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		EssayGradingHandler: gradingHandler,
		JWTMiddleware:       jwtMiddleware,
		GradeLimiter:        middleware.RateLimit("essay-grade", cfg.RateLimit, cfg.RateWindow),
		GraderReady:         essayGrader != nil,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	// Grading requests can hold several model calls open.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
