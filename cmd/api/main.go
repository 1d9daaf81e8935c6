package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/assanaclinic/whatsapp-concierge/internal/api/router"
	"github.com/assanaclinic/whatsapp-concierge/internal/appointments"
	"github.com/assanaclinic/whatsapp-concierge/internal/assistant"
	appconfig "github.com/assanaclinic/whatsapp-concierge/internal/config"
	"github.com/assanaclinic/whatsapp-concierge/internal/http/handlers"
	"github.com/assanaclinic/whatsapp-concierge/internal/observability/metrics"
	"github.com/assanaclinic/whatsapp-concierge/internal/whatsapp"
	"github.com/assanaclinic/whatsapp-concierge/pkg/logging"
)

func main() {
	// Local development convenience; in deployed environments the variables
	// come from the runtime.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"openai_configured", cfg.OpenAIAPIKey != "",
		"whatsapp_configured", cfg.WhatsAppAccessToken != "",
	)

	ctx := context.Background()

	// Postgres is optional: without it the appointment tools answer with a
	// not-configured message instead of failing the conversation.
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create connection pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Warn("database unreachable at startup", "error", err)
		}
	} else {
		logger.Warn("DATABASE_URL not set, appointment tools disabled")
	}

	// Redis is optional too: without it every turn starts a fresh thread.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	} else {
		logger.Warn("REDIS_ADDR not set, conversation threads will not persist")
	}

	var openaiClient *openai.Client
	if cfg.OpenAIAPIKey != "" {
		openaiClient = openai.NewClient(cfg.OpenAIAPIKey)
	}

	var store *appointments.Store
	if pool != nil {
		store = appointments.NewStore(pool)
	}
	var chat appointments.ChatClient
	if openaiClient != nil {
		chat = openaiClient
	}
	normalizer := appointments.NewNormalizer(chat, cfg.OpenAIModel, logger)
	appointmentSvc := appointments.NewService(store, normalizer, logger)

	threads := assistant.NewThreadStore(redisClient, cfg.ThreadTTL)
	assistantCfg := assistant.Config{
		AssistantID:  cfg.OpenAIAssistantID,
		Model:        cfg.OpenAIModel,
		PollInterval: cfg.RunPollInterval,
		RunTimeout:   cfg.RunTimeout,
	}
	if openaiClient != nil {
		assistantCfg.Client = openaiClient
		assistantCfg.Chat = openaiClient
	}
	assistantSvc := assistant.NewService(assistantCfg, appointmentSvc, threads, logger)

	gateway := whatsapp.New(whatsapp.Config{
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		VerifyToken:   cfg.WhatsAppVerifyToken,
		APIVersion:    cfg.GraphAPIVersion,
	}, logger)

	conciergeMetrics := metrics.NewConciergeMetrics(nil)

	webhookHandler := handlers.NewWebhookHandler(gateway, assistantSvc, conciergeMetrics, logger)
	testingHandler := handlers.NewTestingHandler(gateway, appointmentSvc, assistantSvc, conciergeMetrics, logger)

	r := router.New(&router.Config{
		Logger:          logger,
		WebhookHandler:  webhookHandler,
		TestingHandler:  testingHandler,
		MetricsHandler:  promhttp.Handler(),
		AdminAuthSecret: cfg.AdminJWTSecret,
	})

	// The write timeout must outlast the assistant run deadline, since the
	// webhook request stays open while the run is polled.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
