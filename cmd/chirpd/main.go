package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chirpwire/chirpd/pkg/client"
	"github.com/chirpwire/chirpd/pkg/logging"
	"github.com/chirpwire/chirpd/pkg/poller"
	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/chirpwire/chirpd/pkg/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "false") == "true",
		Output: os.Stderr,
	})

	baseURL := getEnv("API_BASE_URL", "https://api.x.com")
	bearerToken := os.Getenv("BEARER_TOKEN")
	if bearerToken == "" {
		logger.Fatal().Msg("BEARER_TOKEN is required")
	}
	port := getEnv("PORT", "8080")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence: Redis when configured, local SQLite otherwise.
	var st social.Store
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}
		st = store.NewRedisStore(redisClient)
		logger.Info().Str("addr", redisURL).Msg("Using Redis store")
	} else {
		dbPath := getEnv("DB_PATH", "data/chirpd.db")
		sqliteStore, err := store.NewSQLiteStore(dbPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", dbPath).Msg("Failed to open SQLite store")
		}
		defer sqliteStore.Close()
		st = sqliteStore
		logger.Info().Str("path", dbPath).Msg("Using SQLite store")
	}

	api, err := social.NewRESTClient(social.RESTConfig{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		UserAgent:   getEnv("USER_AGENT", "chirpd/0.1.0"),
		Timeout:     30 * time.Second,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create API client")
	}

	cfg := client.DefaultConfig(api)
	cfg.Store = st
	if budget := getEnvInt("DAILY_POST_BUDGET", 0); budget > 0 {
		cfg.Quota.DailyPostBudget = budget
	}
	if reads := getEnvInt("MONTHLY_READ_BUDGET", 0); reads > 0 {
		cfg.Quota.MonthlyReadBudget = reads
	}

	orchestrator, err := client.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create orchestration client")
	}

	// The content handler is pluggable; the bare daemon only logs and
	// records mentions. Embedders wire their own social.Handler that
	// produces replies through orchestrator.Reply.
	handler := social.HandlerFunc(func(ctx context.Context, mention social.Mention) error {
		logger.Info().
			Str("mention_id", mention.ID).
			Str("author", mention.AuthorHandle).
			Msg("Mention received")
		return nil
	})

	pollCfg := poller.Config{
		Interval:   getEnvDuration("POLL_INTERVAL", 60*time.Second),
		ItemPacing: getEnvDuration("ITEM_PACING", 5*time.Second),
	}
	scheduler, err := poller.NewScheduler(orchestrator, st, handler, pollCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create poll scheduler")
	}

	// Operational endpoints.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(orchestrator))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Poll loop runs until a shutdown signal arrives.
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Poll loop exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("Shutdown complete")
}

// healthHandler reports liveness plus the current quota counters.
func healthHandler(orchestrator *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"quota":  orchestrator.Usage(),
		})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
