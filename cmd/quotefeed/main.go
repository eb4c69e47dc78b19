package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/quotefeed/internal/config"
	"github.com/rickgao/quotefeed/internal/database"
	"github.com/rickgao/quotefeed/internal/feed"
	"github.com/rickgao/quotefeed/internal/hub"
	"github.com/rickgao/quotefeed/internal/model"
	"github.com/rickgao/quotefeed/internal/monitor"
	"github.com/rickgao/quotefeed/internal/quote"
	"github.com/rickgao/quotefeed/internal/session"
	"github.com/rickgao/quotefeed/internal/store"
	"github.com/rickgao/quotefeed/internal/store/redisquote"
	"github.com/rickgao/quotefeed/internal/subscription"
	"github.com/rickgao/quotefeed/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/quotefeed.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting quotefeed",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"feed_url", cfg.Feed.WSURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Connect to redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}

	logger.Info("redis connected", "addr", cfg.Redis.Addr)

	// Repositories and quote sink
	tickers := store.NewTickerRepo(pool)
	splits := store.NewSplitRepo(pool)
	candles := store.NewCandleRepo(pool)
	activity := store.NewActivityRepo(pool)
	quoteSink := redisquote.New(rdb, cfg.Redis.KeyPrefix, cfg.Redis.QuoteTTL)

	// Core components
	connector := feed.NewConnector(feed.Config{
		URL:                  cfg.Feed.WSURL,
		APIKey:               cfg.Feed.APIKey,
		HeartbeatInterval:    cfg.Feed.HeartbeatInterval,
		WriteTimeout:         cfg.Feed.WriteTimeout,
		ReconnectDelay:       cfg.Feed.ReconnectDelay,
		MaxReconnectAttempts: cfg.Feed.MaxReconnectAttempts,
		BufferSize:           cfg.Feed.BufferSize,
	}, logger)

	sessions := session.NewRegistry(logger)
	subs := subscription.NewRegistry(logger)
	transformer := quote.NewTransformer(tickers, splits, candles, logger)

	coordinator := hub.NewCoordinator(connector, sessions, subs, transformer, logger)
	if err := coordinator.Start(ctx); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		coordinator.Stop(shutdownCtx)
	}()

	// Ticker activity monitor
	mon := monitor.New(cfg.Monitor, coordinator, activity, tickers, candles, quoteSink, logger)
	if err := mon.Start(ctx); err != nil {
		logger.Error("failed to start ticker monitor", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		mon.Stop(shutdownCtx)
	}()

	// Session housekeeping
	go func() {
		ticker := time.NewTicker(cfg.Sessions.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				coordinator.CleanupInactiveClients(cfg.Sessions.MaxIdle)
			}
		}
	}()

	// Status server
	statusServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Status.Port),
		Handler: createStatusHandler(pool, coordinator, quoteSink, candles, logger),
	}

	go func() {
		logger.Info("starting status server", "port", cfg.Status.Port)
		if err := statusServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("status server error", "error", err)
		}
	}()

	logger.Info("quotefeed running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Status.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	statusServer.Shutdown(shutdownCtx)

	logger.Info("quotefeed stopped")
}

// quoteSource serves the latest stored quote per symbol.
type quoteSource interface {
	LatestQuote(ctx context.Context, symbol string) (*model.Quote, error)
}

// candleSource serves stored candle history.
type candleSource interface {
	RecentCandles(ctx context.Context, symbol string, days int) ([]model.Candle, error)
}

// createStatusHandler creates the HTTP handler for health and status.
func createStatusHandler(pool *pgxpool.Pool, coordinator hub.Coordinator, quotes quoteSource, candles candleSource, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		status := coordinator.SystemStatus()
		health.Components["upstream"] = status.UpstreamState
		if !status.UpstreamConnected && len(status.ActiveSymbols) > 0 {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(coordinator.SystemStatus())
	})

	mux.HandleFunc("/quotes", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol query parameter is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		q, err := quotes.LatestQuote(ctx, symbol)
		if err != nil {
			logger.Warn("quote lookup failed", "symbol", symbol, "error", err)
			http.Error(w, "quote lookup failed", http.StatusInternalServerError)
			return
		}
		if q == nil {
			http.Error(w, "no quote stored", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(q)
	})

	mux.HandleFunc("/candles", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		if symbol == "" {
			http.Error(w, "symbol query parameter is required", http.StatusBadRequest)
			return
		}

		days := 1
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				http.Error(w, "days must be a positive integer", http.StatusBadRequest)
				return
			}
			days = parsed
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		out, err := candles.RecentCandles(ctx, symbol, days)
		if err != nil {
			logger.Warn("candle lookup failed", "symbol", symbol, "days", days, "error", err)
			http.Error(w, "candle lookup failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":  symbol,
			"days":    days,
			"count":   len(out),
			"candles": out,
		})
	})

	return mux
}
