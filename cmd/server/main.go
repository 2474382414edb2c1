package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/studyflow/internal/agent"
	"github.com/p-n-ai/studyflow/internal/ai"
	"github.com/p-n-ai/studyflow/internal/api"
	"github.com/p-n-ai/studyflow/internal/catalog"
	"github.com/p-n-ai/studyflow/internal/events"
	"github.com/p-n-ai/studyflow/internal/leaderboard"
	"github.com/p-n-ai/studyflow/internal/learning"
	"github.com/p-n-ai/studyflow/internal/pathgen"
	"github.com/p-n-ai/studyflow/internal/platform/cache"
	"github.com/p-n-ai/studyflow/internal/platform/config"
	"github.com/p-n-ai/studyflow/internal/platform/database"
	"github.com/p-n-ai/studyflow/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, database.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		slog.Info("database migrated", "applied", applied)
	}

	store, err := learning.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	store.SetTimeout(cfg.Progression.DBTimeout)

	eventLog := events.NewPostgresLog(db.Pool)
	hub := realtime.NewHub()
	sinks := events.Fanout{eventLog}
	ready := map[string]api.ReadyCheck{"database": db.HealthCheck}

	var (
		board  leaderboard.Board
		budget ai.BudgetChecker = ai.NewInMemoryBudget(cfg.AI.DailyTokens)
	)

	c, err := connectCache(ctx, cfg.Cache)
	switch {
	case err != nil:
		return err
	case c != nil:
		defer c.Close()
		ready["cache"] = c.HealthCheck

		bus := events.NewRedisBus(c.Client, c.Key("events"))
		if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
			return fmt.Errorf("start event forwarder: %w", err)
		}
		sinks = append(sinks, bus)
		board = leaderboard.NewRedisBoard(c.Client, c.Key("leaderboard"))
		budget = ai.NewRedisBudget(c.Client, c.Key(), cfg.AI.DailyTokens)
	default:
		// Single replica: deliver straight to local websocket clients.
		sinks = append(sinks, hub)
		board, err = newLocalBoard(ctx, store)
		if err != nil {
			return err
		}
	}

	svc := learning.NewService(learning.ServiceConfig{
		Store:  store,
		Events: sinks,
		Scores: board,
	})

	router, err := newAIRouter(cfg.AI)
	if err != nil {
		return err
	}
	gen := pathgen.New(pathgen.Config{
		Provider:  router,
		Budget:    budget,
		PerMinute: cfg.AI.PerMinute,
	})
	defer gen.Close()

	conversations, err := agent.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	conversations.SetTimeout(cfg.Progression.DBTimeout)
	tutor := agent.NewEngine(agent.EngineConfig{
		Provider:  router,
		Topics:    store,
		Store:     conversations,
		Budget:    budget,
		PerMinute: cfg.AI.TutorPerMinute,
	})
	defer tutor.Close()

	cat, err := catalog.NewLoader(cfg.CatalogPath)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Learning:  svc,
		Auth:      api.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		Generator: gen,
		Tutor:     tutor,
		Board:     board,
		Catalog:   cat,
		Hub:       hub,
		EventLog:  eventLog,
		Ready:     ready,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "ai_providers", router.Names())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// connectCache returns nil without error when no cache URL is configured.
func connectCache(ctx context.Context, cfg config.CacheConfig) (*cache.Cache, error) {
	if cfg.URL == "" {
		slog.Warn("no cache configured; leaderboard and AI budget are per process")
		return nil, nil
	}
	c, err := cache.New(ctx, cfg.URL, cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("connect cache: %w", err)
	}
	return c, nil
}

// newLocalBoard builds the per-process leaderboard, loaded with the XP already
// stored so a restart does not empty it.
func newLocalBoard(ctx context.Context, store leaderboard.ProfileLister) (*leaderboard.MemoryBoard, error) {
	board := leaderboard.NewMemoryBoard()
	n, err := leaderboard.Load(ctx, store, board)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	slog.Info("leaderboard loaded", "learners", n)
	return board, nil
}

// newAIRouter registers every configured provider, each behind its own
// circuit breaker, in fallback order.
func newAIRouter(cfg config.AIConfig) (*ai.Router, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	rc := ai.ResilientConfig{
		MaxAttempts:    cfg.MaxAttempts,
		FailuresToTrip: cfg.BreakerFailures,
	}
	router := ai.NewRouter()

	if cfg.OpenAI.APIKey != "" {
		opts := []ai.OpenAIOption{ai.WithHTTPClient(httpClient)}
		if cfg.OpenAI.BaseURL != "" {
			opts = append(opts, ai.WithBaseURL(cfg.OpenAI.BaseURL))
		}
		if cfg.OpenAI.Model != "" {
			opts = append(opts, ai.WithDefaultModel(cfg.OpenAI.Model))
		}
		router.Register("openai", ai.NewResilientProvider("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey, opts...), rc))
	}
	if cfg.OpenRouter.APIKey != "" {
		opts := []ai.OpenAIOption{ai.WithHTTPClient(httpClient)}
		if cfg.OpenRouter.Model != "" {
			opts = append(opts, ai.WithDefaultModel(cfg.OpenRouter.Model))
		}
		router.Register("openrouter", ai.NewResilientProvider("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey, opts...), rc))
	}
	if cfg.Anthropic.APIKey != "" {
		opts := []ai.AnthropicOption{ai.WithAnthropicHTTPClient(httpClient)}
		if cfg.Anthropic.Model != "" {
			opts = append(opts, ai.WithAnthropicModel(cfg.Anthropic.Model))
		}
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		router.Register("anthropic", ai.NewResilientProvider("anthropic", p, rc))
	}
	if cfg.Ollama.Enabled {
		p := ai.NewOllamaProvider(cfg.Ollama.URL, ai.WithHTTPClient(httpClient), ai.WithDefaultModel(cfg.Ollama.Model))
		router.Register("ollama", ai.NewResilientProvider("ollama", p, rc))
	}

	if !router.HasProvider() {
		return nil, ai.ErrNoProviders
	}
	return router, nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
