// CaseCoach server: coaching gate and executive panel over HTTP.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ashureev/casecoach/internal/agent"
	"github.com/ashureev/casecoach/internal/api"
	"github.com/ashureev/casecoach/internal/coaching"
	"github.com/ashureev/casecoach/internal/config"
	"github.com/ashureev/casecoach/internal/domain"
	"github.com/ashureev/casecoach/internal/feed"
	"github.com/ashureev/casecoach/internal/health"
	"github.com/ashureev/casecoach/internal/identity"
	"github.com/ashureev/casecoach/internal/llm"
	"github.com/ashureev/casecoach/internal/metrics"
	"github.com/ashureev/casecoach/internal/middleware"
	"github.com/ashureev/casecoach/internal/safety"
	"github.com/ashureev/casecoach/internal/store"
	"github.com/ashureev/casecoach/internal/turn"
	"github.com/ashureev/casecoach/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "llm", cfg.LLM.Enabled())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return err
	}

	// Initialize services.
	detector := safety.Default()
	gate := coaching.NewGate(coaching.NewCritic(client, logger), logger)
	orch := agent.NewOrchestrator(client, detector, agent.Config{CallTimeout: cfg.LLM.Timeout}, logger)
	hub := feed.NewHub(feed.DefaultBuffer, logger)
	defer hub.Close()
	turns := turn.NewService(repo, gate, orch, detector, hub, logger)

	// Initialize handlers.
	handler := api.NewHandler(repo, turns, cfg.DefaultCredits)
	healthHandler := api.NewHealthHandler(repo, cfg.LLM.Enabled())
	feedHandler := feed.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment(), logger)
	chatLimiter := middleware.NewRateLimiter(cfg.ChatRateLimit)

	origins := []string{"*"}
	if cfg.FrontendURL != "" {
		origins = []string{cfg.FrontendURL}
	}

	// Setup router.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(origins))

	healthHandler.RegisterHealth(r)

	r.Group(func(r chi.Router) {
		if cfg.MetricsEnabled {
			r.Use(metrics.Middleware)
		}
		handler.RegisterRoutes(r,
			identity.Middleware(repo, domain.UserProfessor, cfg.IsDevelopment()),
			chatLimiter.Handler,
		)
	})

	// Professor live feed.
	r.Get("/ws/assignments/{id}/feed", feedHandler.ServeHTTP)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Direction turns wait on up to five sequential gateway calls.
		WriteTimeout: 5*cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.GRPCHealthPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCHealthPort)
		if err != nil {
			return err
		}
		hs := health.NewServer(repo, logger)
		g.Go(func() error { return hs.Serve(lis) })
		g.Go(func() error {
			hs.Monitor(gctx, health.DefaultInterval)
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			hs.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
