package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/huntmap/internal/adapters/http"
	"github.com/samirrijal/huntmap/internal/adapters/memory"
	natsadapter "github.com/samirrijal/huntmap/internal/adapters/nats"
	"github.com/samirrijal/huntmap/internal/adapters/postgres"
	"github.com/samirrijal/huntmap/internal/adapters/tokens"
	"github.com/samirrijal/huntmap/internal/adapters/valkey"
	"github.com/samirrijal/huntmap/internal/core/ports"
	"github.com/samirrijal/huntmap/internal/core/usecases"
	"github.com/samirrijal/huntmap/internal/pkg/config"
	"github.com/samirrijal/huntmap/internal/pkg/logging"
	"github.com/samirrijal/huntmap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("huntmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Structured logging
	logging.Setup(cfg.Telemetry.ServiceName, cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{}

	// Storage
	var repo ports.AnnotationRepository
	switch cfg.Storage.Backend {
	case config.StorageMemory:
		slog.Warn("using in-memory storage; annotations are lost on restart")
		repo = memory.NewAnnotationRepository()
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		go db.ReportPoolStats(ctx, 15*time.Second)
		deps.DB = db
		repo = postgres.NewAnnotationRepo(db)
	}

	// Cache
	var cache ports.CacheService
	if vc, err := valkey.New(cfg.Valkey.Addr); err != nil {
		slog.Warn("valkey unavailable", "error", err)
	} else {
		defer vc.Close()
		deps.Cache = vc
		cache = vc
	}

	// NATS
	var publisher ports.EventPublisher
	if pub, err := natsadapter.NewPublisher(cfg.NATS.URL); err != nil {
		slog.Warn("nats unavailable", "error", err)
	} else {
		defer pub.Close()
		publisher = pub
	}

	if sub, err := natsadapter.NewSubscriber(cfg.NATS.URL); err != nil {
		slog.Warn("nats subscriber unavailable; maps refresh only after own saves", "error", err)
	} else {
		defer sub.Close()
		deps.Subscriber = sub
	}

	// Raw NATS connection for WebSocket relay
	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	} else {
		defer natsConn.Close()
		deps.NATS = natsConn
	}

	// Use cases
	annotations := usecases.NewAnnotationService(repo, cache, publisher)
	annotations.SetPassHalfSide(cfg.Map.PassHalfSide)
	deps.Annotations = annotations

	deps.Tokens = tokenProvider(cfg.Map)
	deps.Session = usecases.SessionOptions{
		Fit: ports.FitOptions{
			Padding: cfg.Map.FitPadding,
			MaxZoom: cfg.Map.FitMaxZoom,
		},
		Style: usecases.LayerStyle{
			FillColor:   cfg.Map.FillColor,
			FillOpacity: cfg.Map.FillOpacity,
			LineColor:   cfg.Map.FillColor,
			LineWidth:   cfg.Map.LineWidth,
		},
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    2 * 1024 * 1024, // drawn polygons can be large
		AppName:      "huntmap API",
		ErrorHandler: http.ErrorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.AllowOrigins, ", "),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "storage", cfg.Storage.Backend)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

// tokenProvider prefers a configured static token over the token endpoint.
func tokenProvider(m config.MapConfig) ports.TokenProvider {
	if m.AccessToken != "" || m.TokenURL == "" {
		return tokens.Static(m.AccessToken)
	}
	return tokens.NewHTTPProvider(m.TokenURL, m.TokenTimeout)
}
