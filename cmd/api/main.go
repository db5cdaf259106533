package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"pdfdrop/internal/config"
	handlers "pdfdrop/internal/http/handler"
	"pdfdrop/internal/http/middleware"
	"pdfdrop/internal/metadata"
	"pdfdrop/internal/otel"
	"pdfdrop/internal/registry"
	"pdfdrop/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	backend, mirror, err := buildBackend(cfg.Storage)
	if err != nil {
		log.Fatalf("failed to initialize storage backend: %v", err)
	}

	store, err := metadata.NewStore(cfg.MetadataPath)
	if err != nil {
		log.Fatalf("failed to initialize metadata store: %v", err)
	}

	opts := []registry.Option{}
	if mirror != nil {
		opts = append(opts, registry.WithMirror(mirror))
	}
	svc := registry.New(backend, store, registry.Config{
		BaseURL: cfg.BaseURL,
		TTL:     cfg.TTL,
		ListMax: cfg.ListMax,
	}, opts...)

	promReg := prometheus.NewRegistry()
	metrics, err := middleware.NewPrometheusMiddleware(promReg)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.MaxUploadBytes) + 1<<20, // multipart overhead headroom
	})

	// Register global middleware
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())
	app.Use(metrics.Handler())

	handlers.RegisterRoutes(app, svc, cfg, metrics)

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	// Background purge: once at startup, then on the configured interval,
	// stopped by the same signal context as the listener.
	sched := registry.NewPurgeScheduler(svc, cfg.PurgeInterval)
	go sched.Run(ctx)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}
}

// buildBackend resolves the tagged storage configuration once at startup.
// The remote metadata mirror only exists on the object storage backend.
func buildBackend(cfg config.StorageConfig) (storage.Backend, *metadata.Mirror, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		be, err := storage.NewLocal(cfg.Local.Root)
		if err != nil {
			return nil, nil, err
		}
		return be, nil, nil
	case config.BackendMinIO:
		be, err := storage.NewMinIO(cfg.MinIO)
		if err != nil {
			return nil, nil, err
		}
		return be, metadata.NewMirror(be), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
