package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/grocerystore/internal/config"
	"github.com/utafrali/grocerystore/internal/domain"
	"github.com/utafrali/grocerystore/internal/event"
	handler "github.com/utafrali/grocerystore/internal/handler/http"
	"github.com/utafrali/grocerystore/internal/ledger"
	"github.com/utafrali/grocerystore/internal/metrics"
	"github.com/utafrali/grocerystore/internal/receipt"
	"github.com/utafrali/grocerystore/internal/seed"
	"github.com/utafrali/grocerystore/internal/service"
	"github.com/utafrali/grocerystore/pkg/health"
	pkgkafka "github.com/utafrali/grocerystore/pkg/kafka"
	"github.com/utafrali/grocerystore/pkg/middleware"
	"github.com/utafrali/grocerystore/pkg/tracing"
)

const (
	serviceName    = "grocery-store"
	serviceVersion = "0.1.0"
)

// pingBaseBackoff is the first wait between Kafka ping attempts; it doubles per attempt.
var pingBaseBackoff = time.Second

// App wires together all dependencies and runs the grocery storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	producer       *pkgkafka.Producer
	registry       *prometheus.Registry
	storeService   *service.StoreService
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.Init(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Seed the catalog and open the ledger.
	products, err := loadCatalog(cfg.CatalogSeedPath)
	if err != nil {
		return nil, err
	}
	l, err := ledger.New(products...)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	logger.Info("catalog loaded",
		slog.Int("products", len(products)),
		slog.String("source", catalogSource(cfg.CatalogSeedPath)),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	healthHandler := health.NewHandler()

	// Kafka publishing is optional; without brokers events are dropped.
	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher = event.NopPublisher{}
	)
	if cfg.KafkaEnabled() {
		producer = pkgkafka.NewProducer(pkgkafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		}, pkgkafka.NewProducerMetrics(registry), logger)
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = event.NewProducer(producer)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
	} else {
		logger.Info("kafka brokers not configured, domain events disabled")
	}

	// Build the dependency graph.
	storeService := service.NewStoreService(l, publisher, metrics.NewLedger(registry), logger, service.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		Receipt:           receipt.Options{DeliveryEstimate: cfg.ReceiptDeliveryEstimate},
	})
	healthHandler.RegisterCritical("ledger", storeService.Verify)

	// HTTP router.
	router := handler.NewRouter(
		storeService,
		healthHandler,
		middleware.NewHTTPMetrics(registry),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		logger,
		handler.RouterConfig{
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
			RequestTimeout:     cfg.RequestTimeout,
		},
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		producer:       producer,
		registry:       registry,
		storeService:   storeService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.httpServer.Addr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		a.logger.Info("starting HTTP server",
			slog.String("addr", ln.Addr().String()),
		)
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return errors.Join(err, a.Shutdown())
		}
	}

	err := a.Shutdown()
	<-errCh
	return err
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests.
	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Flush and close the Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// The ledger lives in memory; a final balance check goes to the log.
	if err := a.storeService.Verify(context.Background()); err != nil {
		a.logger.Error("ledger out of balance at shutdown", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

func loadCatalog(path string) ([]domain.Product, error) {
	products, err := seed.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return products, nil
}

func catalogSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, base/2*base with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < 2 {
			base := pingBaseBackoff << uint(attempt)
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
