package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/utafrali/grocerystore/internal/service"
	"github.com/utafrali/grocerystore/pkg/health"
	"github.com/utafrali/grocerystore/pkg/middleware"
)

// TracerName is the instrumentation scope of HTTP server spans.
const TracerName = "grocery-store"

// RouterConfig holds the HTTP-level settings of the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	RequestTimeout     time.Duration
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(
	storeService *service.StoreService,
	healthHandler *health.Handler,
	httpMetrics *middleware.HTTPMetrics,
	metricsHandler http.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(TracerName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(httpMetrics.Middleware)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(chimw.Compress(5))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", metricsHandler)

	storeHandler := NewStoreHandler(storeService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", storeHandler.ListProducts)
			r.Post("/", storeHandler.CreateProduct)
			r.Get("/{productId}", storeHandler.GetProduct)
			r.Get("/{productId}/holdings", storeHandler.GetHoldings)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", storeHandler.GetCart)
			r.Delete("/", storeHandler.ClearCart)

			r.Post("/items", storeHandler.AddItem)
			r.Put("/items/{productId}", storeHandler.UpdateItemQuantity)
			r.Delete("/items/{productId}", storeHandler.RemoveItem)
		})

		r.Post("/checkout", storeHandler.Checkout)
	})

	return r
}
