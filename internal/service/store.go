package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/utafrali/grocerystore/internal/domain"
	"github.com/utafrali/grocerystore/internal/event"
	"github.com/utafrali/grocerystore/internal/ledger"
	"github.com/utafrali/grocerystore/internal/metrics"
	"github.com/utafrali/grocerystore/internal/receipt"
	apperrors "github.com/utafrali/grocerystore/pkg/errors"
	"github.com/utafrali/grocerystore/pkg/logger"
	"github.com/utafrali/grocerystore/pkg/pagination"
	"github.com/utafrali/grocerystore/pkg/tracing"
	"github.com/utafrali/grocerystore/pkg/validator"
)

// TracerName is the instrumentation scope of service spans.
const TracerName = "github.com/utafrali/grocerystore/internal/service"

// Ledger operation names used in logs, spans and metrics.
const (
	OpAddProduct     = "add_product"
	OpAddToCart      = "add_to_cart"
	OpRemoveFromCart = "remove_from_cart"
	OpSetQuantity    = "set_quantity"
	OpClearCart      = "clear_cart"
	OpCheckout       = "checkout"
)

// AddProductInput is the storekeeper's add-product form.
type AddProductInput struct {
	ID       int64            `json:"id" validate:"gte=0"`
	Name     string           `json:"name" validate:"notblank"`
	Category string           `json:"category" validate:"notblank"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Stock    *int             `json:"stock" validate:"required,gte=0,lte=100000"`
	ImageURL string           `json:"image_url"`
}

// CartView is the cart as the storefront renders it.
type CartView struct {
	Lines     []domain.CartLine `json:"lines"`
	ItemCount int               `json:"item_count"`
	Total     int64             `json:"total"`
}

// Options tunes the store service.
type Options struct {
	LowStockThreshold int
	Receipt           receipt.Options
}

// StoreService serializes every ledger operation and reports each state
// change through logs, metrics and domain events.
type StoreService struct {
	mu        sync.Mutex
	ledger    *ledger.Ledger
	publisher event.Publisher
	metrics   *metrics.Ledger
	logger    *slog.Logger
	tracer    trace.Tracer
	opts      Options
	now       func() time.Time
}

// NewStoreService creates a store service over l.
func NewStoreService(l *ledger.Ledger, publisher event.Publisher, m *metrics.Ledger, logger *slog.Logger, opts Options) *StoreService {
	s := &StoreService{
		ledger:    l,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    tracing.Tracer(TracerName),
		opts:      opts,
		now:       time.Now,
	}
	m.SetStock(l.Catalog()...)
	m.SetCart(l.Cart())
	return s
}

// changes collects what a mutation touched so it can be reported once the
// ledger lock has been released.
type changes struct {
	products     []domain.Product
	lowStock     []domain.Product
	cart         []domain.CartLine
	cartChanged  bool
	clearReason  string
	linesCleared int
	receipt      *domain.Receipt
}

// ListProducts returns one page of the catalog, optionally limited to a
// category (case-insensitive).
func (s *StoreService) ListProducts(ctx context.Context, category string, params pagination.Params) pagination.Result[domain.Product] {
	s.mu.Lock()
	catalog := s.ledger.Catalog()
	s.mu.Unlock()

	category = strings.TrimSpace(category)
	if category != "" {
		filtered := catalog[:0]
		for _, p := range catalog {
			if strings.EqualFold(p.Category, category) {
				filtered = append(filtered, p)
			}
		}
		catalog = filtered
	}
	return pagination.Paginate(catalog, params)
}

// GetProduct returns a single catalog entry.
func (s *StoreService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.ledger.Product(id)
	if !ok {
		return domain.Product{}, apperrors.NotFound("product", strconv.FormatInt(id, 10))
	}
	return p, nil
}

// AddProduct validates the storekeeper form and appends the product to the catalog.
func (s *StoreService) AddProduct(ctx context.Context, input AddProductInput) (domain.Product, error) {
	ctx, span := s.startSpan(ctx, OpAddProduct)
	defer span.End()

	if err := validator.Validate(input); err != nil {
		s.finish(ctx, span, OpAddProduct, err)
		return domain.Product{}, err
	}
	price, err := domain.PriceFromDecimal(*input.Price)
	if err != nil {
		err = apperrors.InvalidInput(err.Error())
		s.finish(ctx, span, OpAddProduct, err)
		return domain.Product{}, err
	}

	s.mu.Lock()
	p, err := s.ledger.AddProduct(domain.Product{
		ID:       input.ID,
		Name:     input.Name,
		Category: input.Category,
		Price:    price,
		Stock:    *input.Stock,
		ImageURL: input.ImageURL,
	})
	var ch changes
	if err == nil {
		ch.products = []domain.Product{p}
		s.metrics.SetStock(p)
	}
	s.mu.Unlock()

	s.finish(ctx, span, OpAddProduct, err)
	if err != nil {
		return domain.Product{}, err
	}

	span.SetAttributes(attribute.Int64("product.id", p.ID))
	s.log(ctx).InfoContext(ctx, "product added",
		slog.Int64("product_id", p.ID),
		slog.String("name", p.Name),
		slog.String("category", p.Category),
		slog.Int("stock", p.Stock),
	)
	s.report(ctx, ch)
	return p, nil
}

// GetCart returns the cart lines with their item count and total.
func (s *StoreService) GetCart(ctx context.Context) CartView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartView()
}

func (s *StoreService) cartView() CartView {
	return CartView{
		Lines:     s.ledger.Cart(),
		ItemCount: s.ledger.ItemCount(),
		Total:     s.ledger.ComputeTotal(),
	}
}

// AddToCart reserves one unit of a product.
func (s *StoreService) AddToCart(ctx context.Context, productID int64) (CartView, error) {
	ctx, span := s.startSpan(ctx, OpAddToCart, attribute.Int64("product.id", productID))
	defer span.End()

	s.mu.Lock()
	stockBefore := s.stockOf(productID)
	line, err := s.ledger.AddToCart(productID)
	var (
		view CartView
		ch   changes
	)
	if err == nil {
		ch = s.cartChanges(productID, stockBefore)
		view = s.cartView()
	}
	s.mu.Unlock()

	s.finish(ctx, span, OpAddToCart, err)
	if err != nil {
		return CartView{}, err
	}

	s.log(ctx).InfoContext(ctx, "product added to cart",
		slog.Int64("product_id", productID),
		slog.Int("quantity", line.Quantity),
	)
	s.report(ctx, ch)
	return view, nil
}

// RemoveFromCart releases a whole cart line. Removing a product that is not in
// the cart is a no-op.
func (s *StoreService) RemoveFromCart(ctx context.Context, productID int64) (CartView, error) {
	ctx, span := s.startSpan(ctx, OpRemoveFromCart, attribute.Int64("product.id", productID))
	defer span.End()

	s.mu.Lock()
	var removed bool
	if _, ok := s.ledger.Product(productID); ok {
		removed = s.ledger.RemoveFromCart(productID)
	}
	var ch changes
	if removed {
		ch = s.cartChanges(productID, 0)
	}
	view := s.cartView()
	s.mu.Unlock()

	s.finish(ctx, span, OpRemoveFromCart, nil)
	span.SetAttributes(attribute.Bool("cart.line_removed", removed))
	if removed {
		s.log(ctx).InfoContext(ctx, "product removed from cart",
			slog.Int64("product_id", productID),
		)
		s.report(ctx, ch)
	}
	return view, nil
}

// SetQuantity moves a cart line to quantity units; zero removes the line.
// Setting the quantity of a product that is not in the cart is a no-op.
func (s *StoreService) SetQuantity(ctx context.Context, productID int64, quantity int) (CartView, error) {
	ctx, span := s.startSpan(ctx, OpSetQuantity,
		attribute.Int64("product.id", productID),
		attribute.Int("cart.quantity", quantity),
	)
	defer span.End()

	s.mu.Lock()
	stockBefore := s.stockOf(productID)
	before, hadLine := s.ledger.Line(productID)
	_, err := s.ledger.SetQuantity(productID, quantity)
	var (
		view CartView
		ch   changes
	)
	if err == nil {
		if hadLine {
			ch = s.cartChanges(productID, stockBefore)
		}
		view = s.cartView()
	}
	s.mu.Unlock()

	s.finish(ctx, span, OpSetQuantity, err)
	if err != nil {
		return CartView{}, err
	}
	if !hadLine {
		return view, nil
	}

	s.log(ctx).InfoContext(ctx, "cart quantity updated",
		slog.Int64("product_id", productID),
		slog.Int("from", before.Quantity),
		slog.Int("to", quantity),
	)
	s.report(ctx, ch)
	return view, nil
}

// ClearCart releases every cart line back to stock.
func (s *StoreService) ClearCart(ctx context.Context) CartView {
	ctx, span := s.startSpan(ctx, OpClearCart)
	defer span.End()

	s.mu.Lock()
	lines := s.ledger.Cart()
	cleared := s.ledger.ClearCart()
	ch := changes{clearReason: "cleared", linesCleared: cleared}
	for _, l := range lines {
		p, _ := s.ledger.Product(l.ProductID)
		ch.products = append(ch.products, p)
	}
	s.metrics.SetStock(ch.products...)
	s.metrics.SetCart(nil)
	view := s.cartView()
	s.mu.Unlock()

	s.finish(ctx, span, OpClearCart, nil)
	if cleared > 0 {
		s.log(ctx).InfoContext(ctx, "cart cleared", slog.Int("lines_cleared", cleared))
		s.report(ctx, ch)
	}
	return view
}

// Holdings reports where the units of a product are.
func (s *StoreService) Holdings(ctx context.Context, productID int64) (ledger.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.ledger.Holdings(productID)
	if !ok {
		return ledger.Holding{}, apperrors.NotFound("product", strconv.FormatInt(productID, 10))
	}
	return h, nil
}

// Verify runs the ledger's conservation check.
func (s *StoreService) Verify(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Verify()
}

// cartChanges records the product and cart state after a cart mutation and
// refreshes the gauges. A product whose stock fell to the low-stock threshold
// or below is flagged. The caller holds s.mu.
func (s *StoreService) cartChanges(productID int64, stockBefore int) changes {
	p, _ := s.ledger.Product(productID)
	cart := s.ledger.Cart()
	s.metrics.SetStock(p)
	s.metrics.SetCart(cart)

	ch := changes{
		products:    []domain.Product{p},
		cart:        cart,
		cartChanged: true,
	}
	if p.Stock < stockBefore && p.Stock <= s.opts.LowStockThreshold {
		ch.lowStock = append(ch.lowStock, p)
	}
	return ch
}

// stockOf is the current shelf stock of a product, zero when unknown. The
// caller holds s.mu.
func (s *StoreService) stockOf(productID int64) int {
	p, _ := s.ledger.Product(productID)
	return p.Stock
}

// log returns the request-scoped logger, falling back to the service logger.
func (s *StoreService) log(ctx context.Context) *slog.Logger {
	if l := logger.FromContext(ctx); l != slog.Default() {
		return l
	}
	return s.logger
}

// report publishes the events for ch. Publishing failures are logged and never
// undo the ledger change.
func (s *StoreService) report(ctx context.Context, ch changes) {
	l := s.log(ctx)
	publishFailed := func(topic string, err error) {
		l.ErrorContext(ctx, "failed to publish event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}

	for _, p := range ch.products {
		if err := s.publisher.PublishInventoryUpdated(ctx, p); err != nil {
			publishFailed(event.TopicInventoryUpdated, err)
		}
	}
	for _, p := range ch.lowStock {
		l.WarnContext(ctx, "product stock low",
			slog.Int64("product_id", p.ID),
			slog.String("name", p.Name),
			slog.Int("stock", p.Stock),
			slog.Int("threshold", s.opts.LowStockThreshold),
		)
		if err := s.publisher.PublishLowStock(ctx, p, s.opts.LowStockThreshold); err != nil {
			publishFailed(event.TopicInventoryLowStock, err)
		}
	}
	if ch.cartChanged {
		if err := s.publisher.PublishCartUpdated(ctx, ch.cart); err != nil {
			publishFailed(event.TopicCartUpdated, err)
		}
	}
	if ch.clearReason != "" {
		if err := s.publisher.PublishCartCleared(ctx, ch.clearReason, ch.linesCleared); err != nil {
			publishFailed(event.TopicCartCleared, err)
		}
	}
	if ch.receipt != nil {
		if err := s.publisher.PublishCheckoutCompleted(ctx, *ch.receipt); err != nil {
			publishFailed(event.TopicCheckoutCompleted, err)
		}
	}
}

func (s *StoreService) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attrs...))
}

// finish records the outcome of op on the span and in the operation counter.
func (s *StoreService) finish(ctx context.Context, span trace.Span, op string, err error) {
	s.metrics.ObserveOperation(op, err)
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	s.log(ctx).InfoContext(ctx, "ledger operation rejected",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}
