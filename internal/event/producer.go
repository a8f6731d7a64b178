package event

import (
	"context"
	"fmt"
	"strconv"

	"github.com/utafrali/grocerystore/internal/domain"
	pkgkafka "github.com/utafrali/grocerystore/pkg/kafka"
	"github.com/utafrali/grocerystore/pkg/logger"
)

// Kafka topics for grocery domain events.
const (
	TopicInventoryUpdated  = "grocery.inventory.updated"
	TopicInventoryLowStock = "grocery.inventory.low_stock"
	TopicCartUpdated       = "grocery.cart.updated"
	TopicCartCleared       = "grocery.cart.cleared"
	TopicCheckoutCompleted = "grocery.checkout.completed"
)

// Aggregate types.
const (
	AggregateTypeProduct = "product"
	AggregateTypeCart    = "cart"
	AggregateTypeReceipt = "receipt"
)

// SourceGroceryStore identifies events emitted by this service.
const SourceGroceryStore = "grocery-store"

// defaultCartID keys cart events when the request carries no session id.
const defaultCartID = "storefront"

// Publisher emits ledger state changes. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishInventoryUpdated(ctx context.Context, p domain.Product) error
	PublishLowStock(ctx context.Context, p domain.Product, threshold int) error
	PublishCartUpdated(ctx context.Context, lines []domain.CartLine) error
	PublishCartCleared(ctx context.Context, reason string, linesCleared int) error
	PublishCheckoutCompleted(ctx context.Context, r domain.Receipt) error
}

// Sink is where envelopes are written; *pkgkafka.Producer satisfies it.
type Sink interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// InventoryData is the payload of inventory.updated.
type InventoryData struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
}

// LowStockData is the payload of inventory.low_stock.
type LowStockData struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

// CartUpdatedData is the payload of cart.updated.
type CartUpdatedData struct {
	Lines     []CartLineData `json:"lines"`
	ItemCount int            `json:"item_count"`
	Total     int64          `json:"total"`
}

// CartLineData is one line within cart and checkout payloads.
type CartLineData struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload of cart.cleared.
type CartClearedData struct {
	Reason       string `json:"reason"`
	LinesCleared int    `json:"lines_cleared"`
}

// CheckoutCompletedData is the payload of checkout.completed.
type CheckoutCompletedData struct {
	ReceiptID     string         `json:"receipt_id"`
	Lines         []CartLineData `json:"lines"`
	ItemCount     int            `json:"item_count"`
	Total         int64          `json:"total"`
	PaymentMethod string         `json:"payment_method"`
}

// Producer publishes grocery domain events through a Sink.
type Producer struct {
	sink Sink
}

// NewProducer creates a new event producer.
func NewProducer(sink Sink) *Producer {
	return &Producer{sink: sink}
}

// PublishInventoryUpdated publishes the new stock level of a product.
func (p *Producer) PublishInventoryUpdated(ctx context.Context, prod domain.Product) error {
	return p.publish(ctx, TopicInventoryUpdated, "inventory.updated", AggregateTypeProduct,
		strconv.FormatInt(prod.ID, 10), InventoryData{
			ProductID: prod.ID,
			Name:      prod.Name,
			Category:  prod.Category,
			Price:     prod.Price,
			Stock:     prod.Stock,
		})
}

// PublishLowStock signals that a product's stock is at or below threshold.
func (p *Producer) PublishLowStock(ctx context.Context, prod domain.Product, threshold int) error {
	return p.publish(ctx, TopicInventoryLowStock, "inventory.low_stock", AggregateTypeProduct,
		strconv.FormatInt(prod.ID, 10), LowStockData{
			ProductID: prod.ID,
			Name:      prod.Name,
			Stock:     prod.Stock,
			Threshold: threshold,
		})
}

// PublishCartUpdated publishes the full cart after a change.
func (p *Producer) PublishCartUpdated(ctx context.Context, lines []domain.CartLine) error {
	return p.publish(ctx, TopicCartUpdated, "cart.updated", AggregateTypeCart, cartID(ctx), CartUpdatedData{
		Lines:     lineData(lines),
		ItemCount: domain.CountOf(lines),
		Total:     domain.TotalOf(lines),
	})
}

// PublishCartCleared publishes a bulk release or a checkout emptying the cart.
func (p *Producer) PublishCartCleared(ctx context.Context, reason string, linesCleared int) error {
	return p.publish(ctx, TopicCartCleared, "cart.cleared", AggregateTypeCart, cartID(ctx), CartClearedData{
		Reason:       reason,
		LinesCleared: linesCleared,
	})
}

// PublishCheckoutCompleted publishes a completed order.
func (p *Producer) PublishCheckoutCompleted(ctx context.Context, r domain.Receipt) error {
	return p.publish(ctx, TopicCheckoutCompleted, "checkout.completed", AggregateTypeReceipt, r.ID, CheckoutCompletedData{
		ReceiptID:     r.ID,
		Lines:         lineData(r.Lines),
		ItemCount:     r.ItemCount,
		Total:         r.Total,
		PaymentMethod: string(r.PaymentMethod),
	})
}

func (p *Producer) publish(ctx context.Context, topic, eventType, aggregateType, aggregateID string, data any) error {
	evt, err := pkgkafka.NewEvent(eventType, aggregateType, aggregateID, SourceGroceryStore, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if id := logger.SessionIDFromContext(ctx); id != "" {
		evt.WithMetadata("session_id", id)
	}

	if err := p.sink.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

func cartID(ctx context.Context) string {
	if id := logger.SessionIDFromContext(ctx); id != "" {
		return id
	}
	return defaultCartID
}

func lineData(lines []domain.CartLine) []CartLineData {
	out := make([]CartLineData, len(lines))
	for i, l := range lines {
		out[i] = CartLineData{
			ProductID: l.ProductID,
			Name:      l.Name,
			Price:     l.Price,
			Quantity:  l.Quantity,
		}
	}
	return out
}

// NopPublisher discards every event. It is used when no Kafka brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishInventoryUpdated(context.Context, domain.Product) error {
	return nil
}

func (NopPublisher) PublishLowStock(context.Context, domain.Product, int) error {
	return nil
}

func (NopPublisher) PublishCartUpdated(context.Context, []domain.CartLine) error {
	return nil
}

func (NopPublisher) PublishCartCleared(context.Context, string, int) error {
	return nil
}

func (NopPublisher) PublishCheckoutCompleted(context.Context, domain.Receipt) error {
	return nil
}

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = NopPublisher{}
	_ Sink      = (*pkgkafka.Producer)(nil)
)
