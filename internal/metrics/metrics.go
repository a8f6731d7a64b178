// Package metrics exposes ledger state as Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/grocerystore/internal/domain"
)

// Operation results.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
)

// Ledger holds the storefront collectors.
type Ledger struct {
	stock      *prometheus.GaugeVec
	cartLines  prometheus.Gauge
	cartUnits  prometheus.Gauge
	cartTotal  prometheus.Gauge
	operations *prometheus.CounterVec
	checkouts  *prometheus.CounterVec
	revenue    prometheus.Counter
}

// NewLedger registers the ledger collectors on reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	f := promauto.With(reg)
	return &Ledger{
		stock: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grocery_product_stock",
			Help: "Units of a product available on the shelf",
		}, []string{"product_id", "name"}),
		cartLines: f.NewGauge(prometheus.GaugeOpts{
			Name: "grocery_cart_lines",
			Help: "Number of distinct products in the cart",
		}),
		cartUnits: f.NewGauge(prometheus.GaugeOpts{
			Name: "grocery_cart_units",
			Help: "Units reserved in the cart",
		}),
		cartTotal: f.NewGauge(prometheus.GaugeOpts{
			Name: "grocery_cart_total_cents",
			Help: "Cart total in cents",
		}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocery_ledger_operations_total",
			Help: "Ledger operations by outcome",
		}, []string{"operation", "result"}),
		checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grocery_checkouts_total",
			Help: "Completed checkouts by payment method",
		}, []string{"payment_method"}),
		revenue: f.NewCounter(prometheus.CounterOpts{
			Name: "grocery_checkout_revenue_cents_total",
			Help: "Sum of checked-out totals in cents",
		}),
	}
}

// ObserveOperation counts one ledger operation.
func (m *Ledger) ObserveOperation(op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultRejected
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// SetStock records the shelf stock of the given products.
func (m *Ledger) SetStock(products ...domain.Product) {
	for _, p := range products {
		m.stock.WithLabelValues(strconv.FormatInt(p.ID, 10), p.Name).Set(float64(p.Stock))
	}
}

// SetCart records the cart gauges.
func (m *Ledger) SetCart(lines []domain.CartLine) {
	m.cartLines.Set(float64(len(lines)))
	m.cartUnits.Set(float64(domain.CountOf(lines)))
	m.cartTotal.Set(float64(domain.TotalOf(lines)))
}

// ObserveCheckout counts a completed order.
func (m *Ledger) ObserveCheckout(r domain.Receipt) {
	m.checkouts.WithLabelValues(string(r.PaymentMethod)).Inc()
	m.revenue.Add(float64(r.Total))
}
