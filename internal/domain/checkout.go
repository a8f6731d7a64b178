package domain

import (
	"fmt"
	"strings"
	"time"
)

// PaymentMethod is how the customer pays on delivery of the order.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCreditCard     PaymentMethod = "credit_card"
)

var paymentLabels = map[PaymentMethod]string{
	PaymentCashOnDelivery: "Cash on Delivery",
	PaymentCreditCard:     "Credit Card",
}

// ParsePaymentMethod accepts either the wire value or the display label,
// case-insensitively.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	for m, label := range paymentLabels {
		if strings.EqualFold(s, string(m)) || strings.EqualFold(s, label) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// Label is the human-readable name printed on the bill.
func (m PaymentMethod) Label() string {
	if label, ok := paymentLabels[m]; ok {
		return label
	}
	return string(m)
}

// Customer holds the delivery details collected by the checkout form.
type Customer struct {
	Name    string `json:"name" validate:"notblank"`
	Phone   string `json:"phone" validate:"notblank"`
	Address string `json:"address" validate:"notblank"`
}

// Receipt is the record of a completed checkout.
type Receipt struct {
	ID            string        `json:"id"`
	Lines         []CartLine    `json:"lines"`
	ItemCount     int           `json:"item_count"`
	Total         int64         `json:"total"` // cents
	PaymentMethod PaymentMethod `json:"payment_method"`
	Customer      Customer      `json:"customer"`
	CreatedAt     time.Time     `json:"created_at"`
}
