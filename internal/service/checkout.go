package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/utafrali/grocerystore/internal/domain"
	"github.com/utafrali/grocerystore/internal/receipt"
	apperrors "github.com/utafrali/grocerystore/pkg/errors"
	"github.com/utafrali/grocerystore/pkg/validator"
)

// CheckoutInput is the checkout form.
type CheckoutInput struct {
	Customer      domain.Customer `json:"customer"`
	PaymentMethod string          `json:"payment_method" validate:"notblank"`
}

// CheckoutResult is a completed order with its printable bill.
type CheckoutResult struct {
	Receipt  domain.Receipt `json:"receipt"`
	Bill     string         `json:"bill"`
	Filename string         `json:"filename"`
}

// Checkout validates the form, commits the reserved units as sold and empties
// the cart. Nothing changes when the form is incomplete or the cart is empty.
func (s *StoreService) Checkout(ctx context.Context, input CheckoutInput) (CheckoutResult, error) {
	ctx, span := s.startSpan(ctx, OpCheckout)
	defer span.End()

	if err := validator.Validate(input); err != nil {
		s.finish(ctx, span, OpCheckout, err)
		return CheckoutResult{}, err
	}
	method, err := domain.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		err = apperrors.InvalidInput(err.Error())
		s.finish(ctx, span, OpCheckout, err)
		return CheckoutResult{}, err
	}

	s.mu.Lock()
	lines, total, err := s.ledger.Checkout()
	var r domain.Receipt
	if err == nil {
		r = domain.Receipt{
			ID:            uuid.NewString(),
			Lines:         lines,
			ItemCount:     domain.CountOf(lines),
			Total:         total,
			PaymentMethod: method,
			Customer:      input.Customer,
			CreatedAt:     s.now().UTC(),
		}
		s.metrics.SetCart(nil)
		s.metrics.ObserveCheckout(r)
	}
	s.mu.Unlock()

	s.finish(ctx, span, OpCheckout, err)
	if err != nil {
		return CheckoutResult{}, err
	}

	span.SetAttributes(
		attribute.String("receipt.id", r.ID),
		attribute.Int64("receipt.total_cents", r.Total),
		attribute.String("receipt.payment_method", string(r.PaymentMethod)),
	)
	s.log(ctx).InfoContext(ctx, "checkout completed",
		slog.String("receipt_id", r.ID),
		slog.Int("items", r.ItemCount),
		slog.Int64("total_cents", r.Total),
		slog.String("payment_method", string(r.PaymentMethod)),
	)
	s.report(ctx, changes{
		clearReason:  "checkout",
		linesCleared: len(lines),
		receipt:      &r,
	})

	return CheckoutResult{
		Receipt:  r,
		Bill:     receipt.String(r, s.opts.Receipt),
		Filename: receipt.Filename(r),
	}, nil
}
