package ledger

import (
	"fmt"

	apperrors "github.com/utafrali/grocerystore/pkg/errors"
)

// Reservation failures. Both match apperrors.ErrInsufficientStock with errors.Is.
var (
	ErrStockUnavailable = fmt.Errorf("stock unavailable: %w", apperrors.ErrInsufficientStock)
	ErrNotEnoughStock   = fmt.Errorf("not enough stock: %w", apperrors.ErrInsufficientStock)
)

func stockUnavailable(p string) *apperrors.AppError {
	e := apperrors.InsufficientStock(fmt.Sprintf("Stock unavailable for %s", p))
	e.Err = ErrStockUnavailable
	return e
}

func notEnoughStock(p string, available, requested int) *apperrors.AppError {
	e := apperrors.InsufficientStock(fmt.Sprintf("Not enough stock for %s: available %d, requested %d", p, available, requested))
	e.Err = ErrNotEnoughStock
	return e
}
