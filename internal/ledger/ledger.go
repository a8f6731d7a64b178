// Package ledger keeps catalog stock and cart reservations consistent.
//
// Every unit of a product is in exactly one place: on the shelf (Product.Stock),
// reserved by a cart line, or sold by a completed checkout. Operations either
// apply in full or return an error and leave the ledger untouched.
//
// A Ledger is not safe for concurrent use.
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/utafrali/grocerystore/internal/domain"
	apperrors "github.com/utafrali/grocerystore/pkg/errors"
)

// Holding is the split of one product's units at a point in time.
type Holding struct {
	Initial  int `json:"initial"`
	Stock    int `json:"stock"`
	Reserved int `json:"reserved"`
	Sold     int `json:"sold"`
}

// Ledger owns the catalog and the cart of one storefront session.
type Ledger struct {
	catalog []domain.Product
	index   map[int64]int // product id -> position in catalog
	cart    []domain.CartLine
	initial map[int64]int
	sold    map[int64]int
}

// New returns a ledger seeded with products, in order.
func New(products ...domain.Product) (*Ledger, error) {
	l := &Ledger{
		index:   make(map[int64]int),
		initial: make(map[int64]int),
		sold:    make(map[int64]int),
	}
	for _, p := range products {
		if _, err := l.AddProduct(p); err != nil {
			return nil, fmt.Errorf("seed product %q: %w", p.Name, err)
		}
	}
	return l, nil
}

// AddProduct appends p to the catalog. A zero ID is replaced with one more
// than the largest ID in use.
func (l *Ledger) AddProduct(p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)

	switch {
	case p.Name == "":
		return domain.Product{}, apperrors.InvalidInput("product name is required")
	case p.Category == "":
		return domain.Product{}, apperrors.InvalidInput("product category is required")
	case p.Price < 0:
		return domain.Product{}, apperrors.InvalidInput("product price must not be negative")
	case p.Price > domain.MaxPriceCents:
		return domain.Product{}, apperrors.InvalidInput("product price must not exceed " + domain.FormatCents(domain.MaxPriceCents))
	case p.Stock < 0:
		return domain.Product{}, apperrors.InvalidInput("product stock must not be negative")
	case p.Stock > domain.MaxStock:
		return domain.Product{}, apperrors.InvalidInput("product stock must not exceed " + strconv.Itoa(domain.MaxStock))
	case p.ID < 0:
		return domain.Product{}, apperrors.InvalidInput("product id must not be negative")
	}

	if p.ID == 0 {
		p.ID = l.nextID()
	} else if _, exists := l.index[p.ID]; exists {
		return domain.Product{}, apperrors.AlreadyExists("product", "id", strconv.FormatInt(p.ID, 10))
	}

	l.index[p.ID] = len(l.catalog)
	l.catalog = append(l.catalog, p)
	l.initial[p.ID] = p.Stock
	return p, nil
}

func (l *Ledger) nextID() int64 {
	var maxID int64
	for _, p := range l.catalog {
		maxID = max(maxID, p.ID)
	}
	return maxID + 1
}

// AddToCart reserves one unit of the product.
func (l *Ledger) AddToCart(productID int64) (domain.CartLine, error) {
	p, err := l.product(productID)
	if err != nil {
		return domain.CartLine{}, err
	}
	if !p.InStock() {
		return domain.CartLine{}, stockUnavailable(p.Name)
	}

	p.Stock--
	if i := l.lineIndex(productID); i >= 0 {
		l.cart[i].Quantity++
		return l.cart[i], nil
	}

	line := domain.NewCartLine(*p, 1)
	l.cart = append(l.cart, line)
	return line, nil
}

// RemoveFromCart releases the whole line back to stock. It reports whether a
// line existed.
func (l *Ledger) RemoveFromCart(productID int64) bool {
	i := l.lineIndex(productID)
	if i < 0 {
		return false
	}

	l.catalog[l.index[productID]].Stock += l.cart[i].Quantity
	l.cart = append(l.cart[:i], l.cart[i+1:]...)
	return true
}

// SetQuantity moves the line to quantity units, reserving or releasing the
// difference. Zero removes the line and returns a nil line. A product with no
// cart line is left alone and a nil line is returned, as with RemoveFromCart.
func (l *Ledger) SetQuantity(productID int64, quantity int) (*domain.CartLine, error) {
	if quantity < 0 {
		return nil, apperrors.InvalidInput("quantity must not be negative")
	}
	i := l.lineIndex(productID)
	if i < 0 {
		return nil, nil
	}
	p, err := l.product(productID)
	if err != nil {
		return nil, err
	}

	if quantity == 0 {
		l.RemoveFromCart(productID)
		return nil, nil
	}

	delta := quantity - l.cart[i].Quantity
	if delta > p.Stock {
		return nil, notEnoughStock(p.Name, p.Stock, delta)
	}

	p.Stock -= delta
	l.cart[i].Quantity = quantity
	line := l.cart[i]
	return &line, nil
}

// ClearCart releases every line back to stock and returns how many lines were cleared.
func (l *Ledger) ClearCart() int {
	n := len(l.cart)
	for _, line := range l.cart {
		l.catalog[l.index[line.ProductID]].Stock += line.Quantity
	}
	l.cart = nil
	return n
}

// Checkout commits every reserved unit as sold and empties the cart. Sold
// units do not return to stock. It returns the committed lines and their total.
func (l *Ledger) Checkout() ([]domain.CartLine, int64, error) {
	if len(l.cart) == 0 {
		return nil, 0, apperrors.InvalidInput("cart is empty")
	}

	lines := l.cart
	for _, line := range lines {
		l.sold[line.ProductID] += line.Quantity
	}
	l.cart = nil
	return lines, domain.TotalOf(lines), nil
}

// ComputeTotal is the cart total in cents.
func (l *Ledger) ComputeTotal() int64 {
	return domain.TotalOf(l.cart)
}

// ItemCount is the number of units reserved in the cart.
func (l *Ledger) ItemCount() int {
	return domain.CountOf(l.cart)
}

// Catalog returns a copy of the catalog in insertion order.
func (l *Ledger) Catalog() []domain.Product {
	out := make([]domain.Product, len(l.catalog))
	copy(out, l.catalog)
	return out
}

// Cart returns a copy of the cart lines in insertion order.
func (l *Ledger) Cart() []domain.CartLine {
	out := make([]domain.CartLine, len(l.cart))
	copy(out, l.cart)
	return out
}

// Product returns a copy of the catalog entry for id.
func (l *Ledger) Product(id int64) (domain.Product, bool) {
	i, ok := l.index[id]
	if !ok {
		return domain.Product{}, false
	}
	return l.catalog[i], true
}

// Line returns a copy of the cart line for a product.
func (l *Ledger) Line(productID int64) (domain.CartLine, bool) {
	i := l.lineIndex(productID)
	if i < 0 {
		return domain.CartLine{}, false
	}
	return l.cart[i], true
}

// Holdings reports where the units of a product currently are.
func (l *Ledger) Holdings(productID int64) (Holding, bool) {
	i, ok := l.index[productID]
	if !ok {
		return Holding{}, false
	}
	h := Holding{
		Initial: l.initial[productID],
		Stock:   l.catalog[i].Stock,
		Sold:    l.sold[productID],
	}
	if j := l.lineIndex(productID); j >= 0 {
		h.Reserved = l.cart[j].Quantity
	}
	return h, true
}

// Verify checks stock + reserved + sold == initial for every product and
// that no stock or quantity has gone out of range.
func (l *Ledger) Verify() error {
	for _, line := range l.cart {
		if _, ok := l.index[line.ProductID]; !ok {
			return fmt.Errorf("cart line references unknown product %d", line.ProductID)
		}
		if line.Quantity < 1 {
			return fmt.Errorf("cart line for product %d has quantity %d", line.ProductID, line.Quantity)
		}
	}
	for _, p := range l.catalog {
		h, _ := l.Holdings(p.ID)
		if h.Stock < 0 {
			return fmt.Errorf("product %d has negative stock %d", p.ID, h.Stock)
		}
		if got := h.Stock + h.Reserved + h.Sold; got != h.Initial {
			return fmt.Errorf("product %d units drifted: stock %d + reserved %d + sold %d != initial %d",
				p.ID, h.Stock, h.Reserved, h.Sold, h.Initial)
		}
	}
	return nil
}

func (l *Ledger) product(id int64) (*domain.Product, error) {
	i, ok := l.index[id]
	if !ok {
		return nil, apperrors.NotFound("product", strconv.FormatInt(id, 10))
	}
	return &l.catalog[i], nil
}

func (l *Ledger) lineIndex(productID int64) int {
	for i := range l.cart {
		if l.cart[i].ProductID == productID {
			return i
		}
	}
	return -1
}
