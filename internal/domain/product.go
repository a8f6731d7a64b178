package domain

// Catalog limits. They keep every cart total well inside int64.
const (
	MaxPriceCents int64 = 10_000_000 // 100000.00
	MaxStock            = 100_000
)

// Product is a sellable catalog entry. Stock counts the units still on the
// shelf; units reserved by cart lines are not included.
type Product struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    int64  `json:"price"` // cents
	Stock    int    `json:"stock"`
	ImageURL string `json:"image_url,omitempty"`
}

// InStock reports whether at least one unit can be reserved.
func (p Product) InStock() bool {
	return p.Stock > 0
}
