package domain

// CartLine is a product reserved in the cart together with its quantity.
// Stock lives only in the catalog, so a line carries no stock count.
type CartLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Price     int64  `json:"price"` // cents
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
}

// NewCartLine creates a line for p holding qty units.
func NewCartLine(p Product, qty int) CartLine {
	return CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Quantity:  qty,
	}
}

// LineTotal is price times quantity, in cents.
func (l CartLine) LineTotal() int64 {
	return l.Price * int64(l.Quantity)
}

// TotalOf sums the line totals of lines.
func TotalOf(lines []CartLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.LineTotal()
	}
	return total
}

// CountOf sums the quantities of lines.
func CountOf(lines []CartLine) int {
	var n int
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}
