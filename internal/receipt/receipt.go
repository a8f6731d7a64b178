// Package receipt renders the plain-text bill offered for download after checkout.
package receipt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/utafrali/grocerystore/internal/domain"
)

// Default free-text parts of the bill.
const (
	DefaultTitle            = "Grocery Store Bill"
	DefaultDeliveryEstimate = "Approximately 2 hours"
	DefaultClosing          = "Thank you for shopping with us!"

	rule = "-------------------"
)

// Options controls the free-text parts of the bill. Zero values fall back to the defaults.
type Options struct {
	Title            string
	DeliveryEstimate string
	Closing          string
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = DefaultTitle
	}
	if o.DeliveryEstimate == "" {
		o.DeliveryEstimate = DefaultDeliveryEstimate
	}
	if o.Closing == "" {
		o.Closing = DefaultClosing
	}
	return o
}

// Render writes the bill for r to w.
func Render(w io.Writer, r domain.Receipt, opts Options) error {
	opts = opts.withDefaults()
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, opts.Title)
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, "Items:")
	for _, l := range r.Lines {
		fmt.Fprintf(bw, "%s (Quantity: %d) - $%s\n", l.Name, l.Quantity, domain.FormatCents(l.LineTotal()))
	}
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Total Amount: $%s\n", domain.FormatCents(r.Total))
	fmt.Fprintln(bw, rule)
	fmt.Fprintf(bw, "Payment Method: %s\n", r.PaymentMethod.Label())
	fmt.Fprintf(bw, "Delivery time: %s\n", opts.DeliveryEstimate)
	fmt.Fprintln(bw, rule)
	fmt.Fprintln(bw, opts.Closing)

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write receipt %s: %w", r.ID, err)
	}
	return nil
}

// String renders the bill to a string.
func String(r domain.Receipt, opts Options) string {
	var sb strings.Builder
	_ = Render(&sb, r, opts)
	return sb.String()
}

// Filename is the suggested download name for the bill.
func Filename(r domain.Receipt) string {
	return "grocery-bill-" + r.ID + ".txt"
}
