// Package seed loads the catalog a storefront session starts with.
package seed

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/utafrali/grocerystore/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type catalogFile struct {
	Products []productEntry `yaml:"products"`
}

type productEntry struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Price    string `yaml:"price"`
	Stock    int    `yaml:"stock"`
	ImageURL string `yaml:"image_url"`
}

// Default returns the built-in catalog.
func Default() ([]domain.Product, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog file, or the built-in catalog when path is empty.
func Load(path string) ([]domain.Product, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	products, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return products, nil
}

// Parse decodes a YAML catalog. Field-level rules (names, stock) are left to the ledger.
func Parse(raw []byte) ([]domain.Product, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	products := make([]domain.Product, 0, len(f.Products))
	for i, e := range f.Products {
		price, err := domain.ParsePrice(e.Price)
		if err != nil {
			return nil, fmt.Errorf("product %d (%s): %w", i+1, e.Name, err)
		}
		products = append(products, domain.Product{
			ID:       e.ID,
			Name:     e.Name,
			Category: e.Category,
			Price:    price,
			Stock:    e.Stock,
			ImageURL: e.ImageURL,
		})
	}
	return products, nil
}
