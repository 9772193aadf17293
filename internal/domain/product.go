package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNotFound reports that no product has the requested id.
var ErrNotFound = errors.New("product not found")

// Product is a catalog record as exposed by the REST surface.
type Product struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Price       float64        `json:"price"`
	Category    string         `json:"category,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	Description string         `json:"description,omitempty"`
	Features    map[string]any `json:"features,omitempty"`
	ProductURL  string         `json:"product_url,omitempty"`
}

// Validate rejects records that cannot be rendered: missing identity or title,
// unusable prices, and feature values that are not flat strings or numbers.
func (p Product) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("domain: product id must be positive, got %d", p.ID)
	}
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("domain: product %d has no title", p.ID)
	}
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		return fmt.Errorf("domain: product %d has invalid price %v", p.ID, p.Price)
	}
	for label, v := range p.Features {
		if !isFeatureValue(v) {
			return fmt.Errorf("domain: product %d feature %q has unsupported value type %T", p.ID, label, v)
		}
	}
	return nil
}

func isFeatureValue(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}

// SearchFilters narrows a product search.
type SearchFilters struct {
	Category string   `json:"category,omitempty"`
	MinPrice *float64 `json:"min_price,omitempty"`
	MaxPrice *float64 `json:"max_price,omitempty"`
}

// AllowsPrice reports whether price lies inside the optional bounds.
func (f SearchFilters) AllowsPrice(price float64) bool {
	if f.MinPrice != nil && price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && price > *f.MaxPrice {
		return false
	}
	return true
}
