package catalog

import (
	"context"
	"errors"
	"log/slog"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/storefront"
)

// Source is the transport the Catalog reads through. *storefront.Client
// satisfies it.
type Source interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// Catalog converts every read failure into a degraded result. Callers never
// see an error: a failed listing is empty and a failed lookup is "not found".
type Catalog struct {
	source Source
	log    *slog.Logger
}

func New(source Source, log *slog.Logger) (*Catalog, error) {
	if source == nil {
		return nil, errors.New("catalog: source must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{source: source, log: log}, nil
}

// List returns all products, or an empty slice if the fetch failed.
func (c *Catalog) List(ctx context.Context) []domain.Product {
	products, err := c.source.ListProducts(ctx)
	if err != nil {
		c.log.Error("failed to fetch products", "err", err)
		return []domain.Product{}
	}
	if products == nil {
		return []domain.Product{}
	}
	return products
}

// Get returns the product and true, or false when it could not be fetched
// for any reason.
func (c *Catalog) Get(ctx context.Context, id int64) (domain.Product, bool) {
	p, err := c.source.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, storefront.ErrNotFound) {
			c.log.Warn("product not found", "id", id)
		} else {
			c.log.Error("failed to fetch product", "id", id, "err", err)
		}
		return domain.Product{}, false
	}
	return p, true
}
