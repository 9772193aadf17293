package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"shop-assistant/internal/domain"
)

const (
	defaultPageSize = 100
	maxPageSize     = 100

	// listGenerationKey holds a counter folded into every cached listing
	// page key. Bumping it retires all cached pages at once.
	listGenerationKey = "products:generation"
)

type ProductReader interface {
	ListProducts(ctx context.Context, skip, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
}

// Cache is an optional read-through store for catalog reads.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

// CatalogService serves the product list and detail reads.
type CatalogService struct {
	products ProductReader
	cache    Cache
	log      *slog.Logger
}

// NewCatalogService builds the service; cache may be nil.
func NewCatalogService(products ProductReader, cache Cache, log *slog.Logger) (*CatalogService, error) {
	if products == nil {
		return nil, errors.New("usecase: product reader must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CatalogService{products: products, cache: cache, log: log}, nil
}

// ListProducts returns one page of the catalog. A non-positive limit selects
// the default page size; larger limits are capped.
func (s *CatalogService) ListProducts(ctx context.Context, skip, limit int) ([]domain.Product, error) {
	if skip < 0 {
		return nil, newError(ErrorInvalidInput, "negative_skip", nil)
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	var gen int64
	s.cacheGet(ctx, listGenerationKey, &gen)
	key := fmt.Sprintf("products:%d:%d:%d", gen, skip, limit)
	var cached []domain.Product
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	products, err := s.products.ListProducts(ctx, skip, limit)
	if err != nil {
		return nil, newError(ErrorInternal, "dynamodb_list_error", err)
	}
	if products == nil {
		products = []domain.Product{}
	}
	s.cacheSet(ctx, key, products)
	return products, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, newError(ErrorNotFound, "product_not_found", nil)
	}

	key := fmt.Sprintf("product:%d", id)
	var cached domain.Product
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	p, err := s.products.GetProduct(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Product{}, newError(ErrorNotFound, "product_not_found", err)
	}
	if err != nil {
		return domain.Product{}, newError(ErrorInternal, "dynamodb_get_error", err)
	}
	s.cacheSet(ctx, key, p)
	return p, nil
}

// Cache failures never fail a read.
func (s *CatalogService) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn("cache read failed", "key", key, "err", err)
		return false
	}
	return ok
}

func (s *CatalogService) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.log.Warn("cache write failed", "key", key, "err", err)
	}
}
