package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/vectorstore"
)

type ProductWriter interface {
	PutProduct(ctx context.Context, p domain.Product) error
}

type Embedder interface {
	Embed(ctx context.Context, model, input string) ([]float32, error)
}

type VectorWriter interface {
	Upsert(ctx context.Context, products []domain.Product, vectors [][]float32) error
}

type CacheInvalidator interface {
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// ImportResult counts what an import wrote.
type ImportResult struct {
	Products int
	Vectors  int
	Skipped  int
}

// ImportService loads a product export into the table and the vector index.
type ImportService struct {
	products       ProductWriter
	embedder       Embedder
	vectors        VectorWriter
	cache          CacheInvalidator
	embeddingModel string
	log            *slog.Logger
}

// NewImportService builds the importer. embedder and vectors must both be
// set or both be nil; cache may be nil.
func NewImportService(products ProductWriter, embedder Embedder, vectors VectorWriter, cache CacheInvalidator, embeddingModel string, log *slog.Logger) (*ImportService, error) {
	if products == nil {
		return nil, errors.New("usecase: product writer must not be nil")
	}
	if (embedder == nil) != (vectors == nil) {
		return nil, errors.New("usecase: embedder and vector writer must be set together")
	}
	embeddingModel = strings.TrimSpace(embeddingModel)
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}
	if log == nil {
		log = slog.Default()
	}
	return &ImportService{
		products:       products,
		embedder:       embedder,
		vectors:        vectors,
		cache:          cache,
		embeddingModel: embeddingModel,
		log:            log,
	}, nil
}

// Import writes each product. Products without an id are numbered after the
// largest id in the batch. Invalid products are skipped; a failed table
// write aborts. Embedding and vector failures are logged and do not stop
// the import, since keyword search still covers the product. Once anything
// was written, cached listing pages are retired.
func (s *ImportService) Import(ctx context.Context, products []domain.Product) (res ImportResult, err error) {
	defer func() {
		if res.Products > 0 {
			s.retireListings(ctx)
		}
	}()

	nextID := int64(0)
	for _, p := range products {
		nextID = max(nextID, p.ID)
	}

	for _, p := range products {
		if p.ID <= 0 {
			nextID++
			p.ID = nextID
		}
		if err := p.Validate(); err != nil {
			s.log.Warn("skipping invalid product", "id", p.ID, "title", p.Title, "err", err)
			res.Skipped++
			continue
		}
		if err := s.products.PutProduct(ctx, p); err != nil {
			return res, fmt.Errorf("usecase: import product %d: %w", p.ID, err)
		}
		res.Products++

		if s.cache != nil {
			if err := s.cache.Delete(ctx, fmt.Sprintf("product:%d", p.ID)); err != nil {
				s.log.Warn("cache invalidation failed", "id", p.ID, "err", err)
			}
		}

		if s.vectors == nil {
			continue
		}
		vec, err := s.embedder.Embed(ctx, s.embeddingModel, vectorstore.Document(p))
		if err != nil {
			s.log.Warn("embedding failed", "id", p.ID, "title", p.Title, "err", err)
			continue
		}
		if err := s.vectors.Upsert(ctx, []domain.Product{p}, [][]float32{vec}); err != nil {
			s.log.Warn("vector upsert failed", "id", p.ID, "title", p.Title, "err", err)
			continue
		}
		res.Vectors++
	}
	s.log.Info("import finished", "products", res.Products, "vectors", res.Vectors, "skipped", res.Skipped)
	return res, nil
}

func (s *ImportService) retireListings(ctx context.Context) {
	if s.cache == nil {
		return
	}
	gen, err := s.cache.Incr(ctx, listGenerationKey)
	if err != nil {
		s.log.Warn("listing cache invalidation failed", "err", err)
		return
	}
	s.log.Debug("listing cache retired", "generation", gen)
}
