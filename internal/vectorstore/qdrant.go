// Package vectorstore holds product embeddings in Qdrant. Point ids are the
// numeric product ids; the payload carries title, price and category so
// searches can filter by category.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"shop-assistant/internal/domain"
)

// pointsAPI is the part of *qdrant.Client used here.
type pointsAPI interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Close() error
}

type Config struct {
	// URL is the gRPC endpoint, e.g. "http://localhost:6334".
	URL            string
	CollectionName string
	APIKey         string
}

// Hit is one similarity match.
type Hit struct {
	ProductID int64
	Score     float32
}

type Store struct {
	api        pointsAPI
	collection string
}

// New dials Qdrant. A URL without scheme is treated as https.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("vectorstore: qdrant url is required")
	}
	raw := cfg.URL
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse qdrant url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		if port, err = strconv.Atoi(u.Port()); err != nil {
			return nil, fmt.Errorf("vectorstore: invalid port: %w", err)
		}
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: create qdrant client: %w", err)
	}
	return NewWithAPI(client, cfg.CollectionName)
}

// NewWithAPI wraps an existing client.
func NewWithAPI(api pointsAPI, collection string) (*Store, error) {
	if api == nil {
		return nil, errors.New("vectorstore: api must not be nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("vectorstore: collection name is required")
	}
	return &Store{api: api, collection: collection}, nil
}

// Search returns up to limit products nearest to vector, best first. A
// non-empty category restricts matches to that category.
func (s *Store) Search(ctx context.Context, vector []float32, category string, limit int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, errors.New("vectorstore: empty query vector")
	}
	if limit <= 0 {
		limit = 20
	}
	n := uint64(limit)
	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(false),
	}
	if category = strings.TrimSpace(category); category != "" {
		req.Filter = &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("category", category)}}
	}

	points, err := s.api.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}
	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		// Only numeric ids are written by Upsert.
		id := p.GetId().GetNum()
		if id == 0 {
			continue
		}
		hits = append(hits, Hit{ProductID: int64(id), Score: p.GetScore()})
	}
	return hits, nil
}

// Upsert writes one point per product. vectors[i] is the embedding of products[i].
func (s *Store) Upsert(ctx context.Context, products []domain.Product, vectors [][]float32) error {
	if len(products) != len(vectors) {
		return fmt.Errorf("vectorstore: %d products but %d vectors", len(products), len(vectors))
	}
	if len(products) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(products))
	for i, p := range products {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"product_id": p.ID,
				"title":      p.Title,
				"price":      p.Price,
				"category":   p.Category,
			}),
		})
	}
	wait := true
	if _, err := s.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("vectorstore: upsert: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.api.Close()
}

// Document is the text embedded for a product.
func Document(p domain.Product) string {
	return p.Title + ". " + p.Description
}
