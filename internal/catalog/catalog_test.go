package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/storefront"
)

type fakeSource struct {
	products []domain.Product
	product  domain.Product
	listErr  error
	getErr   error
	gotID    int64
}

func (f *fakeSource) ListProducts(_ context.Context) ([]domain.Product, error) {
	return f.products, f.listErr
}

func (f *fakeSource) GetProduct(_ context.Context, id int64) (domain.Product, error) {
	f.gotID = id
	return f.product, f.getErr
}

func newTestCatalog(t *testing.T, src Source) (*Catalog, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	c, err := New(src, slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	require.NoError(t, err)
	return c, &buf
}

func TestNew_ValidatesDependency(t *testing.T) {
	_, err := New(nil, nil)
	require.Error(t, err)
}

func TestList_ReturnsProducts(t *testing.T) {
	src := &fakeSource{products: []domain.Product{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}}
	c, _ := newTestCatalog(t, src)
	require.Len(t, c.List(context.Background()), 2)
}

func TestList_FailureDegradesToEmptyAndLogs(t *testing.T) {
	src := &fakeSource{listErr: &storefront.HTTPStatusError{StatusCode: 503, URL: "http://x/products"}}
	c, logs := newTestCatalog(t, src)

	products := c.List(context.Background())
	require.NotNil(t, products)
	require.Empty(t, products)
	require.Contains(t, logs.String(), "failed to fetch products")
	require.Contains(t, logs.String(), "503")
}

func TestList_NilResultIsEmpty(t *testing.T) {
	c, _ := newTestCatalog(t, &fakeSource{})
	require.NotNil(t, c.List(context.Background()))
}

func TestGet_Found(t *testing.T) {
	src := &fakeSource{product: domain.Product{ID: 9, Title: "Tee"}}
	c, _ := newTestCatalog(t, src)

	p, ok := c.Get(context.Background(), 9)
	require.True(t, ok)
	require.Equal(t, "Tee", p.Title)
	require.Equal(t, int64(9), src.gotID)
}

func TestGet_NotFoundAndFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		log  string
	}{
		{name: "not found", err: storefront.ErrNotFound, log: "product not found"},
		{name: "transport", err: errors.New("connection refused"), log: "failed to fetch product"},
		{name: "malformed", err: fmt.Errorf("storefront: decode product 1: %w", errors.New("bad json")), log: "failed to fetch product"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, logs := newTestCatalog(t, &fakeSource{getErr: tc.err})
			_, ok := c.Get(context.Background(), 1)
			require.False(t, ok)
			require.Contains(t, logs.String(), tc.log)
		})
	}
}
