package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/domain"
)

type fakePoints struct {
	queryOut  []*qdrant.ScoredPoint
	queryErr  error
	upsertErr error
	lastQuery *qdrant.QueryPoints
	lastUp    *qdrant.UpsertPoints
	closed    bool
}

func (f *fakePoints) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.lastQuery = req
	return f.queryOut, f.queryErr
}

func (f *fakePoints) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.lastUp = req
	return &qdrant.UpdateResult{}, f.upsertErr
}

func (f *fakePoints) Close() error {
	f.closed = true
	return nil
}

func newTestStore(t *testing.T, f *fakePoints) *Store {
	t.Helper()
	s, err := NewWithAPI(f, "products")
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.ErrorContains(t, err, "url")

	_, err = NewWithAPI(nil, "products")
	require.Error(t, err)

	_, err = NewWithAPI(&fakePoints{}, " ")
	require.ErrorContains(t, err, "collection")
}

func TestSearch_MapsHitsInOrder(t *testing.T) {
	f := &fakePoints{queryOut: []*qdrant.ScoredPoint{
		{Id: qdrant.NewIDNum(7), Score: 0.9},
		{Id: qdrant.NewID("not-a-product"), Score: 0.8},
		{Id: qdrant.NewIDNum(3), Score: 0.7},
	}}

	hits, err := newTestStore(t, f).Search(context.Background(), []float32{0.1, 0.2}, "", 5)
	require.NoError(t, err)
	require.Equal(t, []Hit{{ProductID: 7, Score: 0.9}, {ProductID: 3, Score: 0.7}}, hits)

	require.Equal(t, "products", f.lastQuery.CollectionName)
	require.Equal(t, uint64(5), f.lastQuery.GetLimit())
	require.Nil(t, f.lastQuery.Filter)
}

func TestSearch_CategoryFilter(t *testing.T) {
	f := &fakePoints{}
	_, err := newTestStore(t, f).Search(context.Background(), []float32{1}, " Leggings ", 0)
	require.NoError(t, err)

	require.Equal(t, uint64(20), f.lastQuery.GetLimit())
	require.Len(t, f.lastQuery.Filter.Must, 1)
	field := f.lastQuery.Filter.Must[0].GetField()
	require.Equal(t, "category", field.GetKey())
	require.Equal(t, "Leggings", field.GetMatch().GetKeyword())
}

func TestSearch_Errors(t *testing.T) {
	_, err := newTestStore(t, &fakePoints{}).Search(context.Background(), nil, "", 5)
	require.ErrorContains(t, err, "empty query vector")

	_, err = newTestStore(t, &fakePoints{queryErr: errors.New("unavailable")}).Search(context.Background(), []float32{1}, "", 5)
	require.ErrorContains(t, err, "unavailable")
}

func TestUpsert_WritesPayload(t *testing.T) {
	f := &fakePoints{}
	products := []domain.Product{{ID: 4, Title: "Run Tee", Price: 799, Category: "Tops"}}

	require.NoError(t, newTestStore(t, f).Upsert(context.Background(), products, [][]float32{{0.5, 0.25}}))

	require.Len(t, f.lastUp.Points, 1)
	pt := f.lastUp.Points[0]
	require.Equal(t, uint64(4), pt.GetId().GetNum())
	require.Equal(t, "Run Tee", pt.Payload["title"].GetStringValue())
	require.Equal(t, "Tops", pt.Payload["category"].GetStringValue())
	require.Equal(t, int64(4), pt.Payload["product_id"].GetIntegerValue())
	require.True(t, f.lastUp.GetWait())
}

func TestUpsert_LengthMismatchAndEmpty(t *testing.T) {
	f := &fakePoints{}
	s := newTestStore(t, f)

	err := s.Upsert(context.Background(), []domain.Product{{ID: 1}}, nil)
	require.Error(t, err)

	require.NoError(t, s.Upsert(context.Background(), nil, nil))
	require.Nil(t, f.lastUp)
}

func TestClose(t *testing.T) {
	f := &fakePoints{}
	require.NoError(t, newTestStore(t, f).Close())
	require.True(t, f.closed)
}

func TestDocument(t *testing.T) {
	require.Equal(t, "Run Tee. Light and fast", Document(domain.Product{Title: "Run Tee", Description: "Light and fast"}))
}
