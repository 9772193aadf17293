package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/chat"
	"shop-assistant/internal/domain"
)

type fakeCatalog struct {
	mu       sync.Mutex
	products []domain.Product
	byID     map[int64]domain.Product
	gets     []int64
}

func (f *fakeCatalog) List(_ context.Context) []domain.Product {
	return f.products
}

func (f *fakeCatalog) Get(_ context.Context, id int64) (domain.Product, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets = append(f.gets, id)
	p, ok := f.byID[id]
	return p, ok
}

type fakeAssistant struct {
	resp domain.ChatResponse
	err  error
}

func (f *fakeAssistant) Chat(_ context.Context, _ string) (domain.ChatResponse, error) {
	return f.resp, f.err
}

func newTestModel(t *testing.T, cat CatalogReader, a chat.Assistant, startID int64) (Model, *chat.Controller) {
	t.Helper()
	ctrl, err := chat.NewController(a)
	require.NoError(t, err)
	m, err := New(Config{Catalog: cat, Chat: ctrl, StartProductID: startID, MarkdownStyle: "notty"})
	require.NoError(t, err)
	return m, ctrl
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func key(k tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: k} }

func typeText(t *testing.T, m Model, s string) Model {
	t.Helper()
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func sampleProducts(n int) []domain.Product {
	out := make([]domain.Product, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, domain.Product{ID: int64(i), Title: fmt.Sprintf("Product %d", i), Price: float64(i * 100), Category: "Leggings"})
	}
	return out
}

func TestNew_ValidatesDependencies(t *testing.T) {
	ctrl, err := chat.NewController(&fakeAssistant{})
	require.NoError(t, err)
	_, err = New(Config{Chat: ctrl})
	require.Error(t, err)
	_, err = New(Config{Catalog: &fakeCatalog{}})
	require.Error(t, err)
}

func TestNew_ChatWidgetStartsClosed(t *testing.T) {
	_, ctrl := newTestModel(t, &fakeCatalog{}, &fakeAssistant{}, 0)
	require.False(t, ctrl.IsOpen())
}

func TestInit_LoadsCatalogIndex(t *testing.T) {
	cat := &fakeCatalog{products: sampleProducts(3)}
	m, _ := newTestModel(t, cat, &fakeAssistant{}, 0)
	require.Contains(t, m.View(), "Loading products...")

	msg := m.Init()()
	loaded, ok := msg.(productsLoadedMsg)
	require.True(t, ok)
	require.Len(t, loaded.products, 3)
}

func TestIndex_RendersOneEntryPerProduct(t *testing.T) {
	products := sampleProducts(4)
	m, _ := newTestModel(t, &fakeCatalog{}, &fakeAssistant{}, 0)
	m, _ = update(t, m, productsLoadedMsg{products: products})

	entries := m.entries()
	require.Len(t, entries, 4)
	seen := map[int64]bool{}
	for i, e := range entries {
		require.Equal(t, products[i].ID, e.ID)
		seen[e.ID] = true
	}
	require.Len(t, seen, 4)

	view := m.View()
	for _, p := range products {
		require.Contains(t, view, p.Title)
	}
}

func TestIndex_EmptyCatalog(t *testing.T) {
	m, _ := newTestModel(t, &fakeCatalog{}, &fakeAssistant{}, 0)
	m, _ = update(t, m, productsLoadedMsg{products: []domain.Product{}})
	require.Empty(t, m.entries())
	require.Contains(t, m.View(), "No products available.")

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.Nil(t, cmd)
	require.Equal(t, routeIndex, m.route)
}

func TestIndex_EnterNavigatesToSelectedProduct(t *testing.T) {
	cat := &fakeCatalog{byID: map[int64]domain.Product{2: {ID: 2, Title: "Product 2", Price: 200}}}
	m, _ := newTestModel(t, cat, &fakeAssistant{}, 0)
	m, _ = update(t, m, productsLoadedMsg{products: sampleProducts(3)})
	m, _ = update(t, m, key(tea.KeyDown))

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.Equal(t, routeDetail, m.route)
	require.Equal(t, int64(2), m.productID)
	require.Contains(t, m.View(), "Loading...")
	require.NotNil(t, cmd)

	m, _ = update(t, m, cmd())
	require.Equal(t, detailReady, m.detailState)
	require.Contains(t, m.View(), "Product 2")
}

func TestDetail_NotFound(t *testing.T) {
	cat := &fakeCatalog{byID: map[int64]domain.Product{}}
	m, _ := newTestModel(t, cat, &fakeAssistant{}, 99)

	m, _ = update(t, m, m.Init()())
	require.Equal(t, detailNotFound, m.detailState)
	require.Contains(t, m.View(), "Product not found")
	require.Equal(t, []int64{99}, cat.gets)
}

func TestDetail_RendersDerivedLinks(t *testing.T) {
	p := domain.Product{ID: 5, Title: "Tops & Tees", Price: 799, Description: "Soft cotton", Features: map[string]any{"Fit": "Relaxed"}}
	cat := &fakeCatalog{byID: map[int64]domain.Product{5: p}}
	m, _ := newTestModel(t, cat, &fakeAssistant{}, 5)

	m, _ = update(t, m, m.Init()())
	view := m.View()
	require.Contains(t, view, "https://hunnit.com/search?q=Tops%20%26%20Tees")
	require.Contains(t, view, "data:image/svg+xml")
	require.Contains(t, view, "Fit: Relaxed")
	require.Contains(t, view, "₹799")
}

func TestDetail_IgnoresStaleLoad(t *testing.T) {
	m, _ := newTestModel(t, &fakeCatalog{}, &fakeAssistant{}, 5)
	m, _ = update(t, m, productLoadedMsg{id: 4, ok: true, product: domain.Product{ID: 4, Title: "Other"}})
	require.Equal(t, detailLoading, m.detailState)
}

func TestDetail_EscReturnsToIndex(t *testing.T) {
	m, _ := newTestModel(t, &fakeCatalog{products: sampleProducts(1)}, &fakeAssistant{}, 5)
	m, cmd := update(t, m, key(tea.KeyEsc))
	require.Equal(t, routeIndex, m.route)
	require.NotNil(t, cmd)
	_, ok := cmd().(productsLoadedMsg)
	require.True(t, ok)
}

func openChat(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = update(t, m, key(tea.KeyCtrlT))
	require.True(t, m.chatOpen)
	return m
}

func settle(t *testing.T, m Model, ctrl *chat.Controller) Model {
	t.Helper()
	require.Eventually(t, func() bool { return !ctrl.Pending() }, 2*time.Second, 5*time.Millisecond)
	m, _ = update(t, m, turnSettledMsg{})
	return m
}

func TestChat_OpenShowsGreeting(t *testing.T) {
	m, ctrl := newTestModel(t, &fakeCatalog{}, &fakeAssistant{}, 0)
	m = openChat(t, m)
	require.True(t, ctrl.IsOpen())
	require.Contains(t, m.View(), "AI Shopping Assistant")
	require.Contains(t, m.View(), "perfect activewear")
}

func TestChat_SubmitRendersRecommendationsInOrder(t *testing.T) {
	a := &fakeAssistant{resp: domain.ChatResponse{
		Response: "Try these",
		Products: []domain.Product{{ID: 7, Title: "Zip Hoodie", Price: 1999}, {ID: 3, Title: "Air Tee", Price: 599}},
	}}
	m, ctrl := newTestModel(t, &fakeCatalog{}, a, 0)
	m = openChat(t, m)
	m = typeText(t, m, "hoodies")
	require.Equal(t, "hoodies", ctrl.Draft())

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.NotNil(t, cmd)
	require.Equal(t, "", m.input.Value())
	require.Equal(t, "", ctrl.Draft())

	m = settle(t, m, ctrl)
	require.Equal(t, []int64{7, 3}, m.cards)

	view := m.View()
	require.Contains(t, view, "Try these")
	first := strings.Index(view, "[1] Zip Hoodie")
	second := strings.Index(view, "[2] Air Tee")
	require.True(t, first >= 0 && second > first, view)
}

func TestChat_SelectedCardNavigatesToDetail(t *testing.T) {
	a := &fakeAssistant{resp: domain.ChatResponse{
		Response: "Here you go",
		Products: []domain.Product{{ID: 7, Title: "Zip Hoodie", Price: 1999}, {ID: 3, Title: "Air Tee", Price: 599}},
	}}
	cat := &fakeCatalog{byID: map[int64]domain.Product{3: {ID: 3, Title: "Air Tee", Price: 599}}}
	m, ctrl := newTestModel(t, cat, a, 0)
	m = openChat(t, m)
	m = typeText(t, m, "tees")
	m, _ = update(t, m, key(tea.KeyEnter))
	m = settle(t, m, ctrl)

	m, _ = update(t, m, key(tea.KeyTab))
	m, _ = update(t, m, key(tea.KeyTab))
	require.Equal(t, 1, m.selectedCard)

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.Equal(t, routeDetail, m.route)
	require.Equal(t, int64(3), m.productID)
	require.Equal(t, 3, ctrl.Len(), "navigating must not submit a turn")

	m, _ = update(t, m, cmd())
	require.Contains(t, m.View(), "Air Tee")
}

func TestChat_WhitespaceSubmitIsIgnored(t *testing.T) {
	m, ctrl := newTestModel(t, &fakeCatalog{}, &fakeAssistant{}, 0)
	m = openChat(t, m)
	m = typeText(t, m, "   ")

	m, cmd := update(t, m, key(tea.KeyEnter))
	require.Nil(t, cmd)
	require.Equal(t, 1, ctrl.Len())
	require.Equal(t, "   ", m.input.Value())
}

func TestChat_FailureShowsFallback(t *testing.T) {
	m, ctrl := newTestModel(t, &fakeCatalog{}, &fakeAssistant{err: fmt.Errorf("boom")}, 0)
	m = openChat(t, m)
	m = typeText(t, m, "anything")
	m, _ = update(t, m, key(tea.KeyEnter))
	m = settle(t, m, ctrl)

	require.Contains(t, m.View(), chat.DefaultFallback)
	require.Empty(t, m.cards)
	require.True(t, m.input.Focused())
}

func TestChat_ScrollsToNewestMessage(t *testing.T) {
	a := &fakeAssistant{resp: domain.ChatResponse{Response: "reply", Products: sampleProducts(6)}}
	m, ctrl := newTestModel(t, &fakeCatalog{}, a, 0)
	m = openChat(t, m)
	for i := 0; i < 3; i++ {
		m = typeText(t, m, fmt.Sprintf("question %d", i))
		m, _ = update(t, m, key(tea.KeyEnter))
		m = settle(t, m, ctrl)
	}
	require.Greater(t, m.viewport.TotalLineCount(), m.viewport.Height)
	require.True(t, m.viewport.AtBottom())
}

func TestChat_ReopenResetsTranscript(t *testing.T) {
	m, ctrl := newTestModel(t, &fakeCatalog{}, &fakeAssistant{resp: domain.ChatResponse{Response: "hello back"}}, 0)
	m = openChat(t, m)
	m = typeText(t, m, "hello")
	m, _ = update(t, m, key(tea.KeyEnter))
	m = settle(t, m, ctrl)
	require.Equal(t, 3, ctrl.Len())

	m, _ = update(t, m, key(tea.KeyCtrlT))
	require.False(t, m.chatOpen)
	require.False(t, ctrl.IsOpen())

	m = openChat(t, m)
	require.Equal(t, 1, ctrl.Len())
	require.NotContains(t, m.View(), "hello back")
}

func TestRenderTranscript_NumbersCardsAcrossMessages(t *testing.T) {
	msgs := []domain.ChatMessage{
		{Role: domain.RoleAssistant, Content: "hi"},
		{Role: domain.RoleUser, Content: "a"},
		{Role: domain.RoleAssistant, Content: "one", Products: []domain.Product{{ID: 10, Title: "Ten"}}},
		{Role: domain.RoleUser, Content: "b"},
		{Role: domain.RoleAssistant, Content: "two", Products: []domain.Product{{ID: 20, Title: "Twenty"}, {ID: 30, Title: "Thirty"}}},
	}
	out, cards := renderTranscript(msgs, noCard, 80, func(s string) string { return s })
	require.Equal(t, []int64{10, 20, 30}, cards)
	require.Contains(t, out, "[1] Ten")
	require.Contains(t, out, "[3] Thirty")
	require.Contains(t, out, "You: b")
}
