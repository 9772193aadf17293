package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"shop-assistant/internal/domain"
)

// CatalogReader is the degraded read surface of the catalog. *catalog.Catalog
// satisfies it.
type CatalogReader interface {
	List(ctx context.Context) []domain.Product
	Get(ctx context.Context, id int64) (domain.Product, bool)
}

type productsLoadedMsg struct {
	products []domain.Product
}

type productLoadedMsg struct {
	id      int64
	product domain.Product
	ok      bool
}

// turnSettledMsg reports that a chat turn finished, whether its reply was
// appended or discarded.
type turnSettledMsg struct{}

func loadProducts(c CatalogReader) tea.Cmd {
	return func() tea.Msg {
		return productsLoadedMsg{products: c.List(context.Background())}
	}
}

func loadProduct(c CatalogReader, id int64) tea.Cmd {
	return func() tea.Msg {
		p, ok := c.Get(context.Background(), id)
		return productLoadedMsg{id: id, product: p, ok: ok}
	}
}

func waitForTurn(done <-chan domain.ChatMessage) tea.Cmd {
	return func() tea.Msg {
		for range done {
		}
		return turnSettledMsg{}
	}
}
