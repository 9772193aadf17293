// Package tui is the terminal view layer: a catalog index, a product detail
// pane and a chat widget. It renders state owned by the catalog and the chat
// controller and forwards user input to them; it holds no business rules.
package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"shop-assistant/internal/chat"
	"shop-assistant/internal/domain"
)

type route int

const (
	routeIndex route = iota
	routeDetail
)

type detailState int

const (
	detailLoading detailState = iota
	detailNotFound
	detailReady
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	noCard        = -1
)

// Config wires the view to its collaborators.
type Config struct {
	Catalog CatalogReader
	Chat    *chat.Controller
	// StartProductID opens the detail view for that product instead of the index.
	StartProductID int64
	// MarkdownStyle is a glamour standard style name; empty selects by terminal.
	MarkdownStyle string
}

type Model struct {
	catalog       CatalogReader
	chat          *chat.Controller
	markdownStyle string

	width  int
	height int

	route     route
	productID int64

	products        []domain.Product
	loadingProducts bool
	cursor          int

	detail      domain.Product
	detailState detailState

	chatOpen     bool
	input        textinput.Model
	spin         spinner.Model
	viewport     viewport.Model
	md           *glamour.TermRenderer
	renderedLen  int
	cards        []int64
	selectedCard int
}

func New(cfg Config) (Model, error) {
	if cfg.Catalog == nil {
		return Model{}, errors.New("tui: catalog must not be nil")
	}
	if cfg.Chat == nil {
		return Model{}, errors.New("tui: chat controller must not be nil")
	}

	in := textinput.New()
	in.Placeholder = "Ask me anything about our products..."
	in.Prompt = "> "
	in.CharLimit = 500

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)

	m := Model{
		catalog:       cfg.Catalog,
		chat:          cfg.Chat,
		markdownStyle: cfg.MarkdownStyle,
		width:         defaultWidth,
		height:        defaultHeight,
		input:         in,
		spin:          s,
		viewport:      viewport.New(defaultWidth-4, chatHeight(defaultHeight)),
		selectedCard:  noCard,
	}
	m.md = newMarkdownRenderer(m.markdownStyle, m.viewport.Width)

	// The widget starts closed; a session is opened each time it is shown.
	m.chat.Close()

	if cfg.StartProductID > 0 {
		m.route = routeDetail
		m.productID = cfg.StartProductID
		m.detailState = detailLoading
	} else {
		m.route = routeIndex
		m.loadingProducts = true
	}
	return m, nil
}

func newMarkdownRenderer(style string, width int) *glamour.TermRenderer {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(width-2, 20))}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil
	}
	return r
}

func chatHeight(total int) int {
	return max(total/2-4, 5)
}

func (m Model) Init() tea.Cmd {
	if m.route == routeDetail {
		return loadProduct(m.catalog, m.productID)
	}
	return loadProducts(m.catalog)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = max(msg.Width-4, 10)
		m.viewport.Height = chatHeight(msg.Height)
		m.input.Width = max(msg.Width-6, 10)
		m.md = newMarkdownRenderer(m.markdownStyle, m.viewport.Width)
		m.renderedLen = -1
		m.refreshTranscript()
		return m, nil

	case productsLoadedMsg:
		m.products = msg.products
		m.loadingProducts = false
		if m.cursor >= len(m.products) {
			m.cursor = max(len(m.products)-1, 0)
		}
		return m, nil

	case productLoadedMsg:
		if m.route != routeDetail || msg.id != m.productID {
			return m, nil
		}
		if msg.ok {
			m.detail = msg.product
			m.detailState = detailReady
		} else {
			m.detail = domain.Product{}
			m.detailState = detailNotFound
		}
		return m, nil

	case turnSettledMsg:
		m.refreshTranscript()
		if m.chatOpen && !m.chat.Pending() {
			return m, m.input.Focus()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.chat.Pending() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.chatOpen {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.chat.Close()
		return m, tea.Quit
	case "ctrl+t":
		return m.toggleChat()
	}
	if m.chatOpen {
		return m.handleChatKey(msg)
	}

	switch m.route {
	case routeIndex:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.products)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.products) {
				return m.navigateToProduct(m.products[m.cursor].ID)
			}
		}
	case routeDetail:
		switch msg.String() {
		case "q":
			return m, tea.Quit
		case "esc", "backspace", "b":
			return m.navigateToIndex()
		}
	}
	return m, nil
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m.toggleChat()
	case "tab":
		if len(m.cards) > 0 {
			m.selectedCard = (m.selectedCard + 1) % len(m.cards)
			m.refreshTranscript()
		}
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		if m.selectedCard != noCard && m.selectedCard < len(m.cards) {
			id := m.cards[m.selectedCard]
			m.selectedCard = noCard
			m.refreshTranscript()
			return m.navigateToProduct(id)
		}
		return m.submit()
	}

	if m.chat.Pending() {
		return m, nil
	}
	if m.selectedCard != noCard {
		m.selectedCard = noCard
		m.refreshTranscript()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.chat.UpdateDraft(m.input.Value())
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	done, ok := m.chat.SubmitTurn(m.input.Value())
	if !ok {
		return m, nil
	}
	m.input.SetValue("")
	m.input.Blur()
	m.refreshTranscript()
	return m, tea.Batch(waitForTurn(done), m.spin.Tick)
}

func (m Model) toggleChat() (tea.Model, tea.Cmd) {
	if m.chatOpen {
		m.chat.Close()
		m.chatOpen = false
		m.input.Blur()
		m.input.SetValue("")
		m.cards = nil
		m.selectedCard = noCard
		return m, nil
	}
	m.chat.Open()
	m.chatOpen = true
	m.input.SetValue("")
	m.selectedCard = noCard
	m.renderedLen = -1
	m.refreshTranscript()
	return m, m.input.Focus()
}

func (m Model) navigateToProduct(id int64) (tea.Model, tea.Cmd) {
	m.route = routeDetail
	m.productID = id
	m.detail = domain.Product{}
	m.detailState = detailLoading
	return m, loadProduct(m.catalog, id)
}

func (m Model) navigateToIndex() (tea.Model, tea.Cmd) {
	m.route = routeIndex
	m.productID = 0
	m.loadingProducts = true
	return m, loadProducts(m.catalog)
}

// refreshTranscript re-renders the chat log and scrolls to the newest
// message whenever the number of messages changed.
func (m *Model) refreshTranscript() {
	msgs := m.chat.Transcript()
	content, cards := renderTranscript(msgs, m.selectedCard, m.viewport.Width, m.renderMarkdown)
	m.cards = cards
	if m.selectedCard >= len(cards) {
		m.selectedCard = noCard
	}
	m.viewport.SetContent(content)
	if len(msgs) != m.renderedLen {
		m.viewport.GotoBottom()
		m.renderedLen = len(msgs)
	}
}

func (m Model) renderMarkdown(s string) string {
	if m.md == nil {
		return s
	}
	out, err := m.md.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

// entry is one navigable item of the catalog index.
type entry struct {
	ID    int64
	Label string
}

func (m Model) entries() []entry {
	out := make([]entry, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, entry{ID: p.ID, Label: productLabel(p)})
	}
	return out
}
