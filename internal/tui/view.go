package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"shop-assistant/internal/catalog"
	"shop-assistant/internal/domain"
)

var (
	accentColor = lipgloss.Color("#8B1538")

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(accentColor)
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle      = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	cardStyle     = lipgloss.NewStyle().PaddingLeft(2)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accentColor).Padding(0, 1)
)

func (m Model) View() string {
	var main string
	switch m.route {
	case routeDetail:
		main = m.detailView()
	default:
		main = m.indexView()
	}
	if !m.chatOpen {
		return main + "\n" + subtleStyle.Render("ctrl+t chat • q quit")
	}
	return lipgloss.JoinVertical(lipgloss.Left, main, m.chatView())
}

func (m Model) indexView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("AI-Powered Product Discovery"))
	b.WriteString("\n\n")

	if m.loadingProducts {
		b.WriteString("Loading products...\n")
		return b.String()
	}
	entries := m.entries()
	if len(entries) == 0 {
		b.WriteString(subtleStyle.Render("No products available."))
		b.WriteString("\n")
		return b.String()
	}
	for i, e := range entries {
		line := fmt.Sprintf("  %s", e.Label)
		if i == m.cursor {
			line = selectedStyle.Render("› " + e.Label)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("↑/↓ select • enter open"))
	return b.String()
}

func (m Model) detailView() string {
	var b strings.Builder
	b.WriteString(subtleStyle.Render("← Back to Products (esc)"))
	b.WriteString("\n\n")

	switch m.detailState {
	case detailLoading:
		b.WriteString("Loading...\n")
		return b.String()
	case detailNotFound:
		b.WriteString("Product not found\n")
		return b.String()
	}

	p := m.detail
	b.WriteString(titleStyle.Render(p.Title))
	b.WriteString("\n")
	b.WriteString(catalog.FormatPrice(p.Price))
	if p.Category != "" {
		b.WriteString("  " + subtleStyle.Render(p.Category))
	}
	b.WriteString("\n\n")
	b.WriteString("Image: " + catalog.ResolveImage(p) + "\n\n")

	b.WriteString(lipgloss.NewStyle().Bold(true).Render("Description"))
	b.WriteString("\n")
	b.WriteString(p.Description)
	b.WriteString("\n")

	if lines := catalog.FeatureLines(p); len(lines) > 0 {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Bold(true).Render("Features"))
		b.WriteString("\n")
		for _, l := range lines {
			b.WriteString("  • " + l + "\n")
		}
	}
	b.WriteString("\nView on Website → " + catalog.ResolveOutboundURL(p) + "\n")
	return b.String()
}

func (m Model) chatView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("AI Shopping Assistant"))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	if m.chat.Pending() {
		b.WriteString(m.spin.View() + " Thinking...\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(subtleStyle.Render("enter send • tab select product • esc close"))
	return panelStyle.Width(max(m.width-2, 20)).Render(b.String())
}

// renderTranscript renders messages in order. Recommendation cards are
// numbered across the whole transcript; the returned slice maps card index
// to product ID in that same order.
func renderTranscript(msgs []domain.ChatMessage, selected, width int, markdown func(string) string) (string, []int64) {
	var (
		b     strings.Builder
		cards []int64
	)
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Role {
		case domain.RoleUser:
			b.WriteString(userStyle.Render("You:") + " " + msg.Content + "\n")
		default:
			b.WriteString(botStyle.Render("Assistant:") + "\n")
			b.WriteString(markdown(msg.Content) + "\n")
		}
		if !msg.HasRecommendations() {
			continue
		}
		for _, p := range msg.Products {
			label := fmt.Sprintf("[%d] %s", len(cards)+1, productLabel(p))
			if len(cards) == selected {
				label = selectedStyle.Render(label)
			}
			b.WriteString(cardStyle.MaxWidth(max(width, 20)).Render(label) + "\n")
			cards = append(cards, p.ID)
		}
	}
	return b.String(), cards
}

func productLabel(p domain.Product) string {
	label := p.Title + "  " + catalog.FormatPrice(p.Price)
	if p.Category != "" {
		label += "  " + p.Category
	}
	return label
}
