package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"shop-assistant/internal/domain"
)

const (
	descriptionSnippetLen = 100
	fallbackDescription   = "Activewear product"
)

// queryAnalysis is the JSON object the analysis prompt asks for.
type queryAnalysis struct {
	Query   string               `json:"query"`
	Filters domain.SearchFilters `json:"filters"`
}

func buildAnalysisMessages(query string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are a search assistant."},
		{Role: domain.RoleUser, Content: strings.Join([]string{
			fmt.Sprintf("Analyze the user query: %q", query),
			"Extract a search query and any filters (category, min_price, max_price).",
			"Return JSON only.",
			`Example: {"query": "gym wear", "filters": {"category": "Activewear", "max_price": 50}}`,
		}, "\n")},
	}
}

// parseAnalysis decodes the analysis reply. Unknown keys are ignored; a
// blank query falls back to the user's text.
func parseAnalysis(raw, original string) (queryAnalysis, error) {
	var out queryAnalysis
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	if err := dec.Decode(&out); err != nil {
		return queryAnalysis{}, fmt.Errorf("usecase: decode query analysis: %w", err)
	}
	out.Query = strings.TrimSpace(out.Query)
	if out.Query == "" {
		out.Query = original
	}
	out.Filters.Category = strings.TrimSpace(out.Filters.Category)
	return out, nil
}

func buildRecommendationMessages(query string, products []domain.Product) []domain.ChatMessage {
	system := strings.Join([]string{
		"You are a helpful shopping assistant for Hunnit activewear.",
		"",
		fmt.Sprintf("I am showing you %d products that match the user's search for %q.", len(products), query),
		"",
		"YOUR JOB: Recommend these products enthusiastically!",
		"",
		"RULES:",
		"- These products ARE available and match the search",
		"- Mention product names and prices (₹)",
		"- Be helpful and positive",
		`- DO NOT say "we don't have" - we DO have these products!`,
	}, "\n")

	user := fmt.Sprintf("User searched for: %q\n\nHere are the matching products:\n\n%s\n\nRecommend these products to the user!",
		query, productContext(products))

	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: user},
	}
}

// productContext renders a numbered list with a short description per product.
func productContext(products []domain.Product) string {
	lines := make([]string, 0, len(products))
	for i, p := range products {
		desc := fallbackDescription
		if p.Description != "" {
			desc = truncateRunes(p.Description, descriptionSnippetLen)
		}
		lines = append(lines, fmt.Sprintf("%d. **%s** - ₹%s\n   %s",
			i+1, p.Title, strconv.FormatFloat(p.Price, 'f', -1, 64), desc))
	}
	return strings.Join(lines, "\n\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
