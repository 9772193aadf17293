package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"shop-assistant/internal/domain"
)

const (
	// PlaceholderImage is shown for products without an image.
	PlaceholderImage = "data:image/svg+xml,%3Csvg xmlns='http://www.w3.org/2000/svg' width='400' height='400'%3E" +
		"%3Crect fill='%238B1538' width='400' height='400'/%3E" +
		"%3Ctext fill='white' font-size='24' font-family='Arial' x='50%25' y='50%25' text-anchor='middle' dy='.3em'%3EHunnit Activewear%3C/text%3E" +
		"%3C/svg%3E"

	searchBaseURL = "https://hunnit.com/search?q="
)

func ResolveImage(p domain.Product) string {
	if strings.TrimSpace(p.ImageURL) != "" {
		return p.ImageURL
	}
	return PlaceholderImage
}

// ResolveOutboundURL returns the product's own page or, failing that, a store
// search for its title.
func ResolveOutboundURL(p domain.Product) string {
	if strings.TrimSpace(p.ProductURL) != "" {
		return p.ProductURL
	}
	return searchBaseURL + encodeComponent(p.Title)
}

// encodeComponent percent-encodes every byte of s except ASCII letters,
// digits and -_.!~*'(), which is the encodeURIComponent set used by the
// storefront's own search links.
func encodeComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if componentSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func componentSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

func FormatPrice(price float64) string {
	return "₹" + strconv.FormatFloat(price, 'f', -1, 64)
}

// FeatureLines renders features as "label: value", sorted by label.
func FeatureLines(p domain.Product) []string {
	if len(p.Features) == 0 {
		return nil
	}
	labels := make([]string, 0, len(p.Features))
	for label := range p.Features {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	lines := make([]string, 0, len(labels))
	for _, label := range labels {
		lines = append(lines, fmt.Sprintf("%s: %s", label, formatFeatureValue(p.Features[label])))
	}
	return lines
}

func formatFeatureValue(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
