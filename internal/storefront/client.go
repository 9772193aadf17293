package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shop-assistant/internal/domain"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 4 << 20
	maxErrorBytes  = 4096
)

// ErrNotFound is returned by GetProduct when the backend has no such record.
var ErrNotFound = errors.New("storefront: product not found")

// HTTPStatusError captures non-2xx backend responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("storefront: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to the catalog backend: product listing, product detail and
// chat turns. It holds no state beyond its configuration.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("storefront: base URL must not be empty")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("storefront: parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("storefront: base URL %q must be http or https", baseURL)
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: defaultTimeout}
}

func (c *Client) productsURL() string {
	return c.baseURL + "/products"
}

func (c *Client) productURL(id int64) string {
	return c.baseURL + "/products/" + strconv.FormatInt(id, 10)
}

func (c *Client) chatURL() string {
	return c.baseURL + "/chat"
}

// ListProducts fetches the catalog in backend order.
func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	endpoint := c.productsURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("storefront: create list request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return nil, fmt.Errorf("storefront: list products: %w", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("storefront: decode product list: %w", err)
	}
	products := c.decodeProducts("list", records)
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// GetProduct fetches one product. A 404 is reported as ErrNotFound.
func (c *Client) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if id <= 0 {
		return domain.Product{}, ErrNotFound
	}
	endpoint := c.productURL(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Product{}, fmt.Errorf("storefront: create product request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			return domain.Product{}, ErrNotFound
		}
		return domain.Product{}, fmt.Errorf("storefront: get product %d: %w", id, err)
	}

	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Product{}, fmt.Errorf("storefront: decode product %d: %w", id, err)
	}
	if err := p.Validate(); err != nil {
		return domain.Product{}, fmt.Errorf("storefront: invalid product %d: %w", id, err)
	}
	return p, nil
}

// Chat sends one stateless assistant turn carrying only the query.
func (c *Client) Chat(ctx context.Context, query string) (domain.ChatResponse, error) {
	body, err := json.Marshal(domain.ChatRequest{Query: query})
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("storefront: marshal chat request: %w", err)
	}

	endpoint := c.chatURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("storefront: create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	raw, err := c.doJSONRequest(req, endpoint)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("storefront: chat request failed: %w", err)
	}
	return c.parseChatResponse(raw)
}

// wireChatResponse keeps response as a pointer so a missing field is told
// apart from an empty reply.
type wireChatResponse struct {
	Response *string          `json:"response"`
	Products []json.RawMessage `json:"products"`
}

func (c *Client) parseChatResponse(raw []byte) (domain.ChatResponse, error) {
	var wire wireChatResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("storefront: decode chat response: %w", err)
	}
	if wire.Response == nil {
		return domain.ChatResponse{}, errors.New("storefront: chat response missing \"response\" field")
	}
	return domain.ChatResponse{
		Response: *wire.Response,
		Products: c.decodeProducts("chat", wire.Products),
	}, nil
}

// decodeProducts decodes and validates each record on its own; records that
// fail either step are logged and dropped.
func (c *Client) decodeProducts(source string, records []json.RawMessage) []domain.Product {
	var products []domain.Product
	for i, rec := range records {
		var p domain.Product
		if err := json.Unmarshal(rec, &p); err != nil {
			c.log.Warn("dropping undecodable product", "source", source, "index", i, "err", err)
			continue
		}
		if err := p.Validate(); err != nil {
			c.log.Warn("dropping invalid product", "source", source, "index", i, "id", p.ID, "err", err)
			continue
		}
		products = append(products, p)
	}
	return products
}

func (c *Client) doJSONRequest(req *http.Request, endpoint string) ([]byte, error) {
	start := time.Now()
	res, doErr := c.resolvedHTTPClient().Do(req)
	if doErr != nil {
		return nil, doErr
	}
	defer func() { _ = res.Body.Close() }()

	c.log.Debug("storefront request", "method", req.Method, "url", endpoint, "status", res.StatusCode, "elapsed", time.Since(start))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBytes))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        endpoint,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
