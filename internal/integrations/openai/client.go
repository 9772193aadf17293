package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"shop-assistant/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// ChatOptions tunes a single completion.
type ChatOptions struct {
	// JSON asks the model for a single JSON object.
	JSON        bool
	Temperature *float64
}

type chatResponse struct {
	Choices []struct {
		Index   int         `json:"index"`
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

type moderationRequest struct {
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

// tokenPayload is the JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client talks to an OpenAI-compatible API: chat completions, embeddings
// and moderation. The API key is read from SSM once per process.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	getter      Getter
	paramPrefix string

	keyOnce sync.Once
	apiKey  string
	keyErr  error
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(ps Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("openai: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("openai: parameter prefix must not be empty")
	}
	c := &Client{
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.keyOnce.Do(func() {
		c.apiKey, c.keyErr = fetchAPIKeyFromParamStore(ctx, c.getter, c.paramPrefix+"/openai-token")
	})
	return c.apiKey, c.keyErr
}

// endpointURL joins an API path onto the base URL, adding /v1 when the
// base does not already end with it.
func endpointURL(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + path
}

// Chat runs one completion and returns the first choice's content.
func (c *Client) Chat(ctx context.Context, model string, messages []domain.ChatMessage, opts ChatOptions) (string, error) {
	if model == "" {
		return "", errors.New("openai: model must not be empty")
	}

	in := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, 0, len(messages)),
		Temperature: opts.Temperature,
	}
	for _, m := range messages {
		in.Messages = append(in.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if opts.JSON {
		in.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var out chatResponse
	if err := c.postJSON(ctx, "/chat/completions", in, &out); err != nil {
		return "", fmt.Errorf("openai: chat: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return out.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector of input.
func (c *Client) Embed(ctx context.Context, model, input string) ([]float32, error) {
	if model == "" {
		return nil, errors.New("openai: embedding model must not be empty")
	}

	var out embeddingResponse
	if err := c.postJSON(ctx, "/embeddings", embeddingRequest{Model: model, Input: input}, &out); err != nil {
		return nil, fmt.Errorf("openai: embeddings: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("openai: no embedding in response")
	}
	return out.Data[0].Embedding, nil
}

// Moderate reports whether input is flagged by the moderation endpoint.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	var out moderationResponse
	if err := c.postJSON(ctx, "/moderations", moderationRequest{Input: input}, &out); err != nil {
		return false, fmt.Errorf("openai: moderation: %w", err)
	}
	if len(out.Results) == 0 {
		return false, errors.New("openai: no results in moderation response")
	}
	return out.Results[0].Flagged, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := endpointURL(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	hc := c.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	res, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	// Embedding payloads are large; leave room beyond a chat reply.
	buf, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}

func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", errors.New("openai: paramstore getter is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("openai: token parameter name is empty")
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: fetch token from paramstore: %w", err)
	}
	var tp tokenPayload
	if err := json.Unmarshal([]byte(raw), &tp); err != nil {
		return "", fmt.Errorf("openai: unmarshal paramstore token value as JSON: %w", err)
	}
	if tp.Token == "" {
		return "", errors.New("openai: API token is empty")
	}
	return tp.Token, nil
}
