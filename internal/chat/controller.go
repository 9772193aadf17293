package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"shop-assistant/internal/domain"
)

const (
	DefaultGreeting = "Hi! I can help you find the perfect activewear. What are you looking for?"
	DefaultFallback = "Sorry, I encountered an error. Please try again."
)

// Assistant answers one stateless chat turn.
type Assistant interface {
	Chat(ctx context.Context, query string) (domain.ChatResponse, error)
}

// Controller owns the transcript of one chat widget activation and runs the
// Idle -> Pending -> Idle lifecycle of each user turn. At most one request
// to the assistant is in flight at any time.
type Controller struct {
	assistant Assistant
	log       *slog.Logger
	greeting  string
	fallback  string

	mu         sync.Mutex
	open       bool
	sessionID  string
	sessionCtx context.Context
	cancel     context.CancelFunc
	transcript *Transcript
	pending    bool
	draft      string
}

type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithGreeting(s string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(s) != "" {
			c.greeting = s
		}
	}
}

func WithFallback(s string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(s) != "" {
			c.fallback = s
		}
	}
}

// NewController creates a Controller with an open session.
func NewController(a Assistant, opts ...Option) (*Controller, error) {
	if a == nil {
		return nil, errors.New("chat: assistant must not be nil")
	}
	c := &Controller{
		assistant: a,
		log:       slog.Default(),
		greeting:  DefaultGreeting,
		fallback:  DefaultFallback,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.Open()
	return c, nil
}

// Open starts a fresh session seeded with the greeting. Any previous session
// is closed first, and its in-flight reply will be discarded.
func (c *Controller) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	c.sessionCtx, c.cancel = context.WithCancel(context.Background())
	c.sessionID = uuid.NewString()
	c.transcript = newTranscript(domain.ChatMessage{Role: domain.RoleAssistant, Content: c.greeting})
	c.pending = false
	c.draft = ""
	c.open = true
	c.log.Debug("chat session opened", "session", c.sessionID)
}

// Close discards the transcript and cancels any in-flight request.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Controller) closeLocked() {
	if !c.open {
		return
	}
	c.cancel()
	c.log.Debug("chat session closed", "session", c.sessionID, "messages", c.transcript.Len(), "pending", c.pending)
	c.open = false
	c.transcript = newTranscript()
	c.pending = false
	c.draft = ""
	c.sessionID = ""
}

func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// SubmitTurn starts a turn for text. It returns false, and changes nothing,
// when the trimmed text is empty, a turn is already pending, or the session
// is closed.
//
// On acceptance the user message is in the transcript before the request
// is issued. The returned channel yields the assistant message once it has
// been appended and is then closed; it is closed without a value if the
// session ended before the reply arrived.
func (c *Controller) SubmitTurn(text string) (<-chan domain.ChatMessage, bool) {
	query := strings.TrimSpace(text)

	c.mu.Lock()
	if query == "" || c.pending || !c.open {
		c.mu.Unlock()
		return nil, false
	}
	c.draft = ""
	c.transcript.Append(domain.ChatMessage{Role: domain.RoleUser, Content: query})
	c.pending = true
	ctx, sessionID := c.sessionCtx, c.sessionID
	c.mu.Unlock()

	done := make(chan domain.ChatMessage, 1)
	go c.runTurn(ctx, sessionID, query, done)
	return done, true
}

func (c *Controller) runTurn(ctx context.Context, sessionID, query string, done chan<- domain.ChatMessage) {
	defer close(done)

	reply := c.ask(ctx, sessionID, query)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.sessionID != sessionID {
		c.log.Debug("discarding reply for closed chat session", "session", sessionID)
		return
	}
	c.transcript.Append(reply)
	c.pending = false
	done <- reply
}

func (c *Controller) ask(ctx context.Context, sessionID, query string) domain.ChatMessage {
	resp, err := c.assistant.Chat(ctx, query)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			c.log.Debug("chat turn cancelled", "session", sessionID)
		} else {
			c.log.Error("chat turn failed", "session", sessionID, "err", err)
		}
		return domain.ChatMessage{Role: domain.RoleAssistant, Content: c.fallback}
	}
	return domain.ChatMessage{
		Role:     domain.RoleAssistant,
		Content:  resp.Response,
		Products: resp.Products,
	}
}

func (c *Controller) Transcript() []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Messages()
}

func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Len()
}

func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}
