package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"shop-assistant/internal/domain"
	"shop-assistant/internal/storefront"
)

type stubAssistant struct {
	mu      sync.Mutex
	resp    domain.ChatResponse
	err     error
	queries []string
	release chan struct{} // when set, Chat blocks until closed or ctx done
}

func (s *stubAssistant) Chat(ctx context.Context, query string) (domain.ChatResponse, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	release := s.release
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return domain.ChatResponse{}, ctx.Err()
		}
	}
	return s.resp, s.err
}

func (s *stubAssistant) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func newTestController(t *testing.T, a Assistant) *Controller {
	t.Helper()
	c, err := NewController(a)
	require.NoError(t, err)
	return c
}

func waitReply(t *testing.T, done <-chan domain.ChatMessage) (domain.ChatMessage, bool) {
	t.Helper()
	select {
	case m, ok := <-done:
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not settle")
		return domain.ChatMessage{}, false
	}
}

var (
	p1 = domain.Product{ID: 1, Title: "P1", Price: 10}
	p2 = domain.Product{ID: 2, Title: "P2", Price: 20}
)

func TestNewController_ValidatesDependency(t *testing.T) {
	_, err := NewController(nil)
	require.Error(t, err)
}

func TestNewController_SeedsGreeting(t *testing.T) {
	c := newTestController(t, &stubAssistant{})
	require.True(t, c.IsOpen())
	require.NotEmpty(t, c.SessionID())
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleAssistant, Content: DefaultGreeting}}, c.Transcript())
	require.False(t, c.Pending())
}

func TestSubmitTurn_HappyPath(t *testing.T) {
	a := &stubAssistant{resp: domain.ChatResponse{Response: "Try these", Products: []domain.Product{p1, p2}}}
	c := newTestController(t, a)
	c.UpdateDraft("  black leggings  ")

	done, ok := c.SubmitTurn("  black leggings  ")
	require.True(t, ok)
	require.Equal(t, "", c.Draft())

	reply, ok := waitReply(t, done)
	require.True(t, ok)
	require.Equal(t, "Try these", reply.Content)
	require.Equal(t, []domain.Product{p1, p2}, reply.Products)

	msgs := c.Transcript()
	require.Len(t, msgs, 3)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "black leggings"}, msgs[1])
	require.Equal(t, domain.RoleAssistant, msgs[2].Role)
	require.Equal(t, "Try these", msgs[2].Content)
	require.Equal(t, []domain.Product{p1, p2}, msgs[2].Products)
	require.False(t, c.Pending())
	require.Equal(t, []string{"black leggings"}, a.calls())
}

func TestSubmitTurn_UserMessageAppendedBeforeRequestSettles(t *testing.T) {
	a := &stubAssistant{release: make(chan struct{}), resp: domain.ChatResponse{Response: "ok"}}
	c := newTestController(t, a)

	done, ok := c.SubmitTurn("hello")
	require.True(t, ok)
	require.True(t, c.Pending())
	require.Equal(t, 2, c.Len())
	require.Equal(t, domain.RoleUser, c.Transcript()[1].Role)

	close(a.release)
	_, ok = waitReply(t, done)
	require.True(t, ok)
	require.Equal(t, 3, c.Len())
	require.False(t, c.Pending())
}

func TestSubmitTurn_RejectsWhitespace(t *testing.T) {
	a := &stubAssistant{}
	c := newTestController(t, a)
	c.UpdateDraft("   ")

	done, ok := c.SubmitTurn(" \t\n ")
	require.False(t, ok)
	require.Nil(t, done)
	require.Equal(t, 1, c.Len())
	require.Equal(t, "   ", c.Draft())
	require.False(t, c.Pending())
	require.Empty(t, a.calls())
}

func TestSubmitTurn_RejectsWhilePending(t *testing.T) {
	a := &stubAssistant{release: make(chan struct{}), resp: domain.ChatResponse{Response: "first"}}
	c := newTestController(t, a)

	done, ok := c.SubmitTurn("first")
	require.True(t, ok)

	c.UpdateDraft("second")
	again, ok := c.SubmitTurn("second")
	require.False(t, ok)
	require.Nil(t, again)
	require.Equal(t, 2, c.Len())
	require.Equal(t, "second", c.Draft())

	close(a.release)
	_, _ = waitReply(t, done)
	require.Equal(t, []string{"first"}, a.calls())
	require.Equal(t, 3, c.Len())
}

func TestSubmitTurn_FailureAppendsSingleFallback(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "transport", err: errors.New("connection refused")},
		{name: "status", err: &storefront.HTTPStatusError{StatusCode: 500}},
		{name: "malformed", err: errors.New("storefront: chat response missing \"response\" field")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController(t, &stubAssistant{err: tc.err})

			done, ok := c.SubmitTurn("leggings")
			require.True(t, ok)
			reply, ok := waitReply(t, done)
			require.True(t, ok)
			require.Equal(t, DefaultFallback, reply.Content)
			require.Empty(t, reply.Products)

			msgs := c.Transcript()
			require.Len(t, msgs, 3)
			require.Equal(t, DefaultFallback, msgs[2].Content)
			require.Nil(t, msgs[2].Products)
			require.False(t, c.Pending())

			_, open := <-done
			require.False(t, open)
		})
	}
}

func TestSubmitTurn_SequentialTurnsKeepOrder(t *testing.T) {
	a := &stubAssistant{resp: domain.ChatResponse{Response: "reply"}}
	c := newTestController(t, a)

	for _, q := range []string{"one", "two", "three"} {
		done, ok := c.SubmitTurn(q)
		require.True(t, ok)
		_, _ = waitReply(t, done)
	}

	msgs := c.Transcript()
	require.Len(t, msgs, 7)
	roles := make([]domain.Role, 0, len(msgs))
	for _, m := range msgs {
		roles = append(roles, m.Role)
	}
	require.Equal(t, []domain.Role{
		domain.RoleAssistant,
		domain.RoleUser, domain.RoleAssistant,
		domain.RoleUser, domain.RoleAssistant,
		domain.RoleUser, domain.RoleAssistant,
	}, roles)
	require.Equal(t, "two", msgs[3].Content)
}

func TestSubmitTurn_ConcurrentSubmitsAcceptOnlyOne(t *testing.T) {
	a := &stubAssistant{release: make(chan struct{}), resp: domain.ChatResponse{Response: "ok"}}
	c := newTestController(t, a)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []<-chan domain.ChatMessage
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if done, ok := c.SubmitTurn("query"); ok {
				mu.Lock()
				accepted = append(accepted, done)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Len(t, accepted, 1)

	close(a.release)
	_, _ = waitReply(t, accepted[0])
	require.Len(t, a.calls(), 1)
	require.Equal(t, 3, c.Len())
}

func TestClose_DiscardsLateReplyAndReopenResets(t *testing.T) {
	a := &stubAssistant{release: make(chan struct{}), resp: domain.ChatResponse{Response: "late"}}
	c := newTestController(t, a)
	first := c.SessionID()

	done, ok := c.SubmitTurn("slow question")
	require.True(t, ok)

	c.Close()
	require.False(t, c.IsOpen())
	require.False(t, c.Pending())
	_, ok = c.SubmitTurn("while closed")
	require.False(t, ok)

	c.Open()
	require.NotEqual(t, first, c.SessionID())

	_, ok = waitReply(t, done)
	require.False(t, ok, "reply from a closed session must be discarded")
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleAssistant, Content: DefaultGreeting}}, c.Transcript())
	require.False(t, c.Pending())
}

func TestOpen_ResetsTranscriptToGreeting(t *testing.T) {
	c := newTestController(t, &stubAssistant{resp: domain.ChatResponse{Response: "hi"}})
	done, ok := c.SubmitTurn("hello")
	require.True(t, ok)
	_, _ = waitReply(t, done)
	require.Equal(t, 3, c.Len())

	c.Close()
	c.Open()
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleAssistant, Content: DefaultGreeting}}, c.Transcript())
	require.Equal(t, "", c.Draft())
}

func TestOptions_OverrideCannedMessages(t *testing.T) {
	c, err := NewController(&stubAssistant{err: errors.New("down")}, WithGreeting("Welcome"), WithFallback("Oops"), WithLogger(nil))
	require.NoError(t, err)
	require.Equal(t, "Welcome", c.Transcript()[0].Content)

	done, ok := c.SubmitTurn("x")
	require.True(t, ok)
	reply, _ := waitReply(t, done)
	require.Equal(t, "Oops", reply.Content)
}

func TestTranscript_ReturnsCopies(t *testing.T) {
	c := newTestController(t, &stubAssistant{resp: domain.ChatResponse{Response: "r", Products: []domain.Product{p1}}})
	done, _ := c.SubmitTurn("q")
	_, _ = waitReply(t, done)

	msgs := c.Transcript()
	msgs[2].Products[0].Title = "mutated"
	msgs[0].Content = "mutated"

	fresh := c.Transcript()
	require.Equal(t, "P1", fresh[2].Products[0].Title)
	require.Equal(t, DefaultGreeting, fresh[0].Content)
}
