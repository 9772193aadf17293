package chat

import "shop-assistant/internal/domain"

// Transcript is an append-only log of chat messages. Insertion order is
// display order. It is owned by a single Controller and never shared.
type Transcript struct {
	messages []domain.ChatMessage
}

func newTranscript(seed ...domain.ChatMessage) *Transcript {
	t := &Transcript{}
	for _, m := range seed {
		t.Append(m)
	}
	return t
}

// Append stores a copy of m, so later changes to the caller's product slice
// do not leak into the log.
func (t *Transcript) Append(m domain.ChatMessage) {
	m.Products = cloneProducts(m.Products)
	t.messages = append(t.messages, m)
}

func (t *Transcript) Len() int {
	return len(t.messages)
}

// At returns a copy of the i-th message.
func (t *Transcript) At(i int) domain.ChatMessage {
	m := t.messages[i]
	m.Products = cloneProducts(m.Products)
	return m
}

// Messages returns a copy of the whole log.
func (t *Transcript) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(t.messages))
	for i := range t.messages {
		out[i] = t.At(i)
	}
	return out
}

func cloneProducts(in []domain.Product) []domain.Product {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.Product, len(in))
	copy(out, in)
	return out
}
