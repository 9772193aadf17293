package domain

// Role identifies the author of a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry of a chat transcript. Products is only set on
// assistant messages that carry recommendations.
type ChatMessage struct {
	Role     Role      `json:"role"`
	Content  string    `json:"content"`
	Products []Product `json:"products,omitempty"`
}

// HasRecommendations reports whether the message carries product cards.
func (m ChatMessage) HasRecommendations() bool {
	return m.Role == RoleAssistant && len(m.Products) > 0
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the body returned by POST /chat.
type ChatResponse struct {
	Response string    `json:"response"`
	Products []Product `json:"products"`
}
