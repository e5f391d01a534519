package llm

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message represents a single text message in a conversation.
type Message struct {
	Role MessageRole
	Text string
}

// Request represents a complete chat-completion request.
type Request struct {
	Model       string
	Messages    []Message
	System      string
	MaxTokens   int64
	Temperature *float64 // Optional temperature override
}

// Response represents a complete chat-completion response.
type Response struct {
	Text       string
	Model      string // model that actually answered, when the provider reports it
	Usage      *Usage
	StopReason string
}

// Usage represents token usage information from a response.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// NewTextMessage creates a new message with text content.
func NewTextMessage(role MessageRole, text string) Message {
	return Message{Role: role, Text: text}
}
