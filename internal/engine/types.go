package engine

import "strings"

// Role identifies the author of a chat message
type Role string

const (
	// RoleSystem carries instructions that shape the reply
	RoleSystem Role = "system"
	// RoleUser carries the user's prompt
	RoleUser Role = "user"
	// RoleAssistant carries model output
	RoleAssistant Role = "assistant"
)

// ChatMessage is a single message in a chat completion request.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest follows the OpenAI chat completions request schema.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

// ChatCompletionResponse is the complete (non-streaming) response shape.
type ChatCompletionResponse struct {
	ID      string   `json:"id,omitempty"`
	Model   string   `json:"model,omitempty"`
	Choices []Choice `json:"choices"`
}

// Choice is a single completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// ChatCompletionChunk is the streaming response shape.
type ChatCompletionChunk struct {
	ID      string        `json:"id,omitempty"`
	Model   string        `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is a single choice within a streaming chunk.
type ChunkChoice struct {
	Index int           `json:"index"`
	Delta *MessageDelta `json:"delta,omitempty"`
}

// MessageDelta is the incremental content of a chunk. Content is either a
// string or a structured value implementing Texter.
type MessageDelta struct {
	Role    Role `json:"role,omitempty"`
	Content any  `json:"content,omitempty"`
}

// Texter is implemented by structured message content that can render
// itself as plain text.
type Texter interface {
	AsText() string
}

// ContentPart is one element of structured message content.
type ContentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ContentParts is structured message content made of typed parts.
type ContentParts []ContentPart

// AsText concatenates the text parts.
func (p ContentParts) AsText() string {
	var b strings.Builder
	for _, part := range p {
		if part.Type == "" || part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}
