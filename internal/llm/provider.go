// Package llm is the thin provider layer the Oracle runs on. Every backend
// returns JSON that has already been checked against the request schema.
package llm

import (
	"context"
	"encoding/json"
)

// Provider sends one structured request to a language model.
type Provider interface {
	// Generate sends the request and returns the model output. When
	// req.Schema is set the output is validated JSON conforming to it.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Pinger is implemented by providers that can cheaply check reachability at startup.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Request describes what to send to the model.
type Request struct {
	// System is the system prompt.
	System string

	// Messages is the conversation. Tutoring calls are single-turn.
	Messages []Message

	// Schema is the JSON Schema the response must conform to. Nil means
	// free text wrapped as json.RawMessage.
	Schema *Schema

	MaxTokens   int
	Temperature float64
}

// Message represents a single message in the conversation.
type Message struct {
	Role    Role
	Content string
}

// Role is the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Schema defines the JSON structure expected from the model.
type Schema struct {
	// Name identifies this schema, kebab-case, e.g. "tutor-question".
	Name string

	// Description is sent to the model to guide generation.
	Description string

	// Definition is the JSON Schema definition as a map.
	Definition map[string]any
}

// Response holds the model output.
type Response struct {
	Content json.RawMessage
	Usage   Usage
	Model   string

	// StopReason is normalized to "end", "max_tokens" or "error".
	StopReason string
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}
