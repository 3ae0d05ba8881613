// Package responder provides clients for the external utterance-generation
// capability backing the AI side of a call.
package responder

import (
	"context"
	"errors"
)

// Turn is one dialogue turn passed to the responder.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the bounded dialogue context for one completion.
type Request struct {
	Model        string
	SystemPrompt string
	Turns        []Turn
	MaxTokens    int
}

// Result is a responder completion.
type Result struct {
	Content   string
	Model     string
	TokensIn  int
	TokensOut int
	LatencyMs int64
}

// Client is the interface for responder providers.
type Client interface {
	// Complete produces the next utterance for the given dialogue context.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of responder provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ErrNoProvider is returned when no responder API key is configured.
var ErrNoProvider = errors.New("no responder provider configured")

// NewClient creates a responder client, preferring Anthropic when both keys
// are present.
func NewClient(anthropicKey, openAIKey string) (Client, error) {
	if anthropicKey != "" {
		return NewAnthropicClient(anthropicKey)
	}
	if openAIKey != "" {
		return NewOpenAIClient(openAIKey)
	}
	return nil, ErrNoProvider
}
