// Package llm defines the provider-agnostic interface used for every
// natural-language generation call in the dialog state machine and intent
// router: greetings, clarifying questions, confirmation plans, strawman
// generation/refinement, and intent classification. Concrete adapters wrap
// the Anthropic and Bedrock SDKs; image/document/citation support from the
// richer upstream model API is intentionally dropped since no orchestrator
// stage produces or consumes visual/cited content.
package llm

import (
	"context"

	"github.com/deckforge/orchestrator/internal/session"
)

// Message is one turn of conversation passed to the model.
type Message struct {
	Role    session.Role
	Content string
}

// Request captures the inputs to a single completion call.
type Request struct {
	// Model optionally pins a specific provider model identifier; empty uses
	// the provider's configured default.
	Model string
	// System is the system/instruction prompt.
	System string
	// Messages is the ordered conversation transcript.
	Messages []Message
	// Temperature controls sampling (e.g. 0.7 for the greeting stage).
	Temperature float32
	// MaxTokens caps output length; zero uses the provider default.
	MaxTokens int
}

// Response is the result of a completion call.
type Response struct {
	// Text is the model's textual output.
	Text string
	// StopReason records why generation stopped (provider-specific).
	StopReason string
	// Usage reports token consumption, when the provider reports it.
	Usage TokenUsage
}

// TokenUsage tracks token counts for a model call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// Provider is the minimal interface every LLM backend implements. Every
// stage of the dialog state machine and the intent router depend only on
// this interface, never on a concrete SDK type.
type Provider interface {
	// Complete runs a single, non-streaming completion.
	Complete(ctx context.Context, req Request) (Response, error)
}
