// Package llm provides the LLM service and the three caller flavors built on
// top of it: one-shot, chat, and structured-JSON.
package llm

import (
	"context"

	"github.com/renewmap/compass/pkg/usage"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a dialog transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CloneMessages deep-copies a transcript so forked dialogs cannot see each
// other's appends.
func CloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// Completion is a provider response reduced to what the pipeline needs.
type Completion struct {
	Content        string
	Model          string
	PromptTokens   int
	ResponseTokens int
}

// Provider completes a transcript against a concrete model API.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, messages []Message, opts CallOptions) (*Completion, error)
}

// CallOptions are per-call knobs forwarded to the provider.
type CallOptions struct {
	Temperature *float64
	Seed        *int
	MaxTokens   int
}

// ParseUsage is the usage.ResponseParser for provider completions.
func ParseUsage(response any) (string, usage.Counts) {
	completion, ok := response.(*Completion)
	if !ok || completion == nil {
		return "", usage.Counts{}
	}
	return completion.Model, usage.Counts{
		Requests:       1,
		PromptTokens:   completion.PromptTokens,
		ResponseTokens: completion.ResponseTokens,
	}
}
