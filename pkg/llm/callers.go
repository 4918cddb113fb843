package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/renewmap/compass/pkg/usage"
)

// JSONInstruction is the literal instruction a structured caller guarantees
// is present in the system message.
const JSONInstruction = "Return your answer in JSON format"

// Caller is the one-shot flavor: each call is an independent
// system-plus-user exchange.
type Caller struct {
	ServiceName string
	Tracker     *usage.Tracker
	Options     CallOptions
}

// NewCaller builds a one-shot caller against the named LLM service. Tracker
// may be nil when usage is not being accounted.
func NewCaller(serviceName string, tracker *usage.Tracker, opts CallOptions) *Caller {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return &Caller{ServiceName: serviceName, Tracker: tracker, Options: opts}
}

// Call submits a system and user message pair and returns the assistant
// text. Usage is recorded under category even when the call fails partway.
func (c *Caller) Call(ctx context.Context, system, user, category string) (string, error) {
	messages := []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}
	completion, err := Complete(ctx, c.ServiceName, messages, c.Options)
	if c.Tracker != nil && completion != nil {
		c.Tracker.UpdateFromResponse(completion, category)
	}
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// ChatCaller keeps a running transcript across calls. On a failed call the
// appended user message is rolled back so the transcript alternation
// invariant holds.
type ChatCaller struct {
	ServiceName string
	Tracker     *usage.Tracker
	Options     CallOptions
	Category    string

	messages []Message
}

// NewChatCaller seeds a chat caller with a system message.
func NewChatCaller(serviceName string, tracker *usage.Tracker, opts CallOptions, system string) *ChatCaller {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}
	return &ChatCaller{
		ServiceName: serviceName,
		Tracker:     tracker,
		Options:     opts,
		messages:    []Message{{Role: RoleSystem, Content: system}},
	}
}

// Call appends the user message, submits the whole transcript, and appends
// the assistant reply on success.
func (c *ChatCaller) Call(ctx context.Context, user string) (string, error) {
	c.messages = append(c.messages, Message{Role: RoleUser, Content: user})
	completion, err := Complete(ctx, c.ServiceName, c.messages, c.Options)
	if c.Tracker != nil && completion != nil {
		c.Tracker.UpdateFromResponse(completion, c.Category)
	}
	if err != nil {
		c.messages = c.messages[:len(c.messages)-1]
		return "", err
	}
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: completion.Content})
	return completion.Content, nil
}

// Transcript returns a copy of the dialog so far.
func (c *ChatCaller) Transcript() []Message {
	return CloneMessages(c.messages)
}

// SetTranscript replaces the dialog, typically to seed this caller with a
// clone of another dialog's prefix.
func (c *ChatCaller) SetTranscript(messages []Message) {
	c.messages = CloneMessages(messages)
}

// Clone returns an independent caller sharing config but owning a deep copy
// of the transcript.
func (c *ChatCaller) Clone() *ChatCaller {
	clone := *c
	clone.messages = CloneMessages(c.messages)
	return &clone
}

// StructuredCaller is the one-shot flavor that parses the reply as JSON.
type StructuredCaller struct {
	caller *Caller
}

// NewStructuredCaller builds a structured caller against the named service.
func NewStructuredCaller(serviceName string, tracker *usage.Tracker, opts CallOptions) *StructuredCaller {
	return &StructuredCaller{caller: NewCaller(serviceName, tracker, opts)}
}

// Call submits the exchange and decodes the reply into a map. The system
// message gets the JSON instruction appended if it is missing. A reply that
// does not parse yields an empty map, not an error; provider failures still
// propagate.
func (c *StructuredCaller) Call(ctx context.Context, system, user, category string) (map[string]any, error) {
	if !strings.Contains(strings.ToLower(system), "json") {
		system = strings.TrimRight(system, " \n") + " " + JSONInstruction + "."
	}

	text, err := c.caller.Call(ctx, system, user, category)
	if err != nil {
		return nil, err
	}

	parsed := map[string]any{}
	cleaned := StripFences(text)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		slog.DebugContext(ctx, "LLM response did not parse as JSON",
			"category", category, "response", text, "error", err)
		return map[string]any{}, nil
	}
	return parsed, nil
}

// StripFences removes triple-backtick code fences and a leading language tag
// from an LLM reply.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		firstLine := strings.TrimSpace(text[:idx])
		// A bare language tag like "json" sits alone on the fence line.
		if firstLine == "" || !strings.ContainsAny(firstLine, "{}[]:") {
			text = text[idx+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
