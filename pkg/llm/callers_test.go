package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/services"
	"github.com/renewmap/compass/pkg/usage"
)

// scriptedProvider returns canned replies in order and records the
// transcripts it saw.
type scriptedProvider struct {
	replies []string
	err     error
	calls   [][]Message
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Complete(ctx context.Context, messages []Message, opts CallOptions) (*Completion, error) {
	p.calls = append(p.calls, CloneMessages(messages))
	if p.err != nil {
		return nil, p.err
	}
	reply := "ok"
	if len(p.replies) > 0 {
		reply = p.replies[0]
		p.replies = p.replies[1:]
	}
	return &Completion{
		Content:        reply,
		Model:          "test-model",
		PromptTokens:   10,
		ResponseTokens: 5,
	}, nil
}

func startLLM(t *testing.T, provider Provider) {
	t.Helper()
	scope, err := services.Start(context.Background(), NewService(DefaultServiceName, provider, 1e9, 60))
	require.NoError(t, err)
	t.Cleanup(func() { scope.Stop() })
}

func TestCallerRecordsUsage(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"the answer"}}
	startLLM(t, provider)

	tracker := usage.NewTracker("test", ParseUsage)
	caller := NewCaller(DefaultServiceName, tracker, CallOptions{})

	text, err := caller.Call(context.Background(), "sys", "usr", usage.CategoryChat)
	require.NoError(t, err)
	assert.Equal(t, "the answer", text)

	totals := tracker.Totals()
	assert.Equal(t, usage.Counts{Requests: 1, PromptTokens: 10, ResponseTokens: 5}, totals["test-model"])
}

func TestChatCallerTranscriptGrows(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"first", "second"}}
	startLLM(t, provider)

	chat := NewChatCaller(DefaultServiceName, nil, CallOptions{}, "you are helpful")

	reply, err := chat.Call(context.Background(), "question one")
	require.NoError(t, err)
	assert.Equal(t, "first", reply)

	reply, err = chat.Call(context.Background(), "question two")
	require.NoError(t, err)
	assert.Equal(t, "second", reply)

	transcript := chat.Transcript()
	require.Len(t, transcript, 5)
	assert.Equal(t, RoleSystem, transcript[0].Role)
	assert.Equal(t, RoleUser, transcript[1].Role)
	assert.Equal(t, RoleAssistant, transcript[2].Role)
	assert.Equal(t, "question two", transcript[3].Content)
	assert.Equal(t, "second", transcript[4].Content)
}

func TestChatCallerRollbackOnFailure(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("provider down")}
	startLLM(t, provider)

	chat := NewChatCaller(DefaultServiceName, nil, CallOptions{}, "sys")
	_, err := chat.Call(context.Background(), "doomed question")
	require.Error(t, err)

	// The failed user message must not linger in the transcript.
	transcript := chat.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, RoleSystem, transcript[0].Role)
}

func TestChatCallerCloneIsIndependent(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"a", "b", "c"}}
	startLLM(t, provider)

	parent := NewChatCaller(DefaultServiceName, nil, CallOptions{}, "sys")
	_, err := parent.Call(context.Background(), "shared prefix")
	require.NoError(t, err)

	child := parent.Clone()
	_, err = child.Call(context.Background(), "child only")
	require.NoError(t, err)

	assert.Len(t, parent.Transcript(), 3)
	assert.Len(t, child.Transcript(), 5)
}

func TestStructuredCallerParsesJSON(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"```json\n{\"answer\": true}\n```"}}
	startLLM(t, provider)

	structured := NewStructuredCaller(DefaultServiceName, nil, CallOptions{})
	parsed, err := structured.Call(context.Background(), "decide something", "text", "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"answer": true}, parsed)

	// The JSON instruction was appended to the system message.
	require.NotEmpty(t, provider.calls)
	assert.Contains(t, provider.calls[0][0].Content, JSONInstruction)
}

func TestStructuredCallerKeepsExistingJSONInstruction(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"{}"}}
	startLLM(t, provider)

	structured := NewStructuredCaller(DefaultServiceName, nil, CallOptions{})
	system := "Reply in JSON format with a key of your choosing."
	_, err := structured.Call(context.Background(), system, "text", "")
	require.NoError(t, err)
	assert.Equal(t, system, provider.calls[0][0].Content)
}

func TestStructuredCallerUnparseableReturnsEmpty(t *testing.T) {
	provider := &scriptedProvider{replies: []string{"I cannot answer that."}}
	startLLM(t, provider)

	structured := NewStructuredCaller(DefaultServiceName, nil, CallOptions{})
	parsed, err := structured.Call(context.Background(), "decide", "text", "")
	require.NoError(t, err)
	assert.Empty(t, parsed)
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"language tag", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"single line", "```{\"a\": 1}```", `{"a": 1}`},
		{"surrounding space", "  ```json\n{}\n```  ", "{}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}
