package dtree

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChat replies in order and records the prompts it received.
type scriptedChat struct {
	replies []string
	prompts []string
}

func (c *scriptedChat) Call(ctx context.Context, user string) (string, error) {
	c.prompts = append(c.prompts, user)
	reply := ""
	if len(c.replies) > 0 {
		reply = c.replies[0]
		c.replies = c.replies[1:]
	}
	return reply, nil
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		reply             string
		yes, no, notNo    bool
	}{
		{"Yes, the text mentions setbacks.", true, false, true},
		{"yes", true, false, true},
		{"YES.", true, false, true},
		{"No.", false, true, false},
		{"  no relevant text", false, true, false},
		{"Maybe, it is unclear.", false, false, true},
		{"", false, false, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.yes, StartsWithYes(tt.reply), "yes: %q", tt.reply)
		assert.Equal(t, tt.no, StartsWithNo(tt.reply), "no: %q", tt.reply)
		assert.Equal(t, tt.notNo, DoesNotStartWithNo(tt.reply), "notNo: %q", tt.reply)
	}
}

func TestFormatPrompt(t *testing.T) {
	out, err := FormatPrompt("Does {jurisdiction} regulate {tech}?", map[string]any{
		"jurisdiction": "Decatur County",
		"tech":         "wind turbines",
	})
	require.NoError(t, err)
	assert.Equal(t, "Does Decatur County regulate wind turbines?", out)
}

func TestFormatPromptMissingKey(t *testing.T) {
	_, err := FormatPrompt("Does {jurisdiction} regulate {tech}?", map[string]any{
		"jurisdiction": "Decatur County",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tech")
}

func buildGraph() *Graph {
	g := NewGraph(map[string]any{"tech": "wind energy systems"})
	g.AddNode(InitNode, "Does the text mention {tech}? Begin with Yes or No.")
	g.AddNode("extract", "Quote the relevant section.")
	g.AddNode("confirm", "Is the quoted text about setbacks? Begin with Yes or No.")
	g.AddNode("final", "Summarize: {extract}")
	g.AddEdge(InitNode, "extract", StartsWithYes)
	g.AddEdge("extract", "confirm", nil)
	g.AddEdge("confirm", "final", StartsWithYes)
	return g
}

func TestTreeRunToTerminal(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"Yes, it does.",
		"Section 4.2 says turbines need a 500 ft setback.",
		"Yes.",
		"Turbines require a 500 ft setback.",
	}}
	tree := NewTree(buildGraph(), chat)

	out, err := tree.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Turbines require a 500 ft setback.", out)

	// Earlier node outputs feed later prompts.
	assert.Equal(t, "Summarize: Section 4.2 says turbines need a 500 ft setback.", chat.prompts[3])
	assert.Contains(t, chat.prompts[0], "wind energy systems")
}

func TestTreeDeadEnd(t *testing.T) {
	chat := &scriptedChat{replies: []string{"No, it does not."}}
	tree := NewTree(buildGraph(), chat)

	_, err := tree.Run(context.Background())
	require.ErrorIs(t, err, ErrDeadEnd)

	var dead *DeadEndError
	require.ErrorAs(t, err, &dead)
	assert.Equal(t, InitNode, dead.Node)
}

func TestTreeEdgeOrderIsDeterministic(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode(InitNode, "pick")
	g.AddNode("first", "won")
	g.AddNode("second", "lost")
	g.AddEdge(InitNode, "first", DoesNotStartWithNo)
	g.AddEdge(InitNode, "second", StartsWithYes)

	chat := &scriptedChat{replies: []string{"Yes", "done"}}
	tree := NewTree(g, chat)
	_, err := tree.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, tree.Outputs(), "first")
	assert.NotContains(t, tree.Outputs(), "second")
}

func TestTreeMissingInit(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode("start", "hello")
	_, err := NewTree(g, &scriptedChat{}).Run(context.Background())
	assert.Error(t, err)
}

func TestTreeUnknownEdgeTarget(t *testing.T) {
	g := NewGraph(nil)
	g.AddNode(InitNode, "hello")
	g.AddEdge(InitNode, "nowhere", nil)
	_, err := NewTree(g, &scriptedChat{}).Run(context.Background())
	assert.Error(t, err)
}
