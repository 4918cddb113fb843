package wind

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/llm/dtree"
)

// scriptedChat replies from a fixed queue and records the prompts it saw.
type scriptedChat struct {
	replies []string
	prompts []string
}

func (c *scriptedChat) Call(_ context.Context, user string) (string, error) {
	c.prompts = append(c.prompts, user)
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return reply, nil
}

func TestMultiplierGraphStaticPath(t *testing.T) {
	bindings := map[string]any{
		"feature":         "roads",
		"tech":            "large wind energy conversion systems",
		"ignore_features": "property lines or wetlands",
	}
	chat := &scriptedChat{replies: []string{
		"No, there is no multiplier.",
		"Yes, the setback is a fixed 1000 feet.",
		"feet",
		`{"value": 1000, "units": "feet", "summary": "s", "section": null}`,
	}}

	tree := dtree.NewTree(MultiplierGraph(bindings), chat)
	reply, err := tree.Run(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"value": 1000, "units": "feet", "summary": "s", "section": null}`, reply)

	require.Len(t, chat.prompts, 4)
	assert.Contains(t, chat.prompts[0], "setback distance from roads")
	assert.Contains(t, chat.prompts[0], "do not respond based on any text related to property lines or wetlands")
	assert.Contains(t, chat.prompts[3], "exactly four keys")
}

func TestMultiplierGraphAdderPath(t *testing.T) {
	bindings := map[string]any{
		"feature":         "occupied dwellings",
		"tech":            "large WECS",
		"ignore_features": "roads",
	}
	chat := &scriptedChat{replies: []string{
		"Yes, a tip height multiplier applies.",
		"1.1",
		"tip-height-multiplier",
		"Yes, plus 50 feet.",
		"Yes, it matches the equation.",
		"The adder is already in feet: 50.",
		`{"mult_value": 1.1, "mult_type": "tip-height-multiplier", "adder": 50, "summary": "s", "section": "4.2"}`,
	}}

	tree := dtree.NewTree(MultiplierGraph(bindings), chat)
	reply, err := tree.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, reply, "mult_value")
	require.Len(t, chat.prompts, 7)
	assert.Contains(t, chat.prompts[6], "'mult_value', 'mult_type', 'adder'")
}

func TestConditionalMinGraphDeadEndWhenNoThreshold(t *testing.T) {
	bindings := map[string]any{
		"feature":         "roads",
		"tech":            "large WECS",
		"ignore_features": "wetlands",
	}
	chat := &scriptedChat{replies: []string{"No minimum is mentioned."}}

	tree := dtree.NewTree(ConditionalMinGraph(bindings), chat)
	_, err := tree.Run(context.Background())
	assert.ErrorIs(t, err, dtree.ErrDeadEnd)
}

func TestExtraRestrictionGraphShapes(t *testing.T) {
	bindings := map[string]any{
		"restriction":                "maximum noise level allowed",
		"tech":                       "large WECS",
		"text":                       "Noise shall not exceed 50 dBA.",
		"unit_clarification":         "",
		"restriction_clarifications": "",
	}

	numChat := &scriptedChat{replies: []string{
		"Yes, a noise limit is given.",
		`{"value": 50, "units": "dBA", "summary": "s", "section": null, "comment": null}`,
	}}
	_, err := dtree.NewTree(ExtraRestrictionGraph(true, bindings), numChat).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, numChat.prompts[1], "exactly five keys")

	qualChat := &scriptedChat{replies: []string{
		"Yes, lighting is regulated.",
		`{"summary": "s", "section": null, "comment": null}`,
	}}
	_, err = dtree.NewTree(ExtraRestrictionGraph(false, bindings), qualChat).Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, qualChat.prompts[1], "exactly three keys")
}

func TestWESTypesGraphSubstitutesText(t *testing.T) {
	chat := &scriptedChat{replies: []string{
		"Yes, small and large systems are distinguished.",
		"small WECS, large WECS",
		`{"largest_wes_type": "large WECS", "explanation": "e"}`,
	}}
	tree := dtree.NewTree(WESTypesGraph(map[string]any{"text": "SECTION 4 text"}), chat)
	_, err := tree.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.Contains(chat.prompts[0], "SECTION 4 text"))
}
