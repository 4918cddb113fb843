package validation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/llm/dtree"
)

var decatur = jurisdiction.Jurisdiction{
	Type: jurisdiction.TypeCounty, State: "Indiana", County: "Decatur",
}

// pageChat scripts a full graph traversal based on the page text embedded in
// the first prompt.
type pageChat struct {
	script func(prompt string) string
}

func (c *pageChat) Call(ctx context.Context, user string) (string, error) {
	return c.script(user), nil
}

func chatFor(answers ...string) ChatFactory {
	return func(system string) dtree.Chatter {
		remaining := append([]string(nil), answers...)
		return &pageChat{script: func(string) string {
			if len(remaining) == 0 {
				return ""
			}
			next := remaining[0]
			remaining = remaining[1:]
			return next
		}}
	}
}

func TestJurisdictionGraphStructure(t *testing.T) {
	// A county target routes init -> is_state -> is_county -> final.
	chat := chatFor(
		"Yes, it names a county.",
		"No, it is not state-wide.",
		"Yes, it covers the whole county.",
		`{"correct_jurisdiction": true, "explanation": "county-wide"}`,
	)
	tree := dtree.NewTree(withText(JurisdictionGraph(decatur), "some legal text"), chat(""))
	out, err := tree.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "correct_jurisdiction")
}

func withText(g *dtree.Graph, text string) *dtree.Graph {
	g.Bindings()["text"] = text
	return g
}

func TestScoreWeightsByPageLength(t *testing.T) {
	// Short page votes no, long page votes yes.
	factoryFor := func(pages map[string]string) ChatFactory {
		return func(system string) dtree.Chatter {
			var verdict string
			return &pageChat{script: func(prompt string) string {
				for text, v := range pages {
					if strings.Contains(prompt, text) {
						verdict = v
					}
				}
				if strings.Contains(prompt, "JSON") {
					return `{"correct_jurisdiction": ` + verdict + `, "explanation": ""}`
				}
				if strings.Contains(prompt, "entire area") {
					if verdict == "true" {
						return "Yes"
					}
					return "No, different county."
				}
				return "Yes, it names a jurisdiction."
			}}
		}
	}

	shortPage := strings.Repeat("n", 100)
	longPage := strings.Repeat("y", 900)
	v := NewJurisdictionValidator(decatur, factoryFor(map[string]string{
		shortPage: "false",
		longPage:  "true",
	}))

	score, err := v.Score(context.Background(), []string{shortPage, longPage})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, score, 1e-9)

	passes, err := v.Passes(context.Background(), []string{shortPage, longPage})
	require.NoError(t, err)
	assert.True(t, passes)
}

func TestScoreExcludesAbstentions(t *testing.T) {
	// Every page dead-ends at init, so the document scores 0 with no error.
	factory := chatFor("No, it does not outline a jurisdiction.")
	v := NewJurisdictionValidator(decatur, func(system string) dtree.Chatter {
		return factory(system)
	})

	score, err := v.Score(context.Background(), []string{"page one", "page two"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}

func TestScoreUnparseableVerdictAbstains(t *testing.T) {
	answers := []string{
		"Yes", "No", "Yes", "this is not json",
	}
	v := NewJurisdictionValidator(decatur, chatFor(answers...))
	score, err := v.Score(context.Background(), []string{"only page"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)
}
