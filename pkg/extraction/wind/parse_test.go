package wind

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/llm"
)

// fakeLLM hands out scripted dialog sessions and keeps them for
// post-run transcript inspection.
type fakeLLM struct {
	mu       sync.Mutex
	respond  func(s *fakeSession, user string) string
	sessions []*fakeSession
}

func (f *fakeLLM) factory(system string) ChatSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{
		parent: f,
		msgs:   []llm.Message{{Role: llm.RoleSystem, Content: system}},
	}
	f.sessions = append(f.sessions, s)
	return s
}

type fakeSession struct {
	parent *fakeLLM
	mu     sync.Mutex
	msgs   []llm.Message
}

func (s *fakeSession) Call(_ context.Context, user string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, llm.Message{Role: llm.RoleUser, Content: user})
	reply := s.parent.respond(s, user)
	s.msgs = append(s.msgs, llm.Message{Role: llm.RoleAssistant, Content: reply})
	return reply, nil
}

func (s *fakeSession) Transcript() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return llm.CloneMessages(s.msgs)
}

func (s *fakeSession) SetTranscript(msgs []llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = msgs
}

func (s *fakeSession) sawText(needle string) bool {
	for _, m := range s.msgs {
		if strings.Contains(m.Content, needle) {
			return true
		}
	}
	return false
}

func rowByFeature(t *testing.T, rows []extraction.Row, feature string) extraction.Row {
	t.Helper()
	for _, row := range rows {
		if row.Feature == feature {
			return row
		}
	}
	t.Fatalf("no row for feature %q", feature)
	return extraction.Row{}
}

func TestParserExtractsSingleFeature(t *testing.T) {
	f := &fakeLLM{}
	f.respond = func(_ *fakeSession, user string) string {
		switch {
		case strings.Contains(user, "distinguish between multiple wind energy system sizes"):
			return "No."
		case strings.Contains(user, "Is there text in the following legal document"):
			if strings.Contains(user, "from roads") {
				return "Yes, a roads setback is given."
			}
			return "No."
		case strings.Contains(user, "Extract all portions of the text"):
			return "Roads setback: 1.1 times tip height, at least 500 feet."
		case strings.Contains(user, "mention a multiplier"):
			return "Yes, a tip height multiplier."
		case strings.Contains(user, "Are multiple values given"):
			return "1.1"
		case strings.Contains(user, "What kind of multiplier"):
			return "tip-height-multiplier"
		case strings.Contains(user, "static distance value that should be added"):
			return "Yes, 1000 feet."
		case strings.Contains(user, "`multiplier * height + <adder>`"):
			return "Yes."
		case strings.Contains(user, "If the adder value is not given in feet"):
			return "Already in feet: 1000."
		case strings.Contains(user, "The keys are 'mult_value', 'mult_type', 'adder'"):
			return `{"mult_value": 1.1, "mult_type": "tip-height-multiplier", "adder": 1000, "summary": "s", "section": "4.2"}`
		case strings.Contains(user, "minimum setback distance"):
			return "Yes."
		case strings.Contains(user, "max(<threshold>"):
			return "Yes."
		case strings.Contains(user, "If the threshold value is not given in feet"):
			return "500 feet."
		case strings.Contains(user, "The keys are 'min_dist' and 'summary'"):
			return `{"min_dist": 500, "summary": "s"}`
		case strings.Contains(user, "maximum setback distance"):
			return "No."
		case strings.Contains(user, "explicitly mention"):
			if strings.Contains(user, "maximum noise level allowed") {
				return "Yes, noise is limited."
			}
			return "No."
		case strings.Contains(user, `The keys are "value", "units"`):
			return `{"value": 50, "units": "dBA", "summary": "s", "section": null, "comment": null}`
		}
		return "No."
	}

	p := &Parser{NewChat: f.factory}
	rows, err := p.Parse(context.Background(), "ordinance text")
	require.NoError(t, err)

	// Every feature and restriction appears: 9 setback rows (both split
	// features contribute two), 8 numeric, 7 qualitative.
	assert.Len(t, rows, 24)

	roads := rowByFeature(t, rows, "roads")
	require.NotNil(t, roads.Value)
	assert.Equal(t, 1.1, *roads.Value)
	require.NotNil(t, roads.Units)
	assert.Equal(t, "tip-height-multiplier", *roads.Units)
	assert.Nil(t, roads.Adder, "adder above the cap is discarded")
	require.NotNil(t, roads.MinDist)
	assert.Equal(t, 500.0, *roads.MinDist)
	assert.Nil(t, roads.MaxDist)
	assert.True(t, roads.Quantitative)

	noise := rowByFeature(t, rows, "noise")
	require.NotNil(t, noise.Value)
	assert.Equal(t, 50.0, *noise.Value)
	require.NotNil(t, noise.Units)
	assert.Equal(t, "dBA", *noise.Units)

	// Features not in the text still produce placeholder rows.
	water := rowByFeature(t, rows, "water")
	assert.Nil(t, water.Value)
	rowByFeature(t, rows, "structures (participating)")
	rowByFeature(t, rows, "structures (non-participating)")

	prohibitions := rowByFeature(t, rows, "prohibitions")
	assert.False(t, prohibitions.Quantitative)
}

func TestParserSplitsParticipatingFeature(t *testing.T) {
	f := &fakeLLM{}
	f.respond = func(s *fakeSession, user string) string {
		switch {
		case strings.Contains(user, "distinguish between multiple wind energy system sizes"):
			return "No."
		case strings.Contains(user, "Is there text in the following legal document"):
			if strings.Contains(user, "from occupied dwellings") {
				return "Yes."
			}
			return "No."
		case strings.Contains(user, "Extract all portions of the text"):
			return "original structures setback text"
		case strings.Contains(user, `The keys are "participating"`):
			return `{"participating": "owner setback is 1.2 times tip height", "non-participating": "neighbor setback is 1.5 times tip height"}`
		case strings.Contains(user, "explicitly specify a value that applies to participating"):
			return "Yes, quoted."
		case strings.Contains(user, "explicitly specify a value that applies to non-participating"):
			return "Yes, quoted."
		case strings.Contains(user, "mention a multiplier"):
			return "Yes."
		case strings.Contains(user, "Are multiple values given"):
			if s.sawText("owner setback") {
				return "1.2"
			}
			return "1.5"
		case strings.Contains(user, "What kind of multiplier"):
			return "tip-height-multiplier"
		case strings.Contains(user, "static distance value that should be added"):
			return "No."
		case strings.Contains(user, "The keys are 'mult_value', 'mult_type', 'summary'"):
			if s.sawText("owner setback") {
				return `{"mult_value": 1.2, "mult_type": "tip-height-multiplier", "summary": "p", "section": null}`
			}
			return `{"mult_value": 1.5, "mult_type": "tip-height-multiplier", "summary": "np", "section": null}`
		case strings.Contains(user, "minimum setback distance"),
			strings.Contains(user, "maximum setback distance"):
			return "No."
		}
		return "No."
	}

	p := &Parser{NewChat: f.factory}
	rows, err := p.Parse(context.Background(), "ordinance text")
	require.NoError(t, err)

	part := rowByFeature(t, rows, "structures (participating)")
	require.NotNil(t, part.Value)
	assert.Equal(t, 1.2, *part.Value)

	nonPart := rowByFeature(t, rows, "structures (non-participating)")
	require.NotNil(t, nonPart.Value)
	assert.Equal(t, 1.5, *nonPart.Value)

	// The participating fork rewrites its transcript prefix to name the
	// owner class explicitly.
	rewritten := false
	for _, s := range f.sessions {
		if s.sawText("**participating** occupied dwellings") {
			rewritten = true
			break
		}
	}
	assert.True(t, rewritten)
}

func TestParserUsesLargestWESType(t *testing.T) {
	f := &fakeLLM{}
	f.respond = func(_ *fakeSession, user string) string {
		switch {
		case strings.Contains(user, "distinguish between multiple wind energy system sizes"):
			return "Yes, small and large systems."
		case strings.Contains(user, "different wind energy system sizes"):
			return "small WECS, large WECS"
		case strings.Contains(user, "'largest_wes_type'"):
			return `{"largest_wes_type": "large WECS", "explanation": "e"}`
		}
		return "No."
	}

	p := &Parser{NewChat: f.factory}
	_, err := p.Parse(context.Background(), "ordinance text")
	require.NoError(t, err)

	// Feature dialogs carry the detected tech label in their prompts.
	carried := false
	for _, s := range f.sessions {
		if len(s.msgs) > 0 && strings.Contains(s.msgs[0].Content, "large WECS") {
			carried = true
			break
		}
	}
	assert.True(t, carried)
}

func TestParsePermittedUses(t *testing.T) {
	f := &fakeLLM{}
	f.respond = func(_ *fakeSession, user string) string {
		switch {
		case strings.Contains(user, "distinguish between multiple wind energy system sizes"):
			return "No."
		case strings.Contains(user, "explicitly define districts"):
			if strings.Contains(user, "permitted as a primary") {
				return "Yes."
			}
			return "No."
		case strings.Contains(user, "What are all of the district names"):
			return "A-1 and I-2"
		case strings.Contains(user, "'value', 'summary', and 'section'"):
			return `{"value": ["A-1", "I-2"], "summary": "s", "section": "4.2"}`
		}
		return "No."
	}

	p := &Parser{NewChat: f.factory}
	rows, err := p.ParsePermittedUses(context.Background(), "district text")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "permitted use districts", rows[0].Feature)
	assert.Equal(t, []string{"A-1", "I-2"}, rows[0].Districts)
	assert.Equal(t, "s", rows[0].Summary)

	assert.Equal(t, "prohibited use districts", rows[1].Feature)
	assert.Empty(t, rows[1].Districts)
}
