package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/llm"
	"github.com/renewmap/compass/pkg/llm/dtree"
)

// CorrectJurisdictionKey is the boolean key the jurisdiction graph's final
// node returns.
const CorrectJurisdictionKey = "correct_jurisdiction"

// JurisdictionGraph builds the decision graph that checks whether legal text
// applies to the entire area governed by j. The traversal dead-ends early
// when the text does not name a jurisdiction at all, which the validator
// treats as an abstention.
func JurisdictionGraph(j jurisdiction.Jurisdiction) *dtree.Graph {
	g := dtree.NewGraph(nil)

	g.AddNode(dtree.InitNode,
		"Does the following legal text explicitly outline the type of "+
			"jurisdiction it applies to? Common types of jurisdictions include "+
			"'state', 'county', 'city', 'township', 'borough', etc. "+
			"Begin your response with either 'Yes' or 'No' and explain your "+
			"answer.\n\n\"\"\"\n{text}\n\"\"\"")

	g.AddNode("is_state", fmt.Sprintf(
		"Does the legal text explicitly state that the statutes within apply "+
			"to **the entire area** governed by %[1]s state? If the legal text "+
			"applies to a different state or only to a subdivision like a "+
			"county or township within %[1]s state, say 'No'. Begin your "+
			"response with either 'Yes' or 'No' and explain your answer.",
		j.State))
	g.AddEdge(dtree.InitNode, "is_state", dtree.StartsWithYes)
	last := "is_state"

	if j.County != "" {
		g.AddNode("is_county", fmt.Sprintf(
			"Does the legal text explicitly state that the statutes within "+
				"apply to **the entire area** governed by %[1]s? If the legal "+
				"text applies to a different county or only to a subdivision "+
				"like a township or borough within %[1]s, say 'No'. Begin your "+
				"response with either 'Yes' or 'No' and explain your answer.",
			j.CountyPhrase()))
		g.AddEdge(last, "is_county", dtree.StartsWithNo)
		g.AddEdge(last, "final", dtree.StartsWithYes)
		last = "is_county"
	}

	if j.Subdivision != "" {
		g.AddNode("is_city", fmt.Sprintf(
			"Does the legal text explicitly state that the statutes within "+
				"apply to **the entire area** governed by the %s? If the legal "+
				"text applies to a different city, township, etc, say 'No'. "+
				"Begin your response with either 'Yes' or 'No' and explain "+
				"your answer.",
			j.SubdivisionPhrase()))
		g.AddEdge(last, "is_city", dtree.StartsWithNo)
		g.AddEdge(last, "final", dtree.StartsWithYes)
		last = "is_city"
	}

	g.AddNode("final", fmt.Sprintf(
		"Respond based on our entire conversation so far. Return your answer "+
			"as a dictionary in JSON format (not markdown). Your JSON file must "+
			"include exactly two keys. The keys are '%s' and 'explanation'. "+
			"The value of the '%s' key should be a boolean that is set to "+
			"`true` **only if** the text explicitly states that the statutes "+
			"within apply to **the entire area** governed by %s (`false` "+
			"otherwise). The value of the 'explanation' key should be a string "+
			"containing a short explanation for your choice.",
		CorrectJurisdictionKey, CorrectJurisdictionKey, j.FullName()))
	g.AddEdge(last, "final", nil)
	return g
}

// ChatFactory yields a fresh dialog for each decision-graph traversal.
type ChatFactory func(system string) dtree.Chatter

// JurisdictionValidator votes on whether a document applies to a target
// jurisdiction by running the jurisdiction graph against each page.
type JurisdictionValidator struct {
	target  jurisdiction.Jurisdiction
	newChat ChatFactory

	// Score threshold a document must exceed to pass.
	Threshold float64
}

// jurisdictionSystem opens every jurisdiction-validation dialog.
const jurisdictionSystem = "You extract structured data from legal text. " +
	"Always maintain a professional and analytical tone."

// NewJurisdictionValidator builds a validator for the target jurisdiction.
func NewJurisdictionValidator(target jurisdiction.Jurisdiction, newChat ChatFactory) *JurisdictionValidator {
	return &JurisdictionValidator{target: target, newChat: newChat, Threshold: 0.5}
}

// Score runs the jurisdiction graph against every page and returns the
// weighted vote: votes are weighted by page text length, and pages that
// abstain (dead-ended traversal or unparseable verdict) are excluded from
// both numerator and denominator. A document with only abstentions scores 0.
func (v *JurisdictionValidator) Score(ctx context.Context, pages []string) (float64, error) {
	var votes, total float64
	for i, page := range pages {
		if page == "" {
			continue
		}
		vote, err := v.votePage(ctx, page)
		if err != nil {
			return 0, fmt.Errorf("jurisdiction vote on page %d: %w", i, err)
		}
		if vote == nil {
			continue
		}
		weight := float64(len(page))
		total += weight
		if *vote {
			votes += weight
		}
	}
	if total == 0 {
		return 0, nil
	}
	return votes / total, nil
}

// Passes reports whether pages clear the vote threshold.
func (v *JurisdictionValidator) Passes(ctx context.Context, pages []string) (bool, error) {
	score, err := v.Score(ctx, pages)
	if err != nil {
		return false, err
	}
	return score > v.Threshold, nil
}

func (v *JurisdictionValidator) votePage(ctx context.Context, page string) (*bool, error) {
	graph := JurisdictionGraph(v.target)
	graph.Bindings()["text"] = page

	tree := dtree.NewTree(graph, v.newChat(jurisdictionSystem))
	out, err := tree.Run(ctx)
	if errors.Is(err, dtree.ErrDeadEnd) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed := map[string]any{}
	if err := json.Unmarshal([]byte(llm.StripFences(out)), &parsed); err != nil {
		slog.DebugContext(ctx, "jurisdiction verdict did not parse", "response", out)
		return nil, nil
	}
	verdict, ok := parsed[CorrectJurisdictionKey]
	if !ok {
		return nil, nil
	}
	vote := boolValue(verdict)
	return &vote, nil
}
