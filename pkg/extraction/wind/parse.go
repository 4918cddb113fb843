package wind

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/llm"
	"github.com/renewmap/compass/pkg/llm/dtree"
	"github.com/renewmap/compass/pkg/usage"
)

// DefaultTech labels the technology when the text never names its largest
// regulated system size.
const DefaultTech = "large wind energy conversion systems"

const parserSystemMessage = "You are a legal scholar informing a " +
	"commercial wind energy developer about local zoning ordinances for " +
	"large wind energy systems. "

const sizeReminder = "systems that would typically be defined as {tech} " +
	"based on the text itself - for example, systems intended for " +
	"electricity generation or sale, or those above thresholds such as " +
	"height, rotor diameter, or rated capacity. Do not consider any text " +
	"that applies **only** to smaller or clearly non-commercial systems " +
	"or to meteorological towers. "

const (
	setbacksSystemMessage = parserSystemMessage +
		"For the duration of this conversation, only focus on ordinances " +
		"relating to setbacks from {feature}; do not respond based on any " +
		"text related to {ignore_features}. " +
		"Please only consider ordinances for " + sizeReminder

	restrictionsSystemMessage = parserSystemMessage +
		"For the duration of this conversation, only focus on ordinances " +
		"relating to {restriction} for " + sizeReminder

	permittedUseSystemMessage = parserSystemMessage +
		"For the duration of this conversation, only focus on permitted " +
		"uses for " + sizeReminder
)

// ChatSession is a decision-tree dialog whose transcript can be inspected
// and re-seeded. *llm.ChatCaller satisfies this.
type ChatSession interface {
	dtree.Chatter
	Transcript() []llm.Message
	SetTranscript([]llm.Message)
}

// ChatFactory opens a fresh dialog with the given system message.
type ChatFactory func(system string) ChatSession

// Parser runs the per-feature decision-tree dialogs over cleaned ordinance
// text and aggregates the extracted values into rows.
type Parser struct {
	NewChat  ChatFactory
	AdderCap float64
}

// NewParser wires a parser to the named LLM service.
func NewParser(serviceName string, tracker *usage.Tracker, opts llm.CallOptions) *Parser {
	return &Parser{
		NewChat: func(system string) ChatSession {
			return llm.NewChatCaller(serviceName, tracker, opts, system)
		},
		AdderCap: extraction.DefaultAdderCap,
	}
}

// Parse extracts every setback feature and extra restriction from the
// text. The rows always cover the full feature enumeration; features not
// found in the text produce placeholder rows.
func (p *Parser) Parse(ctx context.Context, text string) ([]extraction.Row, error) {
	tech, err := p.checkTurbineType(ctx, text)
	if err != nil {
		return nil, err
	}

	type job struct {
		run func(context.Context) ([]map[string]any, error)
	}
	var jobs []job
	for _, feature := range SetbackFeatures {
		jobs = append(jobs, job{func(ctx context.Context) ([]map[string]any, error) {
			return p.parseSetbackFeature(ctx, text, feature, tech)
		}})
	}
	for id, desc := range NumericRestrictions {
		jobs = append(jobs, job{func(ctx context.Context) ([]map[string]any, error) {
			return p.parseExtraRestriction(ctx, text, id, desc, tech, true)
		}})
	}
	for id, desc := range QualitativeRestrictions {
		jobs = append(jobs, job{func(ctx context.Context) ([]map[string]any, error) {
			return p.parseExtraRestriction(ctx, text, id, desc, tech, false)
		}})
	}

	outputs := make([][]map[string]any, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			out, err := j.run(gctx)
			if err != nil {
				return err
			}
			outputs[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []extraction.Row
	for _, batch := range outputs {
		for _, out := range batch {
			row, err := extraction.DecodeRow(out)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// checkTurbineType asks the text which system sizes it regulates and
// returns the largest one, falling back to the generic label.
func (p *Parser) checkTurbineType(ctx context.Context, text string) (string, error) {
	g := WESTypesGraph(map[string]any{"text": text})
	reply, _, found, err := p.runTree(ctx, g, parserSystemMessage, nil)
	if err != nil {
		return "", err
	}
	if found {
		out := replyAsJSON(ctx, reply)
		if tech, _ := out["largest_wes_type"].(string); tech != "" {
			slog.DebugContext(ctx, "largest WES type found in text", "tech", tech)
			return tech, nil
		}
	}
	return DefaultTech, nil
}

func (p *Parser) parseSetbackFeature(ctx context.Context, text string, feature SetbackFeature, tech string) ([]map[string]any, error) {
	bindings := feature.Bindings(tech)
	bindings["text"] = text
	slog.DebugContext(ctx, "parsing setback feature", "feature", feature.ID)

	base := BaseSetbackGraph(bindings)
	_, transcript, found, err := p.runTree(ctx, base, setbacksSystemMessage, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		slog.DebugContext(ctx, "no ordinance found for feature", "feature", feature.ID)
		return EmptyRows(feature.ID), nil
	}

	if _, split := participatingOwnedType[feature.ID]; split {
		return p.parseSplitFeature(ctx, text, feature, tech, transcript)
	}

	out := map[string]any{"feature": feature.ID, "quantitative": true}
	values, err := p.extractSetbackValues(ctx, bindings, transcript)
	if err != nil {
		return nil, err
	}
	mergeOutput(out, values)
	return []map[string]any{out}, nil
}

// parseSplitFeature forks the base dialog into participating and
// non-participating variants for structures and property line setbacks.
func (p *Parser) parseSplitFeature(ctx context.Context, text string, feature SetbackFeature, tech string, base []llm.Message) ([]map[string]any, error) {
	bindings := feature.Bindings(tech)
	bindings["text"] = text
	bindings["owned_type"] = participatingOwnedType[feature.ID]

	pg := ParticipatingOwnerGraph(bindings)
	pOut, err := p.runTreeJSON(ctx, pg, setbacksSystemMessage, base)
	if err != nil {
		return nil, err
	}

	subTexts := map[string]string{"participating": "", "non-participating": text}
	for key := range subTexts {
		if v, present := pOut[key]; present {
			s, _ := v.(string)
			subTexts[key] = s
		}
	}

	var rows []map[string]any
	for _, key := range []string{"participating", "non-participating"} {
		row, err := p.parseSubText(ctx, key, subTexts[key], feature, tech, base)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (p *Parser) parseSubText(ctx context.Context, pOrNp, subText string, feature SetbackFeature, tech string, base []llm.Message) (map[string]any, error) {
	row := map[string]any{
		"feature":      fmt.Sprintf("%s (%s)", feature.ID, pOrNp),
		"quantitative": true,
	}
	if subText == "" {
		return row, nil
	}

	bindings := feature.Bindings(tech)
	bindings["text"] = subText
	condensed := strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(subText), "\n", ""), " ", "-")
	if pOrNp == "participating" || strings.Contains(condensed, "non-participating") {
		bindings["feature"] = fmt.Sprintf("**%s** %s", pOrNp, feature.Phrase())
	}

	// Rewrite the tail of the base transcript so the forked dialogs see
	// only the sub-text that applies to this owner class.
	seed := llm.CloneMessages(base)
	if len(seed) >= 2 {
		prompt, err := dtree.FormatPrompt(ExtractOriginalTextPrompt, bindings)
		if err != nil {
			return nil, err
		}
		seed[len(seed)-2].Content = prompt
		seed[len(seed)-1].Content = subText
	}

	values, err := p.extractSetbackValues(ctx, bindings, seed)
	if err != nil {
		return nil, err
	}
	mergeOutput(row, values)
	return row, nil
}

// extractSetbackValues walks the multiplier dialog and, when a value was
// found, the conditional minimum and maximum dialogs, all seeded from the
// same base transcript.
func (p *Parser) extractSetbackValues(ctx context.Context, bindings map[string]any, base []llm.Message) (map[string]any, error) {
	out, err := p.runTreeJSON(ctx, MultiplierGraph(bindings), setbacksSystemMessage, base)
	if err != nil {
		return nil, err
	}
	out = extraction.NormalizeOutputKeys(out)
	out = extraction.SanitizeOutput(out)
	out = extraction.CapAdder(out, p.adderCap())

	if out["value"] == nil {
		return out, nil
	}

	minOut, err := p.runTreeJSON(ctx, ConditionalMinGraph(bindings), setbacksSystemMessage, base)
	if err != nil {
		return nil, err
	}
	mergeOutput(out, minOut)

	maxOut, err := p.runTreeJSON(ctx, ConditionalMaxGraph(bindings), setbacksSystemMessage, base)
	if err != nil {
		return nil, err
	}
	mergeOutput(out, maxOut)
	return out, nil
}

func (p *Parser) parseExtraRestriction(ctx context.Context, text, id, desc, tech string, isNumerical bool) ([]map[string]any, error) {
	slog.DebugContext(ctx, "parsing extra restriction", "restriction", id)
	bindings := map[string]any{
		"restriction":                desc,
		"tech":                       tech,
		"text":                       text,
		"unit_clarification":         unitClarifications[id],
		"restriction_clarifications": restrictionClarifications[id],
	}
	g := ExtraRestrictionGraph(isNumerical, bindings)
	out, err := p.runTreeJSON(ctx, g, restrictionsSystemMessage, nil)
	if err != nil {
		return nil, err
	}
	out["feature"] = id
	out["quantitative"] = isNumerical
	if isNumerical {
		out = extraction.SanitizeOutput(out)
	}
	return []map[string]any{out}, nil
}

// DistrictRow is one permitted-use finding: the districts where the
// technology has the given use type.
type DistrictRow struct {
	Feature   string   `json:"feature"`
	Districts []string `json:"districts"`
	Summary   string   `json:"summary"`
	Section   string   `json:"section"`
}

type useType struct {
	featureID      string
	useType        string
	clarifications string
}

var useTypes = []useType{
	{
		featureID: "permitted use districts",
		useType: "permitted as a primary, special, or conditional use " +
			"or similar",
		clarifications: "Consider any solar overlay districts as solar " +
			"districts and **do not include** them in the output. " +
			largeWESDescription,
	},
	{
		featureID: "prohibited use districts",
		useType: "prohibited or similar (e.g., where wind energy systems " +
			"are not allowed or banned)",
		clarifications: "Only output specific districts where wind energy " +
			"systems are prohibited **unconditionally**. " +
			largeWESDescription,
	},
}

// ParsePermittedUses extracts the districts where the regulated systems
// are permitted or prohibited.
func (p *Parser) ParsePermittedUses(ctx context.Context, text string) ([]DistrictRow, error) {
	tech, err := p.checkTurbineType(ctx, text)
	if err != nil {
		return nil, err
	}

	rows := make([]DistrictRow, len(useTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, ut := range useTypes {
		g.Go(func() error {
			bindings := map[string]any{
				"tech":           tech,
				"text":           text,
				"use_type":       ut.useType,
				"clarifications": ut.clarifications,
			}
			graph := PermittedUseDistrictsGraph(bindings)
			out, err := p.runTreeJSON(gctx, graph, permittedUseSystemMessage, nil)
			if err != nil {
				return err
			}
			row := DistrictRow{Feature: ut.featureID}
			if list, ok := out["value"].([]any); ok {
				for _, item := range list {
					if name, ok := item.(string); ok {
						row.Districts = append(row.Districts, name)
					}
				}
			}
			row.Summary, _ = out["summary"].(string)
			row.Section, _ = out["section"].(string)
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *Parser) adderCap() float64 {
	if p.AdderCap > 0 {
		return p.AdderCap
	}
	return extraction.DefaultAdderCap
}

// runTree formats the system message against the graph bindings, seeds the
// dialog if base messages are given, and walks the graph. A dead end is
// reported through found=false rather than an error.
func (p *Parser) runTree(ctx context.Context, g *dtree.Graph, system string, seed []llm.Message) (reply string, transcript []llm.Message, found bool, err error) {
	formatted, err := dtree.FormatPrompt(system, g.Bindings())
	if err != nil {
		return "", nil, false, err
	}
	chat := p.NewChat(formatted)
	if seed != nil {
		chat.SetTranscript(llm.CloneMessages(seed))
	}

	tree := dtree.NewTree(g, chat)
	reply, err = tree.Run(ctx)
	if err != nil {
		if errors.Is(err, dtree.ErrDeadEnd) {
			slog.DebugContext(ctx, "dialog ended without requested data", "error", err)
			return "", chat.Transcript(), false, nil
		}
		return "", nil, false, err
	}
	return reply, chat.Transcript(), true, nil
}

func (p *Parser) runTreeJSON(ctx context.Context, g *dtree.Graph, system string, seed []llm.Message) (map[string]any, error) {
	reply, _, found, err := p.runTree(ctx, g, system, seed)
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]any{}, nil
	}
	return replyAsJSON(ctx, reply), nil
}

// replyAsJSON decodes a dialog's terminal reply. Unparseable replies yield
// an empty map, treated downstream as "no value found".
func replyAsJSON(ctx context.Context, reply string) map[string]any {
	parsed := map[string]any{}
	cleaned := llm.StripFences(reply)
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		slog.DebugContext(ctx, "dialog reply did not parse as JSON", "error", err)
		return map[string]any{}
	}
	return parsed
}

func mergeOutput(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
