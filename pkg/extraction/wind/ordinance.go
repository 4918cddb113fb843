package wind

import (
	"context"
	"log/slog"

	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/llm/dtree"
	"github.com/renewmap/compass/pkg/usage"
	"github.com/renewmap/compass/pkg/validation"
	"github.com/renewmap/compass/pkg/web"
)

func dtreeFormat(template, key string) (string, error) {
	return dtree.FormatPrompt(template, map[string]any{"key": key})
}

const largeWESDescription = "Large wind energy systems (WES) may also be " +
	"referred to as wind turbines, wind energy conversion systems (WECS), " +
	"wind energy facilities (WEF), wind energy turbines (WET), large wind " +
	"energy turbines (LWET), utility-scale wind energy turbines (UWET), " +
	"commercial wind energy systems, or similar. "

const (
	searchTermsAnd = "zoning, special permitting, siting and setback, " +
		"system design, and operational requirements/restrictions"
	searchTermsOr = "zoning, special permitting, siting and setback, " +
		"system design, or operational requirements/restrictions"
	ignoreTypes = "private, residential, micro, small, or medium sized"
	trackBans   = "Note that wind energy bans are an important restriction to track. "
)

// Per-chunk content validation prompts. Each asks for a JSON verdict under
// a caller-chosen {key} so verdicts can be memoized per question.
const (
	containsOrdPrompt = "You extract structured data from text. Return " +
		"your answer in JSON format (not markdown). Your JSON file must " +
		"include exactly two keys. The first key is 'wind_reqs', which is " +
		"a string that summarizes all " + searchTermsAnd + " (if given) " +
		"in the text for a wind energy system (or wind turbine/tower). " +
		trackBans +
		"The last key is '{key}', which is a boolean that is set to True " +
		"if the text excerpt describes " + searchTermsOr + " for a wind " +
		"energy system (or wind turbine/tower) and False otherwise. "

	isUtilityScalePrompt = "You are a legal scholar that reads ordinance " +
		"text and determines whether any of it applies to " + searchTermsOr +
		" for large wind energy systems. " + largeWESDescription +
		"Your client is a commercial wind developer that does not care " +
		"about ordinances related to " + ignoreTypes + " wind energy " +
		"systems. Ignore any text related to such systems. " +
		"Return your answer in JSON format (not markdown). Your JSON file " +
		"must include exactly two keys. The first key is 'summary' which " +
		"contains a string that lists all of the types of wind energy " +
		"systems the text applies to (if any). The second key is '{key}', " +
		"which is a boolean that is set to True if any part of the text " +
		"excerpt mentions " + searchTermsOr + " for the large wind energy " +
		"conversion systems that the client is interested in and False " +
		"otherwise."

	districtPrompt = "You are a legal scholar that reads ordinance text " +
		"and determines whether the text explicitly details the districts " +
		"where large wind energy systems are a permitted use. " +
		"Do not make any inferences; only answer based on information " +
		"that is explicitly outlined in the text. " +
		"Note that relevant information may sometimes be found in tables. " +
		"Return your answer in JSON format (not markdown). Your JSON file " +
		"must include exactly two keys. The first key is 'districts' " +
		"which contains a string that lists all of the district names for " +
		"which the text explicitly permits large wind energy systems (if " +
		"any). The last key is '{key}', which is a boolean that is set to " +
		"True if any part of the text excerpt mentions districts where " +
		"large wind energy systems are a permitted use and False " +
		"otherwise."
)

// OrdinanceTextCollector walks chunked document text and collects the
// chunks that contain utility-scale wind ordinance content.
type OrdinanceTextCollector struct {
	validator *validation.ChunkValidator
	marked    *validation.IndexCollector
	hits      int
}

func NewOrdinanceTextCollector(validator *validation.ChunkValidator) *OrdinanceTextCollector {
	return &OrdinanceTextCollector{
		validator: validator,
		marked:    validation.NewIndexCollector(validation.DefaultRecall),
	}
}

// CheckChunk records whether the chunk at ind holds large-WES ordinance
// text. A chunk passes only when it both describes ordinance requirements
// and applies to utility-scale systems.
func (c *OrdinanceTextCollector) CheckChunk(ctx context.Context, ind int) (bool, error) {
	containsOrd, err := c.validator.ParseFromIndex(ctx, ind, containsOrdPrompt, "contains_ord_info")
	if err != nil {
		return false, err
	}
	if !containsOrd {
		slog.DebugContext(ctx, "chunk has no ordinance info", "ind", ind)
		return false, nil
	}

	utilityScale, err := c.validator.ParseFromIndex(ctx, ind, isUtilityScalePrompt, "x")
	if err != nil {
		return false, err
	}
	if !utilityScale {
		slog.DebugContext(ctx, "chunk is not utility scale", "ind", ind)
		return false, nil
	}

	c.marked.Mark(ind)
	c.hits++
	slog.DebugContext(ctx, "chunk added to ordinance text", "ind", ind)
	return true, nil
}

// Found reports whether any chunk passed both checks.
func (c *OrdinanceTextCollector) Found() bool { return !c.marked.Empty() }

// Hits returns the number of chunks that passed.
func (c *OrdinanceTextCollector) Hits() int { return c.hits }

// OrdinanceText merges the marked chunks, along with their look-back
// neighbors, back into a single text.
func (c *OrdinanceTextCollector) OrdinanceText() string {
	chunks := c.validator.Chunks()
	var parts []string
	for _, ind := range c.marked.Expanded(len(chunks)) {
		parts = append(parts, chunks[ind])
	}
	return extraction.MergeOverlappingTexts(parts, extraction.DefaultMergeOverlap)
}

// DistrictTextCollector gathers chunks that list districts where large
// wind energy systems are a permitted use.
type DistrictTextCollector struct {
	caller validation.StructuredCaller
	chunks []string
	marked *validation.IndexCollector
}

func NewDistrictTextCollector(caller validation.StructuredCaller, chunks []string) *DistrictTextCollector {
	return &DistrictTextCollector{
		caller: caller,
		chunks: chunks,
		marked: validation.NewIndexCollector(validation.DefaultRecall),
	}
}

func (c *DistrictTextCollector) CheckChunk(ctx context.Context, ind int) (bool, error) {
	const key = "contains_district_info"
	prompt, err := dtreeFormat(districtPrompt, key)
	if err != nil {
		return false, err
	}
	out, err := c.caller.Call(ctx, prompt, c.chunks[ind], usage.CategoryContentValidation)
	if err != nil {
		return false, err
	}
	if hit, _ := out[key].(bool); hit {
		c.marked.Mark(ind)
		slog.DebugContext(ctx, "chunk contains district info", "ind", ind)
		return true, nil
	}
	return false, nil
}

func (c *DistrictTextCollector) Found() bool { return !c.marked.Empty() }

// DistrictText merges the marked chunks and their look-back neighbors.
func (c *DistrictTextCollector) DistrictText() string {
	var parts []string
	for _, ind := range c.marked.Expanded(len(c.chunks)) {
		parts = append(parts, c.chunks[ind])
	}
	return extraction.MergeOverlappingTexts(parts, extraction.DefaultMergeOverlap)
}

// OrdinanceTextExtractor is the narrowing sequence for large wind energy
// system ordinances: energy systems, then wind systems, then large wind
// sections, then a final text-level cleanup.
type OrdinanceTextExtractor struct{}

func (OrdinanceTextExtractor) SystemMessage() string {
	return "You extract one or more direct excerpts from a given text " +
		"based on the user's request. Maintain all original formatting " +
		"and characters without any paraphrasing. If the relevant text is " +
		"inside of a space-delimited table, return the entire table with " +
		"the original space-delimited formatting. Never paraphrase! Only " +
		"return portions of the original text directly."
}

func (OrdinanceTextExtractor) Stages() []extraction.Stage {
	return []extraction.Stage{
		{
			Key: web.AttrEnergySystemsText,
			Instructions: "Extract the full text for all sections " +
				"pertaining to energy conversion systems. Remove sections " +
				"that definitely do not pertain to energy conversion " +
				"systems. Note that bans on energy conversion systems are " +
				"an important restriction to track. If there is no text " +
				"that pertains to energy conversion systems, simply say: " +
				"\"No relevant text.\"",
		},
		{
			Key: web.AttrWindEnergyText,
			Instructions: "Extract the full text for all sections " +
				"pertaining to wind energy conversion systems. Remove " +
				"sections that definitely do not pertain to wind energy " +
				"conversion systems. " + trackBans +
				"If there is no text that pertains to wind energy " +
				"conversion systems, simply say: \"No relevant text.\"",
		},
		{
			Key: web.AttrLargeWindEnergyText,
			Instructions: "Extract the full text for all sections " +
				"pertaining to large wind energy systems.  " + trackBans +
				largeWESDescription +
				"Remove all sections that explicitly only apply to " +
				ignoreTypes + " wind energy systems. Keep section headers " +
				"(if any). If there is no text pertaining to large wind " +
				"systems, simply say: \"No relevant text.\"",
		},
		{
			Key: web.AttrCleanedText,
			Instructions: "Extract all portions of the text that apply " +
				"to large wind energy systems." + trackBans +
				largeWESDescription +
				"Remove all text that explicitly only applies to " +
				ignoreTypes + " wind energy systems. Keep section headers " +
				"(if any). If there is no text pertaining to large wind " +
				"systems, simply say: \"No relevant text.\"",
		},
	}
}

// ContentChecker is the wind content filter for the retrieval funnel: a
// cheap keyword heuristic followed by per-chunk LLM validation. Passing
// documents get their collected ordinance text stamped on them.
type ContentChecker struct {
	Caller    validation.StructuredCaller
	Splitter  *extraction.TextSplitter
	Heuristic validation.Heuristic
	Recall    int
}

func NewContentChecker(caller validation.StructuredCaller, splitter *extraction.TextSplitter) *ContentChecker {
	return &ContentChecker{
		Caller:    caller,
		Splitter:  splitter,
		Heuristic: DefaultHeuristic(),
		Recall:    validation.DefaultRecall,
	}
}

// CheckContent implements the funnel content filter. The score is the
// fraction of chunks that passed both ordinance checks.
func (c *ContentChecker) CheckContent(ctx context.Context, doc *web.Document) (bool, float64, error) {
	text := doc.Text()
	if c.Heuristic != nil && !c.Heuristic.Matches(text) {
		slog.DebugContext(ctx, "document failed wind keyword heuristic", "source", doc.Source)
		return false, 0, nil
	}

	chunks := c.Splitter.Split(text)
	if len(chunks) == 0 {
		return false, 0, nil
	}

	validator := validation.NewChunkValidator(c.Caller, chunks, c.Recall, usage.CategoryContentValidation)
	collector := NewOrdinanceTextCollector(validator)
	for i := range chunks {
		if _, err := collector.CheckChunk(ctx, i); err != nil {
			return false, 0, err
		}
	}

	if !collector.Found() {
		return false, 0, nil
	}
	doc.SetAttr(web.AttrOrdinanceText, collector.OrdinanceText())
	return true, float64(collector.Hits()) / float64(len(chunks)), nil
}
