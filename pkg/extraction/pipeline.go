package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/renewmap/compass/pkg/usage"
	"github.com/renewmap/compass/pkg/web"
)

// ContainmentNgramSize is the n-gram order used for the fidelity score of
// narrowed text against the original document.
const ContainmentNgramSize = 4

// Stage is one LLM filtering pass of the narrowing pipeline. Its merged
// output is stamped on the document under Key and becomes the input of the
// following stage.
type Stage struct {
	Key          string
	Instructions string
}

// Extractor describes a technology-specific narrowing sequence.
type Extractor interface {
	SystemMessage() string
	Stages() []Stage
}

// TextCaller issues a single system+user LLM exchange. *llm.Caller
// satisfies this.
type TextCaller interface {
	Call(ctx context.Context, system, user, category string) (string, error)
}

// Pipeline runs an Extractor's stages over chunked document text,
// fanning each stage's chunks out concurrently and merging the surviving
// responses.
type Pipeline struct {
	Caller   TextCaller
	Splitter *TextSplitter

	// MergeOverlap is the overlap window for splicing survivor chunks.
	MergeOverlap int
}

func NewPipeline(caller TextCaller, splitter *TextSplitter) *Pipeline {
	return &Pipeline{Caller: caller, Splitter: splitter, MergeOverlap: DefaultMergeOverlap}
}

// Narrow runs every stage over the given starting text and stamps each
// stage's merged output on the document. The final stage's output is also
// scored for n-gram containment against the starting text.
func (p *Pipeline) Narrow(ctx context.Context, doc *web.Document, ex Extractor, text string) (string, error) {
	original := text
	for _, stage := range ex.Stages() {
		if strings.TrimSpace(text) == "" {
			doc.SetAttr(stage.Key, "")
			continue
		}
		narrowed, err := p.runStage(ctx, ex.SystemMessage(), stage, text)
		if err != nil {
			return "", fmt.Errorf("narrowing stage %q: %w", stage.Key, err)
		}
		doc.SetAttr(stage.Key, narrowed)
		text = narrowed
	}

	score := SentenceNgramContainment(original, text, ContainmentNgramSize)
	doc.SetAttr(web.AttrContainmentScore, score)
	slog.DebugContext(ctx, "narrowing complete",
		"chars", len(text), "containment", score)
	return text, nil
}

func (p *Pipeline) runStage(ctx context.Context, system string, stage Stage, text string) (string, error) {
	chunks := p.Splitter.Split(text)
	slog.DebugContext(ctx, "extracting ordinance text",
		"stage", stage.Key, "chunks", len(chunks))

	results := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			user := fmt.Sprintf("Text:\n%s\n%s", chunk, stage.Instructions)
			out, err := p.Caller.Call(gctx, system, user, usage.CategoryOrdinanceSummary)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var kept []string
	for _, out := range results {
		if ValidChunk(out) {
			kept = append(kept, out)
		}
	}
	return MergeOverlappingTexts(kept, p.MergeOverlap), nil
}

// ValidChunk reports whether a stage response carries relevant text rather
// than the model's "no relevant text" disclaimer.
func ValidChunk(chunk string) bool {
	return chunk != "" && !strings.Contains(strings.ToLower(chunk), "no relevant text")
}
