// Package validation decides whether chunks of legal text answer specific
// questions about a document: is it legal text, does it cover the right
// technology, does it apply to the right jurisdiction.
package validation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/renewmap/compass/pkg/llm/dtree"
)

// DefaultRecall is how many chunks a validation question inspects,
// counting the requested chunk itself.
const DefaultRecall = 2

// StructuredCaller is the JSON-response dialog surface, satisfied by
// *llm.StructuredCaller.
type StructuredCaller interface {
	Call(ctx context.Context, system, content, category string) (map[string]any, error)
}

// Heuristic is a cheap, LLM-free text predicate used to reject chunks before
// spending tokens on them.
type Heuristic interface {
	Matches(text string) bool
}

// HeuristicFunc adapts a plain function to Heuristic.
type HeuristicFunc func(text string) bool

func (f HeuristicFunc) Matches(text string) bool { return f(text) }

// ChunkValidator runs yes/no questions against ordered text chunks with a
// look-back: if the requested chunk answers false, up to recall-1 earlier
// chunks are consulted too. Verdicts are memoized per (chunk, key) so a
// question is never re-asked, and a stored verdict is never mutated.
type ChunkValidator struct {
	caller   StructuredCaller
	chunks   []string
	recall   int
	category string
	memory   []map[string]bool
}

// NewChunkValidator wraps the ordered chunks of one document. A recall of 0
// defaults to DefaultRecall.
func NewChunkValidator(caller StructuredCaller, chunks []string, recall int, category string) *ChunkValidator {
	if recall <= 0 {
		recall = DefaultRecall
	}
	memory := make([]map[string]bool, len(chunks))
	for i := range memory {
		memory[i] = map[string]bool{}
	}
	return &ChunkValidator{
		caller:   caller,
		chunks:   chunks,
		recall:   recall,
		category: category,
		memory:   memory,
	}
}

// Chunks returns the wrapped text chunks.
func (v *ChunkValidator) Chunks() []string { return v.chunks }

// ParseFromIndex asks the question identified by key about chunk ind,
// walking back through earlier chunks until one answers true or the
// look-back is exhausted. The prompt template must reference {key} and
// request a JSON response containing that key as a boolean.
func (v *ChunkValidator) ParseFromIndex(ctx context.Context, ind int, promptTemplate, key string) (bool, error) {
	if ind < 0 || ind >= len(v.chunks) {
		return false, fmt.Errorf("chunk index %d out of range [0, %d)", ind, len(v.chunks))
	}
	prompt, err := dtree.FormatPrompt(promptTemplate, map[string]any{"key": key})
	if err != nil {
		return false, err
	}

	for step := 0; step < v.recall; step++ {
		i := ind - step
		if i < 0 {
			break
		}
		verdict, ok := v.memory[i][key]
		if !ok {
			parsed, err := v.caller.Call(ctx, prompt, v.chunks[i], v.category)
			if err != nil {
				return false, err
			}
			verdict = boolValue(parsed[key])
			v.memory[i][key] = verdict
		}
		if verdict {
			return true, nil
		}
	}
	return false, nil
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	default:
		return false
	}
}

// IndexCollector accumulates chunk indices that passed validation. When the
// source text is reassembled, Expanded pulls the look-back neighbors of each
// marked chunk so surrounding context survives.
type IndexCollector struct {
	indices map[int]struct{}
	recall  int
}

// NewIndexCollector returns a collector using the given look-back size.
func NewIndexCollector(recall int) *IndexCollector {
	if recall <= 0 {
		recall = DefaultRecall
	}
	return &IndexCollector{indices: map[int]struct{}{}, recall: recall}
}

// Mark records that chunk i passed.
func (c *IndexCollector) Mark(i int) {
	c.indices[i] = struct{}{}
}

// Empty reports whether nothing was marked.
func (c *IndexCollector) Empty() bool { return len(c.indices) == 0 }

// Expanded returns the marked indices plus their look-back neighbors,
// sorted and clamped to [0, limit).
func (c *IndexCollector) Expanded(limit int) []int {
	expanded := map[int]struct{}{}
	for i := range c.indices {
		for step := 0; step < c.recall; step++ {
			if j := i - step; j >= 0 && j < limit {
				expanded[j] = struct{}{}
			}
		}
	}
	out := make([]int, 0, len(expanded))
	for i := range expanded {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
