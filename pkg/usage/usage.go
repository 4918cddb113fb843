// Package usage tracks LLM token and request consumption.
//
// Two trackers live here. Tracker accumulates per-jurisdiction usage records
// keyed by model and category, for cost reporting and the usage.json output.
// TimeBoundedTracker is the rolling-window counter behind rate-limited
// services: entries expire after a fixed number of seconds, and Total is the
// sum of live entries.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/renewmap/compass/pkg/utils"
)

// UnknownModelLabel is the model key used when a response carries no model
// name.
const UnknownModelLabel = "unknown"

// Category labels used to namespace usage within a jurisdiction.
const (
	CategoryDefault           = "default"
	CategoryChat              = "chat"
	CategoryLocationFilter    = "document_location_validation"
	CategoryContentValidation = "document_content_validation"
	CategoryOrdinanceSummary  = "document_ordinance_summary"
	CategoryValueExtraction   = "ordinance_value_extraction"
	CategoryPermittedUse      = "permitted_use_value_extraction"
	CategoryDateExtraction    = "date_extraction"
)

// Counts is the additive usage record for one (model, category) pair.
type Counts struct {
	Requests       int `json:"requests"`
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
}

func (c Counts) add(other Counts) Counts {
	c.Requests += other.Requests
	c.PromptTokens += other.PromptTokens
	c.ResponseTokens += other.ResponseTokens
	return c
}

// ResponseParser converts a raw provider response into the counts it should
// contribute. The parser owns knowledge of the provider response shape; the
// tracker owns aggregation.
type ResponseParser func(response any) (model string, counts Counts)

// Tracker accumulates usage for a single jurisdiction. All updates are
// additive; totals are derived by summing categories per model. Safe for
// concurrent use.
type Tracker struct {
	mu           sync.Mutex
	jurisdiction string
	parser       ResponseParser
	models       map[string]map[string]Counts

	// Set once at the end of a jurisdiction run.
	TotalTimeSeconds float64
	TotalTime        string
}

// NewTracker returns a tracker labeled with the jurisdiction it accounts for.
func NewTracker(jurisdiction string, parser ResponseParser) *Tracker {
	return &Tracker{
		jurisdiction: jurisdiction,
		parser:       parser,
		models:       make(map[string]map[string]Counts),
	}
}

// Jurisdiction returns the label used to namespace this tracker's output.
func (t *Tracker) Jurisdiction() string {
	return t.jurisdiction
}

// UpdateFromResponse records the usage carried by a raw provider response
// under the given category.
func (t *Tracker) UpdateFromResponse(response any, category string) {
	if response == nil || t.parser == nil {
		return
	}
	model, counts := t.parser(response)
	if model == "" {
		model = UnknownModelLabel
	}
	if category == "" {
		category = CategoryDefault
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.models[model] == nil {
		t.models[model] = make(map[string]Counts)
	}
	t.models[model][category] = t.models[model][category].add(counts)
}

// Totals returns per-model usage summed across categories.
func (t *Tracker) Totals() map[string]Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	totals := make(map[string]Counts, len(t.models))
	for model, categories := range t.models {
		var sum Counts
		for _, counts := range categories {
			sum = sum.add(counts)
		}
		totals[model] = sum
	}
	return totals
}

// Snapshot returns a deep copy of the nested usage record.
func (t *Tracker) Snapshot() map[string]map[string]Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]map[string]Counts, len(t.models))
	for model, categories := range t.models {
		sub := make(map[string]Counts, len(categories))
		for category, counts := range categories {
			sub[category] = counts
		}
		out[model] = sub
	}
	return out
}

// TotalCost returns the dollar cost of the tracked usage based on the static
// model cost registry. Unknown models contribute 0.
func (t *Tracker) TotalCost() float64 {
	var cost float64
	for model, counts := range t.Totals() {
		rate := CostOf(model)
		cost += float64(counts.PromptTokens)*rate.PromptPerToken +
			float64(counts.ResponseTokens)*rate.ResponsePerToken
	}
	return cost
}

// fileRecord is the usage.json layout: jurisdiction -> model -> category.
type fileRecord map[string]json.RawMessage

// WriteToFile merges this tracker's record into the usage file at path using
// a read-merge-atomic-write cycle. Callers serialize on the file path by
// routing through the file-writer service; this function itself does no
// locking across processes.
func (t *Tracker) WriteToFile(path string) error {
	existing := fileRecord{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("usage file %q is corrupt: %w", path, err)
		}
	}

	entry := map[string]any{}
	for model, categories := range t.Snapshot() {
		entry[model] = categories
	}
	if t.TotalTimeSeconds > 0 {
		entry["total_time_seconds"] = t.TotalTimeSeconds
		entry["total_time"] = t.TotalTime
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal usage for %q: %w", t.jurisdiction, err)
	}
	existing[t.jurisdiction] = raw

	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage file: %w", err)
	}
	return utils.WriteFileAtomic(path, out, 0644)
}

// TimedEntry is a value stamped with a monotonic-ish timestamp.
type TimedEntry struct {
	At    time.Time
	Value float64
}

// TimeBoundedTracker sums values recorded within a trailing time window.
type TimeBoundedTracker struct {
	mu         sync.Mutex
	maxSeconds float64
	entries    []TimedEntry
}

// NewTimeBoundedTracker returns a tracker with the given window in seconds.
func NewTimeBoundedTracker(maxSeconds float64) *TimeBoundedTracker {
	if maxSeconds <= 0 {
		maxSeconds = 60
	}
	return &TimeBoundedTracker{maxSeconds: maxSeconds}
}

// Add records a value at the current time.
func (t *TimeBoundedTracker) Add(value float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, TimedEntry{At: time.Now(), Value: value})
}

// Total returns the sum of values recorded within the window, discarding
// expired entries.
func (t *TimeBoundedTracker) Total() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-time.Duration(t.maxSeconds * float64(time.Second)))
	live := t.entries[:0]
	var total float64
	for _, e := range t.entries {
		if e.At.After(cutoff) {
			live = append(live, e)
			total += e.Value
		}
	}
	t.entries = live
	return total
}
