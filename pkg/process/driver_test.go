package process

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/services"
)

// fakeProcessor returns canned results and records concurrency.
type fakeProcessor struct {
	mu      sync.Mutex
	active  int
	peak    int
	results map[string]*Result
}

func (p *fakeProcessor) Process(_ context.Context, j jurisdiction.Jurisdiction) *Result {
	p.mu.Lock()
	p.active++
	if p.active > p.peak {
		p.peak = p.active
	}
	res := p.results[j.FullName()]
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()
	return res
}

func TestDriverRun(t *testing.T) {
	layout := NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure())

	decatur := jurisdiction.Jurisdiction{
		Type: jurisdiction.TypeCounty, State: "Indiana",
		County: "Decatur", Code: "18031",
	}
	boxElder := jurisdiction.Jurisdiction{
		Type: jurisdiction.TypeCounty, State: "Utah", County: "Box Elder",
	}
	broken := jurisdiction.Jurisdiction{
		Type: jurisdiction.TypeCounty, State: "Ohio", County: "Stark",
	}

	found := sampleResult()
	found.Jurisdiction = decatur
	found.Cost = 0.5
	notFound := &Result{Jurisdiction: boxElder, Cost: 0.1}

	processor := &fakeProcessor{results: map[string]*Result{
		decatur.FullName():  found,
		boxElder.FullName(): notFound,
		// broken maps to nil: the jurisdiction task failed.
	}}
	driver := &Driver{
		Processor:     processor,
		Layout:        layout,
		MaxConcurrent: 2,
		ModelConfig:   map[string]any{"model": "gpt-4o"},
	}

	var summary *RunSummary
	err := services.Run(context.Background(), []services.Service{NewFileWriter(2)},
		func(ctx context.Context) error {
			var err error
			summary, err = driver.Run(ctx, []jurisdiction.Jurisdiction{decatur, boxElder, broken})
			return err
		})
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, 3, summary.NumSearched)
	assert.Equal(t, 1, summary.NumFound)
	assert.InDelta(t, 0.6, summary.TotalCost, 1e-9)
	assert.LessOrEqual(t, processor.peak, 2)

	quant, err := os.ReadFile(layout.QuantitativeFile())
	require.NoError(t, err)
	records := parseCSV(t, quant)
	require.Len(t, records, 3)
	assert.Equal(t, "Indiana", records[1][0])

	_, err = os.Stat(layout.QualitativeFile())
	require.NoError(t, err)

	meta, err := os.ReadFile(layout.MetaFile())
	require.NoError(t, err)
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(meta, &parsed))
	assert.Equal(t, float64(1), parsed["num_jurisdictions_found"])
	assert.Equal(t, "quantitative_ordinances.csv", parsed["manifest"].(map[string]any)["quantitative"])
	assert.Equal(t, "gpt-4o", parsed["models"].(map[string]any)["model"])
}

func TestDriverRunWithoutFileServiceFails(t *testing.T) {
	layout := NewLayout(t.TempDir())
	require.NoError(t, layout.Ensure())
	driver := &Driver{Processor: &fakeProcessor{}, Layout: layout}

	_, err := driver.Run(context.Background(), []jurisdiction.Jurisdiction{
		{Type: jurisdiction.TypeCounty, State: "Indiana", County: "Decatur"},
	})
	require.Error(t, err)

	// The fatal error also lands in the top-level error log.
	data, readErr := os.ReadFile(layout.ErrorLog())
	require.NoError(t, readErr)
	assert.Contains(t, string(data), "FATAL")
}
