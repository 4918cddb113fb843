package process

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/renewmap/compass/pkg/jurisdiction"
)

// Processor runs the pipeline for a single jurisdiction. *Orchestrator
// satisfies this; tests substitute a fake.
type Processor interface {
	Process(ctx context.Context, j jurisdiction.Jurisdiction) *Result
}

// Driver fans the per-jurisdiction tasks out over the configured
// concurrency bound and aggregates their results into the combined run
// outputs. A single jurisdiction failing never fails the run.
type Driver struct {
	Processor Processor
	Layout    *Layout

	// MaxConcurrent bounds active jurisdiction tasks. Zero means
	// unbounded, leaving throttling to the LLM rate limiter.
	MaxConcurrent int

	// ModelConfig is echoed into meta.json so a run records what
	// produced it.
	ModelConfig map[string]any
}

// RunSummary is the meta.json payload.
type RunSummary struct {
	Username        string            `json:"username"`
	GoVersion       string            `json:"go_version"`
	Models          map[string]any    `json:"models,omitempty"`
	Started         time.Time         `json:"time_start_utc"`
	Finished        time.Time         `json:"time_end_utc"`
	DurationSeconds float64           `json:"total_time_seconds"`
	Duration        string            `json:"total_time"`
	NumSearched     int               `json:"num_jurisdictions_searched"`
	NumFound        int               `json:"num_jurisdictions_found"`
	TotalCost       float64           `json:"cost"`
	Manifest        map[string]string `json:"manifest"`
}

// Run processes every jurisdiction and writes the combined outputs. The
// returned summary mirrors meta.json. Only setup and output failures are
// returned as errors; per-jurisdiction failures are absorbed as nil results.
func (d *Driver) Run(ctx context.Context, list []jurisdiction.Jurisdiction) (*RunSummary, error) {
	started := time.Now().UTC()

	results := make([]*Result, len(list))
	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	if d.MaxConcurrent > 0 {
		g.SetLimit(d.MaxConcurrent)
	}
	for i, j := range list {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = d.Processor.Process(gctx, j)
			slog.Info("jurisdiction task finished",
				"jurisdiction", j.FullName(),
				"completed", completed.Add(1), "total", len(list))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Only cancellation reaches here; Process absorbs task failures.
		d.logFatal(err)
		return nil, err
	}

	summary, err := d.writeOutputs(ctx, results, started)
	if err != nil {
		d.logFatal(err)
		return nil, err
	}
	return summary, nil
}

func (d *Driver) writeOutputs(ctx context.Context, results []*Result, started time.Time) (*RunSummary, error) {
	finished := time.Now().UTC()
	lastUpdated := finished.Format("2006-01-02")

	quantitative, qualitative, err := BuildCSVs(results, lastUpdated)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(ctx, d.Layout.QuantitativeFile(), quantitative); err != nil {
		return nil, fmt.Errorf("failed to write quantitative CSV: %w", err)
	}
	if err := WriteFile(ctx, d.Layout.QualitativeFile(), qualitative); err != nil {
		return nil, fmt.Errorf("failed to write qualitative CSV: %w", err)
	}

	summary := d.summarize(results, started, finished)
	meta, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run metadata: %w", err)
	}
	if err := WriteFile(ctx, d.Layout.MetaFile(), meta); err != nil {
		return nil, fmt.Errorf("failed to write run metadata: %w", err)
	}
	return summary, nil
}

func (d *Driver) summarize(results []*Result, started, finished time.Time) *RunSummary {
	summary := &RunSummary{
		Username:        currentUsername(),
		GoVersion:       runtime.Version(),
		Models:          d.ModelConfig,
		Started:         started,
		Finished:        finished,
		DurationSeconds: finished.Sub(started).Seconds(),
		Duration:        finished.Sub(started).Round(time.Second).String(),
		NumSearched:     len(results),
		Manifest:        d.manifestPaths(),
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		summary.TotalCost += res.Cost
		if res.Found {
			summary.NumFound++
		}
	}
	return summary
}

// manifestPaths lists the run outputs relative to the run root.
func (d *Driver) manifestPaths() map[string]string {
	rel := func(path string) string {
		if r, err := filepath.Rel(d.Layout.Out, path); err == nil {
			return r
		}
		return path
	}
	return map[string]string{
		"quantitative": rel(d.Layout.QuantitativeFile()),
		"qualitative":  rel(d.Layout.QualitativeFile()),
		"usage":        rel(d.Layout.UsageFile()),
		"manifest":     rel(d.Layout.JurisdictionsFile()),
	}
}

// logFatal appends a fatal driver error to the top-level error log so at
// least one record survives a detached stdout.
func (d *Driver) logFatal(err error) {
	if d.Layout == nil {
		return
	}
	f, ferr := os.OpenFile(d.Layout.ErrorLog(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if ferr != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s FATAL %v\n", time.Now().UTC().Format(time.RFC3339), err)
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
