package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/renewmap/compass/pkg/config"
	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/extraction/wind"
	"github.com/renewmap/compass/pkg/httpclient"
	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/llm"
	"github.com/renewmap/compass/pkg/logger"
	"github.com/renewmap/compass/pkg/process"
	"github.com/renewmap/compass/pkg/services"
	"github.com/renewmap/compass/pkg/utils"
	"github.com/renewmap/compass/pkg/web"
)

// ProcessCmd runs the full pipeline: retrieve a legal document for each
// jurisdiction, narrow it to ordinance text, extract structured values, and
// write the combined run outputs.
type ProcessCmd struct {
	Out          string   `short:"o" help:"Run output directory." type:"path"`
	Reference    string   `help:"Jurisdiction reference CSV." type:"path"`
	Jurisdiction []string `help:"Jurisdiction full name, repeatable (e.g. 'Decatur County, Indiana')."`
	ListFile     string   `name:"list-file" help:"File of jurisdiction full names, one per line." type:"path"`

	Tech   string `help:"Technology to extract ordinances for." default:"wind"`
	Model  string `help:"LLM model name."`
	APIKey string `name:"api-key" help:"API key (defaults to OPENAI_API_KEY)."`

	RateLimit        float64 `name:"rate-limit" help:"LLM tokens allowed per rate window."`
	ChunkSize        int     `name:"chunk-size" help:"Chunk size in model tokens."`
	ChunkOverlap     int     `name:"chunk-overlap" help:"Chunk overlap in model tokens."`
	NumURLs          int     `name:"num-urls" help:"Search result URLs to fetch per jurisdiction."`
	MaxJurisdictions int     `name:"max-jurisdictions" help:"Concurrent jurisdiction bound."`
	LogLevel         string  `name:"log-level" help:"Log level (debug, info, warn, error)."`
}

func (c *ProcessCmd) Run(cli *CLI) error {
	if c.Tech != "wind" {
		return fmt.Errorf("unsupported technology %q: only wind is implemented", c.Tech)
	}
	cfg, err := c.loadConfig(cli.Config)
	if err != nil {
		return err
	}

	jurisdictions, err := resolveJurisdictions(cfg)
	if err != nil {
		return err
	}

	layout := process.NewLayout(cfg.Out)
	if err := layout.Ensure(); err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	mainLog, err := logger.OpenLogFile(layout.MainLog())
	if err != nil {
		return err
	}
	defer mainLog.Close()
	listener := logger.Init(level, mainLog)
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	summary, err := runPipeline(ctx, cfg, jurisdictions, layout, listener)
	if err != nil {
		return err
	}

	fmt.Printf("\nProcessed %d jurisdictions, found ordinances for %d (cost $%.2f)\n",
		summary.NumSearched, summary.NumFound, summary.TotalCost)
	fmt.Printf("Outputs written to %s\n", layout.Out)
	return nil
}

// loadConfig merges the config file with the command-line overrides and
// validates the result.
func (c *ProcessCmd) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if c.Out != "" {
		cfg.Out = c.Out
	}
	if c.Reference != "" {
		cfg.Jurisdictions.Reference = c.Reference
	}
	if c.ListFile != "" {
		cfg.Jurisdictions.File = c.ListFile
	}
	if len(c.Jurisdiction) > 0 {
		cfg.Jurisdictions.Names = append(cfg.Jurisdictions.Names, c.Jurisdiction...)
	}
	if c.Model != "" {
		cfg.LLM.Model = c.Model
	}
	if c.APIKey != "" {
		cfg.LLM.APIKey = c.APIKey
	}
	if c.RateLimit > 0 {
		cfg.LLM.TokenRateLimit = c.RateLimit
	}
	if c.ChunkSize > 0 {
		cfg.Text.ChunkSize = c.ChunkSize
	}
	if c.ChunkOverlap > 0 {
		cfg.Text.ChunkOverlap = c.ChunkOverlap
	}
	if c.NumURLs > 0 {
		cfg.Search.NumURLs = c.NumURLs
	}
	if c.MaxJurisdictions > 0 {
		cfg.Concurrency.MaxJurisdictions = c.MaxJurisdictions
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveJurisdictions matches the configured names against the reference
// CSV. Any unmatched name aborts the run before anything is spent on it.
func resolveJurisdictions(cfg *config.Config) ([]jurisdiction.Jurisdiction, error) {
	reference, err := jurisdiction.LoadReferenceFile(cfg.Jurisdictions.Reference)
	if err != nil {
		return nil, err
	}
	names, err := cfg.JurisdictionNames()
	if err != nil {
		return nil, err
	}
	matched, unmatched := jurisdiction.Match(reference, names)
	if len(unmatched) > 0 {
		return nil, fmt.Errorf("jurisdictions not in reference: %s",
			strings.Join(unmatched, "; "))
	}
	return matched, nil
}

func runPipeline(ctx context.Context, cfg *config.Config, jurisdictions []jurisdiction.Jurisdiction, layout *process.Layout, listener *logger.Listener) (*process.RunSummary, error) {
	counter, err := utils.NewTokenCounter(cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	splitter := &extraction.TextSplitter{
		ChunkSize:    cfg.Text.ChunkSize,
		ChunkOverlap: cfg.Text.ChunkOverlap,
		Separators:   extraction.DefaultSeparators,
		Length:       counter.Count,
	}

	provider := llm.NewOpenAIProvider(cfg.LLM.APIKey, cfg.LLM.Model)
	if cfg.LLM.BaseURL != "" {
		provider = provider.WithBaseURL(cfg.LLM.BaseURL)
	}
	llmService := llm.NewService(llm.DefaultServiceName, provider,
		cfg.LLM.TokenRateLimit, cfg.LLM.RateWindow)

	browser := web.NewBrowser(cfg.Concurrency.MaxBrowsers)
	if err := browser.Start(ctx); err != nil {
		slog.Warn("Browser unavailable, falling back to plain HTTP fetches", "error", err)
		browser = nil
	} else {
		defer browser.Close()
	}

	client := httpclient.New()
	fetcher := &web.Fetcher{
		Client:  client,
		Browser: browser,
		Pool:    services.NewPool(0),
		Split:   splitter.Split,
	}
	crawler := &web.Crawler{
		Fetcher:      fetcher,
		MaxPages:     cfg.Search.CrawlMaxPages,
		Keywords:     cfg.Search.CrawlKeywords,
		DocHeuristic: wind.DefaultHeuristic(),
	}
	engines := []web.SearchEngine{&web.DuckDuckGoEngine{Client: client}}
	if browser != nil {
		engines = append(engines, &web.GoogleBrowserEngine{Browser: browser})
	}
	searcher := &web.FallbackSearcher{Engines: engines}

	orchestrator := &process.Orchestrator{
		ServiceName:    llm.DefaultServiceName,
		Options:        callOptions(cfg),
		Splitter:       splitter,
		Strategies:     strategies(cfg),
		QueryTemplates: cfg.Search.QueryTemplates,
		NumURLs:        cfg.Search.NumURLs,
		Searcher:       searcher,
		Fetcher:        fetcher,
		Crawler:        crawler,
		KnownDocs:      lowerKeys(cfg.Search.KnownDocs),
		AdderCap:       cfg.Text.AdderCap,
		Layout:         layout,
		Logs:           listener,
	}
	driver := &process.Driver{
		Processor:     orchestrator,
		Layout:        layout,
		MaxConcurrent: cfg.Concurrency.MaxJurisdictions,
		ModelConfig:   modelConfig(cfg),
	}

	svcs := []services.Service{
		llmService,
		process.NewFileWriter(cfg.Concurrency.FileWriters),
	}
	var summary *process.RunSummary
	err = services.Run(ctx, svcs, func(ctx context.Context) error {
		var err error
		summary, err = driver.Run(ctx, jurisdictions)
		return err
	})
	return summary, err
}

func callOptions(cfg *config.Config) llm.CallOptions {
	return llm.CallOptions{
		Temperature: cfg.LLM.Temperature,
		Seed:        cfg.LLM.Seed,
		MaxTokens:   cfg.LLM.MaxTokens,
	}
}

func strategies(cfg *config.Config) []web.Strategy {
	out := make([]web.Strategy, 0, len(cfg.Search.Strategies))
	for _, s := range cfg.Search.Strategies {
		out = append(out, web.Strategy(s))
	}
	return out
}

func lowerKeys(m map[string][]string) map[string][]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// modelConfig is echoed into meta.json so a run records what produced it.
func modelConfig(cfg *config.Config) map[string]any {
	mc := map[string]any{
		"model":      cfg.LLM.Model,
		"max_tokens": cfg.LLM.MaxTokens,
	}
	if cfg.LLM.Temperature != nil {
		mc["temperature"] = *cfg.LLM.Temperature
	}
	if cfg.LLM.Seed != nil {
		mc["seed"] = *cfg.LLM.Seed
	}
	return mc
}
