// Package config holds the run configuration: YAML file plus environment,
// validated eagerly before any service starts.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default search queries. "{jurisdiction}" is replaced with the
// jurisdiction's full name.
var DefaultQueryTemplates = []string{
	"filetype:pdf {jurisdiction} wind energy conversion system ordinances",
	"wind energy conversion system ordinances {jurisdiction}",
	"{jurisdiction} wind energy ordinance",
	"Where can I find the legal text for commercial wind energy " +
		"conversion system zoning ordinances in {jurisdiction}?",
	"What is the specific legal information regarding zoning " +
		"ordinances for commercial wind energy conversion systems in " +
		"{jurisdiction}?",
}

// Config is the full run configuration.
type Config struct {
	// Out is the run output directory.
	Out string `yaml:"out"`

	Jurisdictions JurisdictionsConfig `yaml:"jurisdictions"`
	LLM           LLMConfig           `yaml:"llm"`
	Search        SearchConfig        `yaml:"search"`
	Text          TextConfig          `yaml:"text"`
	Concurrency   ConcurrencyConfig   `yaml:"concurrency"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
}

// JurisdictionsConfig names the jurisdictions to process. Names are matched
// against the reference CSV; anything unmatched aborts the run.
type JurisdictionsConfig struct {
	// Reference is the path to the jurisdiction reference CSV
	// (state, county, subdivision, jurisdiction type, FIPS, website).
	Reference string `yaml:"reference"`

	// File lists jurisdiction full names, one per line. Blank lines and
	// lines starting with '#' are skipped.
	File string `yaml:"file"`

	// Names lists jurisdiction full names inline, appended to File.
	Names []string `yaml:"names"`
}

// LLMConfig configures the shared LLM service.
type LLMConfig struct {
	Model  string `yaml:"model"`
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider endpoint, e.g. for a proxy.
	BaseURL string `yaml:"base_url"`

	Temperature *float64 `yaml:"temperature"`
	Seed        *int     `yaml:"seed"`
	MaxTokens   int      `yaml:"max_tokens"`

	// TokenRateLimit bounds tokens submitted per rolling window.
	TokenRateLimit float64 `yaml:"token_rate_limit"`
	RateWindow     float64 `yaml:"rate_window_seconds"`
}

// SearchConfig configures the document retrieval funnel.
type SearchConfig struct {
	// Strategies run in order: search_engine_query,
	// crawl_jurisdiction_website, load_known_local_docs.
	Strategies []string `yaml:"strategies"`

	QueryTemplates []string `yaml:"query_templates"`
	NumURLs        int      `yaml:"num_urls"`
	CrawlMaxPages  int      `yaml:"crawl_max_pages"`

	// CrawlKeywords weight links during the website crawl; links whose
	// text or URL contain a keyword score its weight.
	CrawlKeywords map[string]float64 `yaml:"crawl_keywords"`

	// KnownDocs maps a jurisdiction full name to local document paths.
	KnownDocs map[string][]string `yaml:"known_docs"`
}

// TextConfig configures chunking and extraction knobs.
type TextConfig struct {
	// ChunkSize and ChunkOverlap are measured in model tokens.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// AdderCap nulls setback adders above this many feet.
	AdderCap float64 `yaml:"adder_cap"`
}

// ConcurrencyConfig bounds the run's parallelism.
type ConcurrencyConfig struct {
	MaxJurisdictions int `yaml:"max_concurrent_jurisdictions"`
	MaxBrowsers      int `yaml:"max_concurrent_browsers"`
	FileWriters      int `yaml:"file_writers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Out: "outputs",
		LLM: LLMConfig{
			Model:          "gpt-4o",
			MaxTokens:      4096,
			TokenRateLimit: 500_000,
			RateWindow:     60,
		},
		Search: SearchConfig{
			Strategies:     []string{"search_engine_query"},
			QueryTemplates: DefaultQueryTemplates,
			NumURLs:        5,
			CrawlMaxPages:  50,
			CrawlKeywords: map[string]float64{
				"ordinance": 3,
				"zoning":    2,
				"wind":      2,
				"code":      1,
				"planning":  1,
				".pdf":      1,
			},
		},
		Text: TextConfig{
			ChunkSize:    3000,
			ChunkOverlap: 300,
			AdderCap:     250,
		},
		Concurrency: ConcurrencyConfig{
			MaxJurisdictions: 5,
			MaxBrowsers:      4,
			FileWriters:      4,
		},
		LogLevel: "info",
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file from the working directory if present.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Validate checks the configuration before anything starts. The API key
// falls back to $OPENAI_API_KEY when unset.
func (c *Config) Validate() error {
	if c.Out == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Jurisdictions.Reference == "" {
		return fmt.Errorf("jurisdictions.reference CSV is required")
	}
	if c.Jurisdictions.File == "" && len(c.Jurisdictions.Names) == 0 {
		return fmt.Errorf("no jurisdictions given: set jurisdictions.file or jurisdictions.names")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required (or set OPENAI_API_KEY)")
	}
	if c.Text.ChunkSize <= 0 {
		return fmt.Errorf("text.chunk_size must be positive")
	}
	if c.Text.ChunkOverlap < 0 || c.Text.ChunkOverlap >= c.Text.ChunkSize {
		return fmt.Errorf("text.chunk_overlap must be in [0, chunk_size)")
	}
	for _, s := range c.Search.Strategies {
		switch s {
		case "search_engine_query", "crawl_jurisdiction_website", "load_known_local_docs":
		default:
			return fmt.Errorf("unknown search strategy %q", s)
		}
	}
	return nil
}

// JurisdictionNames collects the run's jurisdiction names from the list
// file and the inline names, deduplicated in order.
func (c *Config) JurisdictionNames() ([]string, error) {
	var names []string
	if c.Jurisdictions.File != "" {
		data, err := os.ReadFile(c.Jurisdictions.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read jurisdiction list: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			names = append(names, line)
		}
	}
	names = append(names, c.Jurisdictions.Names...)

	seen := make(map[string]struct{}, len(names))
	out := names[:0]
	for _, name := range names {
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
