package web

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/validation"
)

// Retrieval strategies, run in configured order until one yields a document
// that survives filtering.
type Strategy string

const (
	StrategySearch    Strategy = "search_engine_query"
	StrategyCrawl     Strategy = "crawl_jurisdiction_website"
	StrategyKnownDocs Strategy = "load_known_local_docs"
)

// ContentChecker decides whether a document is legal text about the target
// technology at the target scale, returning a keep verdict and a content
// score used for ranking. Implementations are technology-specific.
type ContentChecker interface {
	CheckContent(ctx context.Context, doc *Document) (bool, float64, error)
}

// Funnel retrieves and filters candidate ordinance documents for one
// jurisdiction.
type Funnel struct {
	Strategies     []Strategy
	QueryTemplates []string
	NumURLs        int

	Searcher *FallbackSearcher
	Fetcher  *Fetcher
	Crawler  *Crawler

	// KnownDocs maps a jurisdiction's casefolded full name to local file
	// paths.
	KnownDocs map[string][]string

	NewLocationValidator func(j jurisdiction.Jurisdiction) *validation.JurisdictionValidator
	Checker              ContentChecker
}

// Retrieve runs the configured strategies in order and returns the
// surviving documents, best first. An empty result means no strategy
// produced a document that passed both filters.
func (f *Funnel) Retrieve(ctx context.Context, j jurisdiction.Jurisdiction) ([]*Document, error) {
	strategies := f.Strategies
	if len(strategies) == 0 {
		strategies = []Strategy{StrategySearch}
	}

	for _, strategy := range strategies {
		candidates, err := f.runStrategy(ctx, strategy, j)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			slog.InfoContext(ctx, "retrieval strategy found no candidates",
				"strategy", strategy)
			continue
		}
		slog.InfoContext(ctx, "retrieved candidate documents",
			"strategy", strategy, "count", len(candidates))

		survivors, err := f.filter(ctx, j, candidates)
		if err != nil {
			return nil, err
		}
		if len(survivors) > 0 {
			SortDocuments(survivors)
			return survivors, nil
		}
		slog.InfoContext(ctx, "no candidates survived filtering",
			"strategy", strategy)
	}
	return nil, nil
}

func (f *Funnel) runStrategy(ctx context.Context, strategy Strategy, j jurisdiction.Jurisdiction) ([]*Document, error) {
	switch strategy {
	case StrategySearch:
		queries := FormatQueries(f.QueryTemplates, j.FullName())
		limit := f.NumURLs
		if limit <= 0 {
			limit = 5
		}
		urls := CollectURLs(ctx, f.Searcher, queries, limit)
		return FetchAll(ctx, f.Fetcher, urls), nil

	case StrategyCrawl:
		if j.Website == "" || f.Crawler == nil {
			return nil, nil
		}
		docs, err := f.Crawler.Crawl(ctx, j.Website)
		if err != nil {
			slog.WarnContext(ctx, "website crawl failed",
				"website", j.Website, "error", err)
		}
		return docs, nil

	case StrategyKnownDocs:
		paths := f.KnownDocs[lowerKey(j)]
		var split func(string) []string
		if f.Fetcher != nil {
			split = f.Fetcher.Split
		}
		return LoadKnownDocs(ctx, paths, split), nil

	default:
		return nil, fmt.Errorf("unknown retrieval strategy %q", strategy)
	}
}

func lowerKey(j jurisdiction.Jurisdiction) string {
	return strings.ToLower(j.FullName())
}

// filter applies the location vote and the content check, preserving the
// relative order of survivors.
func (f *Funnel) filter(ctx context.Context, j jurisdiction.Jurisdiction, docs []*Document) ([]*Document, error) {
	docs, err := f.filterLocation(ctx, j, docs)
	if err != nil {
		return nil, err
	}
	return f.filterContent(ctx, docs)
}

func (f *Funnel) filterLocation(ctx context.Context, j jurisdiction.Jurisdiction, docs []*Document) ([]*Document, error) {
	if f.NewLocationValidator == nil {
		return docs, nil
	}
	validator := f.NewLocationValidator(j)

	var out []*Document
	for _, doc := range docs {
		score, err := validator.Score(ctx, doc.Pages)
		if err != nil {
			return nil, err
		}
		doc.JurisdictionScore = score
		if score > validator.Threshold {
			out = append(out, doc)
		} else {
			slog.DebugContext(ctx, "document failed jurisdiction vote",
				"source", doc.Source, "score", score)
		}
	}
	return out, nil
}

func (f *Funnel) filterContent(ctx context.Context, docs []*Document) ([]*Document, error) {
	if f.Checker == nil {
		return docs, nil
	}

	var out []*Document
	for _, doc := range docs {
		keep, score, err := f.Checker.CheckContent(ctx, doc)
		if err != nil {
			return nil, err
		}
		doc.ContentScore = score
		if keep {
			out = append(out, doc)
		} else {
			slog.DebugContext(ctx, "document failed content check",
				"source", doc.Source)
		}
	}
	return out, nil
}
