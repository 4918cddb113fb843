package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"golang.org/x/net/html"

	"github.com/renewmap/compass/pkg/httpclient"
)

// SearchEngine returns result URLs for a query.
type SearchEngine interface {
	Name() string
	Search(ctx context.Context, query string) ([]string, error)
}

// FormatQueries substitutes the jurisdiction's full name into the query
// templates.
func FormatQueries(templates []string, jurisdictionName string) []string {
	out := make([]string, 0, len(templates))
	for _, t := range templates {
		out = append(out, strings.ReplaceAll(t, "{jurisdiction}", jurisdictionName))
	}
	return out
}

// FallbackSearcher tries engines in order until one returns results. An
// engine that errors or comes back empty falls through to the next.
type FallbackSearcher struct {
	Engines []SearchEngine
}

func (s *FallbackSearcher) Search(ctx context.Context, query string) ([]string, error) {
	var lastErr error
	for _, engine := range s.Engines {
		urls, err := engine.Search(ctx, query)
		if err != nil {
			slog.WarnContext(ctx, "search engine failed",
				"engine", engine.Name(), "query", query, "error", err)
			lastErr = err
			continue
		}
		if len(urls) > 0 {
			return urls, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all search engines failed: %w", lastErr)
	}
	return nil, nil
}

// CollectURLs runs every query through the searcher and returns up to limit
// unique URLs, preserving discovery order.
func CollectURLs(ctx context.Context, searcher *FallbackSearcher, queries []string, limit int) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, query := range queries {
		if len(out) >= limit {
			break
		}
		urls, err := searcher.Search(ctx, query)
		if err != nil {
			slog.WarnContext(ctx, "search query failed", "query", query, "error", err)
			continue
		}
		for _, u := range urls {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// DuckDuckGoEngine queries the HTML endpoint, which needs no API key or
// browser.
type DuckDuckGoEngine struct {
	Client *httpclient.Client
}

func (e *DuckDuckGoEngine) Name() string { return "duckduckgo" }

func (e *DuckDuckGoEngine) Search(ctx context.Context, query string) ([]string, error) {
	endpoint := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ordinance-research)")

	client := e.Client
	if client == nil {
		client = httpclient.New()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseResultLinks(string(body)), nil
}

// parseResultLinks pulls result anchors out of the DuckDuckGo HTML page and
// unwraps its redirect links.
func parseResultLinks(page string) []string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href, class string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "href":
					href = attr.Val
				case "class":
					class = attr.Val
				}
			}
			if strings.Contains(class, "result__a") && href != "" {
				if target := unwrapRedirect(href); target != "" {
					out = append(out, target)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func unwrapRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

// GoogleBrowserEngine scrapes Google results through the shared headless
// browser, for when the HTML endpoints are blocked.
type GoogleBrowserEngine struct {
	Browser *Browser
}

func (e *GoogleBrowserEngine) Name() string { return "google" }

func (e *GoogleBrowserEngine) Search(ctx context.Context, query string) ([]string, error) {
	endpoint := "https://www.google.com/search?q=" + url.QueryEscape(query)

	var out []string
	err := e.Browser.WithPage(ctx, endpoint, func(page *rod.Page) error {
		anchors, err := page.Elements("a")
		if err != nil {
			return err
		}
		for _, anchor := range anchors {
			href, err := anchor.Attribute("href")
			if err != nil || href == nil {
				continue
			}
			target := *href
			if !strings.HasPrefix(target, "http") {
				continue
			}
			if u, err := url.Parse(target); err == nil &&
				!strings.Contains(u.Host, "google.") {
				out = append(out, target)
			}
		}
		return nil
	})
	return out, err
}
