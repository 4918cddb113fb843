package web

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/renewmap/compass/pkg/validation"
)

// Crawler walks a jurisdiction website looking for ordinance documents. It
// is a best-first BFS: outgoing links are scored by keyword weight, links
// under the floor are dropped, and the highest-scoring frontier entry is
// visited next.
type Crawler struct {
	Fetcher *Fetcher

	// MaxPages bounds the number of pages visited.
	MaxPages int

	// Keywords maps lowercase substrings to link-score weights.
	Keywords map[string]float64

	// ScoreFloor drops links scoring below it.
	ScoreFloor float64

	// DocHeuristic keeps only pages whose text looks like ordinance
	// material.
	DocHeuristic validation.Heuristic

	// Enough, when set, stops the crawl early once the collected
	// documents satisfy it.
	Enough func(docs []*Document) bool
}

type scoredLink struct {
	target string
	score  float64
}

// Crawl walks the site starting at startURL and returns candidate
// documents. Off-host links are followed only when they point directly at a
// document file.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]*Document, error) {
	start, err := url.Parse(startURL)
	if err != nil {
		return nil, err
	}

	maxPages := c.MaxPages
	if maxPages <= 0 {
		maxPages = 100
	}

	visited := map[string]struct{}{}
	frontier := []scoredLink{{target: startURL, score: 1}}
	var docs []*Document

	for len(frontier) > 0 && len(visited) < maxPages {
		if ctx.Err() != nil {
			return docs, ctx.Err()
		}

		sort.SliceStable(frontier, func(i, j int) bool {
			return frontier[i].score > frontier[j].score
		})
		next := frontier[0]
		frontier = frontier[1:]

		if _, ok := visited[next.target]; ok {
			continue
		}
		visited[next.target] = struct{}{}

		raw, err := c.Fetcher.httpGet(ctx, next.target)
		if err != nil {
			slog.DebugContext(ctx, "crawl fetch failed",
				"url", next.target, "error", err)
			continue
		}

		pages, isPDF, err := ExtractPages(ctx, next.target, raw)
		if err != nil || len(pages) == 0 {
			continue
		}

		doc := NewDocument(next.target, raw, pages)
		doc.IsPDF = isPDF
		if c.DocHeuristic == nil || c.DocHeuristic.Matches(doc.Text()) {
			docs = append(docs, doc)
			if c.Enough != nil && c.Enough(docs) {
				return docs, nil
			}
		}

		if isPDF {
			continue
		}
		for _, link := range c.scoreLinks(start, next.target, raw) {
			if _, ok := visited[link.target]; !ok {
				frontier = append(frontier, link)
			}
		}
	}
	return docs, nil
}

func (c *Crawler) scoreLinks(site *url.URL, pageURL string, raw []byte) []scoredLink {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var out []scoredLink
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		return nil
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if link, ok := c.scoreAnchor(site, base, n); ok {
				out = append(out, link)
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

func (c *Crawler) scoreAnchor(site, base *url.URL, n *html.Node) (scoredLink, bool) {
	var href string
	for _, attr := range n.Attr {
		if attr.Key == "href" {
			href = attr.Val
			break
		}
	}
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "javascript:") {
		return scoredLink{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return scoredLink{}, false
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return scoredLink{}, false
	}

	target := resolved.String()
	isDocLink := hasExtension(target, ".pdf") ||
		hasExtension(target, ".docx") || hasExtension(target, ".xlsx")
	if resolved.Host != site.Host && !isDocLink {
		return scoredLink{}, false
	}

	haystack := strings.ToLower(target + " " + anchorText(n))
	var score float64
	for keyword, weight := range c.Keywords {
		if strings.Contains(haystack, keyword) {
			score += weight
		}
	}
	if isDocLink {
		score++
	}
	if score < c.ScoreFloor {
		return scoredLink{}, false
	}
	return scoredLink{target: target, score: score}, true
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
