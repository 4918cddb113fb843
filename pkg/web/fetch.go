package web

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/renewmap/compass/pkg/httpclient"
	"github.com/renewmap/compass/pkg/services"
)

// maxDocumentBytes caps a single fetched document.
const maxDocumentBytes = 50 << 20

// Fetcher turns a URL into a Document: plain HTTP first, the headless
// browser as a fallback for script-heavy pages, then format-sniffed text
// extraction on the CPU pool.
type Fetcher struct {
	Client  *httpclient.Client
	Browser *Browser
	Pool    *services.Pool

	// Split breaks single-page text (HTML renders as one page) into
	// chunks so downstream page-wise validation has units to work with.
	// Optional.
	Split func(text string) []string
}

// Fetch retrieves and parses one URL.
func (f *Fetcher) Fetch(ctx context.Context, target string) (*Document, error) {
	raw, err := f.download(ctx, target)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("no content at %q", target)
	}

	pages, isPDF, err := f.extract(ctx, target, raw)
	if err != nil {
		return nil, err
	}
	if f.Split != nil && !isPDF && len(pages) == 1 {
		pages = f.Split(pages[0])
	}

	doc := NewDocument(target, raw, pages)
	doc.IsPDF = isPDF
	return doc, nil
}

func (f *Fetcher) download(ctx context.Context, target string) ([]byte, error) {
	raw, err := f.httpGet(ctx, target)
	if err == nil {
		return raw, nil
	}
	if f.Browser == nil {
		return nil, err
	}

	slog.DebugContext(ctx, "plain fetch failed, retrying through browser",
		"url", target, "error", err)
	html, berr := f.Browser.HTML(ctx, target)
	if berr != nil {
		return nil, fmt.Errorf("fetch failed (%v) and browser fetch failed: %w", err, berr)
	}
	return []byte(html), nil
}

func (f *Fetcher) httpGet(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ordinance-research)")

	client := f.Client
	if client == nil {
		client = httpclient.New()
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
}

func (f *Fetcher) extract(ctx context.Context, target string, raw []byte) ([]string, bool, error) {
	type extracted struct {
		pages []string
		isPDF bool
	}

	if f.Pool == nil {
		pages, isPDF, err := ExtractPages(ctx, target, raw)
		return pages, isPDF, err
	}

	result, err := f.Pool.Submit(ctx, func() (any, error) {
		pages, isPDF, err := ExtractPages(ctx, target, raw)
		return extracted{pages: pages, isPDF: isPDF}, err
	})
	if err != nil {
		return nil, false, err
	}
	out := result.(extracted)
	return out.pages, out.isPDF, nil
}

// FetchAll fetches candidates concurrently, dropping failures and empty
// documents. Concurrency is bounded by the browser tab semaphore and the
// parse pool rather than here.
func FetchAll(ctx context.Context, fetcher *Fetcher, urls []string) []*Document {
	type slot struct {
		idx int
		doc *Document
	}
	results := make(chan slot, len(urls))
	for i, target := range urls {
		go func(i int, target string) {
			doc, err := fetcher.Fetch(ctx, target)
			if err != nil {
				slog.DebugContext(ctx, "failed to fetch candidate",
					"url", target, "error", err)
				results <- slot{idx: i}
				return
			}
			if doc.Empty() {
				results <- slot{idx: i}
				return
			}
			results <- slot{idx: i, doc: doc}
		}(i, target)
	}

	ordered := make([]*Document, len(urls))
	for range urls {
		s := <-results
		ordered[s.idx] = s.doc
	}

	var out []*Document
	seen := map[string]struct{}{}
	for _, doc := range ordered {
		if doc == nil {
			continue
		}
		// Identical bytes from different URLs collapse to one candidate.
		if _, ok := seen[doc.Checksum]; ok {
			continue
		}
		seen[doc.Checksum] = struct{}{}
		out = append(out, doc)
	}
	return out
}
