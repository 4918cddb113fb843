package web

import (
	"context"
	"log/slog"
	"os"
)

// LoadKnownDocs builds documents from local files listed in a run manifest,
// typically ordinance PDFs collected by hand for jurisdictions whose
// websites defeat search and crawling.
func LoadKnownDocs(ctx context.Context, paths []string, split func(string) []string) []*Document {
	var out []*Document
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			slog.WarnContext(ctx, "failed to read known document",
				"path", path, "error", err)
			continue
		}
		pages, isPDF, err := ExtractPages(ctx, path, raw)
		if err != nil || len(pages) == 0 {
			slog.WarnContext(ctx, "failed to parse known document",
				"path", path, "error", err)
			continue
		}
		if split != nil && !isPDF && len(pages) == 1 {
			pages = split(pages[0])
		}
		doc := NewDocument(path, raw, pages)
		doc.IsPDF = isPDF
		out = append(out, doc)
	}
	return out
}
