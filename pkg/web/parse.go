package web

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// pdfMagic is the file signature every PDF starts with.
var pdfMagic = []byte("%PDF")

// ExtractPages turns raw document bytes into ordered text pages. The format
// is sniffed from the bytes first and the source extension second. HTML and
// other unrecognized text render as a single page.
func ExtractPages(ctx context.Context, source string, raw []byte) ([]string, bool, error) {
	switch {
	case bytes.HasPrefix(raw, pdfMagic):
		pages, err := extractPDF(ctx, raw)
		return pages, true, err
	case hasExtension(source, ".docx"):
		pages, err := extractDocx(raw)
		return pages, false, err
	case hasExtension(source, ".xlsx"):
		pages, err := extractXlsx(ctx, raw)
		return pages, false, err
	default:
		pages, err := extractHTML(source, raw)
		return pages, false, err
	}
}

func hasExtension(source, ext string) bool {
	u, err := url.Parse(source)
	if err == nil && u.Path != "" {
		source = u.Path
	}
	return strings.EqualFold(filepath.Ext(source), ext)
}

func extractPDF(ctx context.Context, raw []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var pages []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the document.
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}

func extractDocx(raw []byte) ([]string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOCX: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = stripXMLTags(content)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []string{content}, nil
}

// stripXMLTags flattens the raw WordprocessingML that the docx library
// returns into plain text.
func stripXMLTags(content string) string {
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractXlsx(ctx context.Context, raw []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XLSX: %w", err)
	}
	defer f.Close()

	var pages []string
	for _, sheetName := range f.GetSheetList() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var sheet strings.Builder
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				sheet.WriteString(line)
				sheet.WriteString("\n")
			}
		}
		if sheet.Len() > 0 {
			pages = append(pages, sheet.String())
		}
	}
	return pages, nil
}

func extractHTML(source string, raw []byte) ([]string, error) {
	pageURL, err := url.Parse(source)
	if err != nil {
		pageURL = &url.URL{}
	}

	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to extract readable content: %w", err)
	}

	converter := md.NewConverter(md.DomainFromURL(pageURL.String()), true, nil)
	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		// Fall back to the stripped text when markdown conversion chokes.
		markdown = article.TextContent
	}
	if strings.TrimSpace(markdown) == "" {
		markdown = article.TextContent
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, nil
	}
	return []string{markdown}, nil
}
