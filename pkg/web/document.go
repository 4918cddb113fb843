// Package web retrieves candidate ordinance documents for a jurisdiction:
// search engine queries, website crawling, and known local files, followed by
// location and content filtering.
package web

import (
	"sort"
	"strings"

	"github.com/renewmap/compass/pkg/utils"
)

// Attribute keys stamped onto documents by later pipeline stages.
const (
	AttrOrdinanceText       = "ordinance_text"
	AttrEnergySystemsText   = "energy_systems_text"
	AttrWindEnergyText      = "wind_energy_systems_text"
	AttrLargeWindEnergyText = "large_wind_energy_systems_text"
	AttrCleanedText         = "cleaned_ordinance_text"
	AttrOrdinanceValues     = "ordinance_values"
	AttrPermittedDistricts  = "permitted_use_districts_text"
	AttrContainmentScore    = "containment_score"
	AttrNumOrdinances       = "num_ordinances_in_doc"
	AttrCachePath           = "cache_path"
)

// Date is a possibly-partial document date; zero fields are unknown.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Document is a fetched blob of text split into ordered pages plus an
// additive attribute mapping enriched by each pipeline stage.
type Document struct {
	Source   string
	Raw      []byte
	Pages    []string
	IsPDF    bool
	FromOCR  bool
	Checksum string
	Date     Date

	// Filter scores filled in by the retrieval funnel.
	JurisdictionScore float64
	ContentScore      float64

	Attrs map[string]any
}

// NewDocument builds a document from raw bytes split into pages. The
// checksum is stamped immediately so cached copies can be deduplicated.
func NewDocument(source string, raw []byte, pages []string) *Document {
	return &Document{
		Source:   source,
		Raw:      raw,
		Pages:    pages,
		Checksum: utils.Checksum(raw),
		Attrs:    map[string]any{},
	}
}

// Text returns the full document text.
func (d *Document) Text() string {
	return strings.Join(d.Pages, "\n")
}

// Empty reports whether the document has no usable text.
func (d *Document) Empty() bool {
	return strings.TrimSpace(d.Text()) == ""
}

// SetAttr stamps a stage output onto the document.
func (d *Document) SetAttr(key string, value any) {
	if d.Attrs == nil {
		d.Attrs = map[string]any{}
	}
	d.Attrs[key] = value
}

// StringAttr reads a string attribute, returning "" when missing.
func (d *Document) StringAttr(key string) string {
	if d.Attrs == nil {
		return ""
	}
	s, _ := d.Attrs[key].(string)
	return s
}

// sortKey orders candidate documents best-first. Newer documents beat older
// ones, PDFs beat scraped pages, better filter scores beat worse, and on a
// full tie the shorter document wins.
func sortKey(d *Document) []float64 {
	return []float64{
		float64(d.Date.Year),
		boolToFloat(d.IsPDF),
		d.JurisdictionScore,
		d.ContentScore,
		-float64(len(d.Text())),
		float64(d.Date.Month),
		float64(d.Date.Day),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SortDocuments orders docs best-first, in place, using a stable sort so
// retrieval order breaks exact ties.
func SortDocuments(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := sortKey(docs[i]), sortKey(docs[j])
		for k := range a {
			if a[k] != b[k] {
				return a[k] > b[k]
			}
		}
		return false
	})
}
