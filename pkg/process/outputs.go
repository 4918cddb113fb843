package process

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"

	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/jurisdiction"
)

// Combined CSV column orders. The quantitative file carries every numeric
// cell; the qualitative file is the summary-only subset.
var (
	QuantitativeColumns = []string{
		"state", "county", "subdivision", "jurisdiction_type", "FIPS",
		"feature", "value", "units", "adder", "min_dist", "max_dist",
		"summary", "ord_year", "last_updated", "section", "source",
	}
	QualitativeColumns = []string{
		"state", "county", "subdivision", "jurisdiction_type", "FIPS",
		"feature", "summary", "ord_year", "last_updated", "section", "source",
	}
)

// DocumentRecord is one retrieved document's manifest entry.
type DocumentRecord struct {
	Source        string  `json:"source"`
	OrdFilename   string  `json:"ord_filename,omitempty"`
	EffectiveYear int     `json:"effective_year,omitempty"`
	NumPages      int     `json:"num_pages"`
	Checksum      string  `json:"checksum"`
	FromOCR       bool    `json:"from_ocr"`
	NgramScore    float64 `json:"ngram_score"`
}

// JurisdictionRecord is one jurisdiction's entry in jurisdictions.json.
type JurisdictionRecord struct {
	FullName         string           `json:"full_name"`
	Found            bool             `json:"found"`
	Documents        []DocumentRecord `json:"documents"`
	Cost             float64          `json:"cost"`
	TotalTimeSeconds float64          `json:"total_time_seconds"`
}

func jurisdictionCells(j jurisdiction.Jurisdiction) []string {
	return []string{j.State, j.County, j.Subdivision, j.Type, j.Code}
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

func stringCell(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func yearCell(year int) string {
	if year <= 0 {
		return ""
	}
	return strconv.Itoa(year)
}

// quantitativeRecord renders one extracted row for the quantitative CSV.
func quantitativeRecord(res *Result, row extraction.Row, lastUpdated string) []string {
	cells := jurisdictionCells(res.Jurisdiction)
	return append(cells,
		row.Feature,
		floatCell(row.Value),
		stringCell(row.Units),
		floatCell(row.Adder),
		floatCell(row.MinDist),
		floatCell(row.MaxDist),
		stringCell(row.Summary),
		yearCell(res.OrdYear()),
		lastUpdated,
		stringCell(row.Section),
		res.Source(),
	)
}

// qualitativeRecord renders one summary-only row.
func qualitativeRecord(res *Result, feature, summary, section, lastUpdated string) []string {
	cells := jurisdictionCells(res.Jurisdiction)
	return append(cells,
		feature,
		summary,
		yearCell(res.OrdYear()),
		lastUpdated,
		section,
		res.Source(),
	)
}

// BuildCSVs renders the combined quantitative and qualitative CSV bodies
// from the found results. Rows are ordered by jurisdiction key then feature
// so re-runs produce byte-identical output.
func BuildCSVs(results []*Result, lastUpdated string) (quantitative, qualitative []byte, err error) {
	var found []*Result
	for _, res := range results {
		if res != nil && res.Found {
			found = append(found, res)
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].Jurisdiction.Key() < found[j].Jurisdiction.Key()
	})

	var quantRecords, qualRecords [][]string
	for _, res := range found {
		rows := append([]extraction.Row{}, res.Rows...)
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Feature < rows[j].Feature })
		for _, row := range rows {
			if row.Quantitative {
				quantRecords = append(quantRecords, quantitativeRecord(res, row, lastUpdated))
			} else if stringCell(row.Summary) != "" {
				qualRecords = append(qualRecords, qualitativeRecord(res,
					row.Feature, stringCell(row.Summary), stringCell(row.Section), lastUpdated))
			}
		}
		for _, district := range res.Districts {
			if len(district.Districts) == 0 && district.Summary == "" {
				continue
			}
			qualRecords = append(qualRecords, qualitativeRecord(res,
				district.Feature, district.Summary, district.Section, lastUpdated))
		}
	}

	quantitative, err = renderCSV(QuantitativeColumns, quantRecords)
	if err != nil {
		return nil, nil, err
	}
	qualitative, err = renderCSV(QualitativeColumns, qualRecords)
	if err != nil {
		return nil, nil, err
	}
	return quantitative, qualitative, nil
}

func renderCSV(header []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write CSV records: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
