package process

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renewmap/compass/pkg/extraction"
	"github.com/renewmap/compass/pkg/extraction/wind"
	"github.com/renewmap/compass/pkg/jurisdiction"
	"github.com/renewmap/compass/pkg/web"
)

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }

func sampleResult() *Result {
	doc := web.NewDocument("https://example.com/ord.pdf", []byte("raw"), []string{"p1", "p2"})
	doc.Date = web.Date{Year: 2022, Month: 4, Day: 1}
	return &Result{
		Jurisdiction: jurisdiction.Jurisdiction{
			Type: jurisdiction.TypeCounty, State: "Indiana",
			County: "Decatur", Code: "18031",
		},
		Found:    true,
		Document: doc,
		Rows: []extraction.Row{
			{
				Feature: "roads", Quantitative: true,
				Value: fptr(1.1), Units: sptr("tip-height-multiplier"),
				MinDist: fptr(500), Summary: sptr("1.1x tip height"),
				Section: sptr("4.2"),
			},
			{Feature: "water", Quantitative: true},
			{Feature: "lighting", Summary: sptr("FAA lighting required"), Section: sptr("5.1")},
			{Feature: "signage"},
		},
		Districts: []wind.DistrictRow{
			{Feature: "permitted use districts", Districts: []string{"A-1"}, Summary: "permitted in A-1"},
			{Feature: "prohibited use districts"},
		},
	}
}

func parseCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return records
}

func TestBuildCSVsColumnOrder(t *testing.T) {
	quantitative, qualitative, err := BuildCSVs([]*Result{sampleResult()}, "2024-06-01")
	require.NoError(t, err)

	quant := parseCSV(t, quantitative)
	require.NotEmpty(t, quant)
	assert.Equal(t, []string{
		"state", "county", "subdivision", "jurisdiction_type", "FIPS",
		"feature", "value", "units", "adder", "min_dist", "max_dist",
		"summary", "ord_year", "last_updated", "section", "source",
	}, quant[0])

	qual := parseCSV(t, qualitative)
	require.NotEmpty(t, qual)
	assert.Equal(t, []string{
		"state", "county", "subdivision", "jurisdiction_type", "FIPS",
		"feature", "summary", "ord_year", "last_updated", "section", "source",
	}, qual[0])
}

func TestBuildCSVsRows(t *testing.T) {
	quantitative, qualitative, err := BuildCSVs([]*Result{sampleResult()}, "2024-06-01")
	require.NoError(t, err)

	quant := parseCSV(t, quantitative)
	// Header plus both quantitative rows, sorted by feature.
	require.Len(t, quant, 3)
	roads := quant[1]
	assert.Equal(t, []string{
		"Indiana", "Decatur", "", "county", "18031",
		"roads", "1.1", "tip-height-multiplier", "", "500", "",
		"1.1x tip height", "2022", "2024-06-01", "4.2",
		"https://example.com/ord.pdf",
	}, roads)
	assert.Equal(t, "water", quant[2][5])
	assert.Equal(t, "", quant[2][6], "missing value renders empty")

	qual := parseCSV(t, qualitative)
	// Header, the lighting summary, and the permitted-use district row.
	// Qualitative rows without a summary are dropped.
	require.Len(t, qual, 3)
	assert.Equal(t, "lighting", qual[1][5])
	assert.Equal(t, "FAA lighting required", qual[1][6])
	assert.Equal(t, "permitted use districts", qual[2][5])
}

func TestBuildCSVsSkipsMissingResults(t *testing.T) {
	notFound := &Result{Jurisdiction: jurisdiction.Jurisdiction{State: "Utah"}}
	quantitative, _, err := BuildCSVs([]*Result{nil, notFound, sampleResult()}, "2024-06-01")
	require.NoError(t, err)

	quant := parseCSV(t, quantitative)
	for _, row := range quant[1:] {
		assert.Equal(t, "Indiana", row[0])
	}
}

func TestBuildCSVsStableOrdering(t *testing.T) {
	a := sampleResult()
	b := sampleResult()
	b.Jurisdiction.County = "Box Elder"
	b.Jurisdiction.State = "Utah"

	quantitative, _, err := BuildCSVs([]*Result{a, b}, "2024-06-01")
	require.NoError(t, err)
	again, _, err := BuildCSVs([]*Result{b, a}, "2024-06-01")
	require.NoError(t, err)

	assert.Equal(t, string(quantitative), string(again))
}
