package jurisdiction

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Reference CSV column headers, matched casefolded.
const (
	colState       = "state"
	colCounty      = "county"
	colSubdivision = "subdivision"
	colType        = "jurisdiction type"
	colFIPS        = "fips"
	colWebsite     = "website"
)

// LoadReferenceFile reads the jurisdiction reference CSV from disk.
func LoadReferenceFile(path string) ([]Jurisdiction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open jurisdiction reference: %w", err)
	}
	defer f.Close()
	return LoadReference(f)
}

// LoadReference parses the reference CSV. The State column is required;
// County, Subdivision, Jurisdiction Type, FIPS, and Website are optional.
// Rows with a blank state are rejected.
func LoadReference(r io.Reader) ([]Jurisdiction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read reference header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols[colState]; !ok {
		return nil, fmt.Errorf("jurisdiction reference is missing the State column")
	}

	field := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	var out []Jurisdiction
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read reference row %d: %w", line, err)
		}

		j := Jurisdiction{
			State:       field(row, colState),
			County:      field(row, colCounty),
			Subdivision: field(row, colSubdivision),
			Type:        strings.ToLower(field(row, colType)),
			Code:        field(row, colFIPS),
			Website:     field(row, colWebsite),
		}
		if j.State == "" {
			return nil, fmt.Errorf("reference row %d has no state", line)
		}
		if j.Type == "" {
			j.Type = inferType(j)
		}
		out = append(out, j)
	}
	return out, nil
}

func inferType(j Jurisdiction) string {
	switch {
	case j.Subdivision != "":
		return TypeOther
	case j.County != "":
		return TypeCounty
	default:
		return TypeState
	}
}

// Match joins user-supplied names against the reference by casefolded full
// name, also accepting the bare "name, state" form for counties. Unmatched
// names are returned separately so the caller can log them.
func Match(reference []Jurisdiction, names []string) (matched []Jurisdiction, unmatched []string) {
	byName := make(map[string]Jurisdiction, len(reference)*2)
	for _, j := range reference {
		byName[strings.ToLower(j.FullName())] = j
		if j.Type == TypeCounty || j.Type == TypeParish {
			short := fmt.Sprintf("%s, %s", j.County, j.State)
			byName[strings.ToLower(short)] = j
		}
	}

	for _, name := range names {
		j, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			unmatched = append(unmatched, name)
			continue
		}
		matched = append(matched, j)
	}
	return matched, unmatched
}
