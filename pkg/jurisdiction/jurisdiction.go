// Package jurisdiction models the administrative areas the pipeline
// processes and loads them from the reference CSV.
package jurisdiction

import (
	"fmt"
	"strings"
)

// Jurisdiction types. Subdivision types below County nest inside a county
// when one is present.
const (
	TypeState    = "state"
	TypeCounty   = "county"
	TypeParish   = "parish"
	TypeCity     = "city"
	TypeTown     = "town"
	TypeBorough  = "borough"
	TypeTownship = "township"
	TypeGore     = "gore"
	TypeOther    = "other"
)

// Jurisdiction identifies one administrative area. Code is typically a FIPS
// code and is unique per jurisdiction.
type Jurisdiction struct {
	Type        string
	State       string
	County      string
	Subdivision string
	Code        string
	Website     string
}

// FullName renders the stable display name, e.g. "Decatur County, Indiana"
// or "Town of Palermo, Oswego County, New York".
func (j Jurisdiction) FullName() string {
	switch j.Type {
	case TypeState, "":
		return j.State
	case TypeCounty:
		return fmt.Sprintf("%s County, %s", j.County, j.State)
	case TypeParish:
		return fmt.Sprintf("%s Parish, %s", j.County, j.State)
	default:
		prefix := fmt.Sprintf("%s of %s", titleCase(j.Type), j.Subdivision)
		if j.County != "" {
			return fmt.Sprintf("%s, %s County, %s", prefix, j.County, j.State)
		}
		return fmt.Sprintf("%s, %s", prefix, j.State)
	}
}

func (j Jurisdiction) String() string { return j.FullName() }

// CountyPhrase renders the county part alone, e.g. "Decatur County" or
// "Caddo Parish".
func (j Jurisdiction) CountyPhrase() string {
	if j.County == "" {
		return ""
	}
	if j.Type == TypeParish {
		return j.County + " Parish"
	}
	return j.County + " County"
}

// SubdivisionPhrase renders the subdivision part alone, e.g.
// "Town of Palermo".
func (j Jurisdiction) SubdivisionPhrase() string {
	if j.Subdivision == "" {
		return ""
	}
	return fmt.Sprintf("%s of %s", titleCase(j.Type), j.Subdivision)
}

// Key is the casefolded identity used for equality and joins.
func (j Jurisdiction) Key() string {
	return strings.ToLower(strings.Join([]string{j.Type, j.State, j.County, j.Subdivision}, "|"))
}

// Equal treats two jurisdictions as the same area regardless of case.
func (j Jurisdiction) Equal(other Jurisdiction) bool {
	return j.Key() == other.Key()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
