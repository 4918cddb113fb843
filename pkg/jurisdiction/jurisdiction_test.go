package jurisdiction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFullName(t *testing.T) {
	tests := []struct {
		name string
		j    Jurisdiction
		want string
	}{
		{
			"county",
			Jurisdiction{Type: TypeCounty, State: "Indiana", County: "Decatur"},
			"Decatur County, Indiana",
		},
		{
			"parish",
			Jurisdiction{Type: TypeParish, State: "Louisiana", County: "Caddo"},
			"Caddo Parish, Louisiana",
		},
		{
			"town in county",
			Jurisdiction{Type: TypeTown, State: "New York", County: "Oswego", Subdivision: "Palermo"},
			"Town of Palermo, Oswego County, New York",
		},
		{
			"city without county",
			Jurisdiction{Type: TypeCity, State: "Colorado", Subdivision: "Denver"},
			"City of Denver, Colorado",
		},
		{
			"state",
			Jurisdiction{Type: TypeState, State: "Vermont"},
			"Vermont",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.j.FullName())
		})
	}
}

func TestEqualityIsCaseInsensitive(t *testing.T) {
	a := Jurisdiction{Type: TypeCounty, State: "Indiana", County: "Decatur", Code: "18031"}
	b := Jurisdiction{Type: TypeCounty, State: "indiana", County: "DECATUR", Code: "other"}
	c := Jurisdiction{Type: TypeParish, State: "Indiana", County: "Decatur"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.Equal(t, a.Key(), b.Key())
}

const referenceCSV = `State,County,Subdivision,Jurisdiction Type,FIPS,Website
Indiana,Decatur,,county,18031,https://decaturcounty.in.gov
Louisiana,Caddo,,parish,22017,
New York,Oswego,Palermo,town,3635957,
Colorado,El Paso,,county,08041,
`

func TestLoadReference(t *testing.T) {
	jurisdictions, err := LoadReference(strings.NewReader(referenceCSV))
	require.NoError(t, err)
	require.Len(t, jurisdictions, 4)

	assert.Equal(t, "Decatur County, Indiana", jurisdictions[0].FullName())
	assert.Equal(t, "18031", jurisdictions[0].Code)
	assert.Equal(t, "https://decaturcounty.in.gov", jurisdictions[0].Website)
	assert.Equal(t, "Town of Palermo, Oswego County, New York", jurisdictions[2].FullName())
}

func TestLoadReferenceMissingState(t *testing.T) {
	_, err := LoadReference(strings.NewReader("County,FIPS\nDecatur,18031\n"))
	assert.Error(t, err)

	_, err = LoadReference(strings.NewReader("State,County\n,Decatur\n"))
	assert.Error(t, err)
}

func TestLoadReferenceInfersType(t *testing.T) {
	jurisdictions, err := LoadReference(strings.NewReader("State,County\nIndiana,Decatur\nVermont,\n"))
	require.NoError(t, err)
	assert.Equal(t, TypeCounty, jurisdictions[0].Type)
	assert.Equal(t, TypeState, jurisdictions[1].Type)
}

func TestMatch(t *testing.T) {
	reference, err := LoadReference(strings.NewReader(referenceCSV))
	require.NoError(t, err)

	matched, unmatched := Match(reference, []string{
		"decatur county, indiana",
		"El Paso, Colorado",
		"Nowhere County, Kansas",
	})
	require.Len(t, matched, 2)
	assert.Equal(t, "18031", matched[0].Code)
	assert.Equal(t, "08041", matched[1].Code)
	assert.Equal(t, []string{"Nowhere County, Kansas"}, unmatched)
}
