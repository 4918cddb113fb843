package wind

import "strings"

// SetbackFeature is one mutually-exclusive setback target. The aliases are
// spliced into prompts as the feature description; IgnoreAs is how the
// feature is named when other features tell the model to ignore it.
type SetbackFeature struct {
	ID            string
	Aliases       []string
	IgnoreAs      string
	Clarification string
}

// SetbackFeatures enumerates the setback targets parsed for every
// document. Structures and property line get a participating versus
// non-participating split downstream.
var SetbackFeatures = []SetbackFeature{
	{
		ID:       "structures",
		Aliases:  []string{"occupied dwellings", "occupied buildings", "residences"},
		IgnoreAs: "occupied dwellings",
	},
	{
		ID: "property line",
		Aliases: []string{
			"property lines", "lot lines", "facility perimeters",
			"parcels", "subdivisions",
		},
		IgnoreAs: "property lines",
		Clarification: "Dwelling units, structures, occupied buildings, " +
			"residences, and other buildings **are not equivalent** to " +
			"property lines or parcel boundaries unless the text " +
			"**explicitly** makes that connection. ",
	},
	{
		ID: "unoccupied structures",
		Aliases: []string{
			"unoccupied structures", "unoccupied buildings",
			"non-residential structures",
		},
		IgnoreAs: "unoccupied structures",
	},
	{
		ID:            "roads",
		Aliases:       []string{"roads"},
		IgnoreAs:      "roads",
		Clarification: "Roads may also be labeled as rights-of-way. ",
	},
	{
		ID:       "railroads",
		Aliases:  []string{"railroads"},
		IgnoreAs: "railroads",
	},
	{
		ID: "transmission",
		Aliases: []string{
			"overhead electrical transmission lines", "overhead utility lines",
			"utility easements", "utility lines", "power lines",
			"electrical lines", "transmission lines",
		},
		IgnoreAs: "transmission lines",
	},
	{
		ID:       "water",
		Aliases:  []string{"lakes", "reservoirs", "streams", "rivers", "wetlands"},
		IgnoreAs: "wetlands",
	},
}

// participatingOwnedType maps the split features to the noun used in the
// participating-owner dialog.
var participatingOwnedType = map[string]string{
	"structures":    "structure",
	"property line": "property",
}

// NumericRestrictions are the non-setback restrictions with numeric values.
var NumericRestrictions = map[string]string{
	"capacity":         "maximum rated capacity (in kW or MW) allowed for the system (turbine)",
	"noise":            "maximum noise level allowed",
	"maximum height":   "maximum turbine height allowed",
	"minimum lot size": "**minimum** lot, parcel, or tract size allowed",
	"maximum lot size": "**maximum** lot, parcel, or tract size allowed",
	"shadow flicker":   "maximum shadow flicker allowed",
	"blade clearance":  "minimum blade clearance allowed",
	"permitting fees":  "permitting fees",
}

// QualitativeRestrictions are extracted as summaries only.
var QualitativeRestrictions = map[string]string{
	"color":               "color or finish requirements",
	"decommissioning":     "decommissioning requirements",
	"lighting":            "lighting requirements",
	"prohibitions":        "prohibitions, moratoria, or bans",
	"climbing prevention": "climbing prevention requirements",
	"signage":             "signage requirements",
	"soil":                "soil, erosion, and/or sediment control requirements",
}

// Standard-unit reminders for restrictions whose units the model tends to
// improvise.
var unitClarifications = map[string]string{
	"noise": "For the purposes of this extraction, assume the standard " +
		"units for noise are 'dBA'. ",
	"shadow flicker": "For the purposes of this extraction, assume the " +
		"standard units for shadow flicker are 'hr/year'. ",
	"minimum lot size": "Minimum lot size should **always** be specified " +
		"as an area value. ",
	"maximum lot size": "Maximum lot size should **always** be specified " +
		"as an area value. ",
	"permitting fees": "For the purposes of this extraction, assume the " +
		"standard units for permitting fees are '$'. ",
}

var restrictionClarifications = map[string]string{
	"shadow flicker": "If the text prohibits shadow, treat this as a max " +
		"value of 0 hours per year. ",
}

// Phrase renders the feature description for prompts, e.g.
// "occupied dwellings, occupied buildings, or residences".
func (f SetbackFeature) Phrase() string {
	return oxfordJoin(f.Aliases, "or")
}

// IgnorePhrase lists every other feature's ignore name.
func (f SetbackFeature) IgnorePhrase() string {
	var others []string
	for _, other := range SetbackFeatures {
		if other.ID != f.ID {
			others = append(others, other.IgnoreAs)
		}
	}
	return oxfordJoin(others, "or")
}

// Bindings returns the prompt bindings for this feature's dialogs.
func (f SetbackFeature) Bindings(tech string) map[string]any {
	return map[string]any{
		"feature":                f.Phrase(),
		"feature_id":             f.ID,
		"ignore_features":        f.IgnorePhrase(),
		"feature_clarifications": f.Clarification,
		"tech":                   tech,
	}
}

func oxfordJoin(items []string, conj string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " " + conj + " " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", " + conj + " " + items[len(items)-1]
}

// EmptyRows returns the placeholder rows emitted when no ordinance is
// found for a feature. Split features yield both the participating and
// non-participating rows so output shape stays fixed.
func EmptyRows(featureID string) []map[string]any {
	if _, split := participatingOwnedType[featureID]; split {
		return []map[string]any{
			{"feature": featureID + " (participating)"},
			{"feature": featureID + " (non-participating)"},
		}
	}
	return []map[string]any{{"feature": featureID}}
}
