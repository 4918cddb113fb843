package extraction

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DefaultAdderCap is the largest believable static adder value, in feet.
// Extracted adders above this are discarded as hallucinated.
const DefaultAdderCap = 250

// Row is a single extracted ordinance record for one feature.
type Row struct {
	Feature      string   `mapstructure:"feature" json:"feature"`
	Value        *float64 `mapstructure:"value" json:"value"`
	Units        *string  `mapstructure:"units" json:"units"`
	Adder        *float64 `mapstructure:"adder" json:"adder"`
	MinDist      *float64 `mapstructure:"min_dist" json:"min_dist"`
	MaxDist      *float64 `mapstructure:"max_dist" json:"max_dist"`
	Summary      *string  `mapstructure:"summary" json:"summary"`
	Section      *string  `mapstructure:"section" json:"section"`
	Comment      *string  `mapstructure:"comment" json:"comment"`
	Quantitative bool     `mapstructure:"quantitative" json:"quantitative"`
}

// DecodeRow converts a raw LLM output map into a Row. String-typed numbers
// are coerced; keys outside the row schema are ignored.
func DecodeRow(output map[string]any) (Row, error) {
	var row Row
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &row,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Row{}, err
	}
	if err := dec.Decode(output); err != nil {
		return Row{}, fmt.Errorf("decoding ordinance row: %w", err)
	}
	return row, nil
}

// NormalizeOutputKeys standardizes multiplier dialog outputs. The dialogs
// ask for descriptive keys ("mult_value", "mult_type") because those parse
// more reliably; downstream code expects "value" and "units".
func NormalizeOutputKeys(output map[string]any) map[string]any {
	if output == nil {
		return map[string]any{}
	}
	mv, ok := output["mult_value"]
	if !ok {
		return output
	}
	output["value"] = mv
	delete(output, "mult_value")

	output["units"] = output["mult_type"]
	delete(output, "mult_type")
	return output
}

// SanitizeOutput clears stray units and summary entries when no ordinance
// value was actually extracted.
func SanitizeOutput(output map[string]any) map[string]any {
	if output == nil {
		return map[string]any{}
	}
	for _, key := range []string{"units", "summary"} {
		if output["value"] == nil && output[key] != nil {
			output[key] = nil
		}
	}
	return output
}

// CapAdder drops adder values above the cap. Values that large are almost
// always a multiplier result mistaken for an adder.
func CapAdder(output map[string]any, cap float64) map[string]any {
	if output == nil {
		return output
	}
	if adder, ok := asFloat(output["adder"]); ok && adder > cap {
		output["adder"] = nil
	}
	return output
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// NumOrdinances counts the populated ordinance cells across rows. A row
// contributes one count for each non-nil value, adder, min_dist, max_dist,
// and summary entry.
func NumOrdinances(rows []Row) int {
	count := 0
	for _, row := range rows {
		for _, v := range []any{row.Value, row.Adder, row.MinDist, row.MaxDist, row.Summary} {
			switch p := v.(type) {
			case *float64:
				if p != nil {
					count++
				}
			case *string:
				if p != nil {
					count++
				}
			}
		}
	}
	return count
}
