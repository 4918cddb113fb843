package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeOutputKeys(t *testing.T) {
	t.Run("renames multiplier keys", func(t *testing.T) {
		out := NormalizeOutputKeys(map[string]any{
			"mult_value": 1.5,
			"mult_type":  "tip-height-multiplier",
			"summary":    "1.5x tip height",
		})
		assert.Equal(t, 1.5, out["value"])
		assert.Equal(t, "tip-height-multiplier", out["units"])
		assert.NotContains(t, out, "mult_value")
		assert.NotContains(t, out, "mult_type")
	})

	t.Run("static output untouched", func(t *testing.T) {
		out := NormalizeOutputKeys(map[string]any{"value": 1000.0, "units": "feet"})
		assert.Equal(t, 1000.0, out["value"])
		assert.Equal(t, "feet", out["units"])
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Empty(t, NormalizeOutputKeys(nil))
	})
}

func TestSanitizeOutput(t *testing.T) {
	out := SanitizeOutput(map[string]any{
		"value":   nil,
		"units":   "feet",
		"summary": "a summary with no value",
	})
	assert.Nil(t, out["units"])
	assert.Nil(t, out["summary"])

	out = SanitizeOutput(map[string]any{"value": 500.0, "units": "feet", "summary": "kept"})
	assert.Equal(t, "feet", out["units"])
	assert.Equal(t, "kept", out["summary"])
}

func TestCapAdder(t *testing.T) {
	out := CapAdder(map[string]any{"adder": 1000.0}, DefaultAdderCap)
	assert.Nil(t, out["adder"])

	out = CapAdder(map[string]any{"adder": 110.0}, DefaultAdderCap)
	assert.Equal(t, 110.0, out["adder"])

	out = CapAdder(map[string]any{"adder": nil}, DefaultAdderCap)
	assert.Nil(t, out["adder"])
}

func TestDecodeRow(t *testing.T) {
	row, err := DecodeRow(map[string]any{
		"feature":      "structures (participating)",
		"value":        1.1,
		"units":        "tip-height-multiplier",
		"adder":        nil,
		"min_dist":     500.0,
		"summary":      "1.1x tip height, at least 500 ft",
		"quantitative": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "structures (participating)", row.Feature)
	require.NotNil(t, row.Value)
	assert.Equal(t, 1.1, *row.Value)
	require.NotNil(t, row.MinDist)
	assert.Equal(t, 500.0, *row.MinDist)
	assert.Nil(t, row.Adder)
	assert.True(t, row.Quantitative)
}

func TestNumOrdinances(t *testing.T) {
	v := 1.1
	s := "summary"
	rows := []Row{
		{Feature: "roads"},
		{Feature: "structures", Value: &v, Summary: &s},
		{Feature: "noise", Value: &v},
	}
	assert.Equal(t, 3, NumOrdinances(rows))
	assert.Equal(t, 0, NumOrdinances(nil))
}
