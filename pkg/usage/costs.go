package usage

// Rate is the dollar cost per token for a model.
type Rate struct {
	PromptPerToken   float64
	ResponsePerToken float64
}

// modelCosts maps model names to their published per-token prices. Models not
// listed here cost 0, which keeps cost reporting best-effort rather than a
// hard dependency on a complete price sheet.
var modelCosts = map[string]Rate{
	"gpt-4":               {PromptPerToken: 0.03 / 1000, ResponsePerToken: 0.06 / 1000},
	"gpt-4-32k":           {PromptPerToken: 0.06 / 1000, ResponsePerToken: 0.12 / 1000},
	"gpt-4-turbo":         {PromptPerToken: 0.01 / 1000, ResponsePerToken: 0.03 / 1000},
	"gpt-4o":              {PromptPerToken: 0.0025 / 1000, ResponsePerToken: 0.01 / 1000},
	"gpt-4o-mini":         {PromptPerToken: 0.00015 / 1000, ResponsePerToken: 0.0006 / 1000},
	"gpt-3.5-turbo":       {PromptPerToken: 0.0005 / 1000, ResponsePerToken: 0.0015 / 1000},
	"gpt-3.5-turbo-16k":   {PromptPerToken: 0.003 / 1000, ResponsePerToken: 0.004 / 1000},
}

// CostOf returns the per-token rates for a model, or the zero rate when the
// model is unknown.
func CostOf(model string) Rate {
	return modelCosts[model]
}
