package extraction

import (
	"context"

	"github.com/renewmap/compass/pkg/usage"
	"github.com/renewmap/compass/pkg/validation"
	"github.com/renewmap/compass/pkg/web"
)

const dateSystemMessage = "You extract the date of the legal document a " +
	"user gives you. Look for publication, adoption, amendment, or " +
	"effective dates in the text; prefer the most recent one. Return your " +
	"answer in JSON format. Your JSON file must include exactly three " +
	"keys: 'year', 'month', and 'day'. Each value should be an integer, " +
	"or `null` if the text does not state that part of the date. Do not " +
	"guess missing parts."

// DateExtractor pulls the document date from page text for ranking and for
// the ord_year output column.
type DateExtractor struct {
	Caller validation.StructuredCaller

	// MaxPages bounds how many pages are checked, front to back. Dates
	// almost always appear on the first page or two.
	MaxPages int
}

func NewDateExtractor(caller validation.StructuredCaller) *DateExtractor {
	return &DateExtractor{Caller: caller, MaxPages: 2}
}

// Extract returns the best date found in the document's leading pages. A
// zero Date means no date was found; partial dates are allowed.
func (e *DateExtractor) Extract(ctx context.Context, doc *web.Document) (web.Date, error) {
	limit := e.MaxPages
	if limit <= 0 || limit > len(doc.Pages) {
		limit = len(doc.Pages)
	}

	var date web.Date
	for _, page := range doc.Pages[:limit] {
		if page == "" {
			continue
		}
		out, err := e.Caller.Call(ctx, dateSystemMessage, page, usage.CategoryDateExtraction)
		if err != nil {
			return web.Date{}, err
		}
		candidate := web.Date{
			Year:  intField(out, "year"),
			Month: intField(out, "month"),
			Day:   intField(out, "day"),
		}
		if candidate.Year > 0 && candidate.Year > date.Year {
			date = candidate
		}
	}
	return date, nil
}

func intField(m map[string]any, key string) int {
	if f, ok := asFloat(m[key]); ok {
		return int(f)
	}
	return 0
}
