// Package wind holds the wind-energy-specific pieces of the extraction
// pipeline: the content heuristic, the narrowing stages, and the decision
// graphs that pull structured setback values out of ordinance text.
package wind

import "strings"

// Wind look-alike words stripped from text before the heuristic keyword
// scan.
var NotWindWords = []string{
	"windy",
	"winds",
	"window",
	"windiest",
	"windbreak",
	"windshield",
	"wind blow",
	"wind erosion",
	"rewind",
	"mini wecs",
	"swecs",
	"private wecs",
	"pwecs",
	"wind direction",
	"wind movement",
	"wind attribute",
	"wind runway",
	"wind load",
	"wind orient",
	"wind damage",
}

var (
	GoodWindKeywords = []string{"wind", "setback"}
	GoodWindAcronyms = []string{"wecs", "wes", "lwet", "uwet", "wef"}
	GoodWindPhrases  = []string{"wind energy conversion", "wind turbine", "wind tower"}
)

// Acronyms only count when they appear as standalone tokens, not inside
// longer words.
var acronymContexts = []string{
	" %s ",
	" %s\n",
	" %s.",
	"\n%s ",
	"\n%s.",
	"\n%s\n",
	"(%s ",
	" %s)",
}

// PossiblyMentionsWind performs a cheap keyword check for wind energy
// content. Look-alike words are stripped first, then keywords, standalone
// acronyms, and phrases are counted; the text passes when the count is
// strictly greater than the threshold.
func PossiblyMentionsWind(text string, matchCountThreshold int) bool {
	cleaned := strings.ToLower(text)
	for _, word := range NotWindWords {
		cleaned = strings.ReplaceAll(cleaned, word, "")
	}

	matches := countKeywordMatches(cleaned)
	matches += countAcronymMatches(cleaned)
	matches += countPhraseMatches(cleaned)
	return matches > matchCountThreshold
}

func countKeywordMatches(text string) int {
	count := 0
	for _, keyword := range GoodWindKeywords {
		if strings.Contains(text, keyword) {
			count++
		}
	}
	return count
}

func countAcronymMatches(text string) int {
	for _, context := range acronymContexts {
		count := 0
		for _, acronym := range GoodWindAcronyms {
			needle := strings.ReplaceAll(context, "%s", acronym)
			if strings.Contains(text, needle) {
				count++
			}
		}
		if count > 0 {
			return count
		}
	}
	return 0
}

func countPhraseMatches(text string) int {
	count := 0
	for _, phrase := range GoodWindPhrases {
		all := true
		for _, word := range strings.Split(phrase, " ") {
			if !strings.Contains(text, word) {
				all = false
				break
			}
		}
		if all {
			count++
		}
	}
	return count
}

// Heuristic adapts PossiblyMentionsWind to the document content filter.
type Heuristic struct {
	// Threshold is the strictly-greater-than match count bound.
	Threshold int
}

func (h Heuristic) Matches(text string) bool {
	return PossiblyMentionsWind(text, h.Threshold)
}

// DefaultHeuristic requires more than one keyword match.
func DefaultHeuristic() Heuristic { return Heuristic{Threshold: 1} }
