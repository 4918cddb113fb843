package extraction

import (
	"regexp"
	"strings"
)

// Common English words excluded from n-gram comparisons. Sentence n-grams
// built from ordinance text should compare on the substantive terms only.
var stopwords = map[string]struct{}{
	"a": {}, "about": {}, "above": {}, "after": {}, "again": {}, "against": {},
	"all": {}, "am": {}, "an": {}, "and": {}, "any": {}, "are": {}, "as": {},
	"at": {}, "be": {}, "because": {}, "been": {}, "before": {}, "being": {},
	"below": {}, "between": {}, "both": {}, "but": {}, "by": {}, "can": {},
	"did": {}, "do": {}, "does": {}, "doing": {}, "down": {}, "during": {},
	"each": {}, "few": {}, "for": {}, "from": {}, "further": {}, "had": {},
	"has": {}, "have": {}, "having": {}, "he": {}, "her": {}, "here": {},
	"hers": {}, "him": {}, "his": {}, "how": {}, "i": {}, "if": {}, "in": {},
	"into": {}, "is": {}, "it": {}, "its": {}, "just": {}, "me": {},
	"more": {}, "most": {}, "my": {}, "no": {}, "nor": {}, "not": {},
	"now": {}, "of": {}, "off": {}, "on": {}, "once": {}, "only": {},
	"or": {}, "other": {}, "our": {}, "out": {}, "over": {}, "own": {},
	"same": {}, "she": {}, "should": {}, "so": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "the": {}, "their": {}, "theirs": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "to": {}, "too": {},
	"under": {}, "until": {}, "up": {}, "very": {}, "was": {}, "we": {},
	"were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "who": {}, "whom": {}, "why": {}, "will": {}, "with": {},
	"you": {}, "your": {}, "yours": {},
}

// Separator-style punctuation dropped during tokenization. Emphatic marks
// are kept since they carry signal in legal text comparisons.
var droppedPunct = map[string]struct{}{
	",": {}, ".": {}, ";": {}, ":": {}, "(": {}, ")": {}, "[": {}, "]": {},
	`"`: {}, "'": {}, "`": {},
}

var (
	sentencePattern = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	tokenPattern    = regexp.MustCompile(`[A-Za-z0-9']+|[^\sA-Za-z0-9]`)
)

func keepWord(word string) bool {
	if _, ok := droppedPunct[word]; ok {
		return false
	}
	_, stop := stopwords[strings.ToLower(word)]
	return !stop
}

func filteredWords(sentence string) []string {
	var words []string
	for _, tok := range tokenPattern.FindAllString(sentence, -1) {
		if keepWord(tok) {
			words = append(words, strings.ToLower(tok))
		}
	}
	return words
}

func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[0]]); s != "" {
			sentences = append(sentences, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// SentenceNgrams converts text into per-sentence n-grams over the filtered
// word stream. N-grams never span sentence boundaries.
func SentenceNgrams(text string, n int) []string {
	var grams []string
	for _, sentence := range splitSentences(text) {
		words := filteredWords(sentence)
		for i := 0; i+n <= len(words); i++ {
			grams = append(grams, strings.Join(words[i:i+n], " "))
		}
	}
	return grams
}

// SentenceNgramContainment returns the fraction of sentence n-grams in the
// test text that also appear in the original text. Duplicate n-grams in the
// test text are counted individually. Returns 0 when either side produces
// no n-grams.
func SentenceNgramContainment(original, test string, n int) float64 {
	originalSet := map[string]struct{}{}
	for _, g := range SentenceNgrams(original, n) {
		originalSet[g] = struct{}{}
	}
	testGrams := SentenceNgrams(test, n)
	if len(originalSet) == 0 || len(testGrams) == 0 {
		return 0.0
	}

	matched := 0
	for _, g := range testGrams {
		if _, ok := originalSet[g]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(testGrams))
}
