package extraction

import (
	"strings"

	"github.com/renewmap/compass/pkg/utils"
)

// Default chunking parameters, in model tokens.
const (
	DefaultChunkSize    = 3000
	DefaultChunkOverlap = 300
)

// DefaultSeparators is the separator preference order for recursive
// splitting: paragraph breaks first, then lines, words, and finally
// individual characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// TextSplitter recursively splits text into chunks bounded by a token
// count. Pieces larger than the chunk size are re-split on progressively
// finer separators; small pieces are merged back together with overlap
// carried between consecutive chunks.
type TextSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string

	// Length measures a piece of text in tokens.
	Length func(string) int
}

// NewTextSplitter builds a splitter whose length function counts tokens
// for the given model's encoding.
func NewTextSplitter(model string, chunkSize, chunkOverlap int) (*TextSplitter, error) {
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		return nil, err
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &TextSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		Separators:   DefaultSeparators,
		Length:       counter.Count,
	}, nil
}

func (s *TextSplitter) length(text string) int {
	if s.Length == nil {
		return len(text)
	}
	return s.Length(text)
}

// Split breaks text into chunks of at most ChunkSize tokens.
func (s *TextSplitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	return s.split(text, seps)
}

func (s *TextSplitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = runePieces(text, 100)
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks []string
	var small []string
	for _, piece := range pieces {
		if s.length(piece) < s.ChunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			chunks = append(chunks, s.mergePieces(small, sep)...)
			small = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(small) > 0 {
		chunks = append(chunks, s.mergePieces(small, sep)...)
	}
	return chunks
}

// mergePieces greedily packs consecutive pieces into chunks up to the token
// budget, carrying ChunkOverlap tokens of trailing pieces into the next
// chunk.
func (s *TextSplitter) mergePieces(pieces []string, sep string) []string {
	sepLen := s.length(sep)

	var chunks []string
	var current []string
	total := 0
	for _, piece := range pieces {
		pieceLen := s.length(piece)
		if total+pieceLen+sepLen*len(current) > s.ChunkSize && len(current) > 0 {
			if chunk := joinPieces(current, sep); chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Drop leading pieces until the carried tail fits in
			// the overlap budget.
			for total > s.ChunkOverlap && len(current) > 0 {
				total -= s.length(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += pieceLen
	}
	if chunk := joinPieces(current, sep); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func joinPieces(pieces []string, sep string) string {
	return strings.TrimSpace(strings.Join(pieces, sep))
}

func runePieces(text string, size int) []string {
	runes := []rune(text)
	var pieces []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}
