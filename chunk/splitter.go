// Package chunk splits extracted document text into overlapping chunks
// sized for vector embedding.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators order matters: paragraph break, line break, Japanese
// full stop, Latin full stop, space, then character-level as the last resort.
var DefaultSeparators = []string{"\n\n", "\n", "。", ".", " ", ""}

// Splitter is a recursive character text splitter. It splits on the first
// separator present in the text, recurses into pieces that are still too
// large with the remaining separators, and merges small pieces back together
// with the configured overlap. Lengths are measured in runes.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	return &Splitter{ChunkSize: size, ChunkOverlap: overlap, Separators: DefaultSeparators}
}

func (s *Splitter) Split(text string) []string {
	seps := s.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	chunks := s.split(text, seps)
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, cand := range separators {
		if cand == "" || strings.Contains(text, cand) {
			sep = cand
			rest = separators[i+1:]
			break
		}
	}

	var splits []string
	if sep == "" {
		for _, r := range text {
			splits = append(splits, string(r))
		}
	} else {
		splits = strings.Split(text, sep)
	}

	var chunks []string
	var good []string
	for _, piece := range splits {
		if piece == "" {
			continue
		}
		if utf8.RuneCountInString(piece) < s.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			chunks = append(chunks, s.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.split(piece, rest)...)
		}
	}
	if len(good) > 0 {
		chunks = append(chunks, s.merge(good, sep)...)
	}
	return chunks
}

// merge joins consecutive small splits into chunks no longer than ChunkSize,
// carrying ChunkOverlap runes of trailing context into the next chunk.
func (s *Splitter) merge(splits []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	var chunks []string
	var current []string
	total := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		doc := strings.TrimSpace(strings.Join(current, sep))
		if doc != "" {
			chunks = append(chunks, doc)
		}
	}

	for _, piece := range splits {
		l := utf8.RuneCountInString(piece)
		extra := 0
		if len(current) > 0 {
			extra = sepLen
		}
		if total+l+extra > s.ChunkSize && len(current) > 0 {
			flush()
			// drop leading pieces until the retained tail fits the overlap
			for total > s.ChunkOverlap || (total+l+extra > s.ChunkSize && total > 0) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
				if len(current) == 0 {
					break
				}
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, piece)
		total += l
	}
	flush()
	return chunks
}
