// Package chunker splits documents into overlapping chunks.
package chunker

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"ragchat/internal/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Splitter cuts text into chunks of at most chunkSize characters. Every
// chunk after the first starts with the last overlap characters of its
// predecessor. Cuts prefer a paragraph, line, sentence or word boundary
// found within the lookback window before the size limit.
type Splitter struct {
	chunkSize int
	overlap   int
	lookback  int
}

// Option configures the splitter.
type Option func(*Splitter)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(s *Splitter) {
		if size > 0 {
			s.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		if overlap >= 0 {
			s.overlap = overlap
		}
	}
}

// WithLookback sets how far back from the size limit a boundary is searched.
func WithLookback(n int) Option {
	return func(s *Splitter) {
		if n >= 0 {
			s.lookback = n
		}
	}
}

// New creates a splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		lookback:  -1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.chunkSize {
		s.overlap = s.chunkSize / 4
	}
	if s.lookback < 0 {
		s.lookback = s.chunkSize / 5
	}
	return s
}

// ChunkSize returns the effective chunk size.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// Overlap returns the effective overlap after clamping.
func (s *Splitter) Overlap() int { return s.overlap }

// Split chunks every document, preserving document order.
func (s *Splitter) Split(docs []domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for _, d := range docs {
		out = append(out, s.Chunk(d)...)
	}
	return out
}

// Chunk splits a single document. Blank documents produce no chunks.
func (s *Splitter) Chunk(doc domain.Document) []domain.Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}
	runes := []rune(doc.Content)
	n := len(runes)

	var chunks []domain.Chunk
	start, prevEnd := 0, 0
	for {
		end := start + s.chunkSize
		if end >= n {
			end = n
		} else {
			end = s.breakPoint(runes, start, end)
		}
		overlap := 0
		if len(chunks) > 0 {
			overlap = prevEnd - start
			// Nothing new but trailing whitespace.
			if end == n && strings.TrimSpace(string(runes[prevEnd:end])) == "" {
				break
			}
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: doc.ID,
			ChunkID:    uuid.NewString(),
			Text:       string(runes[start:end]),
			Index:      len(chunks),
			Overlap:    overlap,
			Source:     doc.Source,
		})
		if end == n {
			break
		}
		prevEnd = end
		start = end - s.overlap
	}
	return chunks
}

// breakPoint returns the cut position for a chunk starting at start whose
// hard limit is end. The cut always leaves more than overlap characters so
// the next chunk advances.
func (s *Splitter) breakPoint(r []rune, start, end int) int {
	lo := end - s.lookback
	if floor := start + s.overlap + 1; lo < floor {
		lo = floor
	}
	if lo > end {
		return end
	}
	for _, isBoundary := range boundaries {
		for p := end; p >= lo; p-- {
			if isBoundary(r, p) {
				return p
			}
		}
	}
	return end
}

// boundaries are checked in preference order; each reports whether a cut
// right before position p ends a natural unit.
var boundaries = []func(r []rune, p int) bool{
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	func(r []rune, p int) bool { return p >= 1 && r[p-1] == '\n' },
	isSentenceEnd,
	func(r []rune, p int) bool { return p >= 1 && unicode.IsSpace(r[p-1]) },
}

func isSentenceEnd(r []rune, p int) bool {
	if p < 1 {
		return false
	}
	switch r[p-1] {
	case '。', '！', '？', '；':
		return true
	case '.', '!', '?', ';':
		return p == len(r) || unicode.IsSpace(r[p])
	}
	return false
}
