// Package hashing provides an offline embedder that hashes tokens into a
// fixed number of buckets. It needs no model files or corpus preparation,
// so any two processes configured with the same dimension produce
// identical vectors.
package hashing

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"ragchat/internal/domain"
)

// Prefix of every model name served by this package, e.g. "hashing-384".
const Prefix = "hashing-"

// DefaultDimension matches paraphrase-multilingual-MiniLM-L12-v2.
const DefaultDimension = 384

// DefaultMaxTokens caps how many tokens of a text contribute to its vector.
const DefaultMaxTokens = 512

var _ domain.Embedder = (*Embedder)(nil)

// Embedder implements domain.Embedder with feature hashing.
type Embedder struct {
	dim          int
	maxTokens    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New returns an embedder producing dim-length vectors.
func New(dim int) *Embedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Embedder{
		dim:          dim,
		maxTokens:    DefaultMaxTokens,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// ParseModel extracts the dimension from a name like "hashing-384".
func ParseModel(name string) (int, bool) {
	if !strings.HasPrefix(name, Prefix) {
		return 0, false
	}
	dim, err := strconv.Atoi(strings.TrimPrefix(name, Prefix))
	if err != nil || dim <= 0 {
		return 0, false
	}
	return dim, true
}

// ModelName returns the name that reconstructs this embedder.
func (e *Embedder) ModelName() string { return Prefix + strconv.Itoa(e.dim) }

// Dimension returns the vector length.
func (e *Embedder) Dimension() int { return e.dim }

// Embed returns one L2-normalized vector per text. Only the first
// maxTokens tokens of a text count.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *Embedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dim)
	tokens := e.tokenize(text)
	if len(tokens) > e.maxTokens {
		tokens = tokens[:e.maxTokens]
	}
	if len(tokens) == 0 {
		return vec
	}
	tf := make(map[int]int)
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		tf[int(h.Sum32()%uint32(e.dim))]++
	}
	var norm float64
	for idx, count := range tf {
		// Sublinear term frequency keeps repeated words from dominating.
		w := 1 + math.Log(float64(count))
		vec[idx] = float32(w)
		norm += w * w
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// tokenize lowercases text and splits it into words. Han characters carry
// meaning individually, so each one becomes a token and adjacent pairs are
// added as bigrams.
func (e *Embedder) tokenize(text string) []string {
	lower := strings.ToLower(text)
	raw := e.tokenPattern.FindAllString(lower, -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if !hasHan(t) {
			if _, isStop := e.stopwords[t]; !isStop {
				out = append(out, t)
			}
			continue
		}
		out = append(out, hanTokens(t)...)
	}
	return out
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func hanTokens(word string) []string {
	var out []string
	var prev rune
	var latin strings.Builder
	flush := func() {
		if latin.Len() > 0 {
			out = append(out, latin.String())
			latin.Reset()
		}
	}
	for _, r := range word {
		if !unicode.Is(unicode.Han, r) {
			latin.WriteRune(r)
			prev = 0
			continue
		}
		flush()
		out = append(out, string(r))
		if prev != 0 {
			out = append(out, fmt.Sprintf("%c%c", prev, r))
		}
		prev = r
	}
	flush()
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
