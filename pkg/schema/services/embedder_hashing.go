package services

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingEmbedder is a deterministic, dependency-free Embedder. Each token of
// the text is hashed into one of Dimensions buckets with a hashed sign and the
// resulting term-frequency vector is L2-normalized, so cosine similarity
// approximates lexical overlap. Text without indexable tokens, such as a
// stopword-only query, embeds to the zero vector. It is meant for local
// development and tests; production deployments use a model-backed provider.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder creates a hashing embedder producing vectors of the given size
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Dimensions returns the vector length
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed generates an embedding for a single text
func (e *HashingEmbedder) Embed(ctx context.Context, text string, _ TaskType) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.vector(tokenize(text)), nil
}

// EmbedBatch generates embeddings for multiple texts
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType TaskType) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text, taskType)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (e *HashingEmbedder) vector(tokens []string) []float64 {
	vector := make([]float64, e.dimensions)
	for _, token := range tokens {
		h := fnv.New64a()
		h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimensions))
		if (sum>>63)&1 == 1 {
			vector[bucket]--
		} else {
			vector[bucket]++
		}
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += v * v
	}
	if sumSquares > 0 {
		norm := math.Sqrt(sumSquares)
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector
}

// stopWords contains common words excluded from hashing
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "are": true, "but": true, "not": true, "you": true,
	"all": true, "was": true, "his": true, "her": true, "from": true,
	"they": true, "have": true, "had": true, "been": true, "were": true,
	"will": true, "would": true, "could": true, "should": true, "can": true,
	"them": true, "which": true, "there": true, "their": true, "is": true,
	"when": true, "then": true, "than": true, "into": true, "upon": true,
	"on": true, "of": true, "to": true, "at": true, "it": true,
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// tokenize splits text into lowercase alphanumeric words
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isTokenRune(r)
	})

	filtered := make([]string, 0, len(words))
	for _, word := range words {
		if len(word) >= 2 && !stopWords[word] {
			filtered = append(filtered, word)
		}
	}
	return filtered
}
