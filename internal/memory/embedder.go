package memory

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// Embedder generates TF-IDF bag-of-words embeddings over the memory corpus.
// Deliberately model-free: the engine does no language-model inference.
type Embedder struct {
	vocab []string           // ordered vocabulary (top terms by doc frequency)
	idf   map[string]float64 // inverse document frequency per term
	dims  int
}

// NewEmbedder builds a TF-IDF embedder from the given documents.
func NewEmbedder(docs []string, maxTerms int) *Embedder {
	if maxTerms <= 0 {
		maxTerms = 512
	}

	// Build document frequency
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc) {
			if !seen[term] {
				df[term]++
				seen[term] = true
			}
		}
	}

	// Sort terms by document frequency (descending), take top maxTerms
	type termFreq struct {
		term string
		freq int
	}
	terms := make([]termFreq, 0, len(df))
	for term, freq := range df {
		terms = append(terms, termFreq{term, freq})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].freq != terms[j].freq {
			return terms[i].freq > terms[j].freq
		}
		return terms[i].term < terms[j].term
	})
	if len(terms) > maxTerms {
		terms = terms[:maxTerms]
	}

	vocab := make([]string, len(terms))
	idf := make(map[string]float64, len(terms))
	n := float64(len(docs))
	for i, tf := range terms {
		vocab[i] = tf.term
		idf[tf.term] = math.Log((n+1)/(float64(tf.freq)+1)) + 1
	}

	return &Embedder{vocab: vocab, idf: idf, dims: len(vocab)}
}

// Model identifies the embedding scheme so stale vectors can be detected.
func (e *Embedder) Model() string { return "tfidf-v1" }

// Dimensions returns the embedding width.
func (e *Embedder) Dimensions() int { return e.dims }

// Embed returns the L2-normalized TF-IDF vector for text. Terms outside the
// vocabulary contribute nothing; an all-unknown text embeds to the zero
// vector, which has zero similarity to everything.
func (e *Embedder) Embed(text string) []float64 {
	vec := make([]float64, len(e.vocab))
	if len(e.vocab) == 0 {
		return vec
	}

	counts := make(map[string]int)
	total := 0
	for _, term := range tokenize(text) {
		counts[term]++
		total++
	}
	if total == 0 {
		return vec
	}

	for i, term := range e.vocab {
		if c, ok := counts[term]; ok {
			tf := float64(c) / float64(total)
			vec[i] = tf * e.idf[term]
		}
	}

	// L2 normalize so cosine similarity reduces to a dot product
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Returns 0 for zero or mismatched vectors.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character tokens.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
