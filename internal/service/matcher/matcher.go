package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/reliefops/redzone/internal/domain/payload"
	"github.com/reliefops/redzone/internal/service/feed"
	"github.com/reliefops/redzone/internal/store"
)

const (
	// EmbeddingDim is the required embedding vector length.
	EmbeddingDim = 512

	// DefaultThreshold is the minimum cosine similarity that counts as a
	// match when the caller does not override it.
	DefaultThreshold = 0.55

	// unknownName labels reference records that carry no display name.
	unknownName = "Unknown"
)

// ErrBadEmbedding is returned when a query vector does not have the
// required dimension.
var ErrBadEmbedding = fmt.Errorf("embedding must have %d dimensions", EmbeddingDim)

// Match is one reference person whose stored embedding cleared the
// similarity threshold.
type Match struct {
	// PersonID is the key of the reference record.
	PersonID string `json:"person_id"`
	// Name is the person's display name, "Unknown" when absent.
	Name string `json:"name"`
	// Similarity is the cosine similarity in [-1, 1].
	Similarity float64 `json:"similarity"`
}

// Cosine returns the cosine similarity of two vectors. A zero-norm vector
// or mismatched lengths yield 0 rather than an error: such records simply
// never match.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
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

// Matcher answers identity queries from the reference embeddings stored in
// the shared store.
type Matcher struct {
	store store.Store
}

// New creates a matcher bound to the store.
func New(st store.Store) *Matcher {
	return &Matcher{store: st}
}

// Match compares the query embedding against every reference record and
// returns the people at or above the threshold, best first. Reference
// records with a missing or wrongly-sized embedding are skipped, never
// fatal. A threshold of 0 or below falls back to DefaultThreshold.
func (m *Matcher) Match(ctx context.Context, query []float64, threshold float64) ([]Match, error) {
	if len(query) != EmbeddingDim {
		return nil, ErrBadEmbedding
	}

	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	raw, err := m.store.Get(ctx, feed.EmbeddingsPath)

	switch {
	case errors.Is(err, store.ErrNotFound):
		return []Match{}, nil
	case err != nil:
		return nil, fmt.Errorf("read embeddings: %w", err)
	}

	var records map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode embeddings: %w", err)
	}

	matches := make([]Match, 0)

	for personID, record := range records {
		fields, ok := record.(map[string]any)
		if !ok {
			continue
		}

		stored, ok := parseEmbedding(fields["embedding"])
		if !ok {
			continue
		}

		similarity := Cosine(query, stored)
		if similarity < threshold {
			continue
		}

		name := unknownName
		if n, ok := payload.String(fields["name"]); ok && n != "" {
			name = n
		}

		matches = append(matches, Match{
			PersonID:   personID,
			Name:       name,
			Similarity: similarity,
		})
	}

	// Best first; ties break on ID so output is deterministic.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}

		return matches[i].PersonID < matches[j].PersonID
	})

	return matches, nil
}

// parseEmbedding coerces a stored embedding value into a float vector,
// rejecting anything that is not exactly EmbeddingDim numbers.
func parseEmbedding(value any) ([]float64, bool) {
	list, ok := value.([]any)
	if !ok || len(list) != EmbeddingDim {
		return nil, false
	}

	vector := make([]float64, len(list))

	for i, item := range list {
		f, ok := payload.Float(item)
		if !ok {
			return nil, false
		}

		vector[i] = f
	}

	return vector, true
}
