// Package memory implements an in-memory vector store using brute-force
// cosine similarity. Useful for tests and small corpora.
package memory

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/sitechat/sitechat/source"
	"github.com/sitechat/sitechat/vectorstore"
)

// Store holds chunks and vectors behind an RWMutex.
type Store struct {
	mu      sync.RWMutex
	chunks  []source.Chunk
	vectors [][]float32
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Upsert appends chunks with their vectors.
func (s *Store) Upsert(_ context.Context, chunks []source.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Query returns the k most cosine-similar chunks, best first.
func (s *Store) Query(_ context.Context, vector []float32, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		k = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(s.vectors))
	for i, v := range s.vectors {
		scores[i] = scored{idx: i, score: cosine(v, vector)}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score == scores[j].score {
			return scores[i].idx < scores[j].idx
		}
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}
	results := make([]vectorstore.Result, 0, k)
	for _, sc := range scores[:k] {
		chunk := s.chunks[sc.idx]
		results = append(results, vectorstore.Result{
			Text:     chunk.Text,
			Metadata: chunk.Metadata,
			Score:    sc.score,
		})
	}
	return results, nil
}

// cosine computes cosine similarity over the shared prefix of a and b.
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
