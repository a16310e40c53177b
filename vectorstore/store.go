// Package vectorstore defines the similarity index boundary: upsert chunks
// with their vectors, query k nearest by vector. Index internals are out of
// scope; two implementations ship, an in-memory store and a Qdrant REST
// client.
package vectorstore

import (
	"context"

	"github.com/sitechat/sitechat/source"
)

// Result is one retrieved document, best match first.
type Result struct {
	// Text is the stored chunk text.
	Text string

	// Metadata is the chunk's provenance metadata (source URL etc).
	Metadata map[string]string

	// Score is the similarity score; higher is closer.
	Score float64
}

// Store persists chunk vectors and supports k-nearest-neighbor queries.
type Store interface {
	// Upsert writes chunks with their vectors. Chunks and vectors must
	// have equal length.
	Upsert(ctx context.Context, chunks []source.Chunk, vectors [][]float32) error

	// Query returns up to k results ranked best-first.
	Query(ctx context.Context, vector []float32, k int) ([]Result, error)
}
