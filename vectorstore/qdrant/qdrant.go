// Package qdrant implements the vector store against Qdrant's REST API.
// The collection is created on first upsert using the vector dimension of
// the incoming batch, with cosine distance.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sitechat/sitechat/source"
	"github.com/sitechat/sitechat/vectorstore"
)

const defaultTimeout = 15 * time.Second

// Config holds Qdrant connection settings.
type Config struct {
	// URL is the Qdrant base URL, e.g. http://localhost:6333.
	URL string

	// APIKey is sent in the api-key header when non-empty.
	APIKey string

	// Collection is the collection name.
	Collection string

	// Timeout bounds each HTTP request. Defaults to 15s.
	Timeout time.Duration
}

// Validate checks that required fields are set.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("qdrant url is required")
	}
	if c.Collection == "" {
		return errors.New("qdrant collection is required")
	}
	return nil
}

// Store is a minimal REST client to Qdrant.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	created bool
}

// New creates a Qdrant store from cfg.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Upsert writes chunks with their vectors, creating the collection on the
// first call. Chunk IDs become point IDs; text and metadata go into the
// payload.
func (s *Store) Upsert(ctx context.Context, chunks []source.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]map[string]any, len(chunks))
	for i, chunk := range chunks {
		payload := map[string]any{"text": chunk.Text}
		for k, v := range chunk.Metadata {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      chunk.ID,
			"vector":  vectors[i],
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection)
	return s.do(ctx, http.MethodPut, url, body, nil)
}

// Query searches the collection and maps payloads back to results. Payload
// keys other than "text" become metadata.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]vectorstore.Result, error) {
	if k <= 0 {
		k = 5
	}
	body := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	if err := s.do(ctx, http.MethodPost, url, body, &resp); err != nil {
		return nil, err
	}

	results := make([]vectorstore.Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		result := vectorstore.Result{Score: r.Score, Metadata: map[string]string{}}
		for key, val := range r.Payload {
			str, ok := val.(string)
			if !ok {
				continue
			}
			if key == "text" {
				result.Text = str
				continue
			}
			result.Metadata[key] = str
		}
		results = append(results, result)
	}
	return results, nil
}

// Drop deletes the collection. Best effort; a missing collection is not an
// error.
func (s *Store) Drop(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	err := s.do(ctx, http.MethodDelete, url, nil, nil)
	s.mu.Lock()
	s.created = false
	s.mu.Unlock()
	return err
}

func (s *Store) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}
	// Qdrant returns 200 when the collection already exists with the same
	// schema, so this is safe to repeat.
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	if err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return err
	}
	s.created = true
	return nil
}

func (s *Store) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
