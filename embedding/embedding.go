// Package embedding maps text to fixed-length float vectors via a remote
// embedding endpoint. The model itself is a black box behind the Embedder
// interface.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Embedder converts free text into a numeric vector representation.
// Implementations must be deterministic for identical input within a
// session.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config configures the HTTP embeddings client.
type Config struct {
	// BaseURL is the API root (e.g. http://localhost:11434/v1).
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// APIKeyEnv names the environment variable holding the bearer token;
	// empty means unauthenticated.
	APIKeyEnv string

	// Timeout bounds one embeddings call.
	Timeout time.Duration
}

// Client is an OpenAI-compatible embeddings client. It also accepts the
// Ollama-native response shape so a local model server can serve as the
// embedding endpoint without configuration changes.
type Client struct {
	cfg        Config
	client     *http.Client
	maxRetries int
}

// NewClient creates an embeddings client with the given configuration.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		maxRetries: 5,
	}
}

type embedRequest struct {
	Input  string `json:"input,omitempty"`
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model"`
}

// Embed returns an embedding vector for the given text, retrying on 429 and
// 5xx responses with Retry-After support.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	url := c.cfg.BaseURL + "/embeddings"

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		body, _ := json.Marshal(embedRequest{Input: text, Prompt: text, Model: c.cfg.Model})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.APIKeyEnv != "" {
			if key := os.Getenv(c.cfg.APIKeyEnv); key != "" {
				req.Header.Set("Authorization", "Bearer "+key)
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				if werr := c.sleep(ctx, retryDelay(attempt)); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			delay := retryDelay(attempt)
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					delay = time.Duration(secs) * time.Second
				}
			}
			_ = resp.Body.Close()
			if attempt < c.maxRetries {
				if werr := c.sleep(ctx, delay); werr != nil {
					return nil, werr
				}
				continue
			}
			return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
		}

		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("embeddings request failed: %s", resp.Status)
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if vec := parseEmbedding(payload); vec != nil {
			return vec, nil
		}
		return nil, errors.New("no embedding returned")
	}
	return nil, errors.New("no embedding returned")
}

// parseEmbedding accepts the OpenAI-compatible shape first, then the
// Ollama-native one.
func parseEmbedding(payload []byte) []float32 {
	var openaiOut struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding
		}
	}

	var ollamaOut struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil {
		if len(ollamaOut.Embedding) > 0 {
			return ollamaOut.Embedding
		}
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// retryDelay computes exponential backoff capped at 5s.
func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
