// Package llm defines the generation backend abstraction: a closed set of
// inference endpoints (local model server, OpenAI-compatible HTTP service)
// behind one interface, with retry and transient/fatal error classification.
package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// callTimeout bounds one generation call, blocking or streaming. A timeout
// surfaces as a generation failure, never as a silent partial answer.
const callTimeout = 120 * time.Second

// maxResponseSize limits a blocking response body to prevent memory
// exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system" or "user"
	Content string `json:"content"` // Message content
}

// Request carries one grounded generation request. Prompt and Messages
// encode the same semantic content in the two backend wire shapes: the local
// model backend consumes Prompt, the chat-completions backend consumes
// Messages. Requests are built fresh per query and never persisted.
type Request struct {
	// Prompt is the single instruction-following prompt string.
	Prompt string

	// Messages is the system+user message encoding.
	Messages []Message

	// Temperature controls randomness.
	Temperature float64

	// TopP is the nucleus sampling bound.
	TopP float64

	// MaxTokens limits the completion length.
	MaxTokens int
}

// StreamFunc receives incremental completion fragments in arrival order.
// Returning an error stops the stream; the error propagates to the caller.
type StreamFunc func(fragment string) error

// Backend is a generation backend variant. Implementations keep their wire
// shape private and surface only text.
type Backend interface {
	// Name returns the human-readable backend name used in degraded
	// answers ("Ollama", "OpenAI").
	Name() string

	// Generate returns the full completion text once available.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream forwards completion fragments to emit as they arrive.
	// The backend's termination sentinel is consumed, never forwarded.
	GenerateStream(ctx context.Context, req Request, emit StreamFunc) error
}

// NewHTTPClient returns the HTTP client shared by backend implementations,
// with the fixed generous call timeout applied.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: callTimeout}
}

// ReadBody drains an HTTP response body under the size limit.
func ReadBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	return body, nil
}

// ClassifyHTTPError wraps a non-200 HTTP status as transient or fatal.
func ClassifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("backend API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
