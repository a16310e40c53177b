// Package backends provides the concrete generation backend variants.
package backends

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sitechat/sitechat/llm"
)

// defaultOllamaURL is the local model server base URL.
const defaultOllamaURL = "http://localhost:11434"

// disallowedModels are unquantized model names rejected outright.
var disallowedModels = []string{"llama3:latest", "llama3", "llama-3", "llama-3:latest"}

// quantizationTags are the markers a safe model identifier must carry.
var quantizationTags = []string{"q4", "q5", "q6", "q8"}

// ValidateModel rejects known-unsafe local model identifiers: the
// unquantized llama3 aliases and any name without a recognized quantization
// tag. This is the construction-time gate for the local backend.
func ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("ollama model is required")
	}

	lower := strings.ToLower(model)
	for _, bad := range disallowedModels {
		if lower == bad {
			return fmt.Errorf("ollama model %q is unquantized; use a quantized variant like 'llama3:8b-instruct-q4_K_M'", model)
		}
	}

	for _, tag := range quantizationTags {
		if strings.Contains(lower, tag) {
			return nil
		}
	}
	return fmt.Errorf("ollama model %q appears unquantized; use a quantized variant like 'llama3:8b-instruct-q4_K_M'", model)
}

// Ollama generates completions against the Ollama-native /api/generate
// endpoint. Blocking calls read one JSON object; streaming calls read
// newline-delimited objects until done=true.
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
	retry   llm.RetryConfig
	logger  *slog.Logger
}

// NewOllama creates the local-model backend. The model identifier is
// validated here; an unsafe name is a configuration error.
func NewOllama(baseURL, model string, logger *slog.Logger) (*Ollama, error) {
	if err := ValidateModel(model); err != nil {
		return nil, err
	}
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  llm.NewHTTPClient(),
		retry:   llm.DefaultRetryConfig(),
		logger:  logger,
	}, nil
}

// Name returns the backend display name.
func (o *Ollama) Name() string {
	return "Ollama"
}

// generateRequest is the Ollama-native request format.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// generateResponse is one Ollama-native response object. In streaming mode
// Response carries an incremental fragment until Done is true.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *Ollama) buildBody(req llm.Request, stream bool) ([]byte, error) {
	options := map[string]any{
		"temperature": req.Temperature,
		"top_p":       req.TopP,
	}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	return json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  req.Prompt,
		Stream:  stream,
		Options: options,
	})
}

func (o *Ollama) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("ollama request failed: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, readErr := llm.ReadBody(resp)
		if readErr != nil {
			return nil, readErr
		}
		return nil, llm.ClassifyHTTPError(resp.StatusCode, respBody)
	}
	return resp, nil
}

// Generate performs a blocking completion with retry.
func (o *Ollama) Generate(ctx context.Context, req llm.Request) (string, error) {
	body, err := o.buildBody(req, false)
	if err != nil {
		return "", llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	var text string
	err = llm.WithRetry(ctx, o.retry, o.logger, func() error {
		resp, err := o.post(ctx, body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := llm.ReadBody(resp)
		if err != nil {
			return err
		}

		var parsed generateResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return llm.NewTransientError(fmt.Errorf("parse ollama response: %w", err))
		}
		text = parsed.Response
		return nil
	})
	return text, err
}

// GenerateStream reads newline-delimited JSON objects and forwards each
// non-empty fragment. The done=true sentinel terminates the stream and is
// never forwarded; malformed lines are logged and skipped.
func (o *Ollama) GenerateStream(ctx context.Context, req llm.Request, emit llm.StreamFunc) error {
	body, err := o.buildBody(req, true)
	if err != nil {
		return llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	resp, err := o.post(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Some proxies re-frame the stream as SSE.
		line = strings.TrimPrefix(line, "data: ")

		var parsed generateResponse
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			o.logger.Warn("Skipping malformed stream fragment", "error", err)
			continue
		}

		if parsed.Done {
			break
		}
		if parsed.Response != "" {
			if err := emit(parsed.Response); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return llm.NewTransientError(fmt.Errorf("read stream: %w", err))
	}
	return nil
}
