package backends

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/sitechat/sitechat/llm"
)

// defaultOpenAIURL targets a local vLLM server; any OpenAI-compatible
// chat-completions endpoint works.
const defaultOpenAIURL = "http://localhost:8000/v1/chat/completions"

// doneSentinel is the SSE frame that marks normal stream termination.
const doneSentinel = "[DONE]"

// OpenAIChat generates completions against an OpenAI-compatible
// chat-completions endpoint (vLLM, OpenRouter, OpenAI itself). Streaming
// uses server-sent-event frames terminated by a literal [DONE].
type OpenAIChat struct {
	url       string
	model     string
	apiKeyEnv string
	client    *http.Client
	retry     llm.RetryConfig
	logger    *slog.Logger
}

// NewOpenAIChat creates the HTTP chat-completions backend. apiKeyEnv names
// the environment variable holding the bearer token; empty means
// unauthenticated (local vLLM).
func NewOpenAIChat(url, model, apiKeyEnv string, logger *slog.Logger) (*OpenAIChat, error) {
	if model == "" {
		return nil, fmt.Errorf("openai model is required")
	}
	if url == "" {
		url = defaultOpenAIURL
	}
	if !strings.HasSuffix(url, "/chat/completions") {
		url = strings.TrimSuffix(url, "/") + "/chat/completions"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIChat{
		url:       url,
		model:     model,
		apiKeyEnv: apiKeyEnv,
		client:    llm.NewHTTPClient(),
		retry:     llm.DefaultRetryConfig(),
		logger:    logger,
	}, nil
}

// Name returns the backend display name.
func (o *OpenAIChat) Name() string {
	return "OpenAI"
}

// chatRequest is the OpenAI-compatible request format.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// chatResponse is the blocking response shape.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatStreamChunk is one SSE frame payload.
type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (o *OpenAIChat) post(ctx context.Context, req llm.Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	})
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, llm.NewFatalError(fmt.Errorf("create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKeyEnv != "" {
		if key := os.Getenv(o.apiKeyEnv); key != "" {
			httpReq.Header.Set("Authorization", "Bearer "+key)
		}
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, llm.NewTransientError(fmt.Errorf("chat completions request failed: %w", err))
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

// Generate performs a blocking completion with retry and returns
// choices[0].message.content.
func (o *OpenAIChat) Generate(ctx context.Context, req llm.Request) (string, error) {
	var text string
	err := llm.WithRetry(ctx, o.retry, o.logger, func() error {
		resp, err := o.post(ctx, req, false)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := llm.ReadBody(resp)
		if err != nil {
			return err
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return llm.NewTransientError(fmt.Errorf("parse chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return llm.NewTransientError(fmt.Errorf("no choices in response"))
		}
		text = parsed.Choices[0].Message.Content
		return nil
	})
	return text, err
}

// GenerateStream reads SSE frames and forwards each delta fragment in
// arrival order. The [DONE] frame terminates the stream and is never
// forwarded; malformed frames are logged and skipped.
func (o *OpenAIChat) GenerateStream(ctx context.Context, req llm.Request, emit llm.StreamFunc) error {
	resp, err := o.post(ctx, req, true)
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
		line = strings.TrimPrefix(line, "data: ")

		if line == doneSentinel {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			o.logger.Warn("Skipping malformed SSE frame", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if content := chunk.Choices[0].Delta.Content; content != "" {
			if err := emit(content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return llm.NewTransientError(fmt.Errorf("read stream: %w", err))
	}
	return nil
}
