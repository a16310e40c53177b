// Package chat implements retrieval-augmented question answering: embed the
// question, retrieve the nearest chunks, assemble a grounded prompt, and
// generate an answer with a cited source list.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sitechat/sitechat/embedding"
	"github.com/sitechat/sitechat/llm"
	"github.com/sitechat/sitechat/metrics"
	"github.com/sitechat/sitechat/vectorstore"
)

// systemPrompt grounds every generation. It is prepended verbatim to each
// request.
const systemPrompt = `You are a helpful AI assistant.

Your goal is to answer the user's question using the provided CONTEXT.

Rules:
1. Use Context: Base your answer on the information provided below.
2. Reasoning: You may synthesize and infer benefits when reasonable.
3. Honesty: If the context has no relevant info, say so clearly.
4. Tone: Be helpful, professional, and concise.
`

// noContext substitutes for an empty retrieval so the model is told
// explicitly that nothing relevant was found.
const noContext = "No context available."

const (
	defaultTopK        = 5
	defaultTemperature = 0.3
	defaultTopP        = 0.9
	defaultMaxTokens   = 512
)

// Engine answers questions against the indexed corpus.
type Engine struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	backend  llm.Backend
	topK     int
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(e *Engine) {
		if k > 0 {
			e.topK = k
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine. All three collaborators are required.
func New(embedder embedding.Embedder, store vectorstore.Store, backend llm.Backend, opts ...Option) (*Engine, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if backend == nil {
		return nil, errors.New("generation backend is required")
	}
	e := &Engine{
		embedder: embedder,
		store:    store,
		backend:  backend,
		topK:     defaultTopK,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Query answers question in one blocking call. Retrieval failures are
// returned as errors; generation failures degrade into an answer string
// naming the backend, so callers always have something to show.
func (e *Engine) Query(ctx context.Context, question string) (string, error) {
	metrics.ChatQueries.Inc()

	results, contextText, err := e.retrieve(ctx, question)
	if err != nil {
		return "", err
	}

	answer, err := e.backend.Generate(ctx, e.buildRequest(contextText, question))
	if err != nil {
		metrics.GenerationFailures.Inc()
		e.logger.Error("generation failed",
			"backend", e.backend.Name(),
			"error", err)
		return fmt.Sprintf("Error communicating with %s: %v", e.backend.Name(), err), nil
	}

	if citation := citationBlock(results); citation != "" {
		answer += citation
	}
	return answer, nil
}

// QueryStream answers question by forwarding completion fragments to emit as
// they arrive, then emits the citation block as the final fragment. A
// generation failure mid-stream is emitted as a final fragment, not returned,
// matching the degraded-answer behavior of Query.
func (e *Engine) QueryStream(ctx context.Context, question string, emit llm.StreamFunc) error {
	metrics.ChatQueries.Inc()

	results, contextText, err := e.retrieve(ctx, question)
	if err != nil {
		return err
	}

	if err := e.backend.GenerateStream(ctx, e.buildRequest(contextText, question), emit); err != nil {
		metrics.GenerationFailures.Inc()
		e.logger.Error("streaming generation failed",
			"backend", e.backend.Name(),
			"error", err)
		return emit(fmt.Sprintf("\nError communicating with %s: %v", e.backend.Name(), err))
	}

	if citation := citationBlock(results); citation != "" {
		return emit(citation)
	}
	return nil
}

// retrieve embeds the question and fetches the topK nearest chunks, joining
// their text into the context block.
func (e *Engine) retrieve(ctx context.Context, question string) ([]vectorstore.Result, string, error) {
	vector, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, "", fmt.Errorf("embed question: %w", err)
	}

	results, err := e.store.Query(ctx, vector, e.topK)
	if err != nil {
		return nil, "", fmt.Errorf("query vector store: %w", err)
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	contextText := strings.Join(texts, "\n\n")
	if contextText == "" {
		contextText = noContext
	}

	e.logger.Debug("retrieved context",
		"question_len", len(question),
		"chunks", len(results))

	return results, contextText, nil
}

func (e *Engine) buildRequest(contextText, question string) llm.Request {
	return llm.Request{
		Prompt: fmt.Sprintf("%s\n\nContext:\n%s\n\nQuestion:\n%s\n\nAnswer:", systemPrompt, contextText, question),
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", contextText, question)},
		},
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		MaxTokens:   defaultMaxTokens,
	}
}

// citationBlock renders the deduplicated, sorted source URLs of the
// retrieved chunks. Empty when no chunk carries a source.
func citationBlock(results []vectorstore.Result) string {
	seen := make(map[string]struct{})
	for _, r := range results {
		if src := r.Metadata["source"]; src != "" {
			seen[src] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return ""
	}
	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for i, src := range sources {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("- " + src)
	}
	return b.String()
}
