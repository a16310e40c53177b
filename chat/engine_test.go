package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/sitechat/llm"
	"github.com/sitechat/sitechat/source"
	"github.com/sitechat/sitechat/vectorstore"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type stubStore struct {
	results []vectorstore.Result
	err     error
	gotK    int
}

func (s *stubStore) Upsert(_ context.Context, _ []source.Chunk, _ [][]float32) error {
	return nil
}

func (s *stubStore) Query(_ context.Context, _ []float32, k int) ([]vectorstore.Result, error) {
	s.gotK = k
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

type fakeBackend struct {
	name      string
	answer    string
	fragments []string
	err       error

	gotReq llm.Request
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Generate(_ context.Context, req llm.Request) (string, error) {
	f.gotReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeBackend) GenerateStream(_ context.Context, req llm.Request, emit llm.StreamFunc) error {
	f.gotReq = req
	for _, frag := range f.fragments {
		if err := emit(frag); err != nil {
			return err
		}
	}
	return f.err
}

func results(sources ...string) []vectorstore.Result {
	out := make([]vectorstore.Result, 0, len(sources))
	for i, s := range sources {
		out = append(out, vectorstore.Result{
			Text:     "chunk " + string(rune('a'+i)),
			Metadata: map[string]string{"source": s},
			Score:    1 - float64(i)*0.1,
		})
	}
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := &stubStore{}
	backend := &fakeBackend{name: "Ollama"}

	_, err := New(nil, store, backend)
	assert.Error(t, err)

	_, err = New(&fakeEmbedder{}, nil, backend)
	assert.Error(t, err)

	_, err = New(&fakeEmbedder{}, store, nil)
	assert.Error(t, err)
}

func TestQueryAppendsSortedDedupedSources(t *testing.T) {
	store := &stubStore{results: results(
		"https://example.com/b",
		"https://example.com/a",
		"https://example.com/a",
	)}
	backend := &fakeBackend{name: "Ollama", answer: "The answer."}
	e, err := New(&fakeEmbedder{}, store, backend)
	require.NoError(t, err)

	answer, err := e.Query(context.Background(), "what?")
	require.NoError(t, err)
	assert.Equal(t, "The answer.\n\n**Sources:**\n- https://example.com/a\n- https://example.com/b", answer)
}

func TestQueryNoResultsUsesFallbackContext(t *testing.T) {
	store := &stubStore{}
	backend := &fakeBackend{name: "Ollama", answer: "I don't know."}
	e, err := New(&fakeEmbedder{}, store, backend)
	require.NoError(t, err)

	answer, err := e.Query(context.Background(), "what?")
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", answer)
	assert.Contains(t, backend.gotReq.Prompt, "No context available.")
	require.Len(t, backend.gotReq.Messages, 2)
	assert.Contains(t, backend.gotReq.Messages[1].Content, "No context available.")
}

func TestQueryBuildsGroundedRequest(t *testing.T) {
	store := &stubStore{results: results("https://example.com/a", "https://example.com/b")}
	backend := &fakeBackend{name: "OpenAI", answer: "ok"}
	e, err := New(&fakeEmbedder{}, store, backend)
	require.NoError(t, err)

	_, err = e.Query(context.Background(), "the question")
	require.NoError(t, err)

	assert.Contains(t, backend.gotReq.Prompt, "chunk a\n\nchunk b")
	assert.Contains(t, backend.gotReq.Prompt, "Question:\nthe question")
	assert.True(t, strings.HasSuffix(backend.gotReq.Prompt, "Answer:"))
	assert.Equal(t, "system", backend.gotReq.Messages[0].Role)
	assert.InDelta(t, 0.3, backend.gotReq.Temperature, 1e-9)
	assert.InDelta(t, 0.9, backend.gotReq.TopP, 1e-9)
	assert.Equal(t, 512, backend.gotReq.MaxTokens)
}

func TestQueryGenerationFailureDegrades(t *testing.T) {
	store := &stubStore{results: results("https://example.com/a")}
	backend := &fakeBackend{name: "Ollama", err: errors.New("connection refused")}
	e, err := New(&fakeEmbedder{}, store, backend)
	require.NoError(t, err)

	answer, err := e.Query(context.Background(), "what?")
	require.NoError(t, err)
	assert.Equal(t, "Error communicating with Ollama: connection refused", answer)
}

func TestQueryEmbeddingFailureIsError(t *testing.T) {
	e, err := New(&fakeEmbedder{err: errors.New("embed down")}, &stubStore{}, &fakeBackend{name: "Ollama"})
	require.NoError(t, err)

	_, err = e.Query(context.Background(), "what?")
	assert.Error(t, err)
}

func TestQueryStoreFailureIsError(t *testing.T) {
	e, err := New(&fakeEmbedder{}, &stubStore{err: errors.New("store down")}, &fakeBackend{name: "Ollama"})
	require.NoError(t, err)

	_, err = e.Query(context.Background(), "what?")
	assert.Error(t, err)
}

func TestQueryStreamOrder(t *testing.T) {
	store := &stubStore{results: results("https://example.com/a")}
	backend := &fakeBackend{name: "Ollama", fragments: []string{"Hel", "lo"}}
	e, err := New(&fakeEmbedder{}, store, backend)
	require.NoError(t, err)

	var got []string
	err = e.QueryStream(context.Background(), "what?", func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", "\n\n**Sources:**\n- https://example.com/a"}, got)
}

func TestQueryStreamNoSourcesNoCitation(t *testing.T) {
	backend := &fakeBackend{name: "Ollama", fragments: []string{"hi"}}
	e, err := New(&fakeEmbedder{}, &stubStore{}, backend)
	require.NoError(t, err)

	var got []string
	err = e.QueryStream(context.Background(), "what?", func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, got)
}

func TestQueryStreamFailureEmitsError(t *testing.T) {
	backend := &fakeBackend{name: "OpenAI", fragments: []string{"par"}, err: errors.New("boom")}
	e, err := New(&fakeEmbedder{}, &stubStore{}, backend)
	require.NoError(t, err)

	var got []string
	err = e.QueryStream(context.Background(), "what?", func(fragment string) error {
		got = append(got, fragment)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "par", got[0])
	assert.Equal(t, "\nError communicating with OpenAI: boom", got[1])
}

func TestTopKOption(t *testing.T) {
	store := &stubStore{}
	e, err := New(&fakeEmbedder{}, store, &fakeBackend{name: "Ollama"}, WithTopK(3))
	require.NoError(t, err)

	_, err = e.Query(context.Background(), "what?")
	require.NoError(t, err)
	assert.Equal(t, 3, store.gotK)
}
