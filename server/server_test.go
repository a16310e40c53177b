package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitechat/sitechat/llm"
)

type fakeResponder struct {
	fragments []string
	err       error
	gotQ      string
}

func (f *fakeResponder) QueryStream(_ context.Context, question string, emit llm.StreamFunc) error {
	f.gotQ = question
	if f.err != nil {
		return f.err
	}
	for _, frag := range f.fragments {
		if err := emit(frag); err != nil {
			return err
		}
	}
	return nil
}

type fakeIngestor struct {
	chunks int
	err    error
	seed   string
}

func (f *fakeIngestor) IngestSite(_ context.Context, seed string) (int, error) {
	f.seed = seed
	if f.err != nil {
		return 0, f.err
	}
	return f.chunks, nil
}

func newTestServer(t *testing.T, engine Responder, ingestor Ingestor) *Server {
	t.Helper()
	s, err := New(Config{Addr: ":0"}, engine, ingestor)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{}, &fakeResponder{}, nil)
	assert.Error(t, err)

	_, err = New(Config{Addr: ":0"}, nil, nil)
	assert.Error(t, err)
}

func TestChatStreamsAnswer(t *testing.T) {
	engine := &fakeResponder{fragments: []string{"Hel", "lo", "\n\n**Sources:**\n- https://example.com/a"}}
	s := newTestServer(t, engine, nil)

	body := `{"messages":[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"},{"role":"user","content":"what is pricing?"}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what is pricing?", engine.gotQ)
	assert.Equal(t, "Hello\n\n**Sources:**\n- https://example.com/a", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestChatRejectsEmptyMessages(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsEmptyContent(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	body := `{"messages":[{"role":"user","content":"  "}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatRejectsNonPost(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngestURL(t *testing.T) {
	ingestor := &fakeIngestor{chunks: 12}
	s := newTestServer(t, &fakeResponder{}, ingestor)

	body := `{"url":"https://example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://example.com", ingestor.seed)

	var resp IngestURLResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 12, resp.Chunks)
	assert.Contains(t, resp.Message, "12 chunks")
}

func TestIngestURLRejectsPrivateHosts(t *testing.T) {
	tests := []string{
		`{"url":"http://localhost/admin"}`,
		`{"url":"http://192.168.1.1/"}`,
		`{"url":"ftp://example.com"}`,
		`{"url":""}`,
	}
	for _, body := range tests {
		t.Run(body, func(t *testing.T) {
			s := newTestServer(t, &fakeResponder{}, &fakeIngestor{})
			req := httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(body))
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestIngestURLFailure(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, &fakeIngestor{err: errors.New("crawl failed")})

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(`{"url":"https://example.com"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ingest_failed", resp.Error)
}

func TestIngestURLWithoutIngestor(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/url", strings.NewReader(`{"url":"https://example.com"}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sitechat_")
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeResponder{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketChat(t *testing.T) {
	engine := &fakeResponder{fragments: []string{"Hel", "lo"}}
	s := newTestServer(t, engine, nil)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("what is pricing?")))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []string
	for len(got) < 2 {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		got = append(got, string(data))
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.Equal(t, "what is pricing?", engine.gotQ)
}
