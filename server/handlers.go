package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/sitechat/sitechat/source/weburl"
)

// ChatRequest is the JSON body for POST /api/chat. The last user message is
// the question; earlier messages are accepted but not replayed.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IngestURLRequest is the JSON body for POST /api/ingest/url.
type IngestURLRequest struct {
	URL string `json:"url"`
}

// IngestURLResponse is the JSON response for POST /api/ingest/url.
type IngestURLResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Chunks  int    `json:"chunks"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleChat streams a plain text answer for the last user message.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "parse_error", "Invalid JSON body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeJSONError(w, http.StatusBadRequest, "messages_required", "No messages provided")
		return
	}
	question := strings.TrimSpace(req.Messages[len(req.Messages)-1].Content)
	if question == "" {
		writeJSONError(w, http.StatusBadRequest, "content_required", "Last message has no content")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, canFlush := w.(http.Flusher)

	err := s.engine.QueryStream(r.Context(), question, func(fragment string) error {
		if _, err := w.Write([]byte(fragment)); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers are already sent; the break is logged and the stream
		// simply ends.
		s.logger.Error("chat stream failed", "error", err)
	}
}

// handleWSChat answers each incoming text message with a streamed sequence
// of text frames.
func (s *Server) handleWSChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		question := strings.TrimSpace(string(data))
		if question == "" {
			continue
		}

		err = s.engine.QueryStream(r.Context(), question, func(fragment string) error {
			return conn.WriteMessage(websocket.TextMessage, []byte(fragment))
		})
		if err != nil {
			s.logger.Error("websocket chat failed", "error", err)
			msg := fmt.Sprintf("Error: %v", err)
			if writeErr := conn.WriteMessage(websocket.TextMessage, []byte(msg)); writeErr != nil {
				return
			}
		}
	}
}

// handleIngestURL crawls and indexes a site synchronously. The URL must pass
// validation so the endpoint cannot be used to reach internal hosts.
func (s *Server) handleIngestURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.ingestor == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "not_configured", "Ingestion is not configured")
		return
	}

	var req IngestURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "parse_error", "Invalid JSON body: "+err.Error())
		return
	}
	if err := weburl.ValidateURL(req.URL); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_url", err.Error())
		return
	}

	s.logger.Info("ingest request", "url", req.URL)
	chunks, err := s.ingestor.IngestSite(r.Context(), req.URL)
	if err != nil {
		s.logger.Error("ingestion failed", "url", req.URL, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "ingest_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, IngestURLResponse{
		Status:  "success",
		Message: fmt.Sprintf("Successfully ingested %d chunks from %s", chunks, req.URL),
		Chunks:  chunks,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
