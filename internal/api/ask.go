package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tutorly/tutorly/internal/answer"
)

// maxBodyBytes caps request bodies; questions are short.
const maxBodyBytes = 1 << 20 // 1MB

// askRequest is the POST /ask body.
type askRequest struct {
	Question string `json:"question"`
	Scope    string `json:"scope,omitempty"`
	K        int    `json:"k,omitempty"`
}

// askHandler serves question answering, blocking and streaming.
type askHandler struct {
	answerer QuestionAnswerer
	logger   *slog.Logger
}

// parseAsk decodes and validates the request body. A nil return means
// the error response has already been written.
func (h *askHandler) parseAsk(w http.ResponseWriter, r *http.Request) *askRequest {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return nil
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", h.logger)
		return nil
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "question is required", h.logger)
		return nil
	}
	if req.K < 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "k must not be negative", h.logger)
		return nil
	}
	return &req
}

// ask handles POST /ask.
func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	req := h.parseAsk(w, r)
	if req == nil {
		return
	}

	resp, err := h.answerer.Ask(r.Context(), req.Question, answer.Options{
		Scope: req.Scope,
		K:     req.K,
	})
	if err != nil {
		h.logger.Error("answering failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error(), h.logger)
		return
	}

	if resp.Sources == nil {
		resp.Sources = []answer.Source{}
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// SSE event types for answer streaming.
const (
	eventChunk = "chunk" // partial answer text
	eventDone  = "done"  // final answer plus sources
	eventError = "error" // generation failed
)

type chunkPayload struct {
	Text string `json:"text"`
}

// askStream handles POST /ask/stream, emitting SSE events as the
// answer is generated.
func (h *askHandler) askStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming_unsupported", "streaming not supported", h.logger)
		return
	}

	req := h.parseAsk(w, r)
	if req == nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	resp, err := h.answerer.AskStream(r.Context(), req.Question,
		answer.Options{Scope: req.Scope, K: req.K},
		func(fragment string) {
			h.writeEvent(w, flusher, eventChunk, chunkPayload{Text: fragment})
		})
	if err != nil {
		h.logger.Error("streaming answer failed",
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
		h.writeEvent(w, flusher, eventError, errorResponse{Error: "internal_error", Details: err.Error()})
		return
	}

	if resp.Sources == nil {
		resp.Sources = []answer.Source{}
	}
	h.writeEvent(w, flusher, eventDone, resp)
}

// writeEvent writes one SSE event and flushes it to the client.
func (h *askHandler) writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to marshal SSE payload", "event", event, "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n")); err != nil {
		h.logger.Debug("failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}
