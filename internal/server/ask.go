package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

const (
	msgNoQuestion       = "Please provide a question."
	msgQuestionFailed   = "Failed to process the question."
	msgQuestionTimedOut = "The question timed out."
)

// handleAsk handles POST /api/ask. Failures are mapped onto the error
// taxonomy: 400 for validation, 502 for embedding or generation failures.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, false)
}

// handleAskCompat handles POST /ask. Every upstream failure is a 500 with
// the error text in "details", as v0 clients expect.
func (s *Server) handleAskCompat(w http.ResponseWriter, r *http.Request) {
	s.ask(w, r, true)
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request, compat bool) {
	ctx := r.Context()
	log := logging.FromContext(ctx)
	start := time.Now()

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.observeAsk("invalid", time.Since(start))
		writeJSONError(ctx, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.metrics.observeAsk("invalid", time.Since(start))
		writeJSONError(ctx, w, msgNoQuestion, http.StatusBadRequest)
		return
	}

	s.metrics.askInFlight.Inc()
	defer s.metrics.askInFlight.Dec()

	askCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()

	ans, err := s.asker.Ask(askCtx, rag.Query{Question: req.Question, Documents: req.Documents})
	if err != nil {
		status := statusFor(err)
		outcome := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
		}
		s.metrics.observeAsk(outcome, time.Since(start))
		log.Error("server: ask failed",
			slog.Any("error", err),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		)

		switch {
		case compat:
			writeJSON(ctx, w, http.StatusInternalServerError, errorResponse{Error: msgQuestionFailed, Details: err.Error()})
		case status == http.StatusBadRequest:
			writeJSONError(ctx, w, err.Error(), status)
		case status == http.StatusGatewayTimeout:
			writeJSONError(ctx, w, msgQuestionTimedOut, status)
		default:
			writeJSON(ctx, w, status, errorResponse{Error: msgQuestionFailed, Details: err.Error()})
		}
		return
	}

	outcome := "found"
	if !ans.Found {
		outcome = "not_found"
	}
	s.metrics.observeAsk(outcome, time.Since(start))

	sources := ans.Sources
	if sources == nil {
		sources = []string{}
	}
	writeJSON(ctx, w, http.StatusOK, askResponse{Answer: ans.Text, Found: ans.Found, Sources: sources})
}
