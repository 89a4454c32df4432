package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"vitalsup/internal/metrics"
	"vitalsup/internal/proxy"
	"vitalsup/internal/triage"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

const (
	msgInvalidUpdates   = "Invalid updates array."
	msgTriageUpdated    = "Triage statuses updated successfully."
	msgInputRequired    = "Input field is required and must be a non-empty string"
	msgNotConfigured    = "Supabase environment variables not configured"
	msgInternalError    = "Internal server error"
	msgMethodNotAllowed = "Method not allowed"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleFinalizeAPI commits a batch of triage decisions. The batch is
// validated as a whole before the first write.
func (s *Server) handleFinalizeAPI(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Updates json.RawMessage `json:"updates"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgInvalidUpdates})
		return
	}

	entries, err := triage.Plan(body.Updates)
	if err != nil {
		var planErr *triage.PlanError
		if errors.As(err, &planErr) {
			writeJSON(w, http.StatusBadRequest, messageResponse{Message: planErr.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgInvalidUpdates})
		return
	}

	if _, err := s.finalizer.Finalize(r.Context(), entries); err != nil {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: finalizeFailure(err)})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: msgTriageUpdated})
}

func finalizeFailure(err error) string {
	var itemErr *triage.ItemError
	if errors.As(err, &itemErr) {
		return fmt.Sprintf("Failed to update article %s: %v", itemErr.ID, itemErr.Err)
	}
	return err.Error()
}

func (s *Server) handleTriageMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: msgMethodNotAllowed})
}

// handleProcessArticle relays a lookup to the resolver function and returns
// its answer unchanged.
func (s *Server) handleProcessArticle(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInputRequired})
		return
	}
	if _, ok := parseInput(raw); !ok {
		metrics.RecordProxy("400")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgInputRequired})
		return
	}

	resp, err := s.forward(r, raw)
	if err != nil {
		msg := msgInternalError
		if errors.Is(err, proxy.ErrNotConfigured) {
			msg = msgNotConfigured
		}
		metrics.RecordProxy("500")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
		return
	}

	metrics.RecordProxy(strconv.Itoa(resp.StatusCode))
	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func (s *Server) handleProcessMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: msgMethodNotAllowed})
}

// forward sends body to the resolver function. Missing configuration is
// reported as proxy.ErrNotConfigured before any network call.
func (s *Server) forward(r *http.Request, body []byte) (*proxy.Response, error) {
	if s.proxy == nil || !s.proxy.Configured() {
		return nil, proxy.ErrNotConfigured
	}
	resp, err := s.proxy.Forward(r.Context(), body)
	if err != nil {
		s.logger.Error("Error processing article", zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// parseInput accepts a JSON object whose input field is a string that is
// not blank.
func parseInput(raw []byte) (string, bool) {
	var body struct {
		Input any `json:"input"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", false
	}
	input, ok := body.Input.(string)
	if !ok || strings.TrimSpace(input) == "" {
		return "", false
	}
	return input, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
