package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/lumitrade/aiquorum/internal/signal"
)

// handleSignal runs the consensus pipeline for the posted SignalRequest.
// Invalid requests still produce a 200 with a NEUTRAL, non-tradable signal
// carrying an error code; only undecodable JSON is a 400.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	var req signal.SignalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	sig := s.engine.GenerateSignal(r.Context(), &req)
	writeJSON(w, http.StatusOK, sig)
}

// handleProviders returns the provider status snapshot.
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.engine.ProviderStatus(),
	})
}

// handleHealth reports process liveness and cache effectiveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"cache":  s.store.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
