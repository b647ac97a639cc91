// Package consensus implements the orchestrator: parallel provider fan-out
// under a shared deadline, dynamic reweighting over the surviving replies,
// and the trade gate that decides whether the signal is actionable.
package consensus

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lumitrade/aiquorum/internal/llm"
)

// ProviderState is one provider's session-level health record.
type ProviderState struct {
	Available   bool       `json:"available"`
	LastStatus  llm.Status `json:"last_error_kind,omitempty"`
	LastErrorAt time.Time  `json:"last_error_at,omitempty"`
}

// availability is the only mutable shared state in the core: the in-memory
// provider disable map. Auth and quota failures flip a provider off for the
// rest of the process; everything else is a single-call failure. Process
// restart resets it to the configured enabled set.
type availability struct {
	mu     sync.RWMutex
	states map[string]*ProviderState
}

func newAvailability(ids []string) *availability {
	states := make(map[string]*ProviderState, len(ids))
	for _, id := range ids {
		states[id] = &ProviderState{Available: true}
	}
	return &availability{states: states}
}

// Available reports whether the provider may be used this request.
func (a *availability) Available(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.states[id]
	return ok && st.Available
}

// RecordFault notes a failed call. Session-fatal statuses disable the
// provider until restart.
func (a *availability) RecordFault(id string, status llm.Status) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.states[id]
	if !ok {
		return
	}
	st.LastStatus = status
	st.LastErrorAt = time.Now().UTC()
	if status.SessionFatal() && st.Available {
		st.Available = false
		log.Warn().Str("provider", id).Str("status", string(status)).
			Msg("Provider disabled for the remainder of the session")
	}
}

// Snapshot returns a copy of every provider state.
func (a *availability) Snapshot() map[string]ProviderState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]ProviderState, len(a.states))
	for id, st := range a.states {
		out[id] = *st
	}
	return out
}
