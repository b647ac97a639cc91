package consensus

import "github.com/lumitrade/aiquorum/internal/llm"

// ProviderStatus is the introspection record for one configured provider.
type ProviderStatus struct {
	ID                     string     `json:"id"`
	ConfiguredWeight       float64    `json:"configured_weight"`
	EffectiveWeightIfAlone float64    `json:"effective_weight_if_alone"`
	Available              bool       `json:"available"`
	LastErrorKind          llm.Status `json:"last_error_kind,omitempty"`
}

// ProviderStatus snapshots every enabled provider's weight and session
// availability. It never mutates state.
func (e *Engine) ProviderStatus() []ProviderStatus {
	states := e.avail.Snapshot()

	out := make([]ProviderStatus, 0, len(e.providers))
	for _, p := range e.providers {
		st := states[p.ID]
		alone := 0.0
		if p.Weight > 0 {
			alone = 1.0
		}
		out = append(out, ProviderStatus{
			ID:                     p.ID,
			ConfiguredWeight:       p.Weight,
			EffectiveWeightIfAlone: alone,
			Available:              st.Available,
			LastErrorKind:          st.LastStatus,
		})
	}
	return out
}
