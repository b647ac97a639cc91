// Package llm wraps each remote LLM vendor behind one adapter contract with a
// closed, typed status taxonomy. The orchestrator never sees vendor-specific
// errors; it sees a ProviderReply.
package llm

import (
	"context"
	"time"
)

// Status classifies the outcome of one provider call.
type Status string

const (
	StatusOK               Status = "ok"
	StatusTimeout          Status = "timeout_error"
	StatusAuth             Status = "auth_error"
	StatusRateLimit        Status = "rate_limit_error"
	StatusQuota            Status = "quota_error"
	StatusServer           Status = "server_error"
	StatusParseUnavailable Status = "parse_unavailable"
	StatusTransport        Status = "transport_error"
)

// SessionFatal reports whether the status disables the provider for the rest
// of the process (credentials revoked or budget exhausted; retrying is waste).
func (s Status) SessionFatal() bool {
	return s == StatusAuth || s == StatusQuota
}

// Retryable reports whether the adapter may retry the call once when
// max_retries permits.
func (s Status) Retryable() bool {
	return s == StatusRateLimit
}

// Usage carries token counts when the vendor reports them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderReply is the uniform result of one adapter call. RawText is only
// meaningful when Status is StatusOK.
type ProviderReply struct {
	ProviderID string
	RawText    string
	Latency    time.Duration
	Usage      Usage
	Status     Status

	// Err holds the underlying failure detail for logging; it never crosses
	// the orchestrator boundary as a returned error.
	Err error
}

// Adapter is the single operation the orchestrator uses per provider. Call
// must respect both its configured per-call timeout and the caller's context
// deadline, whichever expires first, and must never return an error: every
// failure mode maps onto the status taxonomy.
type Adapter interface {
	ID() string
	Call(ctx context.Context, prompt string) ProviderReply
}
