package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1"
	anthropicDefaultModel   = "claude-sonnet-4-20250514"
	anthropicAPIVersion     = "2023-06-01"
)

// AnthropicAdapter speaks the Anthropic messages API for the "claude"
// provider slot.
type AnthropicAdapter struct {
	*baseClient
	apiKey  string
	baseURL string
	model   string
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicAdapter builds the claude adapter.
func NewAnthropicAdapter(id, apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	if model == "" {
		model = anthropicDefaultModel
	}
	return &AnthropicAdapter{
		baseClient: newBaseClient(id, timeout, maxRetries),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
	}
}

func (a *AnthropicAdapter) ID() string { return a.id }

// Call sends the prompt and maps the outcome onto the status taxonomy.
func (a *AnthropicAdapter) Call(ctx context.Context, prompt string) ProviderReply {
	start := time.Now()

	payload, err := json.Marshal(anthropicRequest{
		Model: a.model,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens: maxCompletionTokens,
	})
	if err != nil {
		return ProviderReply{ProviderID: a.id, Status: StatusTransport, Err: err, Latency: time.Since(start)}
	}

	res, status, err := a.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", jsonBody(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", a.apiKey)
		req.Header.Set("anthropic-version", anthropicAPIVersion)
		return req, nil
	})

	reply := ProviderReply{ProviderID: a.id, Status: status, Err: err, Latency: time.Since(start)}
	if status != StatusOK {
		return reply
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil || len(parsed.Content) == 0 || parsed.Content[0].Text == "" {
		reply.Status = StatusParseUnavailable
		reply.Err = err
		return reply
	}

	reply.RawText = parsed.Content[0].Text
	reply.Usage = Usage{
		PromptTokens:     parsed.Usage.InputTokens,
		CompletionTokens: parsed.Usage.OutputTokens,
		TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
	}
	return reply
}
