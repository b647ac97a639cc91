package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel   = "gemini-2.0-flash"
)

// GeminiAdapter speaks the Google generateContent API for the "gemini"
// provider slot.
type GeminiAdapter struct {
	*baseClient
	apiKey  string
	baseURL string
	model   string
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiAdapter builds the gemini adapter.
func NewGeminiAdapter(id, apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *GeminiAdapter {
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiAdapter{
		baseClient: newBaseClient(id, timeout, maxRetries),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
	}
}

func (a *GeminiAdapter) ID() string { return a.id }

// Call sends the prompt and maps the outcome onto the status taxonomy.
func (a *GeminiAdapter) Call(ctx context.Context, prompt string) ProviderReply {
	start := time.Now()

	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: prompt}}},
		},
	})
	if err != nil {
		return ProviderReply{ProviderID: a.id, Status: StatusTransport, Err: err, Latency: time.Since(start)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, a.apiKey)
	res, status, err := a.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, jsonBody(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})

	reply := ProviderReply{ProviderID: a.id, Status: status, Err: err, Latency: time.Since(start)}
	if status != StatusOK {
		return reply
	}

	var parsed geminiResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil ||
		len(parsed.Candidates) == 0 ||
		len(parsed.Candidates[0].Content.Parts) == 0 ||
		parsed.Candidates[0].Content.Parts[0].Text == "" {
		reply.Status = StatusParseUnavailable
		reply.Err = err
		return reply
	}

	reply.RawText = parsed.Candidates[0].Content.Parts[0].Text
	reply.Usage = Usage{
		PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
		CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
	}
	return reply
}
