package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4o"

	// One prompt in, one short structured verdict out.
	maxCompletionTokens = 1024
)

// OpenAIAdapter speaks the OpenAI chat-completions API for the "chatgpt"
// provider slot.
type OpenAIAdapter struct {
	*baseClient
	apiKey  string
	baseURL string
	model   string
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// NewOpenAIAdapter builds the chatgpt adapter. baseURL and model fall back to
// production defaults when empty.
func NewOpenAIAdapter(id, apiKey, baseURL, model string, timeout time.Duration, maxRetries int) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAIAdapter{
		baseClient: newBaseClient(id, timeout, maxRetries),
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
	}
}

func (a *OpenAIAdapter) ID() string { return a.id }

// Call sends the prompt and maps the outcome onto the status taxonomy.
func (a *OpenAIAdapter) Call(ctx context.Context, prompt string) ProviderReply {
	start := time.Now()

	payload, err := json.Marshal(openAIRequest{
		Model: a.model,
		Messages: []openAIMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxCompletionTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return ProviderReply{ProviderID: a.id, Status: StatusTransport, Err: err, Latency: time.Since(start)}
	}

	res, status, err := a.execute(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", jsonBody(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
		return req, nil
	})

	reply := ProviderReply{ProviderID: a.id, Status: status, Err: err, Latency: time.Since(start)}
	if status != StatusOK {
		return reply
	}

	var parsed openAIResponse
	if err := json.Unmarshal(res.body, &parsed); err != nil || len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		reply.Status = StatusParseUnavailable
		reply.Err = err
		return reply
	}

	reply.RawText = parsed.Choices[0].Message.Content
	reply.Usage = Usage{
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}
	return reply
}
