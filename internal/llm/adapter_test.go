package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIBody(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
		"usage": map[string]int{
			"prompt_tokens":     120,
			"completion_tokens": 40,
			"total_tokens":      160,
		},
	}
	out, _ := json.Marshal(resp)
	return string(out)
}

func TestOpenAICallOK(t *testing.T) {
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Write([]byte(openAIBody("DIRECTION: LONG\nCONFIDENCE: 80")))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 5*time.Second, 0)
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, "chatgpt", reply.ProviderID)
	assert.Equal(t, "DIRECTION: LONG\nCONFIDENCE: 80", reply.RawText)
	assert.Equal(t, 160, reply.Usage.TotalTokens)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Greater(t, reply.Latency, time.Duration(0))
}

func TestOpenAIErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       Status
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, StatusAuth},
		{"forbidden", http.StatusForbidden, `{"error":"nope"}`, StatusAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`, StatusRateLimit},
		{"quota exhausted", http.StatusTooManyRequests, `{"error":{"message":"You exceeded your current quota, check billing"}}`, StatusQuota},
		{"server error", http.StatusInternalServerError, `oops`, StatusServer},
		{"bad gateway", http.StatusBadGateway, ``, StatusServer},
		{"bad request", http.StatusBadRequest, `{"error":"invalid"}`, StatusServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 5*time.Second, 0)
			reply := a.Call(context.Background(), "prompt")
			assert.Equal(t, tt.want, reply.Status)
			assert.Empty(t, reply.RawText)
		})
	}
}

func TestOpenAIEmptyChoicesIsParseUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 5*time.Second, 0)
	reply := a.Call(context.Background(), "prompt")
	assert.Equal(t, StatusParseUnavailable, reply.Status)
}

func TestOpenAITimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(openAIBody("late")))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 50*time.Millisecond, 0)
	start := time.Now()
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusTimeout, reply.Status)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestOpenAIZeroTimeoutSkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 0, 0)
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusTimeout, reply.Status)
	assert.Equal(t, int64(0), calls.Load())
}

func TestOpenAITransportError(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", time.Second, 0)
	reply := a.Call(context.Background(), "prompt")
	assert.Equal(t, StatusTransport, reply.Status)
}

func TestOpenAIRetriesRateLimitOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limit"}}`))
			return
		}
		w.Write([]byte(openAIBody("DIRECTION: LONG\nCONFIDENCE: 70")))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 5*time.Second, 1)
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, int64(2), calls.Load())
}

func TestOpenAIRetryStaysInsideCallDeadline(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	// Both attempts share one deadline: with a 200ms timeout the retry backoff
	// hits the deadline first, so the second attempt never fires.
	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 200*time.Millisecond, 1)
	start := time.Now()
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusTimeout, reply.Status)
	assert.Equal(t, int64(1), calls.Load())
	assert.Less(t, time.Since(start), 450*time.Millisecond)
}

func TestOpenAINoRetryWhenDisabled(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 5*time.Second, 0)
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusRateLimit, reply.Status)
	assert.Equal(t, int64(1), calls.Load())
}

func TestAnthropicCallOK(t *testing.T) {
	var gotKey, gotVersion, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		gotPath = r.URL.Path
		resp := map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "DIRECTION: SHORT\nCONFIDENCE: 65"}},
			"usage":   map[string]int{"input_tokens": 100, "output_tokens": 30},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewAnthropicAdapter("claude", "sk-ant", srv.URL, "", 5*time.Second, 0)
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, "DIRECTION: SHORT\nCONFIDENCE: 65", reply.RawText)
	assert.Equal(t, 130, reply.Usage.TotalTokens)
	assert.Equal(t, "sk-ant", gotKey)
	assert.Equal(t, anthropicAPIVersion, gotVersion)
	assert.Equal(t, "/messages", gotPath)
}

func TestGeminiCallOK(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": "DIRECTION: NEUTRAL\nCONFIDENCE: 45"}},
				}},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount": 90, "candidatesTokenCount": 25, "totalTokenCount": 115,
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := NewGeminiAdapter("gemini", "g-key", srv.URL, "gemini-2.0-flash", 5*time.Second, 0)
	reply := a.Call(context.Background(), "prompt")

	require.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, "DIRECTION: NEUTRAL\nCONFIDENCE: 45", reply.RawText)
	assert.Equal(t, 115, reply.Usage.TotalTokens)
	assert.Equal(t, "/models/gemini-2.0-flash:generateContent", gotPath)
	assert.Equal(t, "g-key", gotKey)
}

func TestClassifyHTTP(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		want       Status
	}{
		{"ok", http.StatusOK, ``, StatusOK},
		{"created", http.StatusCreated, ``, StatusOK},
		{"no content", http.StatusNoContent, ``, StatusOK},
		{"unauthorized", http.StatusUnauthorized, ``, StatusAuth},
		{"forbidden", http.StatusForbidden, ``, StatusAuth},
		{"plain 429", http.StatusTooManyRequests, `{"error":"slow down"}`, StatusRateLimit},
		{"quota 429", http.StatusTooManyRequests, `{"error":"quota exceeded"}`, StatusQuota},
		{"billing 429", http.StatusTooManyRequests, `{"error":"check your Billing"}`, StatusQuota},
		{"bad request", http.StatusBadRequest, ``, StatusServer},
		{"not found", http.StatusNotFound, ``, StatusServer},
		{"server error", http.StatusInternalServerError, ``, StatusServer},
		{"bad gateway", http.StatusBadGateway, ``, StatusServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyHTTP(tt.statusCode, []byte(tt.body)))
		})
	}
}

func TestOpenAINonCanonicalSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(openAIBody("DIRECTION: LONG\nCONFIDENCE: 75")))
	}))
	defer srv.Close()

	a := NewOpenAIAdapter("chatgpt", "sk-test", srv.URL, "", 5*time.Second, 0)
	reply := a.Call(context.Background(), "prompt")

	assert.Equal(t, StatusOK, reply.Status)
	assert.Equal(t, "DIRECTION: LONG\nCONFIDENCE: 75", reply.RawText)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusAuth.SessionFatal())
	assert.True(t, StatusQuota.SessionFatal())
	assert.False(t, StatusTimeout.SessionFatal())
	assert.False(t, StatusServer.SessionFatal())
	assert.True(t, StatusRateLimit.Retryable())
	assert.False(t, StatusServer.Retryable())
}
