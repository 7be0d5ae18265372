package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsolver/internal/adapter/retry"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "  Use pd.merge.  "}}]
		}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/", Temperature: 0.1})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "You are a helpful assistant.", "How do I merge?")
	require.NoError(t, err)
	assert.Equal(t, "Use pd.merge.", out)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "How do I merge?", got.Messages[1].Content)
}

func TestOpenAIGenerator_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, false},
		{"server error", http.StatusBadGateway, `{"error":{"message":"bad gateway"}}`, false},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, true},
		{"no choices", http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			g, err := NewOpenAIGenerator(OpenAIConfig{APIKey: "k", BaseURL: srv.URL + "/"})
			require.NoError(t, err)

			_, err = g.Generate(context.Background(), "", "q")
			assert.ErrorIs(t, err, ErrGenerationFailed)
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}

func TestNewOpenAIGenerator_RequiresKey(t *testing.T) {
	_, err := NewOpenAIGenerator(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrGenerationFailed)
}
