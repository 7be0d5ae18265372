package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsolver/internal/adapter/retry"
)

type embeddingRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions"`
}

func embeddingServer(t *testing.T, dim int, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if code := status.Load(); code != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(int(code))
			_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"test"}}`))
			return
		}
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		// Reverse order to check the index mapping.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[i%dim] = float64(i + 1)
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T, url string, dim int) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: url + "/", Model: "nomic-embed-text", Dimension: dim})
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	var status atomic.Int32
	srv := embeddingServer(t, 4, &status)
	p := newTestProvider(t, srv.URL, 4)

	vecs, err := p.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][1])
	assert.Equal(t, float32(3), vecs[2][2])

	vec, err := p.Embed(context.Background(), "single")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, "nomic-embed-text", p.ModelName())
	assert.Equal(t, 4, p.Dimension())
}

func TestOpenAIProvider_DimensionMismatch(t *testing.T) {
	var status atomic.Int32
	srv := embeddingServer(t, 3, &status)
	p := newTestProvider(t, srv.URL, 4)

	_, err := p.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.True(t, retry.IsPermanent(err))
}

func TestOpenAIProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusTooManyRequests, false},
		{http.StatusInternalServerError, false},
		{http.StatusServiceUnavailable, false},
		{http.StatusUnauthorized, true},
		{http.StatusBadRequest, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var status atomic.Int32
			status.Store(int32(tt.status))
			srv := embeddingServer(t, 4, &status)
			p := newTestProvider(t, srv.URL, 4)

			_, err := p.Embed(context.Background(), "text")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrProviderFailed))
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}

func TestOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrProviderFailed)

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())

	_, err = p.Embed(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}
