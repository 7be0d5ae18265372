// Package embedding provides EmbeddingProvider implementations.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"devsolver/internal/adapter/retry"
	"devsolver/internal/domain"
)

var (
	// ErrEmptyText is returned when there is nothing to embed.
	ErrEmptyText = errors.New("empty text")

	// ErrProviderFailed wraps provider responses that cannot be used.
	ErrProviderFailed = errors.New("embedding provider failed")
)

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // empty uses the OpenAI API
	Model     string
	Dimension int
}

// OpenAIProvider embeds text through any OpenAI-compatible /embeddings
// endpoint. It does not retry; wrap it in a Guarded provider for that.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
}

// NewOpenAIProvider creates a provider from explicit settings.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrProviderFailed)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = domain.DefaultDimension
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIProvider{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, retry.Permanent(ErrEmptyText)
		}
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	}
	if strings.HasPrefix(p.model, "text-embedding-3") {
		params.Dimensions = openai.Int(int64(p.dimension))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	vecs := make([]domain.EmbeddingVector, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(vecs) {
			continue
		}
		if len(data.Embedding) != p.dimension {
			return nil, retry.Permanent(fmt.Errorf("%w: got dimension %d, want %d",
				ErrProviderFailed, len(data.Embedding), p.dimension))
		}
		vec := make(domain.EmbeddingVector, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vecs[idx] = vec
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding for input %d", ErrProviderFailed, i)
		}
	}

	return vecs, nil
}

func (p *OpenAIProvider) Dimension() int    { return p.dimension }
func (p *OpenAIProvider) ModelName() string { return p.model }

// classify marks client errors other than rate limiting as permanent.
func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		if code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500 {
			return fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}
		return retry.Permanent(fmt.Errorf("%w: %w", ErrProviderFailed, err))
	}
	return fmt.Errorf("%w: %w", ErrProviderFailed, err)
}
