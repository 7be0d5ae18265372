package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"devsolver/internal/adapter/retry"
	"devsolver/internal/domain"
	"devsolver/internal/port"
)

const defaultBatchSize = 3

// Guarded wraps a provider with a result cache, a rate limiter and a retry
// policy. Provider failures never surface: once retries are exhausted the
// zero sentinel is returned and the failure is logged. Only context errors
// are returned to the caller.
type Guarded struct {
	inner     port.EmbeddingProvider
	limiter   port.Limiter
	policy    retry.Policy
	cache     *lru.Cache[string, domain.EmbeddingVector]
	batchSize int
	logger    *slog.Logger
}

// GuardedOption configures a Guarded provider.
type GuardedOption func(*Guarded)

func WithCacheSize(size int) GuardedOption {
	return func(g *Guarded) {
		if size <= 0 {
			g.cache = nil
			return
		}
		if c, err := lru.New[string, domain.EmbeddingVector](size); err == nil {
			g.cache = c
		}
	}
}

func WithBatchSize(size int) GuardedOption {
	return func(g *Guarded) {
		if size > 0 {
			g.batchSize = size
		}
	}
}

func WithRetryPolicy(p retry.Policy) GuardedOption {
	return func(g *Guarded) { g.policy = p }
}

func WithLogger(logger *slog.Logger) GuardedOption {
	return func(g *Guarded) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuarded wraps inner. A nil limiter disables rate limiting.
func NewGuarded(inner port.EmbeddingProvider, limiter port.Limiter, opts ...GuardedOption) *Guarded {
	g := &Guarded{
		inner:     inner,
		limiter:   limiter,
		policy:    retry.DefaultPolicy(),
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	WithCacheSize(1024)(g)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Embed returns the embedding for text, or the zero sentinel when the text
// is blank or the provider keeps failing.
func (g *Guarded) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	if strings.TrimSpace(text) == "" {
		return domain.ZeroVector(g.Dimension()), nil
	}
	if vec, ok := g.cached(text); ok {
		return vec, nil
	}

	vec, err := retry.Do(ctx, g.policy, func(ctx context.Context) (domain.EmbeddingVector, error) {
		if err := g.acquire(ctx); err != nil {
			return nil, err
		}
		return g.inner.Embed(ctx, text)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("embedding failed, using zero vector",
			"model", g.inner.ModelName(),
			"error", err)
		return domain.ZeroVector(g.Dimension()), nil
	}

	g.store(text, vec)
	return vec, nil
}

// EmbedBatch embeds texts in batches of the configured size, one limiter
// acquisition per batch. A failed batch yields zero sentinels for its texts.
func (g *Guarded) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	out := make([]domain.EmbeddingVector, len(texts))

	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = domain.ZeroVector(g.Dimension())
			continue
		}
		if vec, ok := g.cached(text); ok {
			out[i] = vec
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += g.batchSize {
		end := min(start+g.batchSize, len(pending))
		idx := pending[start:end]

		batch := make([]string, len(idx))
		for j, i := range idx {
			batch[j] = texts[i]
		}

		vecs, err := retry.Do(ctx, g.policy, func(ctx context.Context) ([]domain.EmbeddingVector, error) {
			if err := g.acquire(ctx); err != nil {
				return nil, err
			}
			vecs, err := g.inner.EmbedBatch(ctx, batch)
			if err == nil && len(vecs) != len(batch) {
				return nil, retry.Permanent(fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(batch)))
			}
			return vecs, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("batch embedding failed, using zero vectors",
				"model", g.inner.ModelName(),
				"batch", len(batch),
				"error", err)
			for _, i := range idx {
				out[i] = domain.ZeroVector(g.Dimension())
			}
			continue
		}

		for j, i := range idx {
			out[i] = vecs[j]
			g.store(texts[i], vecs[j])
		}
	}

	return out, nil
}

func (g *Guarded) Dimension() int    { return g.inner.Dimension() }
func (g *Guarded) ModelName() string { return g.inner.ModelName() }

func (g *Guarded) acquire(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	_, err := g.limiter.Acquire(ctx)
	return err
}

func (g *Guarded) cached(text string) (domain.EmbeddingVector, bool) {
	if g.cache == nil {
		return nil, false
	}
	return g.cache.Get(text)
}

func (g *Guarded) store(text string, vec domain.EmbeddingVector) {
	if g.cache == nil || vec.IsZero() {
		return
	}
	g.cache.Add(text, vec)
}
