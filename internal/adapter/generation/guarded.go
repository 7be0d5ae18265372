package generation

import (
	"context"
	"log/slog"

	"devsolver/internal/adapter/retry"
	"devsolver/internal/port"
)

// Guarded rate limits and retries a TextGenerator. Unlike embeddings there
// is no fallback value, so the last error is returned.
type Guarded struct {
	inner   port.TextGenerator
	limiter port.Limiter
	policy  retry.Policy
	logger  *slog.Logger
}

func NewGuarded(inner port.TextGenerator, limiter port.Limiter, policy retry.Policy, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{inner: inner, limiter: limiter, policy: policy, logger: logger}
}

func (g *Guarded) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	attempt := 0
	out, err := retry.Do(ctx, g.policy, func(ctx context.Context) (string, error) {
		attempt++
		if g.limiter != nil {
			if _, err := g.limiter.Acquire(ctx); err != nil {
				return "", err
			}
		}
		out, err := g.inner.Generate(ctx, systemPrompt, userPrompt)
		if err != nil {
			g.logger.Debug("generation attempt failed", "model", g.inner.ModelName(), "attempt", attempt, "error", err)
		}
		return out, err
	})
	if err != nil && ctx.Err() == nil {
		g.logger.Error("generation failed", "model", g.inner.ModelName(), "attempts", attempt, "error", err)
	}
	return out, err
}

func (g *Guarded) ModelName() string { return g.inner.ModelName() }
