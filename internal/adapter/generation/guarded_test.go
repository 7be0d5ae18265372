package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsolver/internal/adapter/retry"
)

type scriptedGenerator struct {
	errs  []error
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return "", err
	}
	return "answer to " + userPrompt, nil
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }

type countingLimiter struct{ count int }

func (l *countingLimiter) Acquire(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	l.count++
	return 0, nil
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2}
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestGuarded_RetriesTransientFailures(t *testing.T) {
	inner := &scriptedGenerator{errs: []error{errors.New("429"), errors.New("503")}}
	limiter := &countingLimiter{}
	g := NewGuarded(inner, limiter, fastPolicy(), discard())

	out, err := g.Generate(context.Background(), "sys", "q")
	require.NoError(t, err)
	assert.Equal(t, "answer to q", out)
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 3, limiter.count)
	assert.Equal(t, "scripted", g.ModelName())
}

func TestGuarded_ReturnsLastError(t *testing.T) {
	last := errors.New("third")
	inner := &scriptedGenerator{errs: []error{errors.New("first"), errors.New("second"), last}}
	g := NewGuarded(inner, nil, fastPolicy(), discard())

	_, err := g.Generate(context.Background(), "sys", "q")
	assert.ErrorIs(t, err, last)
}

func TestGuarded_PermanentNotRetried(t *testing.T) {
	inner := &scriptedGenerator{errs: []error{retry.Permanent(errors.New("bad request"))}}
	g := NewGuarded(inner, nil, fastPolicy(), discard())

	_, err := g.Generate(context.Background(), "sys", "q")
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestGuarded_CancelledBeforeCall(t *testing.T) {
	inner := &scriptedGenerator{}
	g := NewGuarded(inner, &countingLimiter{}, fastPolicy(), discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Generate(ctx, "sys", "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, inner.calls)
}
