package port

import (
	"context"
	"time"
)

// Limiter gates calls to a rate-limited external resource.
type Limiter interface {
	// Acquire blocks until a call is permitted and records it.
	// It returns how long the caller waited.
	Acquire(ctx context.Context) (time.Duration, error)
}
