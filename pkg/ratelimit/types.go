package ratelimit

import (
	"context"
)

type RateLimitPool interface {
	// returns false when the quota of key is exhausted, true otherwise
	// the second return value is error, if any, such as when the pool is stopped
	Consume(ctx context.Context, key string) (bool, error)
}
