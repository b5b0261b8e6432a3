package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrPoolStopped = errors.New("rate limit pool is stopped")

type ServiceRequest struct {
	Func func(ctx context.Context) error
	Err  chan error
}

// MemoryBasedRateLimitPool hands out NumTokensPerKey tokens per key, all of them
// restored every RefreshIntv. Its state is owned by the goroutine started by Run.
type MemoryBasedRateLimitPool struct {
	serviceChan     chan chan ServiceRequest
	tokensMap       map[string]int
	RefreshIntv     time.Duration
	NumTokensPerKey int
}

func NewMemoryBasedRateLimitPool(refreshIntv time.Duration, numTokensPerKey int) *MemoryBasedRateLimitPool {
	return &MemoryBasedRateLimitPool{
		serviceChan:     make(chan chan ServiceRequest),
		tokensMap:       make(map[string]int),
		RefreshIntv:     refreshIntv,
		NumTokensPerKey: numTokensPerKey,
	}
}

func (pool *MemoryBasedRateLimitPool) refresh() {
	pool.tokensMap = make(map[string]int)
}

func (pool *MemoryBasedRateLimitPool) doConsume(key string) int {
	numTokens, exists := pool.tokensMap[key]
	if !exists {
		numTokens = pool.NumTokensPerKey
	}
	if numTokens > 0 {
		numTokens--
		pool.tokensMap[key] = numTokens
		return numTokens
	}
	return -1
}

func (pool *MemoryBasedRateLimitPool) Run(ctx context.Context) {
	go func(ctx context.Context) {
		defer close(pool.serviceChan)

		ticker := time.NewTicker(pool.RefreshIntv)
		defer ticker.Stop()

		for {
			serviceSubChan := make(chan ServiceRequest)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pool.refresh()
			case pool.serviceChan <- serviceSubChan:
				serviceRequest := <-serviceSubChan
				err := serviceRequest.Func(ctx)
				serviceRequest.Err <- err
			}
		}
	}(ctx)
}

func (pool *MemoryBasedRateLimitPool) do(ctx context.Context, fn func(ctx context.Context) error) error {
	var serviceCh chan ServiceRequest
	var ok bool
	select {
	case <-ctx.Done():
		return ctx.Err()
	case serviceCh, ok = <-pool.serviceChan:
		if !ok {
			return ErrPoolStopped
		}
	}

	serviceRequest := ServiceRequest{Func: fn, Err: make(chan error, 1)}
	serviceCh <- serviceRequest
	return <-serviceRequest.Err
}

func (pool *MemoryBasedRateLimitPool) Consume(ctx context.Context, key string) (bool, error) {
	var allowed bool
	err := pool.do(ctx, func(ctx context.Context) error {
		allowed = pool.doConsume(key) >= 0
		return nil
	})
	return allowed, err
}
