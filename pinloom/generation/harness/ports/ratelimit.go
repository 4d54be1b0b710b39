package harnessports

import "context"

// RateLimiter bounds how often a key (a user) may start an orchestration.
type RateLimiter interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}
