package cache

// The cache API, which is a key-value store mapping preview keys to parsed
// feed results. Entries expire a fixed TTL after they were stored.

import (
	"context"
	"time"
)

// DefaultTTL is used when a store is built with a non-positive TTL.
const DefaultTTL = 300 * time.Second

// Store is implemented by every cache backend. Get and Put never fail from the
// caller's point of view: backend errors are logged and reported as a miss or
// dropped write.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Put(ctx context.Context, key string, value V)
	Erase(ctx context.Context, key string)
	Clear(ctx context.Context)
}

// Sweeper drops expired entries and reports how many were removed.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

type options struct {
	now        func() time.Time
	maxEntries int
}

// Option configures a store.
type Option func(*options)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithMaxEntries bounds the number of stored entries. The oldest entry is
// evicted when a Put goes over the bound. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxEntries < 0 {
		o.maxEntries = 0
	}
	return o
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

// expired reports whether an entry stored at storedAt is logically absent at now.
func expired(storedAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(storedAt) >= ttl
}

// RunSweeper calls s.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
