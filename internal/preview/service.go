// Package preview answers feed preview requests, serving repeated requests
// from a TTL cache instead of fetching the feed again.
package preview

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/duganchen/feedpreview/internal/cache"
	"github.com/duganchen/feedpreview/internal/feed"
)

// Fetcher downloads and parses a feed, returning at most limit items.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts feed.Options, limit int) (feed.Items, error)
}

// Service validates requests, consults the cache and calls the fetcher on a
// miss. Only successful fetches are cached.
type Service struct {
	cache   cache.Store[feed.Items]
	fetcher Fetcher
	group   singleflight.Group
	dedupe  bool
	log     zerolog.Logger
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithDedupe collapses concurrent misses for the same key into one fetch.
func WithDedupe(enabled bool) ServiceOption {
	return func(s *Service) {
		s.dedupe = enabled
	}
}

// WithLogger sets the service logger
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = logger
	}
}

// NewService creates a preview service around store and fetcher.
func NewService(store cache.Store[feed.Items], fetcher Fetcher, opts ...ServiceOption) *Service {
	s := &Service{
		cache:   store,
		fetcher: fetcher,
		dedupe:  true,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "preview").Logger()
	return s
}

// Preview returns up to req.Size items of the feed at req.URL.
//
// Errors are ErrInvalidURL or ErrInvalidSize when the request is rejected
// before any fetch, *FetchError when the fetcher fails, and ErrInternal when
// it panics. Failures are never cached.
func (s *Service) Preview(ctx context.Context, req Request) (feed.Items, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	key := req.Key().String()
	if items, ok := s.cache.Get(ctx, key); ok {
		s.log.Debug().Str("url", req.URL).Int("size", req.Size).Msg("cache hit")
		return slices.Clone(items), nil
	}

	if !s.dedupe {
		items, err := s.fetchAndStore(ctx, req, key)
		if err != nil {
			return nil, err
		}
		return slices.Clone(items), nil
	}

	// The shared fetch outlives any single caller, so one caller giving up
	// does not fail the others waiting on the same key.
	ch := s.group.DoChan(key, func() (any, error) {
		return s.fetchAndStore(context.WithoutCancel(ctx), req, key)
	})
	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: req.URL, Err: ctx.Err()}
	case res := <-ch:
		if res.Shared {
			s.log.Debug().Str("url", req.URL).Msg("joined in-flight fetch")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.(feed.Items)), nil
	}
}

func (s *Service) fetchAndStore(ctx context.Context, req Request, key string) (feed.Items, error) {
	s.log.Debug().Str("url", req.URL).Int("size", req.Size).Str("item_tag", req.ItemTag).Msg("cache miss, fetching")

	items, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(items) > req.Size {
		items = items[:req.Size]
	}
	if items == nil {
		items = feed.Items{}
	}
	items = slices.Clip(items)

	s.cache.Put(ctx, key, items)
	s.log.Info().Str("url", req.URL).Int("items", len(items)).Msg("feed previewed")
	return items, nil
}

// fetch calls the fetcher, turning a panic into ErrInternal so one bad feed
// cannot take the process down.
func (s *Service) fetch(ctx context.Context, req Request) (items feed.Items, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("url", req.URL).Interface("panic", r).Msg("fetcher panicked")
			items, err = nil, fmt.Errorf("%w: fetcher panicked: %v", ErrInternal, r)
		}
	}()

	items, err = s.fetcher.Fetch(ctx, req.URL, feed.Options{ItemTag: req.ItemTag}, req.Size)
	if err != nil {
		s.log.Warn().Err(err).Str("url", req.URL).Msg("fetch failed")
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	return items, nil
}
