package query

import (
	"context"
	"errors"

	"salon-leads/internal/leads"
	"salon-leads/internal/metrics"
	"salon-leads/pkg/logger"
)

// Reader is the read side of the lead store.
type Reader interface {
	List(ctx context.Context, f leads.Filter) ([]leads.Lead, error)
	Count(ctx context.Context, f leads.Filter) (int, error)
}

// Service serves filtered lists and bucket counts. Counts may be served from a cache and so
// lag writes by at most the cache TTL; lists are always read from the store.
type Service struct {
	reader  Reader
	cache   CountsCache
	metrics *metrics.Metrics
}

// NewService builds a query service. cache may be nil, in which case counts are
// recomputed on every read.
func NewService(reader Reader, cache CountsCache, m *metrics.Metrics) *Service {
	return &Service{reader: reader, cache: cache, metrics: m}
}

func (s *Service) List(ctx context.Context, f leads.Filter) ([]leads.Lead, error) {
	return s.reader.List(ctx, f)
}

// ErrViewerRequired is returned for the my_leads bucket without an acting user.
var ErrViewerRequired = errors.New("query: my_leads needs a viewer")

func (s *Service) ListBucket(ctx context.Context, b Bucket, viewerID string, base leads.Filter) ([]leads.Lead, error) {
	if b == BucketMyLeads && viewerID == "" {
		return nil, ErrViewerRequired
	}
	return s.reader.List(ctx, BucketFilter(b, viewerID, base))
}

// Counts computes every bucket count for viewerID with the same predicates as ListBucket.
func (s *Service) Counts(ctx context.Context, viewerID string, base leads.Filter) (Counts, error) {
	key := cacheKey(viewerID, base)
	cacheable := false
	var gen int64
	if s.cache != nil {
		c, g, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			logger.From(ctx).Warn("counts cache read failed", "err", err)
		case ok:
			s.metrics.CacheHit()
			return c, nil
		default:
			cacheable, gen = true, g
		}
		s.metrics.CacheMiss()
	}

	var out Counts
	for _, b := range Buckets {
		if b == BucketMyLeads && viewerID == "" {
			continue
		}
		n, err := s.reader.Count(ctx, BucketFilter(b, viewerID, base))
		if err != nil {
			return Counts{}, err
		}
		out.set(b, n)
	}

	if cacheable {
		if err := s.cache.Set(ctx, key, gen, out); err != nil {
			logger.From(ctx).Warn("counts cache write failed", "err", err)
		}
	}
	return out, nil
}

// Invalidate drops every cached count. The assignment engine and intake call it after writes.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}
