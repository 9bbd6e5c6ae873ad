package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"salon-leads/internal/leads"

	"github.com/redis/go-redis/v9"
)

// CountsCache stores computed counts by key. Get reports the cache generation it looked in;
// Set writes under that generation, so counts computed before an Invalidate are never
// served after it.
type CountsCache interface {
	Get(ctx context.Context, key string) (c Counts, gen int64, ok bool, err error)
	Set(ctx context.Context, key string, gen int64, c Counts) error
	Invalidate(ctx context.Context) error
}

// cacheKey identifies a counts request by viewer and the filter fields buckets keep.
func cacheKey(viewerID string, base leads.Filter) string {
	f := BucketFilter(BucketAll, "", base.Normalize())
	parts := struct {
		Viewer   string `json:"v"`
		Search   string `json:"q"`
		Source   string `json:"s"`
		Location string `json:"l"`
		From     int64  `json:"f"`
		To       int64  `json:"t"`
	}{Viewer: viewerID, Search: f.Search, Source: f.Source, Location: f.Location}
	if f.CreatedFrom != nil {
		parts.From = f.CreatedFrom.UnixMicro()
	}
	if f.CreatedTo != nil {
		parts.To = f.CreatedTo.UnixMicro()
	}
	b, _ := json.Marshal(parts)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16])
}

const (
	generationKey = "salon:counts:gen"
	countsPrefix  = "salon:counts:"
)

// RedisCountsCache keys entries by a generation number that Invalidate bumps with INCR, so a
// write makes all earlier entries unreachable in one round-trip. Entries also expire after
// ttl, which bounds staleness if an invalidation is lost.
type RedisCountsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCountsCache(rdb *redis.Client, ttl time.Duration) (*RedisCountsCache, error) {
	if rdb == nil {
		return nil, errors.New("query: redis client is required")
	}
	if ttl <= 0 {
		return nil, errors.New("query: counts ttl must be > 0")
	}
	return &RedisCountsCache{rdb: rdb, ttl: ttl}, nil
}

func (c *RedisCountsCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counts generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCountsCache) entryKey(gen int64, key string) string {
	return countsPrefix + strconv.FormatInt(gen, 10) + ":" + key
}

func (c *RedisCountsCache) Get(ctx context.Context, key string) (Counts, int64, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return Counts{}, 0, false, err
	}
	raw, err := c.rdb.Get(ctx, c.entryKey(gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Counts{}, gen, false, nil
	}
	if err != nil {
		return Counts{}, gen, false, fmt.Errorf("read counts: %w", err)
	}
	var out Counts
	if err := json.Unmarshal(raw, &out); err != nil {
		return Counts{}, gen, false, fmt.Errorf("decode counts: %w", err)
	}
	return out, gen, true, nil
}

// Set stores counts under gen. If an invalidation landed after gen was read, the entry goes
// to a generation nobody reads any more.
func (c *RedisCountsCache) Set(ctx context.Context, key string, gen int64, counts Counts) error {
	b, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, c.entryKey(gen, key), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("write counts: %w", err)
	}
	return nil
}

func (c *RedisCountsCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, generationKey).Err(); err != nil {
		return fmt.Errorf("bump counts generation: %w", err)
	}
	return nil
}
