package osrm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"logiflow/internal/model"
)

// Cache wraps a MatrixProvider with a Redis cache keyed by the exact location
// list and metric. Only genuine remote matrices are cached; fallback results
// are recomputed each time so a recovered oracle is picked up immediately.
type Cache struct {
	next MatrixProvider
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCache(next MatrixProvider, rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl}
}

func (c *Cache) FetchMatrix(ctx context.Context, locations []model.GeoPoint, metric Metric) (MatrixResult, error) {
	key := cacheKey(locations, metric)
	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var res MatrixResult
		if json.Unmarshal(data, &res) == nil && len(res.Matrix) == max(len(locations), 1) {
			return res, nil
		}
	}

	res, err := c.next.FetchMatrix(ctx, locations, metric)
	if err != nil {
		return res, err
	}
	if !res.Fallback {
		if data, err := json.Marshal(res); err == nil {
			_ = c.rdb.Set(ctx, key, data, c.ttl).Err()
		}
	}
	return res, nil
}

func cacheKey(locations []model.GeoPoint, metric Metric) string {
	h := sha256.New()
	for _, l := range locations {
		fmt.Fprintf(h, "%f,%f;", l.Lon, l.Lat)
	}
	return "osrm:" + string(metric) + ":" + hex.EncodeToString(h.Sum(nil))
}
