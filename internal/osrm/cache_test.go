package osrm

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"

	"logiflow/internal/model"
)

type countingProvider struct {
	calls    int
	fallback bool
}

func (c *countingProvider) FetchMatrix(ctx context.Context, locations []model.GeoPoint, metric Metric) (MatrixResult, error) {
	c.calls++
	return MatrixResult{Matrix: HaversineMatrix(locations), Fallback: c.fallback, Reason: "test"}, nil
}

func TestCacheHitsOnRepeat(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingProvider{}
	c := NewCache(next, rdb, time.Minute)
	locs := []model.GeoPoint{{Lat: 33.57, Lon: -7.59}, {Lat: 33.58, Lon: -7.6}}

	first, err := c.FetchMatrix(context.Background(), locs, MetricDistance)
	if err != nil {
		t.Fatalf("FetchMatrix: %v", err)
	}
	second, err := c.FetchMatrix(context.Background(), locs, MetricDistance)
	if err != nil {
		t.Fatalf("FetchMatrix: %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("second fetch should hit the cache, upstream calls=%d", next.calls)
	}
	if first.Matrix[0][1] != second.Matrix[0][1] {
		t.Fatal("cached matrix differs")
	}

	// a different metric is a different key
	if _, err := c.FetchMatrix(context.Background(), locs, MetricDuration); err != nil {
		t.Fatalf("FetchMatrix: %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("metric must partition the cache, calls=%d", next.calls)
	}
}

func TestCacheSkipsFallbackResults(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingProvider{fallback: true}
	c := NewCache(next, rdb, time.Minute)
	locs := []model.GeoPoint{{Lat: 33.57, Lon: -7.59}, {Lat: 33.58, Lon: -7.6}}

	for i := 0; i < 2; i++ {
		res, err := c.FetchMatrix(context.Background(), locs, MetricDistance)
		if err != nil {
			t.Fatalf("FetchMatrix: %v", err)
		}
		if !res.Fallback {
			t.Fatal("fallback flag lost")
		}
	}
	if next.calls != 2 {
		t.Fatalf("fallback results must not be cached, calls=%d", next.calls)
	}
}
