package osrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"logiflow/internal/model"
)

// Matrix is a square cost matrix over an ordered location list, depot first.
type Matrix [][]int64

// SentinelCost replaces null matrix cells. It effectively forbids the arc
// without rejecting the whole response.
const SentinelCost = int64(1) << 30

// Metric selects which table annotation a request asks for.
type Metric string

const (
	MetricDistance Metric = "distance"
	MetricDuration Metric = "duration"
)

// ErrInvalidLocation is returned when an input coordinate is missing or not a
// finite number. It is the only error FetchMatrix can return; remote failures
// degrade to the Haversine fallback instead.
var ErrInvalidLocation = errors.New("osrm: invalid location")

// MatrixResult carries either a sanitized remote matrix or a geometric
// fallback, with the reason the fallback was taken.
type MatrixResult struct {
	Matrix   Matrix `json:"matrix"`
	Fallback bool   `json:"fallback"`
	Reason   string `json:"reason,omitempty"`
}

// MatrixProvider is the oracle boundary the planner consumes.
type MatrixProvider interface {
	FetchMatrix(ctx context.Context, locations []model.GeoPoint, metric Metric) (MatrixResult, error)
}

// Client talks to an OSRM-compatible table endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a Client with a bounded request timeout and a small
// outbound rate limit so batch planning cannot hammer a public OSRM instance.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://router.project-osrm.org"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

type tableResponse struct {
	Code      string       `json:"code"`
	Distances [][]*float64 `json:"distances"`
	Durations [][]*float64 `json:"durations"`
}

// FetchMatrix returns a square matrix for the given metric over locations.
// The remote service is consulted first; any failure (timeout, non-Ok code,
// malformed matrix) falls back to a great-circle estimate. The result always
// has len(locations) rows, or [[]] for zero locations.
func (c *Client) FetchMatrix(ctx context.Context, locations []model.GeoPoint, metric Metric) (MatrixResult, error) {
	if len(locations) == 0 {
		return MatrixResult{Matrix: Matrix{{}}}, nil
	}
	for i, l := range locations {
		if !l.Valid() {
			return MatrixResult{}, fmt.Errorf("%w: index %d", ErrInvalidLocation, i)
		}
	}

	raw, err := c.fetchTable(ctx, locations, metric)
	if err != nil {
		return fallbackMatrix(locations, metric, err.Error()), nil
	}
	m, err := Sanitize(raw, len(locations))
	if err != nil {
		return fallbackMatrix(locations, metric, err.Error()), nil
	}
	return MatrixResult{Matrix: m}, nil
}

func (c *Client) fetchTable(ctx context.Context, locations []model.GeoPoint, metric Metric) ([][]*float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	// OSRM wants lon,lat;lon,lat;...
	coords := make([]string, len(locations))
	for i, l := range locations {
		coords[i] = fmt.Sprintf("%f,%f", l.Lon, l.Lat)
	}
	url := fmt.Sprintf("%s/table/v1/driving/%s?annotations=distance,duration", c.baseURL, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("osrm: status %d", resp.StatusCode)
	}

	var tr tableResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("osrm: decode: %w", err)
	}
	if tr.Code != "Ok" {
		return nil, fmt.Errorf("osrm: code %q", tr.Code)
	}
	switch metric {
	case MetricDuration:
		return tr.Durations, nil
	default:
		return tr.Distances, nil
	}
}

// Sanitize validates a raw table and coerces it to integer costs. The matrix
// must be n×n with finite non-negative cells; null cells become SentinelCost
// (0 on the diagonal). Any other shape or value rejects the whole response.
func Sanitize(raw [][]*float64, n int) (Matrix, error) {
	if len(raw) != n {
		return nil, fmt.Errorf("osrm: matrix has %d rows, want %d", len(raw), n)
	}
	out := make(Matrix, n)
	for i, row := range raw {
		if len(row) != n {
			return nil, fmt.Errorf("osrm: row %d has %d cells, want %d", i, len(row), n)
		}
		out[i] = make([]int64, n)
		for j, cell := range row {
			if cell == nil {
				if i == j {
					out[i][j] = 0
				} else {
					out[i][j] = SentinelCost
				}
				continue
			}
			v := *cell
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("osrm: bad cell [%d][%d]=%v", i, j, v)
			}
			out[i][j] = int64(math.Round(v))
		}
	}
	return out, nil
}

func fallbackMatrix(locations []model.GeoPoint, metric Metric, reason string) MatrixResult {
	dist := HaversineMatrix(locations)
	m := dist
	if metric == MetricDuration {
		m = DurationFromDistance(dist)
	}
	return MatrixResult{Matrix: m, Fallback: true, Reason: reason}
}
