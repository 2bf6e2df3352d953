package osrm

import (
	"math"

	"logiflow/internal/model"
)

// fallbackSpeedMS is the assumed average speed (50 km/h) used to derive
// durations when only geometric distances are available.
const fallbackSpeedMS = 50000.0 / 3600.0

// HaversineKm returns the great-circle distance between two points in km.
func HaversineKm(a, b model.GeoPoint) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// HaversineMatrix builds a distance matrix in meters from raw coordinates.
func HaversineMatrix(locations []model.GeoPoint) Matrix {
	n := len(locations)
	out := make(Matrix, n)
	for i := range out {
		out[i] = make([]int64, n)
		for j := range out[i] {
			if i == j {
				continue
			}
			out[i][j] = int64(HaversineKm(locations[i], locations[j]) * 1000)
		}
	}
	return out
}

// DurationFromDistance estimates a duration matrix in seconds from a distance
// matrix in meters, assuming the fallback average speed.
func DurationFromDistance(dist Matrix) Matrix {
	out := make(Matrix, len(dist))
	for i, row := range dist {
		out[i] = make([]int64, len(row))
		for j, d := range row {
			out[i][j] = int64(float64(d) / fallbackSpeedMS)
		}
	}
	return out
}
