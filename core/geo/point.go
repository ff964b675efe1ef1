// Package geo holds the geofence primitives of the check-in flow: coordinates,
// haversine distance and the validator deciding if the device stands on campus.
package geo

import (
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371e3

// Point is a WGS 84 coordinate in degrees.
type Point struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Rounded returns p with both coordinates rounded to 6 decimal places (~11 cm).
func (p Point) Rounded() Point {
	return Point{Latitude: Round6(p.Latitude), Longitude: Round6(p.Longitude)}
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Latitude, p.Longitude)
}

// Round6 rounds x to 6 decimal places, halves away from zero.
func Round6(x float64) float64 {
	return math.Round(x*1e6) / 1e6
}

// Distance returns the great-circle distance between a and b in meters (haversine).
// Out of range coordinates are not validated.
func Distance(a, b Point) float64 {
	lat1Rad := a.Latitude * math.Pi / 180.0
	lat2Rad := b.Latitude * math.Pi / 180.0

	dLat := (b.Latitude - a.Latitude) * math.Pi / 180.0
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius * c
}
