package geo

import "time"

// Coordinates is a WGS84 latitude/longitude pair.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether both components are in range.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Method identifies how a distance was computed.
type Method string

const (
	// MethodHaversine is the great-circle default.
	MethodHaversine Method = "haversine"
	// MethodDriving is the external driving-distance provider.
	MethodDriving Method = "driving"
)

// Result is the outcome of a distance calculation.
type Result struct {
	DistanceKm   float64
	Method       Method
	CalculatedAt time.Time
}

// Options controls a distance calculation.
type Options struct {
	// PreferDriving requests the driving-distance provider when configured.
	// Any provider failure falls back to Haversine.
	PreferDriving bool
	TravelMode    string
}
