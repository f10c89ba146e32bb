// Package geo computes geographic distances between customers and providers
// and converts them into the banded distance score used by provider ranking.
package geo

import (
	"context"
	"math"
	"time"

	"dispatchcore/platform/apperr"
	"dispatchcore/platform/logger"
)

const earthRadiusKm = 6371.0

// Distance score bands. The banding is a business decision: operators reason
// about catchment rings, not a continuous decay curve.
const (
	nearBandKm = 10.0
	midBandKm  = 30.0
	farBandKm  = 50.0

	nearBandScore   = 20.0
	midBandScore    = 15.0
	farBandScore    = 10.0
	beyondBandScore = 5.0
)

// Service computes distances, optionally via a driving-distance provider.
type Service struct {
	driving DrivingDistanceProvider
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a distance service. The driving provider may be nil, in
// which case all calculations use Haversine.
func NewService(driving DrivingDistanceProvider, log *logger.Logger) *Service {
	return &Service{
		driving: driving,
		log:     log,
		now:     time.Now,
	}
}

// Distance computes the distance between two coordinate pairs.
// Driving-provider failures never reach the caller: the service degrades to
// Haversine and still returns a result.
func (s *Service) Distance(ctx context.Context, from, to Coordinates, opts Options) (Result, error) {
	if !from.Valid() || !to.Valid() {
		return Result{}, apperr.Validation("coordinates out of range").
			WithCode(apperr.CodeInvalidCoordinates).WithOp("geo.Distance")
	}

	if opts.PreferDriving && s.driving != nil {
		meters, err := s.driving.DrivingDistanceMeters(ctx, from, to, opts.TravelMode)
		if err == nil {
			return Result{
				DistanceKm:   round2(meters / 1000.0),
				Method:       MethodDriving,
				CalculatedAt: s.now().UTC(),
			}, nil
		}
		s.log.ExternalFallback("driving-distance", err, string(MethodHaversine))
	}

	return Result{
		DistanceKm:   round2(Haversine(from, to)),
		Method:       MethodHaversine,
		CalculatedAt: s.now().UTC(),
	}, nil
}

// Haversine returns the great-circle distance in kilometers.
func Haversine(from, to Coordinates) float64 {
	lat1 := from.Latitude * math.Pi / 180
	lat2 := to.Latitude * math.Pi / 180
	dLat := (to.Latitude - from.Latitude) * math.Pi / 180
	dLon := (to.Longitude - from.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceScore maps a distance to its scoring band.
// Band boundaries are inclusive on the lower band: exactly 10 km scores 20.
func DistanceScore(km float64) float64 {
	switch {
	case km <= nearBandKm:
		return nearBandScore
	case km <= midBandKm:
		return midBandScore
	case km <= farBandKm:
		return farBandScore
	default:
		return beyondBandScore
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
