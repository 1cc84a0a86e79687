package usersat

import (
	"math"
	"time"

	"github.com/star/orbitwatch/internal/tle"
	"github.com/star/orbitwatch/internal/transform"
)

const (
	EarthRadiusKm = tle.EarthRadiusKm
	MuEarth       = tle.MuEarth
)

// OrbitState is a user body's position at some elapsed simulated time.
// Altitude is geocentric (|r| − EarthRadiusKm), the quantity the admission
// check and the collision distances are expressed in.
type OrbitState struct {
	X                   float64 `json:"x"`
	Y                   float64 `json:"y"`
	Z                   float64 `json:"z"`
	VX                  float64 `json:"vx"`
	VY                  float64 `json:"vy"`
	VZ                  float64 `json:"vz"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	Altitude            float64 `json:"altitude"`
	AltitudeEllipsoidal float64 `json:"altitude_ellipsoidal"`
	Velocity            float64 `json:"velocity"`
}

// CircularVelocity returns the speed (km/s) of a circular orbit of radius r
// km, slowed by up to 20% for bodies heavier than 1000 kg.
func CircularVelocity(r, mass float64) float64 {
	base := math.Sqrt(MuEarth / r)
	factor := 1 / (1 + 0.02*math.Log10(mass/1000))
	return base * math.Max(0.8, math.Min(1.0, factor))
}

// OrbitalPeriod returns the period in seconds of a circular orbit of radius r km.
func OrbitalPeriod(r float64) float64 {
	return 2 * math.Pi * math.Sqrt(r*r*r/MuEarth)
}

// Propagate advances sat along its offset-z circle by elapsedSeconds.
//
// The body sweeps a circle of radius √(x0²+y0²) in the plane z = z0 at the
// angular rate v/r, where r is the full radius at creation. Longitude is
// taken against the sidereal angle at CreatedAt + elapsedSeconds.
func Propagate(sat Satellite, elapsedSeconds float64) OrbitState {
	r := math.Sqrt(sat.X*sat.X + sat.Y*sat.Y + sat.Z*sat.Z)
	v := CircularVelocity(r, sat.Mass)
	omega := v / r

	angle := math.Atan2(sat.Y, sat.X) + omega*elapsedSeconds
	planeRadius := math.Sqrt(sat.X*sat.X + sat.Y*sat.Y)
	sin, cos := math.Sincos(angle)

	x := planeRadius * cos
	y := planeRadius * sin
	z := sat.Z

	at := sat.CreatedAt.Add(time.Duration(elapsedSeconds * float64(time.Second)))
	geo := transform.ECIToGeodetic(x, y, z, at)

	return OrbitState{
		X:                   x,
		Y:                   y,
		Z:                   z,
		VX:                  -v * sin,
		VY:                  v * cos,
		VZ:                  0,
		Latitude:            geo.Latitude,
		Longitude:           geo.Longitude,
		Altitude:            geo.GeocentricAltitude,
		AltitudeEllipsoidal: geo.EllipsoidalAltitude,
		Velocity:            v,
	}
}
