package transform

import (
	"math"
	"time"
)

// WGS-84 ellipsoid parameters used for the geodetic conversion.
const (
	EarthRadiusKm       = 6378.137         // equatorial radius, km
	EarthEccentricitySq = 0.00669437999014 // first eccentricity squared
)

// latitudeIterations is the number of fixed-point passes used to refine
// geodetic latitude. Five passes converge to well below a metre for LEO-GEO.
const latitudeIterations = 5

// Geodetic is a position over the rotating Earth.
//
// Two altitude quantities are reported. EllipsoidalAltitude is the height
// above the WGS-84 ellipsoid along the local normal; GeocentricAltitude is
// |r| − EarthRadiusKm and ignores flattening. They differ by up to ~21 km at
// the poles.
type Geodetic struct {
	Latitude            float64 // degrees, [-90, 90]
	Longitude           float64 // degrees, [-180, 180)
	EllipsoidalAltitude float64 // km
	GeocentricAltitude  float64 // km
}

// ECIToGeodetic converts an Earth-centred inertial position (km) at time t
// into latitude, longitude and altitude.
func ECIToGeodetic(x, y, z float64, t time.Time) Geodetic {
	return ECIToGeodeticWithSidereal(x, y, z, SiderealTime(t))
}

// ECIToGeodeticWithSidereal is ECIToGeodetic with a precomputed sidereal time
// in degrees. Batch callers compute the sidereal angle once per instant.
func ECIToGeodeticWithSidereal(x, y, z, gmstDeg float64) Geodetic {
	lon := math.Atan2(y, x)*180.0/math.Pi - gmstDeg
	lon = math.Mod(math.Mod(lon, 360.0)+540.0, 360.0) - 180.0

	p := math.Sqrt(x*x + y*y)
	lat := math.Atan2(z, p)
	for i := 0; i < latitudeIterations; i++ {
		sinLat := math.Sin(lat)
		n := EarthRadiusKm / math.Sqrt(1-EarthEccentricitySq*sinLat*sinLat)
		lat = math.Atan2(z+EarthEccentricitySq*n*sinLat, p)
	}

	sinLat := math.Sin(lat)
	n := EarthRadiusKm / math.Sqrt(1-EarthEccentricitySq*sinLat*sinLat)
	alt := p/math.Cos(lat) - n
	if p < 1e-9 {
		// On the polar axis p/cos(lat) is 0/0; height is measured from the pole.
		alt = math.Abs(z) - EarthRadiusKm*math.Sqrt(1-EarthEccentricitySq)
	}

	r := math.Sqrt(x*x + y*y + z*z)

	return Geodetic{
		Latitude:            lat * 180.0 / math.Pi,
		Longitude:           lon,
		EllipsoidalAltitude: alt,
		GeocentricAltitude:  r - EarthRadiusKm,
	}
}
