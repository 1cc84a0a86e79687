package orbit

import "time"

// Position is the state of a body at one instant: geodetic coordinates for
// display plus the Earth-centred inertial state vector.
type Position struct {
	Time               time.Time `json:"time"`
	Latitude           float64   `json:"latitude"`            // degrees
	Longitude          float64   `json:"longitude"`           // degrees, [-180, 180)
	Altitude           float64   `json:"altitude"`            // km above the WGS-84 ellipsoid
	GeocentricAltitude float64   `json:"altitude_geocentric"` // km, |r| − Earth radius
	Velocity           float64   `json:"velocity"`            // km/s
	X                  float64   `json:"x"`
	Y                  float64   `json:"y"`
	Z                  float64   `json:"z"`
	VX                 float64   `json:"vx"`
	VY                 float64   `json:"vy"`
	VZ                 float64   `json:"vz"`
}

// SatellitePosition ties a propagated Position to its catalog entry.
type SatellitePosition struct {
	NORADID  int      `json:"norad_id"`
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// Frame holds the positions of every catalog satellite at one instant.
type Frame struct {
	Timestamp  time.Time
	Satellites []SatellitePosition
}

// Config holds propagation configuration.
type Config struct {
	Workers int // Worker pool size (default: runtime.NumCPU())
}
