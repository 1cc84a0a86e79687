package usersat

import (
	"fmt"
	"math"
)

// Admission bounds on geocentric altitude.
const (
	MinAltitudeKm = 160.0
	MaxAltitudeKm = 50000.0
)

// Validation is the outcome of an admission check.
type Validation struct {
	Valid    bool    `json:"valid"`
	Error    string  `json:"error,omitempty"`
	Altitude float64 `json:"altitude"`
}

// Validate checks that an ECI position lies within the admitted altitude band.
// The altitude is |r| − EarthRadiusKm, quantised to a millimetre so that
// positions built as EarthRadiusKm + bound land on the bound.
func Validate(x, y, z float64) Validation {
	alt := math.Sqrt(x*x+y*y+z*z) - EarthRadiusKm
	q := math.Round(alt*1e6) / 1e6

	switch {
	case math.IsNaN(q):
		return Validation{Error: "position must be finite.", Altitude: alt}
	case q < MinAltitudeKm:
		return Validation{
			Error:    fmt.Sprintf("altitude too low (%.0f km). minimum orbital altitude is 160 km.", alt),
			Altitude: alt,
		}
	case q > MaxAltitudeKm:
		return Validation{
			Error:    fmt.Sprintf("altitude too high (%.0f km). maximum is 50,000 km.", alt),
			Altitude: alt,
		}
	}
	return Validation{Valid: true, Altitude: alt}
}
