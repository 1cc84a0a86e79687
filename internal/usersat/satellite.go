package usersat

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// DefaultMass is the mass assigned when a request leaves it unset.
const DefaultMass = 1000.0 // kg

// Palette holds the display colours handed out to new bodies in turn.
var Palette = []string{
	"#ff6b6b", "#ffd93d", "#6bcb77", "#4d96ff", "#9d4edd",
	"#ff9f43", "#00d2d3", "#ff6b81", "#7bed9f", "#70a1ff",
}

// ErrRejected is matched by every admission failure.
var ErrRejected = errors.New("user satellite rejected")

// Rejection codes, usable as low-cardinality labels.
const (
	RejectInvalid = "invalid"
	RejectTooLow  = "too_low"
	RejectTooHigh = "too_high"
)

// RejectionError carries the human-readable reason a body was refused.
type RejectionError struct {
	Code     string
	Reason   string
	Altitude float64 // km, NaN when the position itself was unusable
}

func (e *RejectionError) Error() string { return e.Reason }

func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

// Satellite is a user-placed body. It is immutable once created.
type Satellite struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	Mass      float64   `json:"mass"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// Request describes a body to create. Zero Mass and empty Name take defaults.
type Request struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Mass float64 `json:"mass,omitempty"`
	Name string  `json:"name,omitempty"`
}

// New validates req and builds a Satellite. ordinal is the 1-based position
// the body will take in its collection; it picks the default name and colour.
func New(req Request, ordinal int, createdAt time.Time) (Satellite, error) {
	for _, v := range []float64{req.X, req.Y, req.Z, req.Mass} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Satellite{}, &RejectionError{Code: RejectInvalid, Reason: "position and mass must be finite numbers.", Altitude: math.NaN()}
		}
	}
	if req.Mass < 0 {
		return Satellite{}, &RejectionError{Code: RejectInvalid, Reason: fmt.Sprintf("mass must be positive (%g kg).", req.Mass), Altitude: math.NaN()}
	}

	v := Validate(req.X, req.Y, req.Z)
	if !v.Valid {
		code := RejectTooLow
		if v.Altitude > MinAltitudeKm {
			code = RejectTooHigh
		}
		return Satellite{}, &RejectionError{Code: code, Reason: v.Error, Altitude: v.Altitude}
	}

	mass := req.Mass
	if mass == 0 {
		mass = DefaultMass
	}
	if ordinal < 1 {
		ordinal = 1
	}
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("satellite-%d", ordinal)
	}

	return Satellite{
		ID:        uuid.NewString(),
		Name:      name,
		X:         req.X,
		Y:         req.Y,
		Z:         req.Z,
		Mass:      mass,
		Color:     Palette[(ordinal-1)%len(Palette)],
		CreatedAt: createdAt.UTC(),
	}, nil
}
