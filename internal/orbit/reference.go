package orbit

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"github.com/star/orbitwatch/internal/tle"
)

// ReferenceSGP4 propagates one record with the full SGP4 model from
// github.com/joshuaferrara/go-satellite. It is used to measure how far the
// secular J2 model in Propagate drifts from SGP4, not for display.
type ReferenceSGP4 struct {
	sat     satellite.Satellite
	noradID int
}

// NewReferenceSGP4 initializes SGP4 for entry.
//
// Lines are validated first because go-satellite calls log.Fatal on
// malformed input.
func NewReferenceSGP4(entry tle.TLEEntry) (*ReferenceSGP4, error) {
	if err := validateTLELines(entry.Line1, entry.Line2); err != nil {
		return nil, fmt.Errorf("invalid TLE for NORAD %d: %w", entry.NORADID, err)
	}

	sat := satellite.TLEToSat(strings.TrimSpace(entry.Line1), strings.TrimSpace(entry.Line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, fmt.Errorf("sgp4 init failed for NORAD %d: code=%d %s", entry.NORADID, sat.Error, sat.ErrorStr)
	}
	return &ReferenceSGP4{sat: sat, noradID: entry.NORADID}, nil
}

func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) != 69 {
		return fmt.Errorf("line1 length %d, expected 69", len(line1))
	}
	if len(line2) != 69 {
		return fmt.Errorf("line2 length %d, expected 69", len(line2))
	}
	if line1[0] != '1' {
		return fmt.Errorf("line1 must start with '1', got '%c'", line1[0])
	}
	if line2[0] != '2' {
		return fmt.Errorf("line2 must start with '2', got '%c'", line2[0])
	}
	return nil
}

// PositionECI returns the SGP4 position (TEME, km) at t, to the second.
func (r *ReferenceSGP4) PositionECI(t time.Time) ([3]float64, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(r.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	if math.IsNaN(pos.X) || math.IsNaN(pos.Y) || math.IsNaN(pos.Z) ||
		math.IsInf(pos.X, 0) || math.IsInf(pos.Y, 0) || math.IsInf(pos.Z, 0) {
		return [3]float64{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: output is NaN/Inf", r.noradID)
	}

	mag := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	if mag < 6200.0 || mag > 50000.0 {
		return [3]float64{}, fmt.Errorf("sgp4 propagation failed for NORAD %d: unreasonable position magnitude %.1f km", r.noradID, mag)
	}

	return [3]float64{pos.X, pos.Y, pos.Z}, nil
}

// Divergence returns the distance in km between Propagate and SGP4 for
// entry at each of the given times.
func Divergence(entry tle.TLEEntry, times []time.Time) ([]float64, error) {
	el, err := tle.ParseElements(entry)
	if err != nil {
		return nil, err
	}
	ref, err := NewReferenceSGP4(entry)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(times))
	for _, t := range times {
		t = t.Truncate(time.Second)
		want, err := ref.PositionECI(t)
		if err != nil {
			return out, err
		}
		got := Propagate(el, t)
		dx, dy, dz := got.X-want[0], got.Y-want[1], got.Z-want[2]
		out = append(out, math.Sqrt(dx*dx+dy*dy+dz*dz))
	}
	return out, nil
}
