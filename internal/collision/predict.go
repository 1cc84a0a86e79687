package collision

import (
	"cmp"
	"math"
	"slices"
	"time"
)

// StepSeconds is the sampling interval of the closest-approach search.
const StepSeconds = 10

// Risk thresholds on the minimum separation, km.
const (
	DangerKm    = 1.0
	ProximityKm = 10.0
)

// RiskLevel classifies a minimum separation.
type RiskLevel string

const (
	RiskDanger    RiskLevel = "danger"
	RiskProximity RiskLevel = "proximity"
	RiskSafe      RiskLevel = "safe"
)

// Classify maps a minimum distance in km to a risk level.
func Classify(minDistance float64) RiskLevel {
	switch {
	case minDistance < DangerKm:
		return RiskDanger
	case minDistance < ProximityKm:
		return RiskProximity
	default:
		return RiskSafe
	}
}

func (r RiskLevel) rank() int {
	switch r {
	case RiskDanger:
		return 0
	case RiskProximity:
		return 1
	default:
		return 2
	}
}

// Object is a body moving in a straight line from its current state.
type Object struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position Vec3   `json:"position"`
	Velocity Vec3   `json:"velocity"`
}

// At returns the linearly extrapolated position t seconds from now.
func (o Object) At(t float64) Vec3 {
	return Vec3{
		X: o.Position.X + o.Velocity.X*t,
		Y: o.Position.Y + o.Velocity.Y*t,
		Z: o.Position.Z + o.Velocity.Z*t,
	}
}

// Prediction is the closest approach of one pair within a horizon.
type Prediction struct {
	Sat1ID                string    `json:"sat1_id"`
	Sat1Name              string    `json:"sat1_name"`
	Sat2ID                string    `json:"sat2_id"`
	Sat2Name              string    `json:"sat2_name"`
	MinDistance           float64   `json:"min_distance"`             // km
	TimeToClosestApproach float64   `json:"time_to_closest_approach"` // s, multiple of StepSeconds
	ClosestApproachTime   time.Time `json:"closest_approach_time"`
	RiskLevel             RiskLevel `json:"risk_level"`
	Sat1Position          Vec3      `json:"sat1_position"`
	Sat2Position          Vec3      `json:"sat2_position"`
}

// sampleCount returns how many StepSeconds samples cover the horizon,
// counting t = 0. Negative or NaN horizons sample only t = 0.
func sampleCount(horizonSeconds float64) int {
	if !(horizonSeconds >= 0) {
		return 1
	}
	return int(math.Floor(horizonSeconds/StepSeconds)) + 1
}

// Predict samples both objects every StepSeconds from 0 through the horizon
// and reports the smallest separation seen. The earliest sample wins ties.
func Predict(a, b Object, horizonSeconds float64, now time.Time) Prediction {
	n := sampleCount(horizonSeconds)

	minDist := math.Inf(1)
	var minT float64
	pa, pb := a.Position, b.Position

	for i := 0; i < n; i++ {
		t := float64(i * StepSeconds)
		p1 := a.At(t)
		p2 := b.At(t)
		if d := p1.DistanceTo(p2); d < minDist {
			minDist = d
			minT = t
			pa, pb = p1, p2
		}
	}

	return Prediction{
		Sat1ID:                a.ID,
		Sat1Name:              a.Name,
		Sat2ID:                b.ID,
		Sat2Name:              b.Name,
		MinDistance:           minDist,
		TimeToClosestApproach: minT,
		ClosestApproachTime:   now.Add(time.Duration(minT) * time.Second),
		RiskLevel:             Classify(minDist),
		Sat1Position:          pa,
		Sat2Position:          pb,
	}
}

// comparePredictions orders by risk tier, then by ascending distance.
func comparePredictions(a, b Prediction) int {
	if c := cmp.Compare(a.RiskLevel.rank(), b.RiskLevel.rank()); c != 0 {
		return c
	}
	return cmp.Compare(a.MinDistance, b.MinDistance)
}

// CheckAll predicts every unordered pair (i < j in input order) and returns
// them ranked by risk tier and distance. Equal keys keep pair order.
func CheckAll(objects []Object, horizonSeconds float64, now time.Time) []Prediction {
	n := len(objects)
	out := make([]Prediction, 0, pairCount(n))
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, Predict(objects[i], objects[j], horizonSeconds, now))
		}
	}
	slices.SortStableFunc(out, comparePredictions)
	return out
}

// Alerts returns the non-safe predictions of a ranked list, at most limit of
// them when limit > 0.
func Alerts(ranked []Prediction, limit int) []Prediction {
	out := make([]Prediction, 0)
	for _, p := range ranked {
		if p.RiskLevel == RiskSafe {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, p)
	}
	return out
}

func pairCount(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}
