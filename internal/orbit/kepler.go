package orbit

import "math"

const (
	keplerMaxIterations = 10
	keplerTolerance     = 1e-10
)

// SolveKepler solves M = E − e·sin E for the eccentric anomaly E (radians)
// by Newton–Raphson starting from E = M. It stops when the correction drops
// below 1e-10 or after 10 iterations, returning the last estimate either way.
func SolveKepler(meanAnomaly, ecc float64) float64 {
	E := meanAnomaly
	for i := 0; i < keplerMaxIterations; i++ {
		dE := (E - ecc*math.Sin(E) - meanAnomaly) / (1 - ecc*math.Cos(E))
		E -= dE
		if math.Abs(dE) < keplerTolerance {
			break
		}
	}
	return E
}
