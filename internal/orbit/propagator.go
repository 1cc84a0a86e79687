package orbit

import (
	"math"
	"time"

	"github.com/star/orbitwatch/internal/tle"
	"github.com/star/orbitwatch/internal/transform"
)

// J2 is Earth's second zonal harmonic coefficient.
const J2 = 0.00108263

const twoPi = 2 * math.Pi

// Propagate computes the position of el at time at using mean elements with
// first-order J2 secular rates on mean anomaly, RAAN and argument of perigee.
// at may precede the epoch.
func Propagate(el tle.Elements, at time.Time) Position {
	return propagate(el, at, transform.SiderealTime(at))
}

// propagate is Propagate with a precomputed sidereal angle in degrees.
func propagate(el tle.Elements, at time.Time, gmstDeg float64) Position {
	tsince := at.Sub(el.Epoch).Minutes()

	e := el.Eccentricity
	a := el.SemiMajorAxis
	p := a * (1 - e*e)
	sinI, cosI := math.Sincos(el.Inclination * math.Pi / 180)
	M, omega, raan := meanAngles(el, tsince)

	E := SolveKepler(M, e)
	sinE, cosE := math.Sincos(E)
	denom := 1 - e*cosE
	sinNu := math.Sqrt(1-e*e) * sinE / denom
	cosNu := (cosE - e) / denom
	nu := math.Atan2(sinNu, cosNu)
	sinNu, cosNu = math.Sincos(nu)

	r := a * denom
	xo := r * cosNu
	yo := r * sinNu

	// Perifocal to ECI: R3(−Ω)·R1(−i)·R3(−ω).
	sinO, cosO := math.Sincos(raan)
	sinW, cosW := math.Sincos(omega)
	r11 := cosO*cosW - sinO*sinW*cosI
	r12 := -cosO*sinW - sinO*cosW*cosI
	r21 := sinO*cosW + cosO*sinW*cosI
	r22 := -sinO*sinW + cosO*cosW*cosI
	r31 := sinW * sinI
	r32 := cosW * sinI

	x := r11*xo + r12*yo
	y := r21*xo + r22*yo
	z := r31*xo + r32*yo

	h := math.Sqrt(tle.MuEarth * p)
	vr := tle.MuEarth / h * e * sinNu
	vt := tle.MuEarth / h * (1 + e*cosNu)
	vxo := vr*cosNu - vt*sinNu
	vyo := vr*sinNu + vt*cosNu

	vx := r11*vxo + r12*vyo
	vy := r21*vxo + r22*vyo
	vz := r31*vxo + r32*vyo

	geo := transform.ECIToGeodeticWithSidereal(x, y, z, gmstDeg)

	return Position{
		Time:               at,
		Latitude:           geo.Latitude,
		Longitude:          geo.Longitude,
		Altitude:           geo.EllipsoidalAltitude,
		GeocentricAltitude: geo.GeocentricAltitude,
		Velocity:           math.Sqrt(vx*vx + vy*vy + vz*vz),
		X:                  x,
		Y:                  y,
		Z:                  z,
		VX:                 vx,
		VY:                 vy,
		VZ:                 vz,
	}
}

// meanAngles advances the mean anomaly, argument of perigee and RAAN of el by
// tsince minutes at the J2 secular rates. Results are radians in [0, 2π).
func meanAngles(el tle.Elements, tsince float64) (M, omega, raan float64) {
	n0 := el.MeanMotion * twoPi / tle.MinutesPerDay // rad/min
	e := el.Eccentricity
	sinI, cosI := math.Sincos(el.Inclination * math.Pi / 180)

	p := el.SemiMajorAxis * (1 - e*e)
	k := J2 * (tle.EarthRadiusKm / p) * (tle.EarthRadiusKm / p) * n0
	meanMotionDot := 1.5 * k * (1 - 1.5*sinI*sinI)
	raanDot := -1.5 * k * cosI
	argpDot := 0.75 * k * (5*cosI*cosI - 1)

	M = wrapAngle(el.MeanAnomaly*math.Pi/180 + (n0+meanMotionDot)*tsince)
	omega = wrapAngle(el.ArgPerigee*math.Pi/180 + argpDot*tsince)
	raan = wrapAngle(el.RAAN*math.Pi/180 + raanDot*tsince)
	return M, omega, raan
}

// wrapAngle reduces an angle in radians to [0, 2π).
func wrapAngle(a float64) float64 {
	a = math.Mod(a, twoPi)
	if a < 0 {
		a += twoPi
	}
	return a
}

// CircularVelocity returns the circular orbital speed in km/s at the given
// altitude above the equatorial radius.
func CircularVelocity(altitudeKm float64) float64 {
	return math.Sqrt(tle.MuEarth / (tle.EarthRadiusKm + altitudeKm))
}

// OrbitalPeriod returns the period in minutes of an orbit with the given
// semi-major axis in km.
func OrbitalPeriod(semiMajorAxisKm float64) float64 {
	return twoPi * math.Sqrt(semiMajorAxisKm*semiMajorAxisKm*semiMajorAxisKm/tle.MuEarth) / 60
}
