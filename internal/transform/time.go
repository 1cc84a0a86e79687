// Package transform converts between time scales and between the inertial
// and Earth-fixed views of a position.
//
// Sidereal time uses the IAU 1982 GMST polynomial only; nutation and polar
// motion are ignored.
package transform

import (
	"math"
	"time"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00).
const j2000 = 2451545.0

// JulianDate converts a time.Time (UTC) to Julian Date.
// Uses the standard Gregorian calendar algorithm; the fractional day includes
// hours, minutes, seconds and nanoseconds.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	y := float64(t.Year())
	m := float64(t.Month())
	d := float64(t.Day())
	h := float64(t.Hour())
	min := float64(t.Minute())
	s := float64(t.Second()) + float64(t.Nanosecond())/1e9

	// Jan/Feb are months 13/14 of the previous year.
	if m <= 2 {
		y -= 1
		m += 12
	}

	A := math.Floor(y / 100)
	B := 2 - A + math.Floor(A/4)

	jd := math.Floor(365.25*(y+4716)) + math.Floor(30.6001*(m+1)) + d + B - 1524.5
	jd += (h + min/60.0 + s/3600.0) / 24.0

	return jd
}

// SiderealTime returns Greenwich mean sidereal time in degrees, normalized to [0, 360).
//
//	θ = 280.46061837 + 360.98564736629·d + 0.000387933·T² − T³/38710000
//
// where d is days since J2000.0 and T = d/36525 (Meeus, eq. 12.4).
func SiderealTime(t time.Time) float64 {
	return siderealFromJD(JulianDate(t))
}

func siderealFromJD(jd float64) float64 {
	d := jd - j2000
	T := d / 36525.0

	gmst := 280.46061837 +
		360.98564736629*d +
		0.000387933*T*T -
		T*T*T/38710000.0

	return normalizeDegrees(gmst)
}

// normalizeDegrees wraps an angle into [0, 360).
func normalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg
}
