package usersat

import (
	"math"
	"testing"
	"time"
)

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCircularVelocity(t *testing.T) {
	r := EarthRadiusKm + 400
	base := math.Sqrt(MuEarth / r)

	tests := []struct {
		name string
		mass float64
		want float64
	}{
		{"reference mass", 1000, base},
		{"light body clamps to 1", 1, base},
		{"ten tonnes", 10000, base / 1.02},
		{"heavy body clamps to 0.8", 1e30, base * 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CircularVelocity(r, tt.mass)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("CircularVelocity(%v, %v) = %v, want %v", r, tt.mass, got, tt.want)
			}
		})
	}

	if base < 7.6 || base > 7.8 {
		t.Errorf("LEO circular speed = %v km/s, want about 7.67", base)
	}
}

func TestOrbitalPeriod(t *testing.T) {
	r := EarthRadiusKm + 400
	p := OrbitalPeriod(r)
	if p < 5500 || p > 5600 {
		t.Errorf("OrbitalPeriod(LEO) = %v s, want about 5554", p)
	}
	// Kepler III: T²µ/4π² = r³
	if got := p * p * MuEarth / (4 * math.Pi * math.Pi); math.Abs(got-r*r*r)/(r*r*r) > 1e-12 {
		t.Errorf("T²µ/4π² = %v, want r³ = %v", got, r*r*r)
	}
}

func TestPropagateAtCreation(t *testing.T) {
	sat := Satellite{X: 5000, Y: 4000, Z: 2000, Mass: 1000, CreatedAt: created}
	st := Propagate(sat, 0)

	if math.Abs(st.X-sat.X) > 1e-9 || math.Abs(st.Y-sat.Y) > 1e-9 || st.Z != sat.Z {
		t.Errorf("position at t=0 = (%v, %v, %v), want (%v, %v, %v)", st.X, st.Y, st.Z, sat.X, sat.Y, sat.Z)
	}
	if st.VZ != 0 {
		t.Errorf("VZ = %v, want 0", st.VZ)
	}

	r := math.Sqrt(sat.X*sat.X + sat.Y*sat.Y + sat.Z*sat.Z)
	if want := CircularVelocity(r, sat.Mass); st.Velocity != want {
		t.Errorf("Velocity = %v, want %v", st.Velocity, want)
	}
	if speed := math.Hypot(st.VX, st.VY); math.Abs(speed-st.Velocity) > 1e-12 {
		t.Errorf("|v| = %v, want %v", speed, st.Velocity)
	}
	if dot := st.X*st.VX + st.Y*st.VY; math.Abs(dot) > 1e-6 {
		t.Errorf("in-plane r·v = %v, want 0", dot)
	}
	if want := r - EarthRadiusKm; math.Abs(st.Altitude-want) > 1e-9 {
		t.Errorf("Altitude = %v, want geocentric %v", st.Altitude, want)
	}
	if st.Altitude == st.AltitudeEllipsoidal {
		t.Error("ellipsoidal altitude equals geocentric altitude off the equator")
	}
}

func TestPropagateKeepsOffsetCircle(t *testing.T) {
	sat := Satellite{X: 6000, Y: 0, Z: 3000, Mass: 2500, CreatedAt: created}
	plane := math.Hypot(sat.X, sat.Y)

	for _, dt := range []float64{10, 600, 3600, 86400, -1200} {
		st := Propagate(sat, dt)
		if st.Z != sat.Z {
			t.Errorf("t=%v: Z = %v, want %v", dt, st.Z, sat.Z)
		}
		if got := math.Hypot(st.X, st.Y); math.Abs(got-plane) > 1e-9 {
			t.Errorf("t=%v: plane radius = %v, want %v", dt, got, plane)
		}
	}
}

func TestPropagateAngularRate(t *testing.T) {
	sat := Satellite{X: EarthRadiusKm + 400, Mass: 1000, CreatedAt: created}
	r := sat.X
	omega := CircularVelocity(r, sat.Mass) / r

	// A quarter turn moves the body from +x to +y.
	st := Propagate(sat, math.Pi/2/omega)
	if math.Abs(st.X) > 1e-6 || math.Abs(st.Y-r) > 1e-6 {
		t.Errorf("after a quarter turn = (%v, %v), want (0, %v)", st.X, st.Y, r)
	}

	// A full period returns to the start.
	st = Propagate(sat, OrbitalPeriod(r))
	if math.Abs(st.X-r) > 1e-6 || math.Abs(st.Y) > 1e-6 {
		t.Errorf("after one period = (%v, %v), want (%v, 0)", st.X, st.Y, r)
	}
}

func TestPropagateLongitudeFollowsClock(t *testing.T) {
	sat := Satellite{X: EarthRadiusKm + 400, Mass: 1000, CreatedAt: created}
	a := Propagate(sat, 0)

	later := sat
	later.CreatedAt = created.Add(time.Hour)
	b := Propagate(later, 0)

	if a.Longitude == b.Longitude {
		t.Error("longitude ignores the sidereal clock")
	}
	if a.X != b.X || a.Y != b.Y {
		t.Error("inertial position depends on creation time")
	}
}
