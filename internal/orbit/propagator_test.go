package orbit

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/star/orbitwatch/internal/tle"
)

// Synthetic ISS-like and Starlink-like records.
const (
	issLine1      = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2      = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func mustElements(t testing.TB, id int, l1, l2 string) tle.Elements {
	t.Helper()
	el, err := tle.ParseElements(tle.TLEEntry{NORADID: id, Name: "TEST", Line1: l1, Line2: l2})
	if err != nil {
		t.Fatalf("ParseElements: %v", err)
	}
	return el
}

func TestPropagateAtEpoch(t *testing.T) {
	el := mustElements(t, 25544, issLine1, issLine2)
	pos := Propagate(el, el.Epoch)

	// M0 = ω = 0, so the body sits at perigee on the ascending node line.
	r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
	wantR := el.SemiMajorAxis * (1 - el.Eccentricity)
	if math.Abs(r-wantR) > 1e-6 {
		t.Errorf("|r| = %.6f, want a(1-e) = %.6f", r, wantR)
	}
	raan := 100 * math.Pi / 180
	if math.Abs(pos.X/r-math.Cos(raan)) > 1e-9 || math.Abs(pos.Y/r-math.Sin(raan)) > 1e-9 || math.Abs(pos.Z) > 1e-6 {
		t.Errorf("position (%.3f, %.3f, %.3f) not on the node line", pos.X, pos.Y, pos.Z)
	}
	if math.Abs(pos.Latitude) > 1e-6 {
		t.Errorf("latitude = %v, want 0 at the node", pos.Latitude)
	}
	if !pos.Time.Equal(el.Epoch) {
		t.Errorf("time = %v", pos.Time)
	}
}

func TestPropagateISSRanges(t *testing.T) {
	el := mustElements(t, 25544, issLine1, issLine2)

	for m := -600; m <= 6000; m += 37 {
		at := el.Epoch.Add(time.Duration(m) * time.Minute)
		pos := Propagate(el, at)

		if pos.GeocentricAltitude < 400 || pos.GeocentricAltitude > 435 {
			t.Fatalf("t=%dmin geocentric altitude = %.2f km", m, pos.GeocentricAltitude)
		}
		if pos.Altitude < 390 || pos.Altitude > 460 {
			t.Fatalf("t=%dmin ellipsoidal altitude = %.2f km", m, pos.Altitude)
		}
		if pos.Velocity < 7.6 || pos.Velocity > 7.7 {
			t.Fatalf("t=%dmin speed = %.4f km/s", m, pos.Velocity)
		}
		if math.Abs(pos.Latitude) > 51.64+0.3 {
			t.Fatalf("t=%dmin latitude %.3f exceeds inclination", m, pos.Latitude)
		}
		if pos.Longitude < -180 || pos.Longitude >= 180 {
			t.Fatalf("t=%dmin longitude %.3f out of range", m, pos.Longitude)
		}
	}
}

// TestPropagateConservation checks vis-viva energy and angular momentum
// against the osculating ellipse.
func TestPropagateConservation(t *testing.T) {
	for _, el := range []tle.Elements{
		mustElements(t, 25544, issLine1, issLine2),
		mustElements(t, 44713, starlinkLine1, starlinkLine2),
		mustElements(t, 1, issLine1, "2 00001  63.4000  10.0000 7000000 270.0000  30.0000  2.00600000    01"),
	} {
		for m := 0; m < 3000; m += 111 {
			pos := Propagate(el, el.Epoch.Add(time.Duration(m)*time.Minute))
			r := math.Sqrt(pos.X*pos.X + pos.Y*pos.Y + pos.Z*pos.Z)
			v2 := pos.VX*pos.VX + pos.VY*pos.VY + pos.VZ*pos.VZ

			energy := v2/2 - tle.MuEarth/r
			want := -tle.MuEarth / (2 * el.SemiMajorAxis)
			if math.Abs((energy-want)/want) > 1e-6 {
				t.Errorf("norad %d t=%d: energy %.9f, want %.9f", el.NORADID, m, energy, want)
			}

			hx := pos.Y*pos.VZ - pos.Z*pos.VY
			hy := pos.Z*pos.VX - pos.X*pos.VZ
			hz := pos.X*pos.VY - pos.Y*pos.VX
			h := math.Sqrt(hx*hx + hy*hy + hz*hz)
			wantH := math.Sqrt(tle.MuEarth * el.SemiMajorAxis * (1 - el.Eccentricity*el.Eccentricity))
			if math.Abs(h-wantH)/wantH > 1e-6 {
				t.Errorf("norad %d t=%d: |h| %.6f, want %.6f", el.NORADID, m, h, wantH)
			}
		}
	}
}

// TestPropagateNodalRegression checks the sign of the J2 RAAN drift: the
// angular-momentum vector of a prograde orbit precesses westward.
func TestPropagateNodalRegression(t *testing.T) {
	el := mustElements(t, 25544, issLine1, issLine2)
	node := func(at time.Time) float64 {
		p := Propagate(el, at)
		hx := p.Y*p.VZ - p.Z*p.VY
		hy := p.Z*p.VX - p.X*p.VZ
		return math.Atan2(hx, -hy) * 180 / math.Pi
	}

	d0 := node(el.Epoch)
	d1 := node(el.Epoch.Add(24 * time.Hour))
	drift := d1 - d0
	// ISS regresses roughly 5 degrees per day.
	if drift > -4 || drift < -6 {
		t.Errorf("RAAN drift over one day = %.3f deg, want about -5", drift)
	}
}

// TestPropagatePeriodConsistency advances each body by one period. The mean
// anomaly returns to its start up to the J2 rate term and the body lands
// within the secular drift of where it began.
func TestPropagatePeriodConsistency(t *testing.T) {
	for _, el := range []tle.Elements{
		mustElements(t, 25544, issLine1, issLine2),
		mustElements(t, 44713, starlinkLine1, starlinkLine2),
	} {
		for _, offset := range []float64{0, 17, 500, -300} {
			M0, _, _ := meanAngles(el, offset)
			M1, _, _ := meanAngles(el, offset+el.Period)
			if d := math.Abs(math.Remainder(M1-M0, 2*math.Pi)); d > 2e-3 {
				t.Errorf("norad %d offset %v: mean anomaly moved %.6f rad over one period", el.NORADID, offset, d)
			}
		}

		p0 := Propagate(el, el.Epoch)
		p1 := Propagate(el, el.Epoch.Add(time.Duration(el.Period*float64(time.Minute))))
		dx, dy, dz := p1.X-p0.X, p1.Y-p0.Y, p1.Z-p0.Z
		if d := math.Sqrt(dx*dx + dy*dy + dz*dz); d > 100 {
			t.Errorf("norad %d: one period apart positions differ by %.1f km", el.NORADID, d)
		}
	}
}

// TestPropagateDeterministic checks repeated calls and re-parsed elements
// produce bit-identical positions.
func TestPropagateDeterministic(t *testing.T) {
	at := time.Date(2024, 4, 11, 3, 17, 42, 123456789, time.UTC)
	first := Propagate(mustElements(t, 25544, issLine1, issLine2), at)
	for i := 0; i < 5; i++ {
		got := Propagate(mustElements(t, 25544, issLine1, issLine2), at)
		if got != first {
			t.Fatalf("run %d: %+v != %+v", i, got, first)
		}
		for _, pair := range [][2]float64{{got.X, first.X}, {got.VZ, first.VZ}, {got.Altitude, first.Altitude}} {
			if math.Float64bits(pair[0]) != math.Float64bits(pair[1]) {
				t.Fatalf("run %d: bits differ %v vs %v", i, pair[0], pair[1])
			}
		}
	}
}

func TestOrbitalHelpers(t *testing.T) {
	if v := CircularVelocity(400); math.Abs(v-7.6686) > 1e-3 {
		t.Errorf("CircularVelocity(400) = %.4f, want ~7.6686", v)
	}
	if p := OrbitalPeriod(tle.EarthRadiusKm + 400); math.Abs(p-92.56) > 0.05 {
		t.Errorf("OrbitalPeriod(LEO 400) = %.3f min, want ~92.56", p)
	}
	if p := OrbitalPeriod(42164.17); math.Abs(p-1436.07) > 0.5 {
		t.Errorf("OrbitalPeriod(GEO) = %.3f min, want ~1436", p)
	}
}

func TestWrapAngle(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0},
		{-0.5, 2*math.Pi - 0.5},
		{2 * math.Pi, 0},
		{7, 7 - 2*math.Pi},
		{-13, -13 + 6*math.Pi},
	}
	for _, tt := range tests {
		got := wrapAngle(tt.in)
		if math.Abs(got-tt.want) > 1e-12 || got < 0 || got >= 2*math.Pi {
			t.Errorf("wrapAngle(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func BenchmarkPropagate(b *testing.B) {
	el := mustElements(b, 25544, issLine1, issLine2)
	at := el.Epoch.Add(90 * time.Minute)
	for i := 0; i < b.N; i++ {
		Propagate(el, at)
	}
}
