package tle

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Physical constants shared by element derivation and propagation.
const (
	EarthRadiusKm  = 6378.137    // km
	MuEarth        = 398600.4418 // km³/s²
	MinutesPerDay  = 1440.0
	SecondsPerDay  = 86400.0
	minLine1Length = 61 // through the bstar exponent
	minLine2Length = 63 // through mean motion
)

// ErrMalformed is matched by every element-parsing failure.
var ErrMalformed = errors.New("malformed element set")

// MalformedError describes which field of a record could not be decoded.
type MalformedError struct {
	NORADID int
	Field   string
	Value   string
	Err     error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("malformed element set (norad %d): field %s", e.NORADID, e.Field)
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformed}
	}
	return []error{ErrMalformed, e.Err}
}

// Elements are the decoded mean orbital elements of one record plus the
// quantities derived from them. Angles are in degrees.
type Elements struct {
	NORADID       int
	Name          string
	Epoch         time.Time
	MeanMotion    float64 // rev/day
	Eccentricity  float64
	Inclination   float64
	RAAN          float64
	ArgPerigee    float64
	MeanAnomaly   float64
	BStar         float64 // 1/earth radii
	SemiMajorAxis float64 // km
	Period        float64 // minutes
	Apogee        float64 // km above EarthRadiusKm
	Perigee       float64 // km above EarthRadiusKm
}

// ParseElements decodes the fixed-column fields of a record.
//
// Any missing, unparsable or physically meaningless field yields a
// *MalformedError rather than a NaN-valued Elements.
func ParseElements(entry TLEEntry) (Elements, error) {
	l1 := strings.TrimRight(entry.Line1, "\r\n ")
	l2 := strings.TrimRight(entry.Line2, "\r\n ")

	malformed := func(field, value string, err error) error {
		return &MalformedError{NORADID: entry.NORADID, Field: field, Value: value, Err: err}
	}

	if len(l1) < minLine1Length {
		return Elements{}, malformed("line1", "", fmt.Errorf("length %d, need at least %d", len(l1), minLine1Length))
	}
	if len(l2) < minLine2Length {
		return Elements{}, malformed("line2", "", fmt.Errorf("length %d, need at least %d", len(l2), minLine2Length))
	}
	if !strings.HasPrefix(l1, "1 ") {
		return Elements{}, malformed("line1", l1[:2], errors.New("must start with \"1 \""))
	}
	if !strings.HasPrefix(l2, "2 ") {
		return Elements{}, malformed("line2", l2[:2], errors.New("must start with \"2 \""))
	}

	epoch, err := parseEpoch(strings.TrimSpace(l1[18:32]))
	if err != nil {
		return Elements{}, malformed("epoch", l1[18:32], err)
	}

	num := func(field, raw string) (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return 0, malformed(field, raw, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, malformed(field, raw, errors.New("not finite"))
		}
		return v, nil
	}

	bstarRaw := l1[53:61]
	mantissa, err := num("bstar", bstarRaw[:6])
	if err != nil {
		return Elements{}, err
	}
	exponent, err := strconv.Atoi(strings.TrimSpace(bstarRaw[6:]))
	if err != nil {
		return Elements{}, malformed("bstar", bstarRaw, err)
	}
	bstar := mantissa / 1e5 * math.Pow(10, float64(exponent))
	if math.IsNaN(bstar) || math.IsInf(bstar, 0) {
		return Elements{}, malformed("bstar", bstarRaw, errors.New("not finite"))
	}

	incl, err := num("inclination", l2[8:16])
	if err != nil {
		return Elements{}, err
	}
	raan, err := num("raan", l2[17:25])
	if err != nil {
		return Elements{}, err
	}
	argp, err := num("arg_perigee", l2[34:42])
	if err != nil {
		return Elements{}, err
	}
	ma, err := num("mean_anomaly", l2[43:51])
	if err != nil {
		return Elements{}, err
	}
	meanMotion, err := num("mean_motion", l2[52:63])
	if err != nil {
		return Elements{}, err
	}

	eccStr := strings.TrimSpace(l2[26:33])
	if eccStr == "" || strings.ContainsAny(eccStr, ".+-eE") {
		return Elements{}, malformed("eccentricity", l2[26:33], errors.New("expected implied-decimal digits"))
	}
	ecc, err := strconv.ParseFloat("0."+eccStr, 64)
	if err != nil {
		return Elements{}, malformed("eccentricity", l2[26:33], err)
	}

	if meanMotion <= 0 {
		return Elements{}, malformed("mean_motion", l2[52:63], errors.New("must be positive"))
	}
	if ecc >= 1 {
		return Elements{}, malformed("eccentricity", l2[26:33], errors.New("orbit is not elliptical"))
	}

	el := Elements{
		NORADID:      entry.NORADID,
		Name:         strings.TrimSpace(entry.Name),
		Epoch:        epoch,
		MeanMotion:   meanMotion,
		Eccentricity: ecc,
		Inclination:  incl,
		RAAN:         raan,
		ArgPerigee:   argp,
		MeanAnomaly:  ma,
		BStar:        bstar,
	}
	el.derive()
	return el, nil
}

// derive fills the period, semi-major axis, apogee and perigee.
func (el *Elements) derive() {
	el.Period = MinutesPerDay / el.MeanMotion
	n := el.MeanMotion * 2 * math.Pi / SecondsPerDay // rad/s
	el.SemiMajorAxis = math.Cbrt(MuEarth / (n * n))
	el.Apogee = el.SemiMajorAxis*(1+el.Eccentricity) - EarthRadiusKm
	el.Perigee = el.SemiMajorAxis*(1-el.Eccentricity) - EarthRadiusKm
}

// ParseAll decodes every entry, returning the successes and the per-record
// failures separately.
func ParseAll(entries []TLEEntry) ([]Elements, []error) {
	out := make([]Elements, 0, len(entries))
	var errs []error
	for _, e := range entries {
		el, err := ParseElements(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, el)
	}
	return out, errs
}
