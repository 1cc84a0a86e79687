package orbit

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/star/orbitwatch/internal/tle"
)

// MaxGroundTrackSamples bounds the number of positions one ground track may
// hold.
const MaxGroundTrackSamples = 2000

// ErrTrackTooLong is returned when duration/step would exceed
// MaxGroundTrackSamples.
var ErrTrackTooLong = errors.New("ground track exceeds sample limit")

// GroundTrack samples Propagate from start every stepMinutes over
// durationMinutes, returning floor(duration/step)+1 positions. Samples are
// independent of one another. A non-positive step, a negative duration or a
// sample count above MaxGroundTrackSamples yields nil.
func GroundTrack(el tle.Elements, start time.Time, durationMinutes, stepMinutes float64) []Position {
	n := GroundTrackSamples(durationMinutes, stepMinutes)
	if n == 0 || n > MaxGroundTrackSamples {
		return nil
	}

	track := make([]Position, 0, n)
	for i := 0; i < n; i++ {
		offset := time.Duration(float64(i) * stepMinutes * float64(time.Minute))
		track = append(track, Propagate(el, start.Add(offset)))
	}
	return track
}

// GroundTrackSamples reports how many samples GroundTrack would take.
// Invalid input gives 0; any count above MaxGroundTrackSamples, including
// an unbounded one, is reported as MaxGroundTrackSamples+1.
func GroundTrackSamples(durationMinutes, stepMinutes float64) int {
	if !(stepMinutes > 0) || !(durationMinutes >= 0) {
		return 0
	}
	n := math.Floor(durationMinutes/stepMinutes) + 1
	if math.IsNaN(n) || n > MaxGroundTrackSamples {
		return MaxGroundTrackSamples + 1
	}
	return int(n)
}

// checkGroundTrack validates a request before any sampling happens.
func checkGroundTrack(durationMinutes, stepMinutes float64) error {
	n := GroundTrackSamples(durationMinutes, stepMinutes)
	if n > MaxGroundTrackSamples {
		return fmt.Errorf("duration %g min at step %g min: %w", durationMinutes, stepMinutes, ErrTrackTooLong)
	}
	return nil
}
