package sim

import (
	"time"

	"github.com/star/orbitwatch/internal/collision"
	"github.com/star/orbitwatch/internal/orbit"
	"github.com/star/orbitwatch/internal/usersat"
)

// UserSatellite is a user body together with its state at some instant.
type UserSatellite struct {
	usersat.Satellite
	State usersat.OrbitState `json:"state"`
}

// Snapshot is the full simulator state after one tick. It is never modified
// after being published.
type Snapshot struct {
	Tick             uint64                    `json:"tick"`
	Time             time.Time                 `json:"time"`
	SimSeconds       float64                   `json:"sim_seconds"`
	DatasetSource    string                    `json:"dataset_source,omitempty"`
	DatasetFetchedAt time.Time                 `json:"dataset_fetched_at,omitzero"`
	Satellites       []orbit.SatellitePosition `json:"satellites"`
	UserSatellites   []UserSatellite           `json:"user_satellites"`
	Alerts           []collision.Prediction    `json:"alerts"`
	DangerCount      int                       `json:"danger_count"`
	ProximityCount   int                       `json:"proximity_count"`
	Scan             collision.ScanStats       `json:"scan"`
}

// Objects returns the snapshot's bodies as collision objects, user bodies
// first, then catalog satellites in feed order.
func (s *Snapshot) Objects() []collision.Object {
	return buildObjects(s.UserSatellites, s.Satellites)
}

// Find returns the collision object with the given id.
func (s *Snapshot) Find(id string) (collision.Object, bool) {
	for _, o := range s.Objects() {
		if o.ID == id {
			return o, true
		}
	}
	return collision.Object{}, false
}
