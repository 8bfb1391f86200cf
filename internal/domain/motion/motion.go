package motion

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ShakeEventName is the fixed name of the discrete shake notification.
const ShakeEventName = "shake"

// Sample is one acceleration-including-gravity reading.
type Sample struct {
	// X is the acceleration along the device X axis.
	X float64 `json:"x"`
	// Y is the acceleration along the device Y axis.
	Y float64 `json:"y"`
	// Z is the acceleration along the device Z axis.
	Z float64 `json:"z"`
}

// Delta returns the per-axis absolute difference between s and other.
func (s Sample) Delta(other Sample) (dx, dy, dz float64) {
	return math.Abs(s.X - other.X), math.Abs(s.Y - other.Y), math.Abs(s.Z - other.Z)
}

// IsFinite reports whether every axis holds a finite number.
func (s Sample) IsFinite() bool {
	for _, v := range [...]float64{s.X, s.Y, s.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// Event is one accepted shake occurrence.
type Event struct {
	// ID uniquely identifies the occurrence across transports.
	ID uuid.UUID `json:"id"`
	// Name is always ShakeEventName.
	Name string `json:"name"`
	// At is the wall-clock time the detector accepted the shake.
	At time.Time `json:"at"`
	// Seq counts accepted shakes since the detector was constructed, starting at 1.
	Seq uint64 `json:"seq"`
}

// NewEvent builds a shake event for the given time and sequence number.
func NewEvent(at time.Time, seq uint64) Event {
	return Event{
		ID:   uuid.New(),
		Name: ShakeEventName,
		At:   at,
		Seq:  seq,
	}
}
