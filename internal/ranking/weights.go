package ranking

import (
	"time"
)

// NoPreferenceFactor is the carrier factor applied when the carrier is not preferred.
const NoPreferenceFactor = 1.0

// DurationMillis converts a duration to the score's canonical unit.
// Sub-millisecond precision is kept as a fraction.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// CarrierFactor returns the multiplier applied to the duration component.
//
// Parameters:
//   - preferred: The query's preferred carrier (empty when unset)
//   - carrier: The flight's operating carrier
//
// Returns PreferredCarrierFactor on a match, otherwise NoPreferenceFactor.
func (w *Weights) CarrierFactor(preferred, carrier string) float64 {
	if preferred != "" && preferred == carrier {
		return w.PreferredCarrierFactor
	}
	return NoPreferenceFactor
}

// Composite computes the lower-is-better score of a flight.
//
// Formula: durationMillis * carrierFactor * DurationWeight + distanceMeters * DistanceWeight
//
// Parameters:
//   - duration: Flight duration (arrival - departure), expected non-negative
//   - carrierFactor: Result of CarrierFactor
//   - distanceMeters: Great-circle distance between origin and destination
func (w *Weights) Composite(duration time.Duration, carrierFactor, distanceMeters float64) float64 {
	return DurationMillis(duration)*carrierFactor*w.DurationWeight +
		distanceMeters*w.DistanceWeight
}
