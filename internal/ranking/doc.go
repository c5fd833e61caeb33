// Package ranking computes the lower-is-better composite score of a flight
// and loads its calibrated weights.
//
// Durations enter the score in milliseconds and distances in meters. With
// DefaultWeights the composite is exactly
//
//	durationMillis * carrierFactor + distanceMeters
//
// where carrierFactor is 0.9 for the query's preferred carrier and 1
// otherwise. The sum has no physical meaning; it only orders candidates.
//
// A JSON calibration file (configs/ranking.calibration.json) may override the
// weights at startup:
//
//	weights, err := ranking.LoadCalibration(path, logger)
//	score := weights.Composite(rec.Duration(), weights.CarrierFactor(q.PreferredCarrier, rec.Carrier), meters)
//
// Calibration never changes the units, so maxDuration stays in milliseconds.
package ranking
