package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Weights are the calibrated ranking weights.
type Weights struct {
	PreferredCarrierFactor float64 // duration multiplier for the preferred carrier
	DurationWeight         float64 // per millisecond of flight time
	DistanceWeight         float64 // per meter of great-circle distance
}

// ErrInvalidWeights is wrapped by Validate failures.
var ErrInvalidWeights = errors.New("invalid ranking weights")

// DefaultWeights returns the weights under which the composite is exactly
// durationMillis * carrierFactor + distanceMeters.
func DefaultWeights() *Weights {
	return &Weights{
		PreferredCarrierFactor: 0.9,
		DurationWeight:         1,
		DistanceWeight:         1,
	}
}

// Validate rejects weights that would break lower-is-better ordering.
func (w *Weights) Validate() error {
	switch {
	case w.PreferredCarrierFactor <= 0:
		return fmt.Errorf("%w: preferred_carrier_factor must be > 0, got %v", ErrInvalidWeights, w.PreferredCarrierFactor)
	case w.DurationWeight < 0:
		return fmt.Errorf("%w: duration_weight must be >= 0, got %v", ErrInvalidWeights, w.DurationWeight)
	case w.DistanceWeight < 0:
		return fmt.Errorf("%w: distance_weight must be >= 0, got %v", ErrInvalidWeights, w.DistanceWeight)
	}
	return nil
}

// calibrationFile is the on-disk layout. Absent weights keep their default;
// an explicit 0 is honored.
type calibrationFile struct {
	Version string `json:"version"`
	Weights struct {
		PreferredCarrierFactor *float64 `json:"preferred_carrier_factor"`
		DurationWeight         *float64 `json:"duration_weight"`
		DistanceWeight         *float64 `json:"distance_weight"`
	} `json:"weights"`
}

func (f *calibrationFile) apply(w *Weights) []string {
	var overridden []string
	set := func(name string, dst *float64, src *float64) {
		if src != nil && *src != *dst {
			*dst = *src
			overridden = append(overridden, name)
		}
	}
	set("preferred_carrier_factor", &w.PreferredCarrierFactor, f.Weights.PreferredCarrierFactor)
	set("duration_weight", &w.DurationWeight, f.Weights.DurationWeight)
	set("distance_weight", &w.DistanceWeight, f.Weights.DistanceWeight)
	return overridden
}

// LoadCalibration reads a JSON calibration file and applies it over the
// defaults. An empty path yields the defaults. On any failure the defaults
// are returned alongside the error, so callers may choose to continue.
func LoadCalibration(path string, logger *slog.Logger) (*Weights, error) {
	if path == "" {
		return DefaultWeights(), nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultWeights(), fmt.Errorf("read calibration: %w", err)
	}
	var file calibrationFile
	if err := json.Unmarshal(data, &file); err != nil {
		return DefaultWeights(), fmt.Errorf("parse calibration %s: %w", path, err)
	}

	w := DefaultWeights()
	overridden := file.apply(w)
	if err := w.Validate(); err != nil {
		return DefaultWeights(), fmt.Errorf("calibration %s: %w", path, err)
	}

	logger.Info("ranking calibration loaded",
		"path", path,
		"version", file.Version,
		"overridden", overridden,
		"preferred_carrier_factor", w.PreferredCarrierFactor,
		"duration_weight", w.DurationWeight,
		"distance_weight", w.DistanceWeight)
	return w, nil
}
