package gauge

import (
	"fmt"
	"math"
)

// rangeEpsilon absorbs float noise at the scale ends before rejecting.
const rangeEpsilon = 1e-9

// Validate reports calibrations that cannot map an angle.
func (c Calibration) Validate() error {
	sweep := math.Abs(c.Sweep())
	switch {
	case math.IsNaN(sweep) || sweep == 0:
		return fmt.Errorf("%w: zero sweep (min_angle == max_angle)", ErrInvalidCalibration)
	case sweep > 360:
		return fmt.Errorf("%w: sweep of %.1f degrees exceeds a full turn", ErrInvalidCalibration, sweep)
	case c.MinValue == c.MaxValue:
		return fmt.Errorf("%w: min_value equals max_value", ErrInvalidCalibration)
	}
	switch c.Clamp {
	case "", ClampToRange, RejectOutside, NoClamp:
	default:
		return fmt.Errorf("%w: unknown clamp policy %q", ErrInvalidCalibration, c.Clamp)
	}
	return nil
}

// Level returns where angle falls on the scale: 0 at MinAngle, 1 at
// MaxAngle. Offsets are taken modulo 360 in the sweep direction, and an
// angle in the dead zone between the scale ends counts from the nearer end,
// so it comes out below 0 or above 1.
func (c Calibration) Level(angle float64) float64 {
	sweep := c.Sweep()
	span := math.Abs(sweep)

	var offset float64
	if sweep < 0 {
		offset = NormalizeAngle(c.MinAngle - angle)
	} else {
		offset = NormalizeAngle(angle - c.MinAngle)
	}
	if dead := 360 - span; offset > span+dead/2 {
		offset -= 360
	}
	return offset / span
}

// Map converts a needle angle into a value on the calibrated scale.
//
// The result keeps full precision; use Round for display. Under the reject
// policy an angle outside the sweep returns the extrapolated value together
// with ErrOutOfRange.
func Map(angle float64, c Calibration) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	level := c.Level(angle)
	value := c.MinValue + level*(c.MaxValue-c.MinValue)

	switch c.Clamp {
	case NoClamp:
		return value, nil
	case RejectOutside:
		if level < -rangeEpsilon || level > 1+rangeEpsilon {
			return value, fmt.Errorf("%w: angle %.1f maps to %.2f", ErrOutOfRange, angle, value)
		}
		return value, nil
	default:
		lo, hi := math.Min(c.MinValue, c.MaxValue), math.Max(c.MinValue, c.MaxValue)
		return math.Max(lo, math.Min(hi, value)), nil
	}
}

// AngleFor is the inverse of Map for values inside the scale.
func AngleFor(value float64, c Calibration) (float64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	level := (value - c.MinValue) / (c.MaxValue - c.MinValue)
	return NormalizeAngle(c.MinAngle + level*c.Sweep()), nil
}

// Round rounds v to the given number of decimal places.
func Round(v float64, precision int) float64 {
	if precision < 0 {
		return v
	}
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}
