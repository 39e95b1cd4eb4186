package gauge

import (
	"fmt"
	"math"
	"strings"
)

// Axis names the direction that measures zero degrees.
type Axis string

const (
	East  Axis = "east"  // image right
	North Axis = "north" // image up
	West  Axis = "west"
	South Axis = "south"
)

// Rotation names the direction in which angles increase.
type Rotation string

const (
	CounterClockwise Rotation = "ccw"
	Clockwise        Rotation = "cw"
)

// AngleConvention fixes the zero axis and the rotation direction used to
// turn a needle vector into an angle.
type AngleConvention struct {
	Zero      Axis     `yaml:"zero" json:"zero"`
	Direction Rotation `yaml:"direction" json:"direction"`
}

// DefaultConvention is the mathematical one: zero along the positive x
// axis, angles growing counter-clockwise.
func DefaultConvention() AngleConvention {
	return AngleConvention{Zero: East, Direction: CounterClockwise}
}

// ParseConvention reads a convention from its axis and direction names.
// Empty strings select the defaults.
func ParseConvention(zero, direction string) (AngleConvention, error) {
	c := DefaultConvention()
	if zero != "" {
		c.Zero = Axis(strings.ToLower(strings.TrimSpace(zero)))
	}
	if direction != "" {
		c.Direction = Rotation(strings.ToLower(strings.TrimSpace(direction)))
	}
	return c, c.Validate()
}

// Validate checks that both fields name known values.
func (c AngleConvention) Validate() error {
	if _, ok := axisOffset[c.Zero]; !ok {
		return fmt.Errorf("unknown zero axis %q", c.Zero)
	}
	if c.Direction != CounterClockwise && c.Direction != Clockwise {
		return fmt.Errorf("unknown rotation direction %q", c.Direction)
	}
	return nil
}

// String returns e.g. "east/ccw".
func (c AngleConvention) String() string {
	return string(c.Zero) + "/" + string(c.Direction)
}

// axisOffset is each axis measured counter-clockwise from east.
var axisOffset = map[Axis]float64{
	East:  0,
	North: 90,
	West:  180,
	South: 270,
}

// Angle converts a vector with y pointing up into an angle in [0, 360).
func (c AngleConvention) Angle(dx, dy float64) float64 {
	m := math.Atan2(dy, dx) * 180 / math.Pi
	if c.Direction == Clockwise {
		return NormalizeAngle(axisOffset[c.Zero] - m)
	}
	return NormalizeAngle(m - axisOffset[c.Zero])
}

// Vector is the inverse of Angle: the unit vector, y up, at angle deg.
func (c AngleConvention) Vector(deg float64) (dx, dy float64) {
	m := axisOffset[c.Zero] + deg
	if c.Direction == Clockwise {
		m = axisOffset[c.Zero] - deg
	}
	rad := m * math.Pi / 180
	return math.Cos(rad), math.Sin(rad)
}

// NormalizeAngle folds deg into [0, 360).
func NormalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	return a
}

// AngleDiff returns the unsigned circular distance between two angles.
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}
