package gauge

import (
	"image"
	"time"

	"github.com/golang/geo/r2"
)

// Dial is the located gauge face in source image pixels.
type Dial struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`

	// Candidates is the number of circle detections averaged into this dial.
	Candidates int `json:"candidates"`

	// Refined is set when a least-squares fit over the rim adjusted the dial.
	Refined bool `json:"refined"`
}

// Center returns the dial center as a point.
func (d Dial) Center() r2.Point {
	return r2.Point{X: d.X, Y: d.Y}
}

// Ambiguous reports whether more than one circle was averaged.
func (d Dial) Ambiguous() bool {
	return d.Candidates > 1
}

// Needle is the selected line segment, oriented from the end nearer the
// dial center to the far end.
type Needle struct {
	Near   r2.Point `json:"near"`
	Far    r2.Point `json:"far"`
	Length float64  `json:"length"`

	// Candidates counts the segments that passed the dial-face filter.
	Candidates int `json:"candidates"`

	// RunnerUp describes a nearly tied candidate pointing elsewhere.
	// Empty when the needle choice was clear.
	RunnerUp string `json:"runner_up,omitempty"`
}

// Direction returns the needle vector from the dial center to the far
// endpoint with the vertical axis flipped, so y grows upward.
func (n Needle) Direction(d Dial) r2.Point {
	return r2.Point{X: n.Far.X - d.X, Y: d.Y - n.Far.Y}
}

// ClampPolicy selects what Map does with angles outside the sweep.
type ClampPolicy string

const (
	ClampToRange  ClampPolicy = "clamp"  // pin the value to the nearest scale end
	RejectOutside ClampPolicy = "reject" // fail with ErrOutOfRange
	NoClamp       ClampPolicy = "none"   // extrapolate past the scale ends
)

// Calibration maps needle angles onto a physical scale.
//
// MaxAngle - MinAngle is the signed sweep: a negative sweep means values
// grow as the angle decreases. {225, -45} under the default convention is a
// 270 degree clockwise scale through the top of the dial.
type Calibration struct {
	MinAngle float64     `yaml:"min_angle" json:"min_angle"`
	MaxAngle float64     `yaml:"max_angle" json:"max_angle"`
	MinValue float64     `yaml:"min_value" json:"min_value"`
	MaxValue float64     `yaml:"max_value" json:"max_value"`
	Unit     string      `yaml:"unit" json:"unit,omitempty"`
	Clamp    ClampPolicy `yaml:"clamp" json:"clamp,omitempty"` // empty means clamp
}

// Sweep returns the signed angular span of the scale.
func (c Calibration) Sweep() float64 {
	return c.MaxAngle - c.MinAngle
}

// Reading is the result of one pipeline run.
type Reading struct {
	// Value is nil when no value could be read.
	Value *float64 `json:"value"`

	// Angle of the needle in the reader's convention, in [0, 360).
	Angle float64 `json:"angle"`

	// Level is the needle position on the scale, 0 at MinValue and 1 at
	// MaxValue. It is not clamped.
	Level float64 `json:"level"`

	Unit     string   `json:"unit,omitempty"`
	Dial     *Dial    `json:"dial,omitempty"`
	Needle   *Needle  `json:"needle,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Backend  string   `json:"backend"`

	// Annotated is a copy of the input with the detections drawn on it.
	Annotated image.Image `json:"-"`

	Timestamp time.Time `json:"timestamp"`
}

// HasValue reports whether the reading carries a value.
func (r *Reading) HasValue() bool {
	return r != nil && r.Value != nil
}
