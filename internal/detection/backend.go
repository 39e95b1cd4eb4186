package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// ErrBackendUnavailable is returned when a backend was not compiled in.
var ErrBackendUnavailable = errors.New("detection backend not available in this build")

// Frame carries the preprocessed views of one working image.
type Frame struct {
	// Gray is the smoothed grayscale image.
	Gray *image.Gray

	// Edges is the Canny edge map of Gray, with gradients.
	Edges *imaging.EdgeMap
}

// Circle is a detected circle in pixel coordinates.
type Circle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`

	// Support is the fraction of the circumference backed by edge pixels.
	// Backends that cannot measure it report 0.
	Support float64 `json:"support"`
}

// Segment is a detected line segment between two pixel positions.
type Segment struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Length returns the Euclidean length of the segment.
func (s Segment) Length() float64 {
	return math.Hypot(float64(s.X2-s.X1), float64(s.Y2-s.Y1))
}

// CircleParams bounds the circle search.
type CircleParams struct {
	MinRadius  int     // smallest radius considered, in pixels
	MaxRadius  int     // largest radius considered, in pixels
	MinDist    float64 // minimum distance between reported centers
	DP         int     // accumulator cell size in pixels; 0 means 2
	MinVotes   int     // accumulator votes a center needs; 0 derives it from MinRadius
	MinSupport float64 // circumference fraction that must be backed by edges
	CannyHigh  float64 // upper edge threshold, used by backends that run their own edge pass
}

// SegmentParams bounds the segment search.
type SegmentParams struct {
	Threshold int     // accumulator votes needed before a line is traced
	MinLength float64 // shortest segment reported, in pixels
	MaxGap    int     // longest run of missing pixels bridged while tracing
	Corridor  int     // perpendicular slack in pixels when tracing
	Seed      int64   // seed for the sampling order
}

// Backend finds circles and line segments in preprocessed images.
type Backend interface {
	// Name identifies the backend in logs and results.
	Name() string

	// Circles returns circles ordered by decreasing strength.
	Circles(ctx context.Context, f *Frame, p CircleParams) ([]Circle, error)

	// Segments returns segments traced through the set pixels of points.
	Segments(ctx context.Context, points *imaging.EdgeMap, p SegmentParams) ([]Segment, error)
}

// NewBackend returns the backend registered under name ("native" or "opencv").
// An empty name selects the native backend.
func NewBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "native":
		return Native{}, nil
	case "opencv", "gocv":
		return newOpenCV()
	default:
		return nil, fmt.Errorf("unknown detection backend %q", name)
	}
}
