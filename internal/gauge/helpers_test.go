package gauge

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/gauge-reader/internal/detection"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// gaugeSpec describes a synthetic gauge photo.
type gaugeSpec struct {
	size      int
	cx, cy    float64
	radius    float64
	needles   []float64 // needle angles, east/ccw, degrees
	needleLen float64
	ticks     bool
}

func defaultGauge(needles ...float64) gaugeSpec {
	return gaugeSpec{
		size:      500,
		cx:        250,
		cy:        250,
		radius:    200,
		needles:   needles,
		needleLen: 160,
		ticks:     true,
	}
}

// drawGauge renders a light dial on a gray background with dark tick marks
// every 30 degrees and 3 pixel wide needles from the center.
func drawGauge(g gaugeSpec) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.size, g.size))
	type stroke struct{ a, b [2]float64 }
	var strokes []stroke
	for _, deg := range g.needles {
		rad := deg * math.Pi / 180
		strokes = append(strokes, stroke{
			a: [2]float64{g.cx, g.cy},
			b: [2]float64{g.cx + g.needleLen*math.Cos(rad), g.cy - g.needleLen*math.Sin(rad)},
		})
	}
	if g.ticks {
		for deg := 0.0; deg < 360; deg += 30 {
			rad := deg * math.Pi / 180
			c, s := math.Cos(rad), math.Sin(rad)
			strokes = append(strokes, stroke{
				a: [2]float64{g.cx + 0.875*g.radius*c, g.cy - 0.875*g.radius*s},
				b: [2]float64{g.cx + 0.95*g.radius*c, g.cy - 0.95*g.radius*s},
			})
		}
	}

	for y := 0; y < g.size; y++ {
		for x := 0; x < g.size; x++ {
			px, py := float64(x), float64(y)
			c := color.RGBA{90, 90, 90, 255}
			if math.Hypot(px-g.cx, py-g.cy) <= g.radius {
				c = color.RGBA{255, 255, 255, 255}
				for _, s := range strokes {
					if distToSegment(px, py, s.a, s.b) <= 1.5 {
						c = color.RGBA{30, 30, 30, 255}
						break
					}
				}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func distToSegment(px, py float64, a, b [2]float64) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t := ((px-a[0])*dx + (py-a[1])*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(a[0]+t*dx), py-(a[1]+t*dy))
}

// createTestImage creates a solid color test image.
func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func defaultCalibration() Calibration {
	return Calibration{MinAngle: 225, MaxAngle: -45, MinValue: 0, MaxValue: 120, Unit: "°C"}
}

func newTestReader(t *testing.T, tuning Tuning, cal Calibration) *Reader {
	t.Helper()
	r, err := NewReader(detection.Native{}, tuning, cal, DefaultConvention())
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	return r
}

// fakeBackend returns canned detections.
type fakeBackend struct {
	circles  []detection.Circle
	segments []detection.Segment
	err      error
}

func (fakeBackend) Name() string { return "fake" }

func (b fakeBackend) Circles(ctx context.Context, f *detection.Frame, p detection.CircleParams) ([]detection.Circle, error) {
	return b.circles, b.err
}

func (b fakeBackend) Segments(ctx context.Context, m *imaging.EdgeMap, p detection.SegmentParams) ([]detection.Segment, error) {
	return b.segments, b.err
}
