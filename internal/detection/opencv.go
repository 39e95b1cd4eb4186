//go:build gocv
// +build gocv

package detection

import (
	"context"
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// OpenCV runs the searches through gocv. OpenCV calls cannot be interrupted,
// so the context is checked before and after each call.
type OpenCV struct{}

func newOpenCV() (Backend, error) {
	return OpenCV{}, nil
}

// Name implements Backend.
func (OpenCV) Name() string { return "opencv" }

// Circles implements Backend with cv::HoughCircles (HOUGH_GRADIENT).
func (OpenCV) Circles(ctx context.Context, f *Frame, p CircleParams) ([]Circle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f == nil || f.Gray == nil {
		return nil, fmt.Errorf("circle search needs a grayscale frame")
	}
	b := f.Gray.Bounds()
	src, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, f.Gray.Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer src.Close()

	circles := gocv.NewMat()
	defer circles.Close()

	dp := float64(p.DP)
	if dp <= 0 {
		dp = 2
	}
	high := p.CannyHigh
	if high <= 0 {
		high = 150
	}
	votes := float64(p.MinVotes)
	if votes <= 0 {
		votes = 0.3 * 2 * math.Pi * float64(p.MinRadius) / dp
	}
	gocv.HoughCirclesWithParams(src, &circles, gocv.HoughGradient, dp, p.MinDist, high, votes, p.MinRadius, p.MaxRadius)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Circle, 0, circles.Cols())
	for i := 0; i < circles.Cols(); i++ {
		out = append(out, Circle{
			X:      float64(circles.GetFloatAt(0, i*3)),
			Y:      float64(circles.GetFloatAt(0, i*3+1)),
			Radius: float64(circles.GetFloatAt(0, i*3+2)),
		})
	}
	return out, nil
}

// Segments implements Backend with cv::HoughLinesP. The corridor setting has
// no OpenCV equivalent and is ignored.
func (OpenCV) Segments(ctx context.Context, points *imaging.EdgeMap, p SegmentParams) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if points == nil {
		return nil, fmt.Errorf("segment search needs a point map")
	}
	src, err := gocv.NewMatFromBytes(points.Height, points.Width, gocv.MatTypeCV8UC1, points.Image().Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap point map: %w", err)
	}
	defer src.Close()

	lines := gocv.NewMat()
	defer lines.Close()

	gocv.HoughLinesPWithParams(src, &lines, 1, math.Pi/180, p.Threshold, float32(p.MinLength), float32(p.MaxGap))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Segment, 0, lines.Rows())
	for i := 0; i < lines.Rows(); i++ {
		v := lines.GetVeciAt(i, 0)
		out = append(out, Segment{X1: int(v[0]), Y1: int(v[1]), X2: int(v[2]), Y2: int(v[3])})
	}
	return out, nil
}
