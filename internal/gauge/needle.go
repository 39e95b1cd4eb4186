package gauge

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"github.com/ironsheep/gauge-reader/internal/detection"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// extract returns the needle of d, both in working coordinates.
func (r *Reader) extract(ctx context.Context, f *frame, d Dial) (Needle, error) {
	t := r.tuning
	limit := t.NeedleRadiusMargin * d.Radius

	var points *imaging.EdgeMap
	switch t.NeedleStrategy {
	case StrategyThreshold:
		points = imaging.DarkMask(f.det.Gray, t.NeedleDarkLevel).WithinDisc(d.X, d.Y, limit)
	default:
		points = f.det.Edges.WithinDisc(d.X, d.Y, limit)
	}

	segs, err := r.backend.Segments(ctx, points, detection.SegmentParams{
		Threshold: t.LineThreshold,
		MinLength: float64(t.LineMinLength),
		MaxGap:    t.LineMaxGap,
		Corridor:  t.LineCorridor,
		Seed:      t.LineSeed,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Needle{}, ctxErr
		}
		return Needle{}, fmt.Errorf("segment search: %w", err)
	}
	return selectNeedle(segs, d, t)
}

// selectNeedle keeps the segments lying inside the dial face and returns
// the longest. Exact ties go to the segment found first.
func selectNeedle(segs []detection.Segment, d Dial, t Tuning) (Needle, error) {
	center := d.Center()
	limit := t.NeedleRadiusMargin * d.Radius
	minLen := t.NeedleMinLengthFraction * d.Radius

	kept := make([]Needle, 0, len(segs))
	for _, s := range segs {
		a := r2.Point{X: float64(s.X1), Y: float64(s.Y1)}
		b := r2.Point{X: float64(s.X2), Y: float64(s.Y2)}
		if a == b {
			continue
		}
		if a.Sub(center).Norm() > limit || b.Sub(center).Norm() > limit {
			continue
		}
		kept = append(kept, orient(a, b, center))
	}

	best := -1
	for i, n := range kept {
		if best < 0 || n.Length > kept[best].Length {
			best = i
		}
	}
	if best < 0 {
		return Needle{}, fmt.Errorf("%w: no segment inside the dial face", ErrNeedleNotFound)
	}
	n := kept[best]
	if n.Length < minLen {
		return Needle{}, fmt.Errorf("%w: longest segment is %.0f px, needle needs %.0f px",
			ErrNeedleNotFound, n.Length, minLen)
	}
	n.Candidates = len(kept)

	heading := pointing(center, n.Far)
	for i, c := range kept {
		if i == best || c.Length < minLen || c.Length < (1-t.NeedleTieTolerance)*n.Length {
			continue
		}
		if diff := AngleDiff(heading, pointing(center, c.Far)); diff > t.NeedleTieAngle {
			n.RunnerUp = fmt.Sprintf("%.0f px segment %.0f degrees away", c.Length, diff)
			break
		}
	}
	return n, nil
}

// orient orders a segment's endpoints so Far is the one farther from center.
func orient(a, b, center r2.Point) Needle {
	n := Needle{Near: a, Far: b, Length: b.Sub(a).Norm()}
	if a.Sub(center).Norm() > b.Sub(center).Norm() {
		n.Near, n.Far = b, a
	}
	return n
}

// pointing is the image-plane heading from center to p, y up, in degrees.
func pointing(center, p r2.Point) float64 {
	return math.Atan2(center.Y-p.Y, p.X-center.X) * 180 / math.Pi
}
