package gauge

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/gauge-reader/internal/detection"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

const (
	rimBand       = 2.0 // max distance from the consensus rim for a fit point, in pixels
	maxRefineMove = 3.0 // fits that move the center this far are discarded
	minRimPoints  = 8
)

// circleParams derives the circle search bounds from the working height.
func (r *Reader) circleParams(height int) detection.CircleParams {
	h := float64(height)
	p := detection.CircleParams{
		MinRadius:  int(math.Floor(r.tuning.DialMinRadiusFraction * h)),
		MaxRadius:  int(math.Ceil(r.tuning.DialMaxRadiusFraction * h)),
		MinDist:    r.tuning.DialMinDistFraction * h,
		MinSupport: r.tuning.DialMinSupport,
		CannyHigh:  r.tuning.CannyHigh,
	}
	if p.MinRadius < 1 {
		p.MinRadius = 1
	}
	if p.MaxRadius < p.MinRadius {
		p.MaxRadius = p.MinRadius
	}
	return p
}

// locate returns the consensus dial in working coordinates.
func (r *Reader) locate(ctx context.Context, f *frame) (Dial, error) {
	p := r.circleParams(f.det.Gray.Bounds().Dy())
	circles, err := r.backend.Circles(ctx, f.det, p)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Dial{}, ctxErr
		}
		return Dial{}, fmt.Errorf("circle search: %w", err)
	}
	if len(circles) == 0 {
		return Dial{}, ErrDialNotFound
	}

	var d Dial
	for _, c := range circles {
		d.X += c.X
		d.Y += c.Y
		d.Radius += c.Radius
	}
	n := float64(len(circles))
	d.X, d.Y, d.Radius = d.X/n, d.Y/n, d.Radius/n
	d.Candidates = len(circles)

	if r.tuning.DialRefine {
		d = refineDial(f.det.Edges, d, float64(p.MinRadius), float64(p.MaxRadius))
	}
	return d, nil
}

// refineDial fits a circle to the edge pixels near the rim of d. The fit
// replaces d only when it stays close to the consensus and in range.
func refineDial(edges *imaging.EdgeMap, d Dial, minR, maxR float64) Dial {
	if edges == nil {
		return d
	}
	center := d.Center()
	var pts []r2.Point
	for y := 0; y < edges.Height; y++ {
		for x := 0; x < edges.Width; x++ {
			if !edges.Pix[y*edges.Width+x] {
				continue
			}
			p := r2.Point{X: float64(x), Y: float64(y)}
			if math.Abs(p.Sub(center).Norm()-d.Radius) <= rimBand {
				pts = append(pts, p)
			}
		}
	}
	if len(pts) < minRimPoints {
		return d
	}

	c, radius, ok := fitCircle(pts)
	if !ok || c.Sub(center).Norm() >= maxRefineMove || radius < minR || radius > maxR {
		return d
	}
	d.X, d.Y, d.Radius = c.X, c.Y, radius
	d.Refined = true
	return d
}

// fitCircle is an algebraic least-squares circle fit.
// Linearizes: x*A + y*B + C = -(x^2+y^2), where center = (-A/2, -B/2).
func fitCircle(pts []r2.Point) (r2.Point, float64, bool) {
	n := len(pts)
	if n < 3 {
		return r2.Point{}, 0, false
	}

	A := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range pts {
		A.Set(i, 0, p.X)
		A.Set(i, 1, p.Y)
		A.Set(i, 2, 1.0)
		b.SetVec(i, -(p.X*p.X + p.Y*p.Y))
	}

	var qr mat.QR
	qr.Factorize(A)
	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return r2.Point{}, 0, false
	}

	aCoeff, bCoeff, cCoeff := x.AtVec(0), x.AtVec(1), x.AtVec(2)
	center := r2.Point{X: -aCoeff / 2, Y: -bCoeff / 2}
	rSquared := aCoeff*aCoeff/4 + bCoeff*bCoeff/4 - cCoeff
	if rSquared <= 0 {
		return r2.Point{}, 0, false
	}
	return center, math.Sqrt(rSquared), true
}
