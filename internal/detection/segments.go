package detection

import (
	"context"
	"errors"
	"image"
	"math"
	"math/rand"

	"github.com/ironsheep/gauge-reader/internal/imaging"
)

const (
	numAngle  = 180 // one accumulator column per degree
	walkShift = 16  // fixed-point fraction bits used while tracing
)

var houghCos, houghSin = func() ([numAngle]float64, [numAngle]float64) {
	var c, s [numAngle]float64
	for n := 0; n < numAngle; n++ {
		theta := float64(n) * math.Pi / numAngle
		c[n], s[n] = math.Cos(theta), math.Sin(theta)
	}
	return c, s
}()

// Segments runs a progressive probabilistic Hough transform over the set
// pixels of points.
//
// # Algorithm
//
//  1. Set pixels are visited in a pseudo-random order drawn from p.Seed.
//  2. Each visited pixel votes for every (rho, theta) line through it.
//  3. When the pixel's strongest bin reaches p.Threshold, the line is traced
//     from the pixel in both directions until more than p.MaxGap consecutive
//     steps find no set pixel within p.Corridor pixels of the line.
//  4. The traced pixels are removed from further consideration. If the
//     traced extent is at least p.MinLength long it is reported and the
//     votes its pixels cast are withdrawn.
//
// Segments are returned in the order they were found.
func (Native) Segments(ctx context.Context, points *imaging.EdgeMap, p SegmentParams) ([]Segment, error) {
	if points == nil {
		return nil, errors.New("segment search needs a point map")
	}
	w, h := points.Width, points.Height
	threshold := p.Threshold
	if threshold < 1 {
		threshold = 1
	}
	corridor := p.Corridor
	if corridor < 0 {
		corridor = 0
	}

	numRho := (w+h)*2 + 1
	rhoOffset := (numRho - 1) / 2
	acc := make([]int32, numAngle*numRho)
	mask := make([]bool, len(points.Pix))
	copy(mask, points.Pix)
	voted := make([]bool, len(points.Pix))

	order := make([]int, 0, 1024)
	for i, v := range points.Pix {
		if v {
			order = append(order, i)
		}
	}
	rng := rand.New(rand.NewSource(p.Seed))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	vote := func(idx int, delta int32) (int32, int) {
		x, y := float64(idx%w), float64(idx/w)
		best, bestN := int32(math.MinInt32), -1
		for n := 0; n < numAngle; n++ {
			r := int(math.Round(x*houghCos[n]+y*houghSin[n])) + rhoOffset
			a := n*numRho + r
			acc[a] += delta
			if acc[a] > best {
				best, bestN = acc[a], n
			}
		}
		return best, bestN
	}

	segments := make([]Segment, 0)
	for count, idx := range order {
		if count&255 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !mask[idx] {
			continue
		}

		best, n := vote(idx, 1)
		voted[idx] = true
		if int(best) < threshold {
			continue
		}

		t := newTrace(idx%w, idx/w, n)
		var ends [2]image.Point
		var lastStep [2]int
		for k := 0; k < 2; k++ {
			gap := 0
			x, y, dx, dy := t.start(k)
			for step := 0; ; step++ {
				px, py := t.pixel(x, y)
				if px < 0 || py < 0 || px >= w || py >= h {
					break
				}
				if hx, hy, ok := corridorHit(mask, w, h, px, py, t.xflag, corridor); ok {
					gap = 0
					ends[k] = image.Pt(hx, hy)
					lastStep[k] = step
				} else if gap++; gap > p.MaxGap {
					break
				}
				x += dx
				y += dy
			}
		}

		d := ends[1].Sub(ends[0])
		good := math.Hypot(float64(d.X), float64(d.Y)) >= p.MinLength

		for k := 0; k < 2; k++ {
			x, y, dx, dy := t.start(k)
			for step := 0; step <= lastStep[k]; step++ {
				px, py := t.pixel(x, y)
				for off := -corridor; off <= corridor; off++ {
					qx, qy := px, py+off
					if !t.xflag {
						qx, qy = px+off, py
					}
					if qx < 0 || qy < 0 || qx >= w || qy >= h {
						continue
					}
					q := qy*w + qx
					if !mask[q] {
						continue
					}
					if good && voted[q] {
						vote(q, -1)
					}
					mask[q] = false
				}
				x += dx
				y += dy
			}
		}

		if good {
			segments = append(segments, Segment{X1: ends[0].X, Y1: ends[0].Y, X2: ends[1].X, Y2: ends[1].Y})
		}
	}

	return segments, nil
}

// trace walks a Hough line in fixed point. The axis with the larger step
// advances by whole pixels; the other carries walkShift fraction bits.
type trace struct {
	x0, y0   int
	dx0, dy0 int
	xflag    bool // true when x is the whole-pixel axis
}

func newTrace(x, y, n int) trace {
	a, b := -houghSin[n], houghCos[n]
	t := trace{x0: x, y0: y}
	if math.Abs(a) > math.Abs(b) {
		t.xflag = true
		t.dx0 = 1
		if a < 0 {
			t.dx0 = -1
		}
		t.dy0 = int(math.Round(b * (1 << walkShift) / math.Abs(a)))
		t.y0 = (y << walkShift) + (1 << (walkShift - 1))
	} else {
		t.dy0 = 1
		if b < 0 {
			t.dy0 = -1
		}
		t.dx0 = int(math.Round(a * (1 << walkShift) / math.Abs(b)))
		t.x0 = (x << walkShift) + (1 << (walkShift - 1))
	}
	return t
}

// start returns the origin and step for direction k (0 forward, 1 back).
func (t trace) start(k int) (x, y, dx, dy int) {
	if k == 0 {
		return t.x0, t.y0, t.dx0, t.dy0
	}
	return t.x0, t.y0, -t.dx0, -t.dy0
}

// pixel converts a fixed-point walk position to pixel coordinates.
func (t trace) pixel(x, y int) (int, int) {
	if t.xflag {
		return x, y >> walkShift
	}
	return x >> walkShift, y
}

// corridorHit looks for a set pixel at (px, py) or up to corridor pixels
// across the walking direction, nearest first.
func corridorHit(mask []bool, w, h, px, py int, xflag bool, corridor int) (int, int, bool) {
	for d := 0; d <= corridor; d++ {
		for _, off := range [2]int{d, -d} {
			qx, qy := px, py+off
			if !xflag {
				qx, qy = px+off, py
			}
			if qx >= 0 && qy >= 0 && qx < w && qy < h && mask[qy*w+qx] {
				return qx, qy, true
			}
			if d == 0 {
				break
			}
		}
	}
	return 0, 0, false
}
