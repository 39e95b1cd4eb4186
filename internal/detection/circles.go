package detection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

// Native is the pure Go backend. Its zero value is ready to use and holds no
// state, so one value can serve concurrent readings.
type Native struct{}

// Name implements Backend.
func (Native) Name() string { return "native" }

// maxCircleCandidates caps how many accumulator peaks are verified.
const maxCircleCandidates = 64

// Circles finds circles whose radius lies in [p.MinRadius, p.MaxRadius].
//
// # Algorithm (gradient Hough transform)
//
//  1. Voting: every edge pixel votes along its gradient line, in both
//     directions, for each distance in the radius range. A circle's edge
//     gradients all point through its center, so the center collects one
//     vote per edge pixel regardless of the radius.
//  2. Peaks: accumulator cells are scored by the votes in their 5x5 cell
//     neighborhood; local maxima above MinVotes become candidate centers,
//     refined to the vote-weighted centroid.
//  3. Radius: for each candidate, a histogram of edge pixel distances picks
//     the radius with the most support (a 3-bin window). Support is that
//     count divided by the circumference.
//  4. Suppression: candidates closer than MinDist to a stronger accepted
//     circle are dropped.
//
// # Limitations
//
//   - Ellipses from oblique views only match when they are close to round
//   - A dial whose rim lies partly outside the frame loses support in
//     proportion to the missing arc
func (Native) Circles(ctx context.Context, f *Frame, p CircleParams) ([]Circle, error) {
	if f == nil || f.Edges == nil {
		return nil, errors.New("circle search needs an edge map")
	}
	e := f.Edges
	if !e.HasGradient() {
		return nil, errors.New("circle search needs gradient edges")
	}
	if p.MinRadius < 1 || p.MaxRadius < p.MinRadius {
		return nil, fmt.Errorf("invalid radius range [%d, %d]", p.MinRadius, p.MaxRadius)
	}

	dp := p.DP
	if dp <= 0 {
		dp = 2
	}
	minVotes := p.MinVotes
	if minVotes <= 0 {
		minVotes = int(0.3 * 2 * math.Pi * float64(p.MinRadius))
	}
	minSupport := p.MinSupport
	if minSupport <= 0 {
		minSupport = 0.3
	}

	accW := (e.Width + dp - 1) / dp
	accH := (e.Height + dp - 1) / dp
	acc := make([]int32, accW*accH)
	points := make([]int, 0, 4096)

	for y := 0; y < e.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < e.Width; x++ {
			i := y*e.Width + x
			if !e.Pix[i] {
				continue
			}
			gx, gy := e.GradX[i], e.GradY[i]
			mag := math.Hypot(gx, gy)
			if mag == 0 {
				continue
			}
			points = append(points, i)
			ux, uy := gx/mag, gy/mag
			for _, sign := range [2]float64{1, -1} {
				last := -1
				for r := p.MinRadius; r <= p.MaxRadius; r++ {
					cx := float64(x) + sign*ux*float64(r)
					cy := float64(y) + sign*uy*float64(r)
					if cx < 0 || cy < 0 || cx >= float64(e.Width) || cy >= float64(e.Height) {
						break
					}
					cell := int(cy)/dp*accW + int(cx)/dp
					if cell == last {
						continue
					}
					last = cell
					acc[cell]++
				}
			}
		}
	}

	score := windowSums(acc, accW, accH, 2)
	candidates := make([]int, 0)
	for ay := 0; ay < accH; ay++ {
		for ax := 0; ax < accW; ax++ {
			c := ay*accW + ax
			if score[c] < int64(minVotes) || !isPeak(score, accW, accH, ax, ay) {
				continue
			}
			candidates = append(candidates, c)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return score[candidates[i]] > score[candidates[j]]
	})
	if len(candidates) > maxCircleCandidates {
		candidates = candidates[:maxCircleCandidates]
	}

	hist := make([]int, p.MaxRadius+2)
	circles := make([]Circle, 0)
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cx, cy := centroid(acc, accW, accH, c%accW, c/accW, 2, dp)

		duplicate := false
		for _, got := range circles {
			if math.Hypot(got.X-cx, got.Y-cy) < p.MinDist {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		radius, support := radiusSupport(points, e.Width, cx, cy, p.MinRadius, p.MaxRadius, hist)
		if support < minSupport {
			continue
		}
		circles = append(circles, Circle{X: cx, Y: cy, Radius: radius, Support: support})
	}

	return circles, nil
}

// windowSums returns, for every cell, the sum of acc over the square window
// of half-width k around it, computed with a summed-area table.
func windowSums(acc []int32, w, h, k int) []int64 {
	sat := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(acc[y*w+x])
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + row
		}
	}
	out := make([]int64, w*h)
	for y := 0; y < h; y++ {
		y0, y1 := maxInt(0, y-k), minInt(h, y+k+1)
		for x := 0; x < w; x++ {
			x0, x1 := maxInt(0, x-k), minInt(w, x+k+1)
			out[y*w+x] = sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
		}
	}
	return out
}

// isPeak reports whether cell (x, y) is a local maximum of score. Ties go to
// the first cell in row-major order so a plateau yields one peak.
func isPeak(score []int64, w, h, x, y int) bool {
	v := score[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx, ny := x+dx, y+dy
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			n := score[ny*w+nx]
			before := dy < 0 || (dy == 0 && dx < 0)
			if n > v || (before && n == v) {
				return false
			}
		}
	}
	return true
}

// centroid returns the vote-weighted center of the cells around (ax, ay),
// in pixel coordinates.
func centroid(acc []int32, w, h, ax, ay, k, dp int) (float64, float64) {
	var sx, sy, sw float64
	for y := maxInt(0, ay-k); y < minInt(h, ay+k+1); y++ {
		for x := maxInt(0, ax-k); x < minInt(w, ax+k+1); x++ {
			v := float64(acc[y*w+x])
			sx += v * (float64(x*dp) + float64(dp)/2)
			sy += v * (float64(y*dp) + float64(dp)/2)
			sw += v
		}
	}
	if sw == 0 {
		return float64(ax*dp) + float64(dp)/2, float64(ay*dp) + float64(dp)/2
	}
	return sx / sw, sy / sw
}

// radiusSupport picks the best supported radius around (cx, cy).
// hist is scratch space of length maxR+2.
func radiusSupport(points []int, width int, cx, cy float64, minR, maxR int, hist []int) (float64, float64) {
	for i := range hist {
		hist[i] = 0
	}
	for _, i := range points {
		d := math.Hypot(float64(i%width)-cx, float64(i/width)-cy)
		ri := int(d + 0.5)
		if ri >= minR-1 && ri <= maxR+1 && ri < len(hist) {
			hist[ri]++
		}
	}

	bestR, bestN := 0, -1
	for r := minR; r <= maxR; r++ {
		n := hist[r] + hist[r+1]
		if r > 0 {
			n += hist[r-1]
		}
		if n > bestN {
			bestR, bestN = r, n
		}
	}
	if bestN <= 0 {
		return float64(minR), 0
	}

	var wsum float64
	for r := bestR - 1; r <= bestR+1; r++ {
		if r >= 0 && r < len(hist) {
			wsum += float64(r * hist[r])
		}
	}
	radius := wsum / float64(bestN)
	return radius, float64(bestN) / (2 * math.Pi * radius)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
