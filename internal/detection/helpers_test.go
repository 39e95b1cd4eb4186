package detection

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/gauge-reader/internal/imaging"
)

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

// createDiscImage creates a filled light disc on a mid-gray background.
func createDiscImage(width, height, cx, cy, radius int) *image.RGBA {
	img := createTestImage(width, height, color.Gray{90})
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= radius*radius {
				img.Set(x, y, color.Gray{255})
			}
		}
	}
	return img
}

// createCircleImage creates an image with a circle outline.
func createCircleImage(width, height, cx, cy, radius int) *image.RGBA {
	img := createTestImage(width, height, color.White)

	// Midpoint algorithm
	x, y, e := radius, 0, 0
	for x >= y {
		for _, p := range [][2]int{{x, y}, {y, x}, {-y, x}, {-x, y}, {-x, -y}, {-y, -x}, {y, -x}, {x, -y}} {
			img.Set(cx+p[0], cy+p[1], color.Black)
		}
		if e <= 0 {
			y++
			e += 2*y + 1
		}
		if e > 0 {
			x--
			e -= 2*x + 1
		}
	}
	return img
}

// fillRect paints a solid rectangle.
func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.Set(x, y, c)
		}
	}
}

// buildFrame smooths and edge-detects img the way the gauge reader does.
func buildFrame(t *testing.T, img image.Image) *Frame {
	t.Helper()
	gray := imaging.Smooth(img, 2)
	edges, err := imaging.Canny(context.Background(), gray, 50, 150)
	if err != nil {
		t.Fatalf("Canny failed: %v", err)
	}
	return &Frame{Gray: gray, Edges: edges}
}

// drawLine sets the pixels of a rasterized segment in m.
func drawLine(m *imaging.EdgeMap, x0, y0, x1, y1 int) {
	steps := int(math.Max(math.Abs(float64(x1-x0)), math.Abs(float64(y1-y0))))
	if steps == 0 {
		m.Pix[y0*m.Width+x0] = true
		return
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		x := int(math.Round(float64(x0) + t*float64(x1-x0)))
		y := int(math.Round(float64(y0) + t*float64(y1-y0)))
		m.Pix[y*m.Width+x] = true
	}
}

// near reports whether (x, y) lies within tol pixels of (wx, wy).
func near(x, y, wx, wy int, tol float64) bool {
	return math.Hypot(float64(x-wx), float64(y-wy)) <= tol
}
