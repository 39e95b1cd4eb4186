package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"math"
)

// EdgeMap is a binary pixel map with optional Sobel gradients.
//
// Pix is row-major with Width*Height entries. GradX and GradY are filled by
// Canny and left nil for masks built from thresholds.
type EdgeMap struct {
	Width  int
	Height int
	Pix    []bool
	GradX  []float64
	GradY  []float64
}

// NewEdgeMap returns an empty map of the given size.
func NewEdgeMap(width, height int) *EdgeMap {
	return &EdgeMap{
		Width:  width,
		Height: height,
		Pix:    make([]bool, width*height),
	}
}

// At reports whether (x, y) is set. Coordinates outside the map are unset.
func (m *EdgeMap) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Count returns the number of set pixels.
func (m *EdgeMap) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// HasGradient reports whether gradient vectors are available.
func (m *EdgeMap) HasGradient() bool {
	return len(m.GradX) == len(m.Pix) && len(m.GradY) == len(m.Pix)
}

// WithinDisc returns a copy of m keeping only pixels whose distance from
// (cx, cy) is at most radius. Gradients are shared, not copied.
func (m *EdgeMap) WithinDisc(cx, cy, radius float64) *EdgeMap {
	out := &EdgeMap{
		Width:  m.Width,
		Height: m.Height,
		Pix:    make([]bool, len(m.Pix)),
		GradX:  m.GradX,
		GradY:  m.GradY,
	}
	r2 := radius * radius
	for y := 0; y < m.Height; y++ {
		dy := float64(y) - cy
		for x := 0; x < m.Width; x++ {
			i := y*m.Width + x
			if !m.Pix[i] {
				continue
			}
			dx := float64(x) - cx
			if dx*dx+dy*dy <= r2 {
				out.Pix[i] = true
			}
		}
	}
	return out
}

// Image renders the map as a grayscale image with set pixels in white.
func (m *EdgeMap) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Pix {
		if v {
			img.Pix[i] = 255
		}
	}
	return img
}

// Canny extracts thin edges from a smoothed grayscale image.
//
// Thresholds are on the 0-255 intensity scale applied to the Sobel gradient
// magnitude; OpenCV-style values of 50 and 150 work for most dial photos.
// The input is expected to be blurred already (see Smooth).
//
// # Algorithm
//
//  1. Gradient computation: Sobel operators for X and Y gradients
//  2. Non-maximum suppression: keep local maxima across the gradient direction
//  3. Hysteresis: pixels above high seed edges, which then grow through
//     8-connected pixels above low
//
// ctx is polled once per row; a cancelled context aborts with ctx.Err() and no map.
func Canny(ctx context.Context, gray *image.Gray, low, high float64) (*EdgeMap, error) {
	b := gray.Bounds()
	width, height := b.Dx(), b.Dy()
	n := width * height

	px := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return float64(gray.Pix[y*gray.Stride+x])
	}

	gradX := make([]float64, n)
	gradY := make([]float64, n)
	magnitude := make([]float64, n)
	for y := 0; y < height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < width; x++ {
			gx := (px(x+1, y-1) + 2*px(x+1, y) + px(x+1, y+1)) -
				(px(x-1, y-1) + 2*px(x-1, y) + px(x-1, y+1))
			gy := (px(x-1, y+1) + 2*px(x, y+1) + px(x+1, y+1)) -
				(px(x-1, y-1) + 2*px(x, y-1) + px(x+1, y-1))
			i := y*width + x
			gradX[i] = gx
			gradY[i] = gy
			magnitude[i] = math.Sqrt(gx*gx + gy*gy)
		}
	}

	// Non-maximum suppression in four direction sectors.
	suppressed := make([]float64, n)
	for y := 1; y < height-1; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 1; x < width-1; x++ {
			i := y*width + x
			mag := magnitude[i]
			if mag < low {
				continue
			}
			angle := math.Atan2(gradY[i], gradX[i])
			if angle < 0 {
				angle += math.Pi
			}

			var n1, n2 float64
			switch {
			case angle < math.Pi/8 || angle >= 7*math.Pi/8:
				n1, n2 = magnitude[i-1], magnitude[i+1]
			case angle < 3*math.Pi/8:
				n1, n2 = magnitude[i-width-1], magnitude[i+width+1]
			case angle < 5*math.Pi/8:
				n1, n2 = magnitude[i-width], magnitude[i+width]
			default:
				n1, n2 = magnitude[i-width+1], magnitude[i+width-1]
			}

			if mag >= n1 && mag > n2 {
				suppressed[i] = mag
			}
		}
	}

	// Hysteresis: grow strong edges through weak ones.
	edges := make([]bool, n)
	stack := make([]int, 0, 1024)
	for i, v := range suppressed {
		if v >= high && !edges[i] {
			edges[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%width, i/width
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= width || ny >= height {
					continue
				}
				j := ny*width + nx
				if !edges[j] && suppressed[j] >= low {
					edges[j] = true
					stack = append(stack, j)
				}
			}
		}
	}

	return &EdgeMap{
		Width:  width,
		Height: height,
		Pix:    edges,
		GradX:  gradX,
		GradY:  gradY,
	}, nil
}

// EdgeDetectResult contains an edge-detected image encoded as base64 PNG.
//
// White pixels (255) are edges, black pixels (0) are not.
type EdgeDetectResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	EdgePixels  int    `json:"edge_pixels"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// EdgeDetect runs the same smoothing and Canny stages the needle extractor
// uses and returns the edge image for inspection.
//
// Parameters:
//   - img: Source image (color or grayscale).
//   - blurRadius: Gaussian radius applied before edge extraction.
//   - thresholdLow, thresholdHigh: hysteresis thresholds on the 0-255 scale.
func EdgeDetect(ctx context.Context, img image.Image, blurRadius, thresholdLow, thresholdHigh float64) (*EdgeDetectResult, error) {
	if thresholdLow > thresholdHigh {
		return nil, fmt.Errorf("threshold_low %.0f exceeds threshold_high %.0f", thresholdLow, thresholdHigh)
	}
	work := Normalize(img, 0)
	edges, err := Canny(ctx, Smooth(work.Image, blurRadius), thresholdLow, thresholdHigh)
	if err != nil {
		return nil, err
	}

	encoded, err := EncodePNGBase64(edges.Image())
	if err != nil {
		return nil, fmt.Errorf("failed to encode edge image: %w", err)
	}

	return &EdgeDetectResult{
		Width:       edges.Width,
		Height:      edges.Height,
		EdgePixels:  edges.Count(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// EncodePNGBase64 encodes img as a base64 PNG string.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
