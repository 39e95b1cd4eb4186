package imaging

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
)

// createInMemoryImage creates a solid color test image.
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// createStepImage creates a black left half and white right half.
func createStepImage(width, height int) *image.RGBA {
	img := createInMemoryImage(width, height, color.White)
	for y := 0; y < height; y++ {
		for x := 0; x < width/2; x++ {
			img.Set(x, y, color.Black)
		}
	}
	return img
}

// createDiscImage creates a light disc on a mid-gray background.
func createDiscImage(width, height, cx, cy, radius int) *image.RGBA {
	img := createInMemoryImage(width, height, color.Gray{90})
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

// writeTestPNG encodes img into a temp file and returns its path.
func writeTestPNG(t *testing.T, img image.Image) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "test-image-*.png")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return f.Name()
}
