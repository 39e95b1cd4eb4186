package imaging

import (
	"image"
	"image/draw"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/disintegration/imaging"
)

// Working is a photo normalized for detection.
//
// Detection thresholds are tuned for a fixed working height, so photos from
// different cameras are resized first. Scale converts working coordinates
// back into the source photo: source = working / Scale.
type Working struct {
	Image *image.NRGBA
	Scale float64
}

// ToSource maps a working-image coordinate back to the source photo.
func (w *Working) ToSource(v float64) float64 {
	if w.Scale == 0 {
		return v
	}
	return v / w.Scale
}

// Normalize copies img to an origin-anchored NRGBA image whose height is
// height pixels, preserving the aspect ratio. A non-positive height, or a
// photo already at that height, is copied without resampling.
func Normalize(img image.Image, height int) *Working {
	srcH := img.Bounds().Dy()
	if height <= 0 || srcH == 0 || srcH == height {
		return &Working{Image: imaging.Clone(img), Scale: 1}
	}
	resized := imaging.Resize(img, 0, height, imaging.Lanczos)
	return &Working{
		Image: resized,
		Scale: float64(resized.Bounds().Dy()) / float64(srcH),
	}
}

// Grayscale converts img to an 8-bit luminance image.
func Grayscale(img image.Image) *image.Gray {
	return toGray(effect.Grayscale(img))
}

// Smooth applies a Gaussian blur of the given radius and returns the result
// as grayscale. A non-positive radius returns a plain grayscale copy.
func Smooth(gray image.Image, radius float64) *image.Gray {
	if radius <= 0 {
		return Grayscale(gray)
	}
	return Grayscale(blur.Gaussian(gray, radius))
}

// toGray copies the luminance of an already desaturated RGBA image.
func toGray(rgba *image.RGBA) *image.Gray {
	b := rgba.Bounds()
	g := image.NewGray(b)
	draw.Draw(g, b, rgba, b.Min, draw.Src)
	return g
}

// Binarize maps pixels darker than level to black and the rest to white.
func Binarize(gray image.Image, level uint8) *image.Gray {
	return segment.Threshold(gray, level)
}

// DarkMask marks the pixels of gray that fall below level.
//
// The mask has no gradient information and is meant for line search only.
func DarkMask(gray *image.Gray, level uint8) *EdgeMap {
	bin := Binarize(gray, level)
	b := bin.Bounds()
	m := NewEdgeMap(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		row := bin.Pix[y*bin.Stride : y*bin.Stride+m.Width]
		for x, v := range row {
			if v == 0 {
				m.Pix[y*m.Width+x] = true
			}
		}
	}
	return m
}
