package imaging

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// CropResult contains a cropped image encoded as base64 PNG.
type CropResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Crop extracts a rectangular region from an image and optionally rescales it.
func Crop(img image.Image, x1, y1, x2, y2 int, scale float64) (*CropResult, error) {
	bounds := img.Bounds()

	if x1 < bounds.Min.X || y1 < bounds.Min.Y || x2 > bounds.Max.X || y2 > bounds.Max.Y {
		return nil, fmt.Errorf("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			x1, y1, x2, y2, bounds.Min.X, bounds.Min.Y, bounds.Max.X, bounds.Max.Y)
	}
	if x1 >= x2 || y1 >= y2 {
		return nil, fmt.Errorf("invalid crop region: x1 must be < x2, y1 must be < y2")
	}

	cropped := imaging.Crop(img, image.Rect(x1, y1, x2, y2))
	if scale != 1.0 && scale > 0 {
		newWidth := int(float64(cropped.Bounds().Dx()) * scale)
		newHeight := int(float64(cropped.Bounds().Dy()) * scale)
		cropped = imaging.Resize(cropped, newWidth, newHeight, imaging.Lanczos)
	}

	encoded, err := EncodePNGBase64(cropped)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cropped image: %w", err)
	}

	return &CropResult{
		Width:       cropped.Bounds().Dx(),
		Height:      cropped.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// DialBox returns the square bounding box of a dial of the given center and
// radius, grown by pad pixels on each side and clipped to bounds.
func DialBox(bounds image.Rectangle, cx, cy, radius float64, pad int) image.Rectangle {
	r := int(math.Ceil(radius)) + pad
	x, y := int(math.Round(cx)), int(math.Round(cy))
	return image.Rect(x-r, y-r, x+r, y+r).Intersect(bounds)
}

// CropDial cuts the dial region out of img. The result has its origin at (0,0).
func CropDial(img image.Image, cx, cy, radius float64, pad int) (*image.NRGBA, image.Rectangle) {
	box := DialBox(img.Bounds(), cx, cy, radius, pad)
	if box.Empty() {
		return imaging.Clone(img), img.Bounds()
	}
	return imaging.Crop(img, box), box
}
