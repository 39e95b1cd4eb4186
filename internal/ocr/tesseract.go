package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is used when an Engine has no language set.
const DefaultLanguage = "eng"

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion represents a word with its location and OCR confidence.
type TextRegion struct {
	// Text is the recognized text content.
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is the bounding box around this text in the image.
	Bounds Bounds `json:"bounds"`
}

// OCRResult contains the complete results of text extraction from an image.
type OCRResult struct {
	// FullText is all recognized text as a single string with original spacing/newlines.
	FullText string `json:"full_text"`

	// Regions contains individual words with their bounding boxes and confidence scores.
	// May be empty if bounding box extraction fails (text will still be in FullText).
	Regions []TextRegion `json:"regions"`
}

// Engine runs Tesseract with fixed settings. Each call uses its own
// client, so an Engine is safe for concurrent use.
type Engine struct {
	// Language is a Tesseract language code such as "eng". The matching
	// language data must be installed.
	Language string

	// Whitelist, when not empty, restricts recognition to these characters.
	Whitelist string
}

// Recognize performs OCR on an in-memory image.
//
// The image is encoded as PNG and handed to Tesseract from memory, so no
// temporary files are written. Word bounding boxes are relative to img's
// bounds origin.
//
// gosseract offers no cancellation, so ctx is checked before the image is
// handed over and the call then runs to completion.
func (e Engine) Recognize(ctx context.Context, img image.Image) (*OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("OCR needs a non-empty image")
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	language := e.Language
	if language == "" {
		language = DefaultLanguage
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	if e.Whitelist != "" {
		if err := client.SetWhitelist(e.Whitelist); err != nil {
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	// Get bounding boxes for words
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		// Return just text if boxes fail
		return &OCRResult{FullText: text, Regions: []TextRegion{}}, nil
	}

	origin := img.Bounds().Min
	regions := make([]TextRegion, 0, len(boxes))
	for _, box := range boxes {
		if box.Word == "" {
			continue
		}
		regions = append(regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X + origin.X,
				Y1: box.Box.Min.Y + origin.Y,
				X2: box.Box.Max.X + origin.X,
				Y2: box.Box.Max.Y + origin.Y,
			},
		})
	}

	return &OCRResult{FullText: text, Regions: regions}, nil
}

// RecognizeRegion performs OCR on a rectangular region of img, scaled by
// scale before recognition.
//
// The returned bounding boxes are adjusted to the original image
// coordinates. For example, if the region starts at (100, 50) and a word is
// detected at (10, 20) within the cropped region, the returned bounds will
// be (110, 70) when scale is 1.
func (e Engine) RecognizeRegion(ctx context.Context, img image.Image, region image.Rectangle, scale float64) (*OCRResult, error) {
	region = region.Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("OCR region %v outside image bounds %v", region, img.Bounds())
	}

	cropped := imaging.Crop(img, region)
	if scale <= 0 {
		scale = 1
	}
	if scale != 1 {
		w := int(float64(cropped.Bounds().Dx()) * scale)
		h := int(float64(cropped.Bounds().Dy()) * scale)
		cropped = imaging.Resize(cropped, w, h, imaging.Lanczos)
	}

	result, err := e.Recognize(ctx, cropped)
	if err != nil {
		return nil, err
	}

	// Adjust bounds to be relative to original image
	for i := range result.Regions {
		b := &result.Regions[i].Bounds
		b.X1 = region.Min.X + int(float64(b.X1)/scale)
		b.Y1 = region.Min.Y + int(float64(b.Y1)/scale)
		b.X2 = region.Min.X + int(float64(b.X2)/scale)
		b.Y2 = region.Min.Y + int(float64(b.Y2)/scale)
	}
	return result, nil
}
