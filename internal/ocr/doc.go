// Package ocr reads text printed on gauge faces using Tesseract.
//
// It wraps the Tesseract OCR engine (via gosseract/v2). The gauge reader
// uses it for one job: recognising the unit legend ("°C", "bar", "psi", ...)
// printed in the lower half of most dials, so a calibration can leave its
// unit empty and take the one printed on the gauge.
//
// # Prerequisites
//
// Tesseract and its development headers must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr libtesseract-dev
//   - macOS: brew install tesseract
//
// Language data files are required for each language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr-eng (for English)
//
// # Performance Considerations
//
// OCR is computationally expensive. Legend reads crop to the lower half of
// the dial and upscale the crop before recognition, which is both faster
// and more reliable than recognising the full photo.
//
// # Error Handling
//
// If bounding box extraction fails (e.g., Tesseract version mismatch),
// Recognize still returns the extracted text with an empty Regions slice.
// A legend without a known unit token yields ErrNoUnit.
package ocr
