// Package imaging provides the raster plumbing shared by the gauge pipeline,
// the capture service and the MCP server.
//
// This package covers loading (with EXIF auto-orientation), normalizing a photo
// to the working size used by detection, grayscale conversion, smoothing and
// binarization, Canny edge extraction, cropping, and rendering the debug
// overlay that accompanies every reading. All operations work with standard Go
// image.Image types and use a coordinate system where (0,0) is at the top-left
// corner, X increases rightward, and Y increases downward.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For regions, (x1,y1) is inclusive (top-left), (x2,y2) is exclusive (bottom-right)
//
// Images returned by Normalize always have their origin at (0,0). Detection
// code relies on this and indexes pixel buffers directly.
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. Every other function is
// stateless and returns a new image, so independent readings can run in
// parallel without coordination.
//
// # Libraries
//
//   - github.com/disintegration/imaging: decoding, orientation, resize, crop, save
//   - github.com/anthonynsimon/bild: grayscale, Gaussian blur, threshold
//   - golang.org/x/image: vector rasterization and the bitmap font for overlays
//   - github.com/lucasb-eyer/go-colorful: label tint along the gauge scale
package imaging
