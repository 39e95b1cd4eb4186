// Package gauge reads analog dial gauges from photos.
//
// A reading runs three stages over one image:
//
//   - Locate finds the dial with a circular Hough search whose radius range
//     is a fraction of the image height. Several detections are averaged into
//     one consensus dial.
//   - Extract finds the needle: line segments from a probabilistic Hough
//     search, restricted to the dial face, the longest one winning.
//   - Map converts the needle angle into a calibrated value, handling sweeps
//     that cross the 0/360 seam.
//
// Angles are measured in an explicit AngleConvention; calibration angles
// must use the same convention.
//
// A Reader holds only read-only configuration and a detection backend, so
// one Reader can serve concurrent calls. Each call honors its context:
// the Hough loops poll it and a cancelled call returns ctx.Err() with no
// Reading.
package gauge
