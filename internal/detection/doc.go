// Package detection implements the two shape searches the gauge reader needs:
// circle detection for the dial and line-segment detection for the needle.
//
// Both searches sit behind the Backend interface so that the pure Go
// implementation and the OpenCV binding can be swapped by configuration:
//
//   - Native: a gradient-directed Hough circle transform and a progressive
//     probabilistic Hough line transform, written against imaging.EdgeMap
//   - OpenCV: gocv's HoughCircles and HoughLinesP, available when the binary
//     is built with the "gocv" tag
//
// # Algorithm Overview
//
// Circle search votes along each edge pixel's gradient for every radius in
// the allowed range, finds accumulator peaks, then confirms each peak by
// counting edge pixels at a common distance from it. Segment search samples
// edge pixels in a seeded pseudo-random order, votes each into a (rho, theta)
// accumulator, and as soon as a bin crosses the vote threshold walks the
// corresponding line in both directions to recover its extent.
//
// # Determinism and Cancellation
//
// Given identical input and parameters, the native backend returns identical
// results: the segment search draws its sampling order from a fixed seed.
// Every search polls its context and returns ctx.Err() without partial output
// when cancelled.
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
package detection
