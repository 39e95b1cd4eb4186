// Package server exposes the gauge reader as MCP (Model Context Protocol)
// tools, so an assistant can inspect a photo step by step when a gauge
// reads badly.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//   - image_dimensions: Get width and height
//
// Region Operations:
//   - image_crop: Extract rectangular region
//
// Edge Inspection:
//   - image_edge_detect: The Canny edge image the needle search sees
//
// Gauge Reading:
//   - gauge_locate_dial: Find the dial circle
//   - gauge_detect_needle: Find the needle and its angle
//   - gauge_read: Full pipeline, value plus warnings
//   - gauge_map_angle: Angle to scale value, no image
//   - gauge_read_unit: Unit printed on the dial (OCR)
//
// The gauge tools accept tuning, calibration and convention overrides per
// call. Overrides apply to that call only; the configured reader is never
// modified.
//
// # Image Caching
//
// Images are cached by path and reused across tool calls for the lifetime
// of the server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// A gauge_map_angle call whose angle is rejected by the calibration is not a
// tool failure; the result carries the reason in its error field.
//
// # Usage
//
//	srv := server.New(reader, server.WithVersion(version))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
