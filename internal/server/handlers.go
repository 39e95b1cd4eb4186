package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/go-viper/mapstructure/v2"

	"github.com/ironsheep/gauge-reader/internal/gauge"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "gauge_read").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)
	case "image_dimensions":
		return s.handleImageDimensions(args)

	// Region Operations
	case "image_crop":
		return s.handleImageCrop(args)

	// Edge Inspection
	case "image_edge_detect":
		return s.handleImageEdgeDetect(ctx, args)

	// Gauge Reading
	case "gauge_locate_dial":
		return s.handleGaugeLocateDial(ctx, args)
	case "gauge_detect_needle":
		return s.handleGaugeDetectNeedle(ctx, args)
	case "gauge_read":
		return s.handleGaugeRead(ctx, args)
	case "gauge_map_angle":
		return s.handleGaugeMapAngle(args)
	case "gauge_read_unit":
		return s.handleGaugeReadUnit(ctx, args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Reader Overrides ===

type conventionArgs struct {
	Zero      string `json:"zero"`
	Direction string `json:"direction"`
}

// readerArgs are the per-call overrides of the server's reader.
type readerArgs struct {
	Tuning      map[string]interface{} `json:"tuning,omitempty"`
	Calibration *gauge.Calibration     `json:"calibration,omitempty"`
	Convention  *conventionArgs        `json:"convention,omitempty"`
}

// readerFor returns the server reader with a's overrides applied.
func (s *Server) readerFor(a readerArgs) (*gauge.Reader, error) {
	r := s.reader
	if r == nil {
		return nil, errors.New("no gauge reader configured")
	}

	var err error
	if len(a.Tuning) > 0 {
		t, err := decodeTuning(r.Tuning(), a.Tuning)
		if err != nil {
			return nil, err
		}
		if r, err = r.WithTuning(t); err != nil {
			return nil, err
		}
	}
	if a.Calibration != nil {
		if r, err = r.WithCalibration(*a.Calibration); err != nil {
			return nil, err
		}
	}
	if a.Convention != nil {
		base := r.Convention()
		zero, dir := a.Convention.Zero, a.Convention.Direction
		if zero == "" {
			zero = string(base.Zero)
		}
		if dir == "" {
			dir = string(base.Direction)
		}
		conv, err := gauge.ParseConvention(zero, dir)
		if err != nil {
			return nil, err
		}
		if r, err = r.WithConvention(conv); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// decodeTuning applies overrides keyed by setting name onto base. Unknown
// keys are an error so a misspelt setting is not silently ignored.
func decodeTuning(base gauge.Tuning, overrides map[string]interface{}) (gauge.Tuning, error) {
	t := base
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &t,
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, err
	}
	if err := dec.Decode(overrides); err != nil {
		return base, fmt.Errorf("%w: %v", gauge.ErrInvalidTuning, err)
	}
	return t, nil
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

func (s *Server) handleImageDimensions(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return imaging.GetDimensions(s.cache, a.Path)
}

// === Region Operation Handlers ===

type imageCropArgs struct {
	Path  string  `json:"path"`
	X1    int     `json:"x1"`
	Y1    int     `json:"y1"`
	X2    int     `json:"x2"`
	Y2    int     `json:"y2"`
	Scale float64 `json:"scale"`
}

func (s *Server) handleImageCrop(args json.RawMessage) (interface{}, error) {
	var a imageCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.Crop(img, a.X1, a.Y1, a.X2, a.Y2, a.Scale)
}

// === Edge Inspection Handlers ===

type imageEdgeDetectArgs struct {
	Path          string   `json:"path"`
	ThresholdLow  float64  `json:"threshold_low"`
	ThresholdHigh float64  `json:"threshold_high"`
	BlurRadius    *float64 `json:"blur_radius"`
}

func (s *Server) handleImageEdgeDetect(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageEdgeDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	t := gauge.DefaultTuning()
	if s.reader != nil {
		t = s.reader.Tuning()
	}
	if a.ThresholdLow == 0 {
		a.ThresholdLow = t.CannyLow
	}
	if a.ThresholdHigh == 0 {
		a.ThresholdHigh = t.CannyHigh
	}
	blur := t.BlurRadius
	if a.BlurRadius != nil {
		blur = *a.BlurRadius
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	return imaging.EdgeDetect(ctx, img, blur, a.ThresholdLow, a.ThresholdHigh)
}

// === Gauge Reading Handlers ===

type dialArgs struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// Box is a bounding box in source pixels; X2 and Y2 are exclusive.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// DialResult is a located dial with its bounding box.
type DialResult struct {
	gauge.Dial
	Box Box `json:"box"`
}

type gaugeLocateArgs struct {
	Path string `json:"path"`
	readerArgs
}

func (s *Server) handleGaugeLocateDial(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a gaugeLocateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	r, err := s.readerFor(a.readerArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	d, err := r.Locate(ctx, img)
	if err != nil {
		return nil, err
	}
	box := imaging.DialBox(img.Bounds(), d.X, d.Y, d.Radius, 0)
	return DialResult{
		Dial: *d,
		Box:  Box{X1: box.Min.X, Y1: box.Min.Y, X2: box.Max.X, Y2: box.Max.Y},
	}, nil
}

type gaugeNeedleArgs struct {
	Path string    `json:"path"`
	Dial *dialArgs `json:"dial"`
	readerArgs
}

// NeedleResult is a detected needle with its angle.
type NeedleResult struct {
	Dial       gauge.Dial   `json:"dial"`
	Needle     gauge.Needle `json:"needle"`
	Angle      float64      `json:"angle"`
	Convention string       `json:"convention"`
}

func (s *Server) handleGaugeDetectNeedle(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a gaugeNeedleArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	r, err := s.readerFor(a.readerArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	var dial gauge.Dial
	if a.Dial != nil {
		dial = gauge.Dial{X: a.Dial.X, Y: a.Dial.Y, Radius: a.Dial.Radius}
	} else {
		d, err := r.Locate(ctx, img)
		if err != nil {
			return nil, err
		}
		dial = *d
	}

	n, err := r.Extract(ctx, img, dial)
	if err != nil {
		return nil, err
	}
	return NeedleResult{
		Dial:       dial,
		Needle:     *n,
		Angle:      gauge.Round(r.Angle(dial, *n), 2),
		Convention: r.Convention().String(),
	}, nil
}

type gaugeReadArgs struct {
	Path          string `json:"path"`
	AnnotatedPath string `json:"annotated_path"`
	IncludeImage  bool   `json:"include_image"`
	readerArgs
}

// ReadResult is a gauge reading as returned to MCP clients.
type ReadResult struct {
	*gauge.Reading
	ValueText      string `json:"value_text"`
	Error          string `json:"error,omitempty"`
	AnnotatedPath  string `json:"annotated_path,omitempty"`
	AnnotatedImage string `json:"annotated_image_base64,omitempty"`
}

func (s *Server) handleGaugeRead(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a gaugeReadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	r, err := s.readerFor(a.readerArgs)
	if err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	reading, readErr := r.Read(ctx, img)
	if reading == nil {
		return nil, readErr
	}

	res := ReadResult{Reading: reading, ValueText: "N/A"}
	if reading.HasValue() {
		res.ValueText = gauge.FormatValue(*reading.Value, r.Tuning().Precision)
	}
	if readErr != nil {
		res.Error = readErr.Error()
	}
	if a.AnnotatedPath != "" && reading.Annotated != nil {
		if err := imaging.Save(reading.Annotated, a.AnnotatedPath); err != nil {
			return nil, err
		}
		res.AnnotatedPath = a.AnnotatedPath
	}
	if a.IncludeImage && reading.Annotated != nil {
		if res.AnnotatedImage, err = imaging.EncodePNGBase64(reading.Annotated); err != nil {
			return nil, fmt.Errorf("failed to encode annotated image: %w", err)
		}
	}
	return res, nil
}

type gaugeMapArgs struct {
	Angle       *float64           `json:"angle"`
	Calibration *gauge.Calibration `json:"calibration"`
}

// MapResult is an angle converted to a scale value.
type MapResult struct {
	Angle   float64  `json:"angle"`
	Value   *float64 `json:"value"`
	Level   float64  `json:"level"`
	Clamped bool     `json:"clamped"`
	Unit    string   `json:"unit,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (s *Server) handleGaugeMapAngle(args json.RawMessage) (interface{}, error) {
	var a gaugeMapArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Angle == nil {
		return nil, errors.New("angle is required")
	}

	var cal gauge.Calibration
	switch {
	case a.Calibration != nil:
		cal = *a.Calibration
	case s.reader != nil:
		cal = s.reader.Calibration()
	default:
		return nil, errors.New("calibration is required")
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}

	res := MapResult{Angle: *a.Angle, Level: cal.Level(*a.Angle), Unit: cal.Unit}
	v, err := gauge.Map(*a.Angle, cal)
	if err != nil && !errors.Is(err, gauge.ErrOutOfRange) {
		return nil, err
	}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Value = &v
		res.Clamped = res.Level < 0 || res.Level > 1
		if cal.Clamp == gauge.NoClamp {
			res.Clamped = false
		}
	}
	return res, nil
}

type gaugeUnitArgs struct {
	Path string    `json:"path"`
	Dial *dialArgs `json:"dial"`
}

func (s *Server) handleGaugeReadUnit(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a gaugeUnitArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if s.legend == nil {
		return nil, errors.New("OCR is disabled; enable ocr.enabled in the configuration")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	var dial gauge.Dial
	if a.Dial != nil {
		dial = gauge.Dial{X: a.Dial.X, Y: a.Dial.Y, Radius: a.Dial.Radius}
	} else {
		if s.reader == nil {
			return nil, errors.New("dial is required")
		}
		d, err := s.reader.Locate(ctx, img)
		if err != nil {
			return nil, err
		}
		dial = *d
	}
	if dial.Radius <= 0 || math.IsNaN(dial.Radius) {
		return nil, errors.New("dial radius must be positive")
	}

	unit, err := s.legend.ReadUnit(ctx, img, dial)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"unit": unit, "dial": dial}, nil
}
