package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var pathProperty = map[string]interface{}{
	"type":        "string",
	"description": "Absolute path to the image file",
}

var tuningProperty = map[string]interface{}{
	"type":        "object",
	"description": "Optional detection overrides keyed by setting name, e.g. {\"needle_strategy\": \"threshold\", \"line_threshold\": 30}. Unset keys keep the server defaults.",
}

var calibrationProperty = map[string]interface{}{
	"type":        "object",
	"description": "Optional scale calibration. Defaults to the server's configured gauge.",
	"properties": map[string]interface{}{
		"min_angle": map[string]interface{}{"type": "number", "description": "Needle angle at the minimum value (degrees)"},
		"max_angle": map[string]interface{}{"type": "number", "description": "Needle angle at the maximum value (degrees); the sign of max-min gives the sweep direction"},
		"min_value": map[string]interface{}{"type": "number", "description": "Scale value at min_angle"},
		"max_value": map[string]interface{}{"type": "number", "description": "Scale value at max_angle"},
		"unit":      map[string]interface{}{"type": "string", "description": "Unit label, e.g. °C"},
		"clamp": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"clamp", "reject", "none"},
			"description": "What to do with angles outside the scale (default clamp)",
		},
	},
	"required": []string{"min_angle", "max_angle", "min_value", "max_value"},
}

var conventionProperty = map[string]interface{}{
	"type":        "object",
	"description": "Optional angle convention: where 0 degrees points and which way angles grow. Default east, counter-clockwise.",
	"properties": map[string]interface{}{
		"zero":      map[string]interface{}{"type": "string", "enum": []string{"east", "north", "west", "south"}},
		"direction": map[string]interface{}{"type": "string", "enum": []string{"ccw", "cw"}},
	},
}

var dialProperty = map[string]interface{}{
	"type":        "object",
	"description": "Dial from gauge_locate_dial, in source pixels. Located automatically when omitted.",
	"properties": map[string]interface{}{
		"x":      map[string]interface{}{"type": "number"},
		"y":      map[string]interface{}{"type": "number"},
		"radius": map[string]interface{}{"type": "number"},
	},
	"required": []string{"x", "y", "radius"},
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions and format. The decoded image is cached for subsequent tools.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "image_dimensions",
			Description: "Get the width and height of an image file.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
				},
				"required": []string{"path"},
			},
		},

		// Region Operations
		{
			Name:        "image_crop",
			Description: "Crop a rectangular region from an image and return it as base64-encoded PNG. Use this to zoom into a dial or its legend.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"x1": map[string]interface{}{
						"type":        "integer",
						"description": "Left edge X coordinate (0-based)",
					},
					"y1": map[string]interface{}{
						"type":        "integer",
						"description": "Top edge Y coordinate (0-based)",
					},
					"x2": map[string]interface{}{
						"type":        "integer",
						"description": "Right edge X coordinate (exclusive)",
					},
					"y2": map[string]interface{}{
						"type":        "integer",
						"description": "Bottom edge Y coordinate (exclusive)",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Optional scale factor (e.g., 2.0 to double size). Default 1.0",
						"default":     1.0,
					},
				},
				"required": []string{"path", "x1", "y1", "x2", "y2"},
			},
		},

		// Edge Inspection
		{
			Name:        "image_edge_detect",
			Description: "Return the Canny edge image the needle search works on. Useful for choosing thresholds when a gauge reads badly.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"threshold_low": map[string]interface{}{
						"type":        "integer",
						"description": "Low threshold for Canny edge detection (default from server tuning, normally 50)",
					},
					"threshold_high": map[string]interface{}{
						"type":        "integer",
						"description": "High threshold for Canny edge detection (default from server tuning, normally 150)",
					},
					"blur_radius": map[string]interface{}{
						"type":        "number",
						"description": "Gaussian blur radius applied first (default from server tuning, normally 2)",
					},
				},
				"required": []string{"path"},
			},
		},

		// Gauge Reading
		{
			Name:        "gauge_locate_dial",
			Description: "Find the circular gauge face. Returns center, radius and bounding box in source pixels, or an error when no dial is visible.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":   pathProperty,
					"tuning": tuningProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "gauge_detect_needle",
			Description: "Find the needle of a dial and its angle. Pass the dial from gauge_locate_dial or let the tool locate it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":       pathProperty,
					"dial":       dialProperty,
					"tuning":     tuningProperty,
					"convention": conventionProperty,
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "gauge_read",
			Description: "Run the full pipeline on a gauge photo: locate the dial, find the needle and map its angle onto the scale. Returns the value with any warnings.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":        pathProperty,
					"tuning":      tuningProperty,
					"calibration": calibrationProperty,
					"convention":  conventionProperty,
					"annotated_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional file to write the annotated image to",
					},
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the annotated image as base64 PNG (default false)",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "gauge_map_angle",
			Description: "Convert a needle angle to a scale value with a calibration. No image needed.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"angle": map[string]interface{}{
						"type":        "number",
						"description": "Needle angle in degrees, in the convention the calibration was written for",
					},
					"calibration": calibrationProperty,
				},
				"required": []string{"angle"},
			},
		},
		{
			Name:        "gauge_read_unit",
			Description: "Recognise the unit printed on the dial face (°C, bar, psi, ...) with OCR. Requires Tesseract.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty,
					"dial": dialProperty,
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
