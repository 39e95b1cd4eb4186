package gauge

import (
	"fmt"
	"strings"
)

// Strategy selects how needle pixels are isolated before the line search.
type Strategy string

const (
	// StrategyCanny searches gradient edges. Needle outlines show up as two
	// parallel edges.
	StrategyCanny Strategy = "canny"

	// StrategyThreshold searches pixels darker than NeedleDarkLevel, for
	// dark needles on light faces.
	StrategyThreshold Strategy = "threshold"
)

// Tuning holds every detection constant of the pipeline. Distances are in
// working-image pixels unless named as a fraction.
type Tuning struct {
	WorkingHeight int     `yaml:"working_height" mapstructure:"working_height"` // photos are resized to this height; 0 keeps the source size
	BlurRadius    float64 `yaml:"blur_radius" mapstructure:"blur_radius"`       // Gaussian blur radius before edge detection
	CannyLow      float64 `yaml:"canny_low" mapstructure:"canny_low"`           // hysteresis low threshold
	CannyHigh     float64 `yaml:"canny_high" mapstructure:"canny_high"`         // hysteresis high threshold

	DialMinRadiusFraction float64 `yaml:"dial_min_radius_fraction" mapstructure:"dial_min_radius_fraction"` // smallest dial radius as a fraction of image height
	DialMaxRadiusFraction float64 `yaml:"dial_max_radius_fraction" mapstructure:"dial_max_radius_fraction"` // largest dial radius as a fraction of image height
	DialMinDistFraction   float64 `yaml:"dial_min_dist_fraction" mapstructure:"dial_min_dist_fraction"`     // minimum center separation as a fraction of image height
	DialMinSupport        float64 `yaml:"dial_min_support" mapstructure:"dial_min_support"`                 // rim fraction that must be backed by edges
	DialRefine            bool    `yaml:"dial_refine" mapstructure:"dial_refine"`                           // least-squares fit over rim pixels

	NeedleStrategy  Strategy `yaml:"needle_strategy" mapstructure:"needle_strategy"`     // canny or threshold
	NeedleDarkLevel uint8    `yaml:"needle_dark_level" mapstructure:"needle_dark_level"` // threshold strategy cut-off

	LineThreshold int   `yaml:"line_threshold" mapstructure:"line_threshold"`   // Hough votes before a line is traced
	LineMinLength int   `yaml:"line_min_length" mapstructure:"line_min_length"` // shortest segment the search reports
	LineMaxGap    int   `yaml:"line_max_gap" mapstructure:"line_max_gap"`       // missing pixels bridged along a segment
	LineCorridor  int   `yaml:"line_corridor" mapstructure:"line_corridor"`     // perpendicular slack while tracing
	LineSeed      int64 `yaml:"line_seed" mapstructure:"line_seed"`             // sampling seed; fixed for reproducible readings

	NeedleRadiusMargin      float64 `yaml:"needle_radius_margin" mapstructure:"needle_radius_margin"`             // segment endpoints must lie within this fraction of the radius
	NeedleMinLengthFraction float64 `yaml:"needle_min_length_fraction" mapstructure:"needle_min_length_fraction"` // shortest needle as a fraction of the radius
	NeedleTieTolerance      float64 `yaml:"needle_tie_tolerance" mapstructure:"needle_tie_tolerance"`             // runner-up length ratio that counts as a tie
	NeedleTieAngle          float64 `yaml:"needle_tie_angle" mapstructure:"needle_tie_angle"`                     // degrees apart before a tie is ambiguous

	StrictAmbiguity bool `yaml:"strict_ambiguity" mapstructure:"strict_ambiguity"` // fail instead of warning on ambiguous detections
	Precision       int  `yaml:"precision" mapstructure:"precision"`               // decimals kept for display
}

// DefaultTuning returns the constants that read a 500 pixel high photo of
// a single dial filling most of the frame.
func DefaultTuning() Tuning {
	return Tuning{
		WorkingHeight: 500,
		BlurRadius:    2,
		CannyLow:      50,
		CannyHigh:     150,

		DialMinRadiusFraction: 0.35,
		DialMaxRadiusFraction: 0.48,
		DialMinDistFraction:   0.5,
		DialMinSupport:        0.3,
		DialRefine:            true,

		NeedleStrategy:  StrategyCanny,
		NeedleDarkLevel: 128,

		LineThreshold: 40,
		LineMinLength: 20,
		LineMaxGap:    5,
		LineCorridor:  2,
		LineSeed:      1,

		NeedleRadiusMargin:      0.98,
		NeedleMinLengthFraction: 0.40,
		NeedleTieTolerance:      0.05,
		NeedleTieAngle:          15,

		Precision: 2,
	}
}

// Validate rejects parameters the pipeline cannot run with.
func (t Tuning) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(t.WorkingHeight >= 0, "working_height must not be negative")
	check(t.BlurRadius >= 0, "blur_radius must not be negative")
	check(t.CannyLow > 0 && t.CannyLow <= t.CannyHigh, "need 0 < canny_low <= canny_high, got %v and %v", t.CannyLow, t.CannyHigh)
	check(t.DialMinRadiusFraction > 0 && t.DialMinRadiusFraction < t.DialMaxRadiusFraction && t.DialMaxRadiusFraction <= 1,
		"need 0 < dial_min_radius_fraction < dial_max_radius_fraction <= 1, got %v and %v",
		t.DialMinRadiusFraction, t.DialMaxRadiusFraction)
	check(t.DialMinDistFraction > 0, "dial_min_dist_fraction must be positive")
	check(t.DialMinSupport >= 0 && t.DialMinSupport <= 1, "dial_min_support must be in [0, 1]")
	check(t.NeedleStrategy == StrategyCanny || t.NeedleStrategy == StrategyThreshold,
		"unknown needle_strategy %q", t.NeedleStrategy)
	check(t.LineThreshold >= 1, "line_threshold must be at least 1")
	check(t.LineMinLength >= 0, "line_min_length must not be negative")
	check(t.LineMaxGap >= 0, "line_max_gap must not be negative")
	check(t.LineCorridor >= 0, "line_corridor must not be negative")
	check(t.NeedleRadiusMargin > 0 && t.NeedleRadiusMargin <= 1, "needle_radius_margin must be in (0, 1]")
	check(t.NeedleMinLengthFraction > 0 && t.NeedleMinLengthFraction <= 1, "needle_min_length_fraction must be in (0, 1]")
	check(t.NeedleTieTolerance >= 0 && t.NeedleTieTolerance < 1, "needle_tie_tolerance must be in [0, 1)")
	check(t.NeedleTieAngle >= 0 && t.NeedleTieAngle <= 180, "needle_tie_angle must be in [0, 180]")
	check(t.Precision >= 0 && t.Precision <= 6, "precision must be in [0, 6]")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTuning, strings.Join(problems, "; "))
	}
	return nil
}
