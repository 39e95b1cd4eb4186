package publish

import (
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/gauge-reader/internal/gauge"
)

// Status strings carried in every Result.
const (
	StatusOK          = "OK"
	StatusNoGauge     = "Gauge not detected."
	StatusNoValue     = "Could not read value from gauge."
	statusAlertFormat = "ALERT! Value %.2f > %v"
)

// NoValue is the value text of a result without a reading.
const NoValue = "N/A"

// Result is the message published for every processed photo.
type Result struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Value        string   `json:"value"`
	Angle        *float64 `json:"angle"`
	Unit         string   `json:"unit,omitempty"`
	Source       string   `json:"source,omitempty"`
	BaseImageURL string   `json:"base_image_url"`
	CropImageURL *string  `json:"crop_image_url"`
	DetectionBox []int    `json:"detection_box"` // x1, y1, x2, y2 in source pixels
	Warnings     []string `json:"warnings,omitempty"`
	Error        string   `json:"error,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// Images names the stored files a Result links to. Paths are relative to
// the base URL.
type Images struct {
	BaseURL   string
	Annotated string
	Crop      string
}

func (im Images) url(file string) string {
	if im.BaseURL == "" {
		return file
	}
	return im.BaseURL + "/" + path.Clean(file)
}

// ResultBuilder turns readings into Results.
type ResultBuilder struct {
	Precision int
	Alert     *AlertLatch // nil disables the alert status
	Now       func() time.Time
}

// Build describes one pipeline outcome. reading may be nil when err is
// set; box is the dial bounding box, empty when no dial was found.
func (b ResultBuilder) Build(source string, reading *gauge.Reading, err error, box []int, images Images) Result {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	res := Result{
		ID:           uuid.NewString(),
		Status:       StatusOK,
		Value:        NoValue,
		Source:       source,
		BaseImageURL: images.url(images.Annotated),
		DetectionBox: box,
		Timestamp:    now().Format(time.RFC3339),
	}
	if images.Crop != "" {
		crop := images.url(images.Crop)
		res.CropImageURL = &crop
	}
	if err != nil {
		res.Error = err.Error()
	}
	if reading != nil {
		res.Unit = reading.Unit
		res.Warnings = reading.Warnings
		if reading.Needle != nil {
			angle := gauge.Round(reading.Angle, b.Precision)
			res.Angle = &angle
		}
	}

	switch {
	case reading == nil || reading.Dial == nil:
		res.Status = StatusNoGauge
		res.DetectionBox = nil
		res.CropImageURL = nil
	case !reading.HasValue():
		res.Status = StatusNoValue
	default:
		v := *reading.Value
		res.Value = gauge.FormatValue(v, b.Precision)
		if b.Alert != nil && v > b.Alert.Threshold() {
			res.Status = fmt.Sprintf(statusAlertFormat, v, b.Alert.Threshold())
		}
	}
	return res
}

// Marshal encodes r as JSON.
func (r Result) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
