package publish

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AlertLatch decides when a reading above the threshold should raise a
// work order. It fires once per crossing and re-arms when a value at or
// below the reset level is observed, or when Reset is called.
// It is safe for concurrent use.
type AlertLatch struct {
	threshold float64
	reset     float64

	mu    sync.Mutex
	fired bool
}

// NewAlertLatch returns an armed latch. A reset above threshold is
// lowered to threshold.
func NewAlertLatch(threshold, reset float64) *AlertLatch {
	if reset > threshold {
		reset = threshold
	}
	return &AlertLatch{threshold: threshold, reset: reset}
}

// Threshold returns the alert level.
func (a *AlertLatch) Threshold() float64 { return a.threshold }

// Observe records a value and reports whether it should raise a work
// order.
func (a *AlertLatch) Observe(v float64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v <= a.reset {
		a.fired = false
	}
	if v > a.threshold && !a.fired {
		a.fired = true
		return true
	}
	return false
}

// Reset re-arms the latch, as an operator clearing the alert does.
func (a *AlertLatch) Reset() {
	a.mu.Lock()
	a.fired = false
	a.mu.Unlock()
}

// Fired reports whether a work order was raised and not yet re-armed.
func (a *AlertLatch) Fired() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fired
}

// WorkOrder asks the maintenance system to inspect an asset.
type WorkOrder struct {
	ID        string  `json:"id"`
	Action    string  `json:"action"`
	Asset     string  `json:"asset"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Unit      string  `json:"unit,omitempty"`
	Image     string  `json:"image,omitempty"`
	Timestamp string  `json:"timestamp"`
}

// ActionGenerateWorkOrder is the action of every WorkOrder.
const ActionGenerateWorkOrder = "generate_workorder"

// NewWorkOrder describes an alert for asset.
func NewWorkOrder(asset string, value, threshold float64, unit, image string, at time.Time) WorkOrder {
	return WorkOrder{
		ID:        uuid.NewString(),
		Action:    ActionGenerateWorkOrder,
		Asset:     asset,
		Value:     value,
		Threshold: threshold,
		Unit:      unit,
		Image:     image,
		Timestamp: at.Format(time.RFC3339),
	}
}

// Marshal encodes w as JSON.
func (w WorkOrder) Marshal() ([]byte, error) {
	return json.Marshal(w)
}
