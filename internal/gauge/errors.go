package gauge

import "errors"

var (
	// ErrDialNotFound is returned when no circular dial is detected in the image.
	ErrDialNotFound = errors.New("dial not found")

	// ErrNeedleNotFound is returned when a dial was found but no line segment qualifies as its needle.
	ErrNeedleNotFound = errors.New("needle not found")

	// ErrAmbiguousDetection is returned in strict mode when several dials were averaged
	// or two needle candidates are nearly tied but point in different directions.
	ErrAmbiguousDetection = errors.New("ambiguous detection")

	// ErrOutOfRange is returned under the reject policy when the needle points outside the sweep.
	ErrOutOfRange = errors.New("reading outside calibrated range")

	// ErrInvalidCalibration is returned for calibrations that cannot map an angle.
	ErrInvalidCalibration = errors.New("invalid calibration")

	// ErrInvalidTuning is returned for detection parameters outside their valid range.
	ErrInvalidTuning = errors.New("invalid tuning")

	// ErrInvalidImage is returned for nil or empty images.
	ErrInvalidImage = errors.New("invalid image")
)
