package gauge

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r2"

	"github.com/ironsheep/gauge-reader/internal/detection"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// Reader runs the locate, extract and map stages with fixed settings.
// It is safe for concurrent use.
type Reader struct {
	backend detection.Backend
	tuning  Tuning
	cal     Calibration
	conv    AngleConvention
	palette imaging.Palette
	now     func() time.Time
}

// Option customizes a Reader.
type Option func(*Reader)

// WithClock sets the function that stamps readings.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPalette sets the overlay colors of annotated images.
func WithPalette(p imaging.Palette) Option {
	return func(r *Reader) {
		r.palette = p
	}
}

// NewReader validates the settings and returns a Reader. A nil backend
// selects the native one.
func NewReader(backend detection.Backend, tuning Tuning, cal Calibration, conv AngleConvention, opts ...Option) (*Reader, error) {
	if backend == nil {
		backend = detection.Native{}
	}
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("angle convention: %w", err)
	}

	r := &Reader{
		backend: backend,
		tuning:  tuning,
		cal:     cal,
		conv:    conv,
		palette: imaging.DefaultPalette(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// WithCalibration returns a copy of r that maps angles with cal.
func (r *Reader) WithCalibration(cal Calibration) (*Reader, error) {
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	cp := *r
	cp.cal = cal
	return &cp, nil
}

// WithTuning returns a copy of r that detects with t.
func (r *Reader) WithTuning(t Tuning) (*Reader, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	cp := *r
	cp.tuning = t
	return &cp, nil
}

// WithConvention returns a copy of r that measures angles in c.
func (r *Reader) WithConvention(c AngleConvention) (*Reader, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("angle convention: %w", err)
	}
	cp := *r
	cp.conv = c
	return &cp, nil
}

// Tuning returns the reader's detection constants.
func (r *Reader) Tuning() Tuning { return r.tuning }

// Calibration returns the reader's calibration.
func (r *Reader) Calibration() Calibration { return r.cal }

// Convention returns the reader's angle convention.
func (r *Reader) Convention() AngleConvention { return r.conv }

// Backend returns the name of the detection backend.
func (r *Reader) Backend() string { return r.backend.Name() }

// Angle returns the needle angle relative to the dial center in the
// reader's convention.
func (r *Reader) Angle(d Dial, n Needle) float64 {
	v := n.Direction(d)
	return r.conv.Angle(v.X, v.Y)
}

// frame is one image prepared for detection.
type frame struct {
	work *imaging.Working
	det  *detection.Frame
}

func (r *Reader) prepare(ctx context.Context, img image.Image) (*frame, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrInvalidImage
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	work := imaging.Normalize(img, r.tuning.WorkingHeight)
	gray := imaging.Smooth(work.Image, r.tuning.BlurRadius)
	edges, err := imaging.Canny(ctx, gray, r.tuning.CannyLow, r.tuning.CannyHigh)
	if err != nil {
		return nil, err
	}
	return &frame{
		work: work,
		det:  &detection.Frame{Gray: gray, Edges: edges},
	}, nil
}

func (f *frame) dialToSource(d Dial) Dial {
	d.X = f.work.ToSource(d.X)
	d.Y = f.work.ToSource(d.Y)
	d.Radius = f.work.ToSource(d.Radius)
	return d
}

func (f *frame) dialFromSource(d Dial) Dial {
	d.X *= f.work.Scale
	d.Y *= f.work.Scale
	d.Radius *= f.work.Scale
	return d
}

func (f *frame) needleToSource(n Needle) Needle {
	n.Near = r2.Point{X: f.work.ToSource(n.Near.X), Y: f.work.ToSource(n.Near.Y)}
	n.Far = r2.Point{X: f.work.ToSource(n.Far.X), Y: f.work.ToSource(n.Far.Y)}
	n.Length = f.work.ToSource(n.Length)
	return n
}

// Locate finds the gauge dial in img. It returns ErrDialNotFound when the
// circle search comes back empty.
func (r *Reader) Locate(ctx context.Context, img image.Image) (*Dial, error) {
	f, err := r.prepare(ctx, img)
	if err != nil {
		return nil, err
	}
	d, err := r.locate(ctx, f)
	if err != nil {
		return nil, err
	}
	d = f.dialToSource(d)
	return &d, nil
}

// Extract finds the needle of dial in img. It returns ErrNeedleNotFound
// when no segment inside the dial face is long enough.
func (r *Reader) Extract(ctx context.Context, img image.Image, dial Dial) (*Needle, error) {
	if dial.Radius <= 0 {
		return nil, errors.New("dial radius must be positive")
	}
	f, err := r.prepare(ctx, img)
	if err != nil {
		return nil, err
	}
	n, err := r.extract(ctx, f, f.dialFromSource(dial))
	if err != nil {
		return nil, err
	}
	n = f.needleToSource(n)
	return &n, nil
}

// Read runs the whole pipeline over img.
//
// When the dial or needle is not found, or the reject policy refuses the
// angle, Read returns the matching error together with a Reading that has
// no Value but still carries the annotated image. A cancelled context
// returns ctx.Err() and no Reading.
func (r *Reader) Read(ctx context.Context, img image.Image) (*Reading, error) {
	f, err := r.prepare(ctx, img)
	if err != nil {
		return nil, err
	}

	reading := &Reading{
		Unit:      r.cal.Unit,
		Backend:   r.backend.Name(),
		Timestamp: r.now(),
	}
	var ann imaging.Annotation

	d, err := r.locate(ctx, f)
	if err != nil {
		return r.failed(ctx, img, reading, ann, "no dial", err)
	}
	src := f.dialToSource(d)
	reading.Dial = &src
	ann.Center, ann.Radius = src.Center(), src.Radius
	if d.Ambiguous() {
		reading.Warnings = append(reading.Warnings, fmt.Sprintf("%d dial candidates averaged", d.Candidates))
	}

	n, err := r.extract(ctx, f, d)
	if err != nil {
		return r.failed(ctx, img, reading, ann, "no needle", err)
	}
	sn := f.needleToSource(n)
	reading.Needle = &sn
	ann.Needle, ann.HasNeedle = [2]r2.Point{sn.Near, sn.Far}, true
	if n.RunnerUp != "" {
		reading.Warnings = append(reading.Warnings, "needle candidates nearly tied: "+n.RunnerUp)
	}

	reading.Angle = r.Angle(d, n)
	reading.Level = r.cal.Level(reading.Angle)
	ann.Level = math.Max(0, math.Min(1, reading.Level))

	value, err := Map(reading.Angle, r.cal)
	switch {
	case err != nil:
		ann.Label = "out of range"
	case r.tuning.StrictAmbiguity && len(reading.Warnings) > 0:
		err = fmt.Errorf("%w: %s", ErrAmbiguousDetection, strings.Join(reading.Warnings, "; "))
		ann.Label = "ambiguous"
	default:
		reading.Value = &value
		ann.Label = strings.TrimSpace(FormatValue(value, r.tuning.Precision) + " " + r.cal.Unit)
	}

	reading.Annotated = imaging.Annotate(img, ann, r.palette)
	return reading, err
}

// failed finishes a reading that stopped at a detection stage. Detection
// misses keep the partial reading; cancellation and backend faults do not.
func (r *Reader) failed(ctx context.Context, img image.Image, reading *Reading, ann imaging.Annotation, label string, err error) (*Reading, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if !errors.Is(err, ErrDialNotFound) && !errors.Is(err, ErrNeedleNotFound) {
		return nil, err
	}
	ann.Label = label
	reading.Annotated = imaging.Annotate(img, ann, r.palette)
	return reading, err
}

// FormatValue renders v with a fixed number of decimals.
func FormatValue(v float64, precision int) string {
	return strconv.FormatFloat(Round(v, precision), 'f', precision, 64)
}
