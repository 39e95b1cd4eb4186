package gauge

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"

	"github.com/ironsheep/gauge-reader/internal/detection"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

func TestNewReader_Validation(t *testing.T) {
	if _, err := NewReader(nil, DefaultTuning(), defaultCalibration(), DefaultConvention()); err != nil {
		t.Fatalf("valid settings rejected: %v", err)
	}

	bad := DefaultTuning()
	bad.LineThreshold = 0
	if _, err := NewReader(nil, bad, defaultCalibration(), DefaultConvention()); !errors.Is(err, ErrInvalidTuning) {
		t.Errorf("tuning: got %v, want ErrInvalidTuning", err)
	}
	if _, err := NewReader(nil, DefaultTuning(), Calibration{}, DefaultConvention()); !errors.Is(err, ErrInvalidCalibration) {
		t.Errorf("calibration: got %v, want ErrInvalidCalibration", err)
	}
	if _, err := NewReader(nil, DefaultTuning(), defaultCalibration(), AngleConvention{Zero: "up"}); err == nil {
		t.Error("bad convention should fail")
	}

	r, _ := NewReader(nil, DefaultTuning(), defaultCalibration(), DefaultConvention())
	if r.Backend() != "native" {
		t.Errorf("nil backend: got %s, want native", r.Backend())
	}
}

func TestRead_Baseline(t *testing.T) {
	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r, err := NewReader(detection.Native{}, DefaultTuning(), defaultCalibration(), DefaultConvention(),
		WithClock(func() time.Time { return stamp }))
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	reading, err := r.Read(context.Background(), drawGauge(defaultGauge(90)))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reading.HasValue() {
		t.Fatal("reading has no value")
	}

	t.Logf("dial=%+v needle=%+v angle=%.2f value=%.2f", *reading.Dial, *reading.Needle, reading.Angle, *reading.Value)
	if math.Abs(*reading.Value-60) > 1 {
		t.Errorf("value: got %.2f, want 60 +/- 1", *reading.Value)
	}
	if math.Hypot(reading.Dial.X-250, reading.Dial.Y-250) > 3 || math.Abs(reading.Dial.Radius-200) > 3 {
		t.Errorf("dial: got %+v, want (250, 250) r=200", *reading.Dial)
	}
	if reading.Unit != "°C" || !reading.Timestamp.Equal(stamp) || reading.Backend != "native" {
		t.Errorf("metadata: unit=%q timestamp=%v backend=%s", reading.Unit, reading.Timestamp, reading.Backend)
	}
	if reading.Annotated == nil || reading.Annotated.Bounds().Dx() != 500 {
		t.Error("annotated image missing or resized")
	}
	if len(reading.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", reading.Warnings)
	}
}

func TestRead_AngleRecovery(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())

	for deg := 0.0; deg < 360; deg += 15 {
		reading, err := r.Read(context.Background(), drawGauge(defaultGauge(deg)))
		if err != nil {
			t.Errorf("%v deg: Read failed: %v", deg, err)
			continue
		}
		if diff := AngleDiff(reading.Angle, deg); diff > 2 {
			t.Errorf("%v deg: recovered %.2f (off by %.2f)", deg, reading.Angle, diff)
		}
	}
}

func TestRead_ThresholdStrategy(t *testing.T) {
	tn := DefaultTuning()
	tn.NeedleStrategy = StrategyThreshold
	r := newTestReader(t, tn, defaultCalibration())

	for _, deg := range []float64{60, 200, 315} {
		reading, err := r.Read(context.Background(), drawGauge(defaultGauge(deg)))
		if err != nil {
			t.Fatalf("%v deg: Read failed: %v", deg, err)
		}
		if diff := AngleDiff(reading.Angle, deg); diff > 2 {
			t.Errorf("%v deg: recovered %.2f", deg, reading.Angle)
		}
	}
}

func TestRead_OtherConvention(t *testing.T) {
	// Same photo, compass-style angles and a matching calibration.
	conv := AngleConvention{Zero: North, Direction: Clockwise}
	cal := Calibration{MinAngle: -135, MaxAngle: 135, MinValue: 0, MaxValue: 120}
	r, err := NewReader(nil, DefaultTuning(), cal, conv)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	reading, err := r.Read(context.Background(), drawGauge(defaultGauge(0)))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if AngleDiff(reading.Angle, 90) > 2 {
		t.Errorf("angle: got %.2f, want 90", reading.Angle)
	}
	if math.Abs(*reading.Value-100) > 1 {
		t.Errorf("value: got %.2f, want 100", *reading.Value)
	}
}

func TestRead_ScaledPhoto(t *testing.T) {
	g := defaultGauge(135)
	g.size, g.cx, g.cy, g.radius, g.needleLen = 1000, 500, 500, 400, 320
	r := newTestReader(t, DefaultTuning(), defaultCalibration())

	reading, err := r.Read(context.Background(), drawGauge(g))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if math.Hypot(reading.Dial.X-500, reading.Dial.Y-500) > 6 || math.Abs(reading.Dial.Radius-400) > 6 {
		t.Errorf("dial not in source coordinates: %+v", *reading.Dial)
	}
	if AngleDiff(reading.Angle, 135) > 2 {
		t.Errorf("angle: got %.2f, want 135", reading.Angle)
	}
	if reading.Needle.Length < 250 {
		t.Errorf("needle length not in source pixels: %.1f", reading.Needle.Length)
	}
}

func TestRead_Deterministic(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	img := drawGauge(defaultGauge(33))

	first, err := r.Read(context.Background(), img)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	second, err := r.Read(context.Background(), img)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if first.Angle != second.Angle || *first.Value != *second.Value || *first.Needle != *second.Needle {
		t.Errorf("readings differ: %+v vs %+v", first, second)
	}
}

func TestLocate(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())

	d, err := r.Locate(context.Background(), drawGauge(defaultGauge(45)))
	if err != nil {
		t.Fatalf("Locate failed: %v", err)
	}
	if math.Hypot(d.X-250, d.Y-250) > 3 || math.Abs(d.Radius-200) > 3 {
		t.Errorf("dial: got %+v", *d)
	}
	if d.Candidates != 1 || d.Ambiguous() {
		t.Errorf("candidates: got %d", d.Candidates)
	}
}

func TestLocate_NoCircles(t *testing.T) {
	blank := createTestImage(500, 500, color.Gray{200})

	boxes := createTestImage(500, 500, color.White)
	for y := 190; y < 310; y++ {
		for x := 50; x < 450; x++ {
			boxes.Set(x, y, color.Black)
		}
	}
	for i := 0; i < 400; i++ {
		boxes.Set(40+i, 40+i/8, color.Black)
	}

	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	for name, img := range map[string]image.Image{"blank": blank, "boxes": boxes} {
		d, err := r.Locate(context.Background(), img)
		if !errors.Is(err, ErrDialNotFound) {
			t.Errorf("%s: got %+v, %v; want ErrDialNotFound", name, d, err)
		}

		reading, err := r.Read(context.Background(), img)
		if !errors.Is(err, ErrDialNotFound) {
			t.Fatalf("%s: Read err %v, want ErrDialNotFound", name, err)
		}
		if reading == nil || reading.HasValue() || reading.Dial != nil || reading.Annotated == nil {
			t.Errorf("%s: want an annotated reading without value, got %+v", name, reading)
		}
	}
}

func TestExtract_TicksOnly(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	img := drawGauge(defaultGauge())

	n, err := r.Extract(context.Background(), img, Dial{X: 250, Y: 250, Radius: 200})
	if !errors.Is(err, ErrNeedleNotFound) {
		t.Errorf("Extract: got %+v, %v; want ErrNeedleNotFound", n, err)
	}

	reading, err := r.Read(context.Background(), img)
	if !errors.Is(err, ErrNeedleNotFound) {
		t.Fatalf("Read: got %v, want ErrNeedleNotFound", err)
	}
	if reading.Dial == nil || reading.Needle != nil || reading.HasValue() {
		t.Errorf("want dial without needle, got %+v", reading)
	}
}

func TestExtract(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	n, err := r.Extract(context.Background(), drawGauge(defaultGauge(120)), Dial{X: 250, Y: 250, Radius: 200})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if n.Length < 140 || n.Length > 175 {
		t.Errorf("length: got %.1f, want about 160", n.Length)
	}
	if got := r.Angle(Dial{X: 250, Y: 250}, *n); AngleDiff(got, 120) > 2 {
		t.Errorf("angle: got %.2f, want 120", got)
	}

	if _, err := r.Extract(context.Background(), drawGauge(defaultGauge(120)), Dial{}); err == nil {
		t.Error("zero radius dial should fail")
	}
}

func TestRead_AmbiguousNeedles(t *testing.T) {
	tn := DefaultTuning()
	tn.NeedleTieTolerance = 0.15
	img := drawGauge(defaultGauge(30, 150))

	reading, err := newTestReader(t, tn, defaultCalibration()).Read(context.Background(), img)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !reading.HasValue() || len(reading.Warnings) == 0 {
		t.Fatalf("want a value with a warning, got %+v", reading)
	}
	if !strings.Contains(reading.Warnings[0], "needle") {
		t.Errorf("warning: %q", reading.Warnings[0])
	}

	tn.StrictAmbiguity = true
	reading, err = newTestReader(t, tn, defaultCalibration()).Read(context.Background(), img)
	if !errors.Is(err, ErrAmbiguousDetection) {
		t.Fatalf("strict: got %v, want ErrAmbiguousDetection", err)
	}
	if reading == nil || reading.HasValue() || reading.Annotated == nil {
		t.Errorf("strict: want annotated reading without value, got %+v", reading)
	}
}

func TestRead_Cancelled(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	img := drawGauge(defaultGauge(90))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reading, err := r.Read(ctx, img)
	if !errors.Is(err, context.Canceled) || reading != nil {
		t.Errorf("cancelled: got %+v, %v", reading, err)
	}

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	reading, err = r.Read(ctx, img)
	if !errors.Is(err, context.DeadlineExceeded) || reading != nil {
		t.Errorf("deadline: got %+v, %v", reading, err)
	}
}

// stallingBackend waits for the context inside the chosen stage, so the
// deadline expires while a search is running.
type stallingBackend struct {
	stallCircles bool
	entered      chan string
}

func (stallingBackend) Name() string { return "stalling" }

func (b stallingBackend) Circles(ctx context.Context, f *detection.Frame, p detection.CircleParams) ([]detection.Circle, error) {
	if !b.stallCircles {
		return []detection.Circle{{X: 250, Y: 250, Radius: 200}}, nil
	}
	b.entered <- "circles"
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b stallingBackend) Segments(ctx context.Context, m *imaging.EdgeMap, p detection.SegmentParams) ([]detection.Segment, error) {
	b.entered <- "segments"
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRead_CancelledDuringSearch(t *testing.T) {
	img := drawGauge(defaultGauge(90))

	tests := []struct {
		name  string
		stall bool
		stage string
	}{
		{"locate", true, "circles"},
		{"extract", false, "segments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := stallingBackend{stallCircles: tt.stall, entered: make(chan string, 4)}
			r, err := NewReader(backend, DefaultTuning(), defaultCalibration(), DefaultConvention())
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}

			// Long enough for preprocessing to finish, so the deadline
			// expires inside the stalled search.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			reading, err := r.Read(ctx, img)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("err: got %v, want deadline exceeded", err)
			}
			if reading != nil {
				t.Errorf("want no partial reading, got %+v", reading)
			}
			select {
			case stage := <-backend.entered:
				if stage != tt.stage {
					t.Errorf("stalled in %s, want %s", stage, tt.stage)
				}
			default:
				t.Error("deadline expired before the search started")
			}

			ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
			defer cancel2()
			if tt.stall {
				if d, err := r.Locate(ctx2, img); !errors.Is(err, context.DeadlineExceeded) || d != nil {
					t.Errorf("Locate: got %v, %v", d, err)
				}
			} else {
				n, err := r.Extract(ctx2, img, Dial{X: 250, Y: 250, Radius: 200})
				if !errors.Is(err, context.DeadlineExceeded) || n != nil {
					t.Errorf("Extract: got %v, %v", n, err)
				}
			}
		})
	}
}

func TestRead_NativeDeadlineMidway(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	img := drawGauge(defaultGauge(90))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	start := time.Now()
	reading, err := r.Read(ctx, img)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) || reading != nil {
		t.Errorf("got %+v, %v; want nil, deadline exceeded", reading, err)
	}
	// Resizing and blurring are not interruptible; the searches are.
	if elapsed > 2*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
	t.Logf("returned %v after the deadline", elapsed-5*time.Millisecond)
}

func TestRead_InvalidImage(t *testing.T) {
	r := newTestReader(t, DefaultTuning(), defaultCalibration())
	if _, err := r.Read(context.Background(), nil); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("nil image: got %v", err)
	}
	if _, err := r.Read(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0))); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("empty image: got %v", err)
	}
}

func TestRead_FakeBackend(t *testing.T) {
	tn := DefaultTuning()
	tn.WorkingHeight = 0
	img := createTestImage(100, 100, color.White)

	backend := fakeBackend{
		circles: []detection.Circle{
			{X: 50, Y: 50, Radius: 40},
			{X: 52, Y: 50, Radius: 42},
		},
		segments: []detection.Segment{
			{X1: 51, Y1: 15, X2: 51, Y2: 50}, // far end first
		},
	}
	r, err := NewReader(backend, tn, defaultCalibration(), DefaultConvention())
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}

	reading, err := r.Read(context.Background(), img)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if reading.Dial.X != 51 || reading.Dial.Radius != 41 || reading.Dial.Candidates != 2 {
		t.Errorf("consensus dial: got %+v", *reading.Dial)
	}
	if reading.Needle.Far != (r2.Point{X: 51, Y: 15}) {
		t.Errorf("far endpoint: got %v", reading.Needle.Far)
	}
	if Round(*reading.Value, 2) != 60 {
		t.Errorf("value: got %v, want 60", *reading.Value)
	}
	if len(reading.Warnings) != 1 || !strings.Contains(reading.Warnings[0], "2 dial candidates") {
		t.Errorf("warnings: got %v", reading.Warnings)
	}

	tn.StrictAmbiguity = true
	strict, _ := NewReader(backend, tn, defaultCalibration(), DefaultConvention())
	if _, err := strict.Read(context.Background(), img); !errors.Is(err, ErrAmbiguousDetection) {
		t.Errorf("strict: got %v, want ErrAmbiguousDetection", err)
	}
}

func TestRead_RejectPolicy(t *testing.T) {
	tn := DefaultTuning()
	tn.WorkingHeight = 0
	cal := defaultCalibration()
	cal.Clamp = RejectOutside

	backend := fakeBackend{
		circles:  []detection.Circle{{X: 50, Y: 50, Radius: 40}},
		segments: []detection.Segment{{X1: 50, Y1: 52, X2: 50, Y2: 85}}, // straight down
	}
	r, _ := NewReader(backend, tn, cal, DefaultConvention())

	reading, err := r.Read(context.Background(), createTestImage(100, 100, color.White))
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("got %v, want ErrOutOfRange", err)
	}
	if reading.HasValue() || reading.Annotated == nil || AngleDiff(reading.Angle, 270) > 1e-9 {
		t.Errorf("reading: %+v", reading)
	}
}

func TestRead_BackendFailure(t *testing.T) {
	tn := DefaultTuning()
	tn.WorkingHeight = 0
	boom := errors.New("boom")
	r, _ := NewReader(fakeBackend{err: boom}, tn, defaultCalibration(), DefaultConvention())

	reading, err := r.Read(context.Background(), createTestImage(50, 50, color.White))
	if !errors.Is(err, boom) || reading != nil {
		t.Errorf("got %+v, %v", reading, err)
	}
}

func TestSelectNeedle(t *testing.T) {
	d := Dial{X: 100, Y: 100, Radius: 100}
	tn := DefaultTuning()

	tests := []struct {
		name    string
		segs    []detection.Segment
		wantErr bool
		wantFar r2.Point
	}{
		{
			name:    "longest wins",
			segs:    []detection.Segment{{X1: 100, Y1: 100, X2: 150, Y2: 100}, {X1: 100, Y1: 100, X2: 100, Y2: 20}},
			wantFar: r2.Point{X: 100, Y: 20},
		},
		{
			name:    "first of equal lengths",
			segs:    []detection.Segment{{X1: 100, Y1: 100, X2: 160, Y2: 100}, {X1: 100, Y1: 100, X2: 40, Y2: 100}},
			wantFar: r2.Point{X: 160, Y: 100},
		},
		{
			name:    "endpoint outside the face",
			segs:    []detection.Segment{{X1: 100, Y1: 100, X2: 100, Y2: 1}, {X1: 100, Y1: 100, X2: 150, Y2: 100}},
			wantFar: r2.Point{X: 150, Y: 100},
		},
		{
			name:    "only ticks",
			segs:    []detection.Segment{{X1: 100, Y1: 15, X2: 100, Y2: 30}, {X1: 170, Y1: 100, X2: 185, Y2: 100}},
			wantErr: true,
		},
		{
			name:    "degenerate segment",
			segs:    []detection.Segment{{X1: 120, Y1: 120, X2: 120, Y2: 120}},
			wantErr: true,
		},
		{
			name:    "nothing",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := selectNeedle(tt.segs, d, tn)
			if tt.wantErr {
				if !errors.Is(err, ErrNeedleNotFound) {
					t.Errorf("got %+v, %v; want ErrNeedleNotFound", n, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("selectNeedle failed: %v", err)
			}
			if n.Far != tt.wantFar {
				t.Errorf("far: got %v, want %v", n.Far, tt.wantFar)
			}
		})
	}
}

func TestFitCircle(t *testing.T) {
	var pts []r2.Point
	for deg := 0.0; deg < 360; deg += 10 {
		rad := deg * math.Pi / 180
		pts = append(pts, r2.Point{X: 40 + 25*math.Cos(rad), Y: -10 + 25*math.Sin(rad)})
	}
	c, radius, ok := fitCircle(pts)
	if !ok {
		t.Fatal("fit failed")
	}
	if math.Abs(c.X-40) > 1e-6 || math.Abs(c.Y+10) > 1e-6 || math.Abs(radius-25) > 1e-6 {
		t.Errorf("got center %v r=%v", c, radius)
	}

	if _, _, ok := fitCircle(pts[:2]); ok {
		t.Error("two points cannot define a circle")
	}
}

func TestReader_CopyOnWrite(t *testing.T) {
	base := newTestReader(t, DefaultTuning(), defaultCalibration())

	tuned := DefaultTuning()
	tuned.NeedleStrategy = StrategyThreshold
	r2, err := base.WithTuning(tuned)
	if err != nil {
		t.Fatalf("WithTuning failed: %v", err)
	}
	if r2.Tuning().NeedleStrategy != StrategyThreshold {
		t.Errorf("copy tuning: got %s", r2.Tuning().NeedleStrategy)
	}
	if base.Tuning().NeedleStrategy != StrategyCanny {
		t.Errorf("base tuning changed to %s", base.Tuning().NeedleStrategy)
	}

	bad := DefaultTuning()
	bad.CannyHigh = 0
	if _, err := base.WithTuning(bad); !errors.Is(err, ErrInvalidTuning) {
		t.Errorf("bad tuning: got %v, want ErrInvalidTuning", err)
	}

	north := AngleConvention{Zero: North, Direction: Clockwise}
	r3, err := base.WithConvention(north)
	if err != nil {
		t.Fatalf("WithConvention failed: %v", err)
	}
	if r3.Convention() != north || base.Convention() != DefaultConvention() {
		t.Errorf("conventions: copy %v, base %v", r3.Convention(), base.Convention())
	}
	if _, err := base.WithConvention(AngleConvention{Zero: "up", Direction: Clockwise}); err == nil {
		t.Error("bad convention should fail")
	}
}
