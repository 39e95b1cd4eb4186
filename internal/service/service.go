// Package service runs the capture, read and publish loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/ironsheep/gauge-reader/internal/capture"
	"github.com/ironsheep/gauge-reader/internal/gauge"
	"github.com/ironsheep/gauge-reader/internal/imaging"
	"github.com/ironsheep/gauge-reader/internal/publish"
)

// fileTimeFormat stamps the names of stored images.
const fileTimeFormat = "20060102_150405"

// cropPad grows the stored dial crop beyond the rim.
const cropPad = 10

// UnitReader recognises the unit printed on a dial.
type UnitReader interface {
	ReadUnit(ctx context.Context, img image.Image, dial gauge.Dial) (string, error)
}

// Options controls the loop.
type Options struct {
	Interval       time.Duration // pause between shots
	Timeout        time.Duration // deadline for reading one shot
	ProcessedDir   string        // annotated images are written here
	BaseURL        string        // prefix of published image URLs
	SaveCrop       bool          // also store the dial crop
	Topic          string        // results topic
	WorkOrderTopic string        // work orders; empty disables them
	Asset          string        // equipment named in work orders
	Debug          bool
}

// Service reads every shot from a source and publishes the results.
type Service struct {
	reader  *gauge.Reader
	source  capture.Source
	pub     publish.Publisher
	opts    Options
	builder publish.ResultBuilder
	latch   *publish.AlertLatch
	units   UnitReader
	now     func() time.Time

	wg sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithAlert enables the alert status and work orders.
func WithAlert(latch *publish.AlertLatch) Option {
	return func(s *Service) { s.latch = latch }
}

// WithUnitReader fills in the unit from the dial legend when the
// calibration has none.
func WithUnitReader(u UnitReader) Option {
	return func(s *Service) { s.units = u }
}

// WithClock sets the time source for file names and results.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New wires a service. Reader, source and publisher are required.
func New(reader *gauge.Reader, source capture.Source, pub publish.Publisher, opts Options, options ...Option) (*Service, error) {
	if reader == nil || source == nil || pub == nil {
		return nil, errors.New("service needs a reader, a source and a publisher")
	}
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("service timeout must be positive, got %v", opts.Timeout)
	}
	if opts.Topic == "" {
		return nil, errors.New("service needs a results topic")
	}
	if opts.ProcessedDir == "" {
		opts.ProcessedDir = "processed"
	}

	s := &Service{
		reader: reader,
		source: source,
		pub:    pub,
		opts:   opts,
		now:    time.Now,
	}
	for _, o := range options {
		o(s)
	}
	s.builder = publish.ResultBuilder{
		Precision: reader.Tuning().Precision,
		Alert:     s.latch,
		Now:       s.now,
	}
	return s, nil
}

// Run processes shots until the source is exhausted or ctx is cancelled,
// then waits for the shots still being processed. Each shot is handled in
// its own goroutine, so results may be published out of order.
//
// Run returns nil on io.EOF and on cancellation.
func (s *Service) Run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		shot, err := s.source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			log.Println("Source exhausted, waiting for in-flight shots")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			log.Printf("Capture failed: %v", err)
		default:
			if shot.Fallback {
				log.Printf("Camera unavailable, reading fallback image %s", shot.Path)
			}
			s.wg.Add(1)
			go func(shot capture.Shot) {
				defer s.wg.Done()
				// In-flight shots finish after a shutdown request.
				if _, err := s.Process(context.WithoutCancel(ctx), shot); err != nil {
					log.Printf("[%s] %v", shot.Name, err)
				}
			}(shot)
		}

		if !sleep(ctx, s.opts.Interval) {
			return nil
		}
	}
}

// Wait blocks until every shot started by Run has been processed.
func (s *Service) Wait() {
	s.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Process reads one shot, stores its images and publishes the result. The
// returned error reports storage or publish failures; a shot without a
// reading is still published and is not an error.
func (s *Service) Process(ctx context.Context, shot capture.Shot) (publish.Result, error) {
	started := s.now()
	stamp := started.Format(fileTimeFormat)

	img, err := imaging.Open(shot.Path)
	if err != nil {
		res := s.builder.Build(shot.Name, nil, err, nil, publish.Images{})
		return res, s.publishResult(ctx, res)
	}

	readCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	reading, readErr := s.reader.Read(readCtx, img)
	cancel()
	if readErr != nil {
		log.Printf("[%s] reading failed: %v", shot.Name, readErr)
	}

	if reading.HasValue() && reading.Unit == "" && s.units != nil {
		if unit, err := s.units.ReadUnit(ctx, img, *reading.Dial); err == nil {
			reading.Unit = unit
		} else if s.opts.Debug {
			log.Printf("[%s] legend: %v", shot.Name, err)
		}
	}

	var errs []error
	images := publish.Images{BaseURL: s.opts.BaseURL}
	var box []int

	annotated := img
	if reading != nil && reading.Annotated != nil {
		annotated = reading.Annotated
	}
	name := fmt.Sprintf("%s_annotated_%s.jpg", shot.Name, stamp)
	if err := imaging.Save(annotated, filepath.Join(s.opts.ProcessedDir, name)); err != nil {
		errs = append(errs, err)
	} else {
		images.Annotated = s.relative(name)
	}

	if reading != nil && reading.Dial != nil {
		d := reading.Dial
		crop, rect := imaging.CropDial(annotated, d.X, d.Y, d.Radius, cropPad)
		box = []int{rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y}
		if s.opts.SaveCrop {
			name := fmt.Sprintf("%s_processed_%s.jpg", shot.Name, stamp)
			if err := imaging.Save(crop, filepath.Join(s.opts.ProcessedDir, name)); err != nil {
				errs = append(errs, err)
			} else {
				images.Crop = s.relative(name)
			}
		}
	}

	res := s.builder.Build(shot.Name, reading, readErr, box, images)
	if err := s.publishResult(ctx, res); err != nil {
		errs = append(errs, err)
	}

	if reading.HasValue() {
		if err := s.alert(ctx, *reading.Value, reading.Unit, res.BaseImageURL); err != nil {
			errs = append(errs, err)
		}
	}

	if s.opts.Debug {
		log.Printf("[%s] %s value=%s in %v", shot.Name, res.Status, res.Value, s.now().Sub(started))
	}
	return res, errors.Join(errs...)
}

func (s *Service) relative(file string) string {
	return filepath.ToSlash(filepath.Join(filepath.Base(s.opts.ProcessedDir), file))
}

func (s *Service) publishResult(ctx context.Context, res publish.Result) error {
	payload, err := res.Marshal()
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.pub.Publish(ctx, s.opts.Topic, payload)
}

// alert publishes a work order the first time a value crosses the
// threshold.
func (s *Service) alert(ctx context.Context, v float64, unit, image string) error {
	if s.latch == nil || s.opts.WorkOrderTopic == "" || !s.latch.Observe(v) {
		return nil
	}
	order := publish.NewWorkOrder(s.opts.Asset, v, s.latch.Threshold(), unit, image, s.now())
	payload, err := order.Marshal()
	if err != nil {
		return fmt.Errorf("encode work order: %w", err)
	}
	if err := s.pub.Publish(ctx, s.opts.WorkOrderTopic, payload); err != nil {
		// Re-arm so the next reading above the threshold tries again.
		s.latch.Reset()
		return fmt.Errorf("work order: %w", err)
	}
	log.Printf("Work order raised for %s: %.2f > %v", s.opts.Asset, v, s.latch.Threshold())
	return nil
}
