package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/gauge-reader/internal/capture"
	"github.com/ironsheep/gauge-reader/internal/config"
	"github.com/ironsheep/gauge-reader/internal/detection"
	"github.com/ironsheep/gauge-reader/internal/gauge"
	"github.com/ironsheep/gauge-reader/internal/imaging"
	"github.com/ironsheep/gauge-reader/internal/ocr"
	"github.com/ironsheep/gauge-reader/internal/publish"
	"github.com/ironsheep/gauge-reader/internal/server"
	"github.com/ironsheep/gauge-reader/internal/service"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("gauge-reader - read analog gauges from photos")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gauge-reader run  [--config file] [--test dir]             Capture, read and publish in a loop")
	fmt.Println("  gauge-reader read [--config file] [--annotated out] image  Read one photo and print JSON")
	fmt.Println("  gauge-reader mcp  [--config file]                          Serve MCP tools over stdin/stdout")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  GAUGE_LOG_LEVEL=debug        Enable debug logging")
	fmt.Println("  GAUGE_CAMERA_URL=...         Snapshot endpoint of the camera")
	fmt.Println("  GAUGE_PUBLISH_SINK=mqtt      Result sink: mqtt, kafka or log")
	fmt.Println()
	fmt.Println("A .env file in the working directory is loaded first.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("gauge-reader %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		usage()
		return
	}

	// Configure logging to stderr (stdout carries results and MCP traffic)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	if err := config.LoadEnvFile(""); err != nil {
		log.Printf("Ignoring .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "run":
		err = runService(ctx, args)
	case "read":
		err = readOnce(ctx, args)
	case "mcp":
		err = serveMCP(ctx, args)
	default:
		usage()
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

// loadConfig reads the configuration and builds the reader it describes.
func loadConfig(path string) (*config.Config, *gauge.Reader, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	backend, err := detection.NewBackend(cfg.Detector)
	if err != nil {
		return nil, nil, err
	}
	reader, err := gauge.NewReader(backend, cfg.Tuning, cfg.Calibration, cfg.Convention,
		gauge.WithPalette(cfg.Palette))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Debug() {
		log.Printf("gauge-reader v%s (built %s, commit %s), backend %s, convention %s",
			Version, BuildTime, GitCommit, reader.Backend(), reader.Convention())
	}
	return cfg, reader, nil
}

func runService(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	testDir := fs.String("test", "", "Read photos from this folder instead of the camera")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, reader, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *testDir != "" {
		cfg.Capture.TestDir = *testDir
	}

	var source capture.Source
	if cfg.Capture.TestDir != "" {
		log.Printf("Reading photos from %s", cfg.Capture.TestDir)
		if source, err = capture.NewFolderSource(cfg.Capture.TestDir); err != nil {
			return err
		}
	} else {
		if cfg.Capture.CameraURL == "" {
			return errors.New("capture.camera_url is required without a test folder")
		}
		camera := capture.NewHTTPCamera(cfg.Capture.CameraURL, cfg.Capture.CameraTimeout)
		if source, err = capture.NewCameraSource(camera, cfg.Capture.CaptureDir, cfg.Capture.FallbackImage); err != nil {
			return err
		}
	}

	pub, err := publish.New(ctx, cfg.Publish)
	if err != nil {
		return err
	}
	defer func() {
		if err := pub.Close(); err != nil {
			log.Printf("Failed to close publisher: %v", err)
		}
	}()

	var options []service.Option
	workOrders := ""
	if cfg.Alert.Enabled {
		options = append(options, service.WithAlert(publish.NewAlertLatch(cfg.Alert.Threshold, cfg.Alert.Reset)))
		workOrders = cfg.Publish.WorkOrderTopic
	}
	if cfg.OCR.Enabled {
		options = append(options, service.WithUnitReader(ocr.NewLegendReader(cfg.OCR.Language)))
	}

	svc, err := service.New(reader, source, pub, service.Options{
		Interval:       cfg.Capture.Interval,
		Timeout:        cfg.Capture.Timeout,
		ProcessedDir:   cfg.Capture.ProcessedDir,
		BaseURL:        cfg.Capture.BaseURL,
		SaveCrop:       cfg.Capture.SaveCrop,
		Topic:          cfg.Publish.Topic,
		WorkOrderTopic: workOrders,
		Asset:          cfg.Alert.Asset,
		Debug:          cfg.Debug(),
	}, options...)
	if err != nil {
		return err
	}

	log.Printf("Publishing readings to %s via %s", cfg.Publish.Topic, cfg.Publish.Sink)
	return svc.Run(ctx)
}

// readOutput is the one-shot reading printed by the read command.
type readOutput struct {
	*gauge.Reading
	ValueText     string `json:"value_text"`
	Error         string `json:"error,omitempty"`
	AnnotatedPath string `json:"annotated_path,omitempty"`
}

func readOnce(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	annotated := fs.String("annotated", "", "Write the annotated image to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("read needs exactly one image path")
	}

	cfg, reader, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	img, err := imaging.Open(fs.Arg(0))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Capture.Timeout)
	defer cancel()

	reading, readErr := reader.Read(ctx, img)
	if reading == nil {
		return readErr
	}
	out := readOutput{Reading: reading, ValueText: publish.NoValue}
	if reading.HasValue() {
		out.ValueText = gauge.FormatValue(*reading.Value, cfg.Tuning.Precision)
	}
	if readErr != nil {
		out.Error = readErr.Error()
	}
	if *annotated != "" && reading.Annotated != nil {
		if err := imaging.Save(reading.Annotated, *annotated); err != nil {
			return err
		}
		out.AnnotatedPath = *annotated
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func serveMCP(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, reader, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	opts := []server.Option{server.WithVersion(Version)}
	if cfg.OCR.Enabled {
		opts = append(opts, server.WithLegendReader(ocr.NewLegendReader(cfg.OCR.Language)))
	}
	return server.New(reader, opts...).Run(ctx)
}
