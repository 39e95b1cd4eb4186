// Package config loads gauge-reader settings from a YAML file, an optional
// .env file and GAUGE_* environment variables, in that order of precedence
// from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/gauge-reader/internal/gauge"
	"github.com/ironsheep/gauge-reader/internal/imaging"
)

// Config is the complete runtime configuration.
type Config struct {
	LogLevel string `yaml:"log_level"` // "debug" enables verbose logging
	Detector string `yaml:"detector"`  // native or opencv

	Calibration gauge.Calibration     `yaml:"calibration"`
	Convention  gauge.AngleConvention `yaml:"convention"`
	Tuning      gauge.Tuning          `yaml:"tuning"`
	Palette     imaging.Palette       `yaml:"palette"`

	Capture CaptureConfig `yaml:"capture"`
	Publish PublishConfig `yaml:"publish"`
	Alert   AlertConfig   `yaml:"alert"`
	OCR     OCRConfig     `yaml:"ocr"`
}

// CaptureConfig controls where photos come from and where they are kept.
type CaptureConfig struct {
	Interval      time.Duration `yaml:"interval"`       // pause between captures
	Timeout       time.Duration `yaml:"timeout"`        // deadline for reading one photo
	CameraURL     string        `yaml:"camera_url"`     // HTTP snapshot endpoint
	CameraTimeout time.Duration `yaml:"camera_timeout"` // deadline for one snapshot request
	TestDir       string        `yaml:"test_dir"`       // read photos from here instead of the camera
	CaptureDir    string        `yaml:"capture_dir"`    // raw captures are stored here
	ProcessedDir  string        `yaml:"processed_dir"`  // annotated images are stored here
	FallbackImage string        `yaml:"fallback_image"` // used when the camera fails; empty disables
	BaseURL       string        `yaml:"base_url"`       // prefix for image URLs in published results
	SaveCrop      bool          `yaml:"save_crop"`      // also store a crop of the dial
}

// PublishConfig selects the result sink.
type PublishConfig struct {
	Sink           string      `yaml:"sink"`             // mqtt, kafka or log
	Topic          string      `yaml:"topic"`            // reading results
	WorkOrderTopic string      `yaml:"work_order_topic"` // alert work orders
	MQTT           MQTTConfig  `yaml:"mqtt"`
	Kafka          KafkaConfig `yaml:"kafka"`
}

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
}

// KafkaConfig holds producer settings.
type KafkaConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers"`
	SecurityProtocol string `yaml:"security_protocol"`
	SASLMechanism    string `yaml:"sasl_mechanism"`
	SASLUsername     string `yaml:"sasl_username"`
	SASLPassword     string `yaml:"sasl_password"`
	Acks             string `yaml:"acks"`
	LingerMS         int    `yaml:"linger_ms"`
}

// AlertConfig controls threshold alerts and work orders.
type AlertConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"` // alert when the value rises above this
	Reset     float64 `yaml:"reset"`     // re-arm work orders at or below this
	Asset     string  `yaml:"asset"`     // equipment named in work orders
}

// OCRConfig controls dial legend recognition.
type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// Default returns a configuration that reads a 0-120 °C gauge from the
// local camera and publishes to a local MQTT broker.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Detector: "native",
		Calibration: gauge.Calibration{
			MinAngle: 225,
			MaxAngle: -45,
			MinValue: 0,
			MaxValue: 120,
			Unit:     "°C",
			Clamp:    gauge.ClampToRange,
		},
		Convention: gauge.DefaultConvention(),
		Tuning:     gauge.DefaultTuning(),
		Palette:    imaging.DefaultPalette(),
		Capture: CaptureConfig{
			Interval:      10 * time.Second,
			Timeout:       5 * time.Second,
			CameraTimeout: 5 * time.Second,
			CaptureDir:    "captures",
			ProcessedDir:  "processed",
		},
		Publish: PublishConfig{
			Sink:           "mqtt",
			Topic:          "spot/results",
			WorkOrderTopic: "spot/work_orders",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "gauge-reader",
			},
			Kafka: KafkaConfig{
				BootstrapServers: "localhost:9092",
				SecurityProtocol: "PLAINTEXT",
				Acks:             "all",
				LingerMS:         10,
			},
		},
		Alert: AlertConfig{
			Enabled:   true,
			Threshold: 35,
			Reset:     35,
			Asset:     "gauge-1",
		},
		OCR: OCRConfig{
			Language: "eng",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is
// not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Debug reports whether debug logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if err := c.Convention.Validate(); err != nil {
		return fmt.Errorf("convention: %w", err)
	}
	if err := c.Tuning.Validate(); err != nil {
		return err
	}

	switch c.Publish.Sink {
	case "mqtt":
		if c.Publish.MQTT.Broker == "" || c.Publish.MQTT.Port <= 0 {
			return fmt.Errorf("publish.mqtt needs a broker and port")
		}
		if c.Publish.MQTT.QoS < 0 || c.Publish.MQTT.QoS > 2 {
			return fmt.Errorf("publish.mqtt.qos must be 0, 1 or 2")
		}
	case "kafka":
		if c.Publish.Kafka.BootstrapServers == "" {
			return fmt.Errorf("publish.kafka needs bootstrap_servers")
		}
	case "log":
	default:
		return fmt.Errorf("unknown publish sink %q", c.Publish.Sink)
	}
	if c.Publish.Topic == "" {
		return fmt.Errorf("publish.topic is required")
	}

	if c.Capture.Interval < 0 || c.Capture.Timeout <= 0 {
		return fmt.Errorf("capture needs a positive timeout and a non-negative interval")
	}
	if c.Alert.Enabled && c.Alert.Reset > c.Alert.Threshold {
		return fmt.Errorf("alert.reset (%v) must not exceed alert.threshold (%v)", c.Alert.Reset, c.Alert.Threshold)
	}
	return nil
}
