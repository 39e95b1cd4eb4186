package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ApplyEnv overrides settings from GAUGE_* and KAFKA_* environment variables.
func (c *Config) ApplyEnv() error {
	c.LogLevel = getEnv("GAUGE_LOG_LEVEL", c.LogLevel)
	c.Detector = getEnv("GAUGE_DETECTOR", c.Detector)

	c.Capture.CameraURL = getEnv("GAUGE_CAMERA_URL", c.Capture.CameraURL)
	c.Capture.TestDir = getEnv("GAUGE_TEST_DIR", c.Capture.TestDir)
	c.Capture.CaptureDir = getEnv("GAUGE_CAPTURE_DIR", c.Capture.CaptureDir)
	c.Capture.ProcessedDir = getEnv("GAUGE_PROCESSED_DIR", c.Capture.ProcessedDir)
	c.Capture.BaseURL = getEnv("GAUGE_BASE_URL", c.Capture.BaseURL)

	c.Publish.Sink = getEnv("GAUGE_PUBLISH_SINK", c.Publish.Sink)
	c.Publish.Topic = getEnv("GAUGE_TOPIC", c.Publish.Topic)
	c.Publish.MQTT.Broker = getEnv("GAUGE_MQTT_BROKER", c.Publish.MQTT.Broker)
	c.Publish.MQTT.Port = getEnvInt("GAUGE_MQTT_PORT", c.Publish.MQTT.Port)
	c.Publish.MQTT.Username = getEnv("GAUGE_MQTT_USERNAME", c.Publish.MQTT.Username)
	c.Publish.MQTT.Password = getEnv("GAUGE_MQTT_PASSWORD", c.Publish.MQTT.Password)

	k := &c.Publish.Kafka
	k.BootstrapServers = getEnv("KAFKA_BOOTSTRAP_SERVERS", k.BootstrapServers)
	k.SecurityProtocol = getEnv("KAFKA_SECURITY_PROTOCOL", k.SecurityProtocol)
	k.SASLMechanism = getEnv("KAFKA_SASL_MECHANISM", k.SASLMechanism)
	k.SASLUsername = getEnv("KAFKA_SASL_USERNAME", k.SASLUsername)
	k.SASLPassword = getEnv("KAFKA_SASL_PASSWORD", k.SASLPassword)

	var err error
	if c.Capture.Interval, err = getEnvDuration("GAUGE_INTERVAL", c.Capture.Interval); err != nil {
		return err
	}
	if c.Capture.Timeout, err = getEnvDuration("GAUGE_TIMEOUT", c.Capture.Timeout); err != nil {
		return err
	}
	if c.Alert.Threshold, err = getEnvFloat("GAUGE_ALERT_THRESHOLD", c.Alert.Threshold); err != nil {
		return err
	}
	if c.Alert.Reset, err = getEnvFloat("GAUGE_ALERT_RESET", c.Alert.Reset); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
