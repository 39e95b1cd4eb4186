// Package publish delivers gauge readings to a message sink: an MQTT
// broker, a Kafka cluster, or the process log.
package publish

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/ironsheep/gauge-reader/internal/config"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// New connects the sink selected in cfg.
func New(ctx context.Context, cfg config.PublishConfig) (Publisher, error) {
	switch cfg.Sink {
	case "mqtt":
		return NewMQTT(ctx, cfg.MQTT)
	case "kafka":
		return NewKafka(cfg.Kafka)
	case "log", "":
		return NewLog(nil), nil
	default:
		return nil, fmt.Errorf("unknown publish sink %q", cfg.Sink)
	}
}

// Log writes every message to a logger. It is the sink for dry runs.
type Log struct {
	logger *log.Logger
}

// NewLog returns a log sink. A nil logger uses the standard logger.
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

// Publish implements Publisher.
func (l *Log) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.logger.Printf("[publish] %s: %s", topic, payload)
	return nil
}

// Close implements Publisher.
func (l *Log) Close() error { return nil }

// Message is one payload kept by a Recorder.
type Message struct {
	Topic   string
	Payload []byte
}

// Recorder keeps published messages in memory. It is safe for concurrent
// use and serves tests and the one-shot CLI.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	closed   bool

	// Err, when set, is returned by every Publish.
	Err error
}

// Publish implements Publisher.
func (r *Recorder) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("publish to %s: recorder closed", topic)
	}
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, Message{Topic: topic, Payload: append([]byte(nil), payload...)})
	return nil
}

// Close implements Publisher.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of the messages published so far, optionally
// limited to one topic.
func (r *Recorder) Messages(topic string) []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if topic == "" || m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}
