package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/ironsheep/gauge-reader/internal/config"
)

const (
	kafkaMaxRetries   = 3
	kafkaBaseBackoff  = 100 * time.Millisecond
	kafkaFlushTimeout = 10 * time.Second
)

// Kafka publishes through a confluent producer. Delivery reports are
// handled in the background; Publish returns once the message is queued.
type Kafka struct {
	producer     *kafka.Producer
	deliveryChan chan kafka.Event

	sent   atomic.Int64
	acked  atomic.Int64
	failed atomic.Int64

	wg     sync.WaitGroup
	done   chan struct{}
	closed sync.Once
}

// NewKafka creates a producer for the cluster in cfg.
func NewKafka(cfg config.KafkaConfig) (*Kafka, error) {
	producerConfig := &kafka.ConfigMap{
		"bootstrap.servers": cfg.BootstrapServers,
		"security.protocol": cfg.SecurityProtocol,
		"acks":              cfg.Acks,
		"linger.ms":         cfg.LingerMS,
		"client.id":         "gauge-reader",
	}
	if cfg.SASLMechanism != "" {
		producerConfig.SetKey("sasl.mechanism", cfg.SASLMechanism)
		producerConfig.SetKey("sasl.username", cfg.SASLUsername)
		producerConfig.SetKey("sasl.password", cfg.SASLPassword)
	}

	p, err := kafka.NewProducer(producerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	k := &Kafka{
		producer:     p,
		deliveryChan: make(chan kafka.Event, 1000),
		done:         make(chan struct{}),
	}
	k.wg.Add(1)
	go k.handleDeliveryReports()

	log.Printf("Kafka producer initialized - Servers: %s", cfg.BootstrapServers)
	return k, nil
}

func (k *Kafka) handleDeliveryReports() {
	defer k.wg.Done()
	for {
		select {
		case <-k.done:
			k.drainDeliveryReports()
			return
		case e := <-k.deliveryChan:
			k.record(e)
		}
	}
}

// drainDeliveryReports counts the reports already buffered when Close
// stops the handler, so the final counters include everything Flush
// delivered.
func (k *Kafka) drainDeliveryReports() {
	for {
		select {
		case e := <-k.deliveryChan:
			k.record(e)
		default:
			return
		}
	}
}

func (k *Kafka) record(e kafka.Event) {
	m, ok := e.(*kafka.Message)
	if !ok {
		return
	}
	if m.TopicPartition.Error != nil {
		k.failed.Add(1)
		log.Printf("Kafka delivery failed: %v", m.TopicPartition.Error)
	} else {
		k.acked.Add(1)
	}
}

// Publish implements Publisher. Retriable produce errors, such as a full
// local queue, are retried with exponential backoff.
func (k *Kafka) Publish(ctx context.Context, topic string, payload []byte) error {
	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          payload,
	}

	var lastErr error
	for attempt := 0; attempt <= kafkaMaxRetries; attempt++ {
		if attempt > 0 {
			backoff := kafkaBaseBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := k.producer.Produce(message, k.deliveryChan)
		if err == nil {
			k.sent.Add(1)
			return nil
		}
		lastErr = err

		var kafkaErr kafka.Error
		if errors.As(err, &kafkaErr) && !kafkaErr.IsRetriable() {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	k.failed.Add(1)
	return fmt.Errorf("publish to %s failed after %d retries: %w", topic, kafkaMaxRetries, lastErr)
}

// Close flushes queued messages and shuts the producer down.
func (k *Kafka) Close() error {
	k.closed.Do(func() {
		if remaining := k.producer.Flush(int(kafkaFlushTimeout.Milliseconds())); remaining > 0 {
			log.Printf("Kafka: %d messages still queued after flush", remaining)
		}
		close(k.done)
		k.wg.Wait()
		k.producer.Close()
		log.Printf("Kafka producer closed - sent %d, acked %d, failed %d",
			k.sent.Load(), k.acked.Load(), k.failed.Load())
	})
	return nil
}
