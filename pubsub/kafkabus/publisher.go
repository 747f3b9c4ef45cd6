// Package kafkabus implements the daemon's pub/sub bus port over Kafka:
// one topic per com.fee.* channel named in spec.md §6.
package kafkabus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Config is the broker config, read from the kafka section of the
// daemon's yaml config.
type Config struct {
	BrokersCSV string `yaml:"brokers"`

	// QueueSize bounds the fire-and-forget send queue; a full queue drops
	// the oldest pending message rather than blocking the estimator.
	QueueSize int `yaml:"queueSize"`

	// TopicPrefix is prepended to every com.fee.* channel name to form
	// the Kafka topic name (e.g. prefix "btc." + channel
	// "com.fee.mindiff" -> topic "btc.com.fee.mindiff").
	TopicPrefix string `yaml:"topicPrefix"`
}

type outgoing struct {
	topic string
	key   string
	value []byte
}

// Publisher publishes to one Kafka topic per channel name, off the hot
// path: Publish enqueues and returns immediately, and a single goroutine
// drains the queue into a sarama.SyncProducer.
type Publisher struct {
	sp     sarama.SyncProducer
	logger *log.Logger

	topicPrefix string
	queue       chan outgoing
	done        chan struct{}
}

// New connects a sarama.SyncProducer to the configured brokers and starts
// the draining goroutine. A nil logger defaults to log.Default.
func New(cfg Config, logger *log.Logger) (*Publisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	brokers := splitCSV(cfg.BrokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("kafkabus: no brokers configured")
	}

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 200 * time.Millisecond
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	sp, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafkabus: connecting producer: %w", err)
	}
	return NewWithProducer(sp, cfg.QueueSize, cfg.TopicPrefix, logger), nil
}

// NewWithProducer builds a Publisher around an already-constructed
// sarama.SyncProducer, letting tests substitute sarama/mocks.
// NewSyncProducer without standing up a real broker.
func NewWithProducer(sp sarama.SyncProducer, queueSize int, topicPrefix string, logger *log.Logger) *Publisher {
	if logger == nil {
		logger = log.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &Publisher{
		sp:          sp,
		logger:      logger,
		topicPrefix: topicPrefix,
		queue:       make(chan outgoing, queueSize),
		done:        make(chan struct{}),
	}
	go p.drain()
	return p
}

// Publish marshals v as JSON and enqueues it for delivery to the topic
// named after channel, prefixed by the configured TopicPrefix (e.g.
// prefix "btc." + channel "com.fee.feeestimate" -> topic
// "btc.com.fee.feeestimate"). It never blocks the caller on the broker:
// under a full queue, the oldest pending message, whatever its channel,
// is dropped.
func (p *Publisher) Publish(channel string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kafkabus: marshaling %s: %w", channel, err)
	}
	msg := outgoing{topic: p.topicPrefix + channel, value: payload}

	select {
	case p.queue <- msg:
		return nil
	default:
	}

	// Queue full: drop the oldest pending message and retry once.
	select {
	case <-p.queue:
	default:
	}
	select {
	case p.queue <- msg:
	default:
	}
	return nil
}

// Close stops the drain goroutine and closes the underlying producer.
func (p *Publisher) Close() error {
	close(p.done)
	return p.sp.Close()
}

func (p *Publisher) drain() {
	for {
		select {
		case <-p.done:
			return
		case m := <-p.queue:
			msg := &sarama.ProducerMessage{
				Topic: m.topic,
				Value: sarama.ByteEncoder(m.value),
			}
			if m.key != "" {
				msg.Key = sarama.StringEncoder(m.key)
			}
			if _, _, err := p.sp.SendMessage(msg); err != nil {
				p.logger.Printf("[DEBUG] kafkabus: publish to %s failed: %v", m.topic, err)
			}
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		x = strings.TrimSpace(x)
		if x != "" {
			out = append(out, x)
		}
	}
	return out
}
