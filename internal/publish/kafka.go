package publish

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"scadalink/internal/logging"
	"scadalink/internal/model"
)

// kafkaWriter is the subset of *kafka.Writer a sink needs, letting tests
// substitute an in-memory fake for a real broker connection.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes the full PollingSample as one JSON-encoded record per
// group, keyed by plcCode, to a topic derived from the configured namespace.
type KafkaSink struct {
	writer kafkaWriter
	ns     Namespace

	mu        sync.Mutex
	published int64
	errors    int64
}

// DialKafka constructs a writer against brokers with no fixed topic (the
// topic is derived per-message from the namespace and plcCode).
func DialKafka(brokers []string, ns Namespace) *KafkaSink {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return NewKafkaSink(w, ns)
}

// NewKafkaSink wraps an already-constructed kafkaWriter; used directly by
// tests with a fake writer.
func NewKafkaSink(writer kafkaWriter, ns Namespace) *KafkaSink {
	return &KafkaSink{writer: writer, ns: ns}
}

// Run drains source, publishing one Kafka record per sample, until ctx is
// done or source closes.
func (s *KafkaSink) Run(ctx context.Context, source <-chan model.PollingSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-source:
			if !ok {
				return
			}
			s.publishSample(ctx, sample)
		}
	}
}

func (s *KafkaSink) publishSample(ctx context.Context, sample model.PollingSample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		s.recordError()
		return
	}

	msg := kafka.Message{
		Topic: s.ns.KafkaTopic(sample.PLCCode),
		Key:   []byte(sample.PLCCode),
		Value: payload,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		logging.Debug("KAFKA", "write failed for %s: %v", sample.PLCCode, err)
		s.recordError()
		return
	}
	s.recordPublished()
}

func (s *KafkaSink) recordPublished() {
	s.mu.Lock()
	s.published++
	s.mu.Unlock()
}

func (s *KafkaSink) recordError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Stats reports cumulative publish/error counts.
func (s *KafkaSink) Stats() (published, errorCount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.errors
}

// Close releases the underlying writer.
func (s *KafkaSink) Close() error { return s.writer.Close() }
