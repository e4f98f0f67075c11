package publish

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"scadalink/internal/logging"
	"scadalink/internal/model"
)

// valkeyClient is the subset of *redis.Client a sink needs, letting tests
// substitute an in-memory fake for a real server connection.
type valkeyClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// SamplePayload is the JSON payload published to each Valkey channel.
type SamplePayload struct {
	PLC       string                 `json:"plc"`
	Values    map[string]model.Value `json:"values"`
	ErrorTags map[string]string      `json:"errorTags,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// ValkeySink publishes each sample's tag values to a per-(plc,tag) pub-sub
// channel derived from the configured namespace.
type ValkeySink struct {
	client valkeyClient
	ns     Namespace

	mu        sync.Mutex
	published int64
	errors    int64
}

// DialValkey connects to addr and returns a ready-to-use ValkeySink.
func DialValkey(ctx context.Context, addr string, ns Namespace) (*ValkeySink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewValkeySink(client, ns), nil
}

// NewValkeySink wraps an already-connected valkeyClient; used directly by
// tests with a fake client.
func NewValkeySink(client valkeyClient, ns Namespace) *ValkeySink {
	return &ValkeySink{client: client, ns: ns}
}

// Run drains source, publishing one message per tag per sample, until ctx
// is done or source closes. Every tag is published, whether or not its
// value changed since the previous sample.
func (s *ValkeySink) Run(ctx context.Context, source <-chan model.PollingSample) {
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

func (s *ValkeySink) publishSample(ctx context.Context, sample model.PollingSample) {
	payload, err := json.Marshal(SamplePayload{
		PLC:       sample.PLCCode,
		Values:    sample.Values,
		ErrorTags: sample.ErrorTags,
		Timestamp: sample.Timestamp,
	})
	if err != nil {
		s.recordError()
		return
	}

	for addr := range sample.Values {
		channel := s.ns.ValkeyChannel(sample.PLCCode, addr)
		if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
			logging.Debug("VALKEY", "publish %s failed: %v", channel, err)
			s.recordError()
			continue
		}
		s.recordPublished()
	}
}

func (s *ValkeySink) recordPublished() {
	s.mu.Lock()
	s.published++
	s.mu.Unlock()
}

func (s *ValkeySink) recordError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Stats reports cumulative publish/error counts.
func (s *ValkeySink) Stats() (published, errorCount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.errors
}

// Close releases the underlying client.
func (s *ValkeySink) Close() error { return s.client.Close() }
