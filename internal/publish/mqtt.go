package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"scadalink/internal/logging"
	"scadalink/internal/model"
)

// mqttClient is the subset of pahomqtt.Client a sink needs, letting tests
// substitute an in-memory fake for a real broker connection.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect(quiesceMs uint)
}

type pahoClient struct {
	client pahomqtt.Client
}

func (p pahoClient) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("mqtt publish timeout: %s", topic)
	}
	return token.Error()
}

func (p pahoClient) Disconnect(quiesceMs uint) { p.client.Disconnect(quiesceMs) }

// TagMessage is the JSON payload retained at each MQTT tag topic.
type TagMessage struct {
	PLC       string      `json:"plc"`
	Tag       string      `json:"tag"`
	Value     model.Value `json:"value"`
	Quality   string      `json:"quality"`
	Timestamp time.Time   `json:"timestamp"`
}

// MQTTSink publishes each sample's changed tags as retained, QoS-0 MQTT
// messages, one topic per tag.
type MQTTSink struct {
	client mqttClient
	ns     Namespace

	mu         sync.Mutex
	lastValues map[string]string

	published int64
	errors    int64
}

// DialMQTT connects to brokerURL with the given clientID and returns a
// ready-to-use MQTTSink.
func DialMQTT(brokerURL, clientID string, ns Namespace) (*MQTTSink, error) {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout: %s", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return NewMQTTSink(pahoClient{client: client}, ns), nil
}

// NewMQTTSink wraps an already-connected mqttClient; used directly by tests
// with a fake client.
func NewMQTTSink(client mqttClient, ns Namespace) *MQTTSink {
	return &MQTTSink{client: client, ns: ns, lastValues: make(map[string]string)}
}

// Run drains source, publishing one retained message per changed tag, until
// ctx is done or source closes.
func (s *MQTTSink) Run(ctx context.Context, source <-chan model.PollingSample) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-source:
			if !ok {
				return
			}
			s.publishSample(sample)
		}
	}
}

func (s *MQTTSink) publishSample(sample model.PollingSample) {
	for addr, v := range sample.Values {
		key := sample.PLCCode + "/" + addr
		rendered := v.String()

		s.mu.Lock()
		if last, ok := s.lastValues[key]; ok && last == rendered {
			s.mu.Unlock()
			continue
		}
		s.lastValues[key] = rendered
		s.mu.Unlock()

		quality := "GOOD"
		if _, failed := sample.ErrorTags[addr]; failed {
			quality = "BAD"
		}
		msg := TagMessage{PLC: sample.PLCCode, Tag: addr, Value: v, Quality: quality, Timestamp: sample.Timestamp}
		payload, err := json.Marshal(msg)
		if err != nil {
			s.recordError()
			continue
		}

		topic := s.ns.MQTTTagTopic(sample.PLCCode, addr)
		if err := s.client.Publish(topic, 0, true, payload); err != nil {
			logging.Debug("MQTT", "publish %s failed: %v", topic, err)
			s.recordError()
			continue
		}
		s.recordPublished()
	}
}

func (s *MQTTSink) recordPublished() {
	s.mu.Lock()
	s.published++
	s.mu.Unlock()
}

func (s *MQTTSink) recordError() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// Stats reports cumulative publish/error counts.
func (s *MQTTSink) Stats() (published, errorCount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.errors
}

// Close disconnects from the broker, waiting up to 250ms to flush any
// in-flight publish.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
