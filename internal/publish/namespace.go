// Package publish fans sample data out to optional republish sinks — MQTT,
// Kafka, and Valkey pub-sub — each an independent consumer of a Distributor
// output queue with its own drop-and-count statistics. An unreachable or
// unconfigured broker degrades only its own sink.
package publish

// Namespace builds the sink-specific topic/key names every publisher uses,
// all sharing one configured prefix: "{namespace}/{plcCode}/tags/{tagAddress}"
// for MQTT, "{namespace}:{plcCode}:{tagAddress}" for Valkey, and
// "{namespace}.{plcCode}" for Kafka.
type Namespace struct {
	prefix string
}

// NewNamespace constructs a Namespace from the configured prefix.
func NewNamespace(prefix string) Namespace {
	return Namespace{prefix: prefix}
}

// MQTTTagTopic returns "{namespace}/{plcCode}/tags/{tagAddress}".
func (n Namespace) MQTTTagTopic(plcCode, tagAddress string) string {
	return n.prefix + "/" + plcCode + "/tags/" + tagAddress
}

// ValkeyChannel returns "{namespace}:{plcCode}:{tagAddress}".
func (n Namespace) ValkeyChannel(plcCode, tagAddress string) string {
	return n.prefix + ":" + plcCode + ":" + tagAddress
}

// KafkaTopic returns "{namespace}.{plcCode}".
func (n Namespace) KafkaTopic(plcCode string) string {
	return n.prefix + "." + plcCode
}
