package kafka

import kafkago "github.com/segmentio/kafka-go"

const (
	HeaderOutboxID      = "outbox_id"
	HeaderEventType     = "event_type"
	HeaderAggregateType = "aggregate_type"
	HeaderAggregateID   = "aggregate_id"
	HeaderEventID       = "event_id"
)

// Headers converts a string map into kafka headers.
func Headers(values map[string]string) []kafkago.Header {
	out := make([]kafkago.Header, 0, len(values))
	for k, v := range values {
		out = append(out, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return out
}

// Header returns the first header with key, or "".
func Header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
