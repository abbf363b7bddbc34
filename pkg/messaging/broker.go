package messaging

import (
	"context"
)

// Broker defines the interface for message brokers. Payloads are opaque
// JSON documents.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channel is the pub/sub channel an event type is delivered on.
func Channel(eventType string) string {
	return "notifications:" + eventType
}
