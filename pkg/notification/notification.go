// Package notification publishes best-effort operational update messages for
// a flight declaration on the shared pub/sub bus.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openutm/flightdeck/internal/logger"
	"github.com/openutm/flightdeck/pkg/kv"
)

// Level classifies an operational update message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warning"
	LevelError Level = "error"
)

// Message is the payload published for a declaration.
type Message struct {
	Body      string    `json:"body"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends operational updates over the KV pub/sub bus. Delivery is
// best effort; failures are logged and never propagate to the caller's state
// changes.
type Publisher struct {
	store kv.Store
}

// NewPublisher returns a publisher over the KV store.
func NewPublisher(store kv.Store) *Publisher {
	return &Publisher{store: store}
}

// Channel returns the pub/sub channel for a declaration.
func Channel(declarationID string) string {
	return fmt.Sprintf("operational_events.%s", declarationID)
}

// SendOperationalUpdate publishes a message for the declaration.
func (p *Publisher) SendOperationalUpdate(ctx context.Context, declarationID, body string, level Level) {
	message := Message{
		Body:      body,
		Level:     level,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(message)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to marshal operational update",
			logger.FlightID(declarationID), logger.Err(err))
		return
	}
	if err := p.store.Publish(ctx, Channel(declarationID), string(data)); err != nil {
		logger.WarnCtx(ctx, "Failed to publish operational update",
			logger.FlightID(declarationID), logger.Err(err))
	}
}
