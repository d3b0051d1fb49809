// Package messaging delivers contract messages between services with
// at-least-once semantics, a per-delivery retry ceiling and a dead-letter sink.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commerceflow/internal/contracts"

	"github.com/google/uuid"
)

// Envelope is a message as seen by a consumer.
type Envelope struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
	// Attempts is the 1-based delivery attempt for the receiving group.
	Attempts int `json:"attempts"`
}

// NewEnvelope wraps msg with a fresh message id.
func NewEnvelope(msg contracts.Message) (Envelope, error) {
	payload, err := contracts.Encode(msg)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		ID:          uuid.New(),
		Type:        msg.MessageType(),
		Payload:     payload,
		PublishedAt: time.Now().UTC(),
	}, nil
}

// Handler processes one delivery. A returned error causes redelivery until
// the retry ceiling is reached, after which the delivery is dead-lettered.
type Handler func(ctx context.Context, env Envelope) error

// Publisher publishes contract messages.
type Publisher interface {
	Publish(ctx context.Context, msgs ...contracts.Message) error
}

// Subscriber registers consumer-group handlers for a message type.
// Each group receives its own copy of every message of that type.
type Subscriber interface {
	Subscribe(ctx context.Context, group, messageType string, h Handler) error
}

// Bus is a broker: it publishes, subscribes and runs the dispatch loop.
type Bus interface {
	Publisher
	Subscriber
	// Run dispatches deliveries until ctx is cancelled.
	Run(ctx context.Context) error
}

// DeadLetter is a delivery that exhausted its retry budget.
type DeadLetter struct {
	Envelope
	Group     string    `json:"group"`
	LastError string    `json:"lastError"`
	DeadAt    time.Time `json:"deadAt"`
}

// DeadLetterSink stores dead letters for operators to inspect or replay.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, dl DeadLetter) error
}

// Config controls delivery behaviour.
type Config struct {
	PollInterval    time.Duration
	RedeliveryDelay time.Duration
	MaxAttempts     int
	BatchSize       int
}

// DefaultConfig returns the default delivery configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    500 * time.Millisecond,
		RedeliveryDelay: 5 * time.Second,
		MaxAttempts:     5,
		BatchSize:       20,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.RedeliveryDelay < 0 {
		c.RedeliveryDelay = def.RedeliveryDelay
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BatchSize < 1 {
		c.BatchSize = def.BatchSize
	}
	return c
}

// Handle adapts a typed function into a Handler by decoding the payload.
// A payload that cannot be decoded is returned as an error so it ends up
// dead-lettered rather than silently dropped.
func Handle[T contracts.Message](fn func(ctx context.Context, env Envelope, msg T) error) Handler {
	return func(ctx context.Context, env Envelope) error {
		msg, err := contracts.Decode[T](env.Payload)
		if err != nil {
			return err
		}
		return fn(ctx, env, msg)
	}
}

// runHandler calls h and converts a panic into an error.
func runHandler(ctx context.Context, h Handler, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}
