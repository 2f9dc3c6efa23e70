package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning   = errors.New("queue not running")
	ErrUnknownJob   = errors.New("no job registered for message type")
	ErrAlreadyStart = errors.New("queue already running")
)

// QueueService is the publishing side of the queue.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job handles every message of one type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers    int           // number of workers
	RetryLimit int           // retries after the first failed attempt
	RetryDelay time.Duration // base delay, doubled on every further attempt
	JobTimeout time.Duration // deadline for a single Handle call
}

// Stats is a snapshot of the queue's Redis keys.
type Stats struct {
	Pending  int64 `json:"pending"`
	Retrying int64 `json:"retrying"`
	Dead     int64 `json:"dead"`
}

// Message is the envelope stored in Redis. Payload keeps the publisher's JSON so jobs
// decode it into their own type with ParsePayload.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	LastError  string          `json:"last_error,omitempty"`
}

// ParsePayload decodes a job payload into T. Typed values pass through unchanged.
func ParsePayload[T any](payload interface{}) (*T, error) {
	var raw []byte
	switch p := payload.(type) {
	case *T:
		return p, nil
	case T:
		return &p, nil
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("re-encode payload: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("invalid payload type: %T", payload)
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
