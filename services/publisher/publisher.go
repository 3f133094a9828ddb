package publisher

import (
	"context"
	"time"
)

// Envelope is one finished report row
type Envelope struct {
	RunID  string            `json:"run_id"`
	Site   string            `json:"site"`
	Report string            `json:"report"`
	Fields map[string]string `json:"fields"`
	At     time.Time         `json:"at"`
}

// Publisher represents a service for publishing report rows
type Publisher interface {
	// Publish publishes one row to the stream of its report type
	Publish(ctx context.Context, env Envelope) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams(ctx context.Context) error

	// Close closes the publisher connection
	Close() error
}
