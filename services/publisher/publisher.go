package publisher

import (
	"context"
	"time"
)

// ListingEvent is the message emitted for every listing surfaced to the user
type ListingEvent struct {
	ID         string    `json:"id"`
	Site       string    `json:"site"`
	Query      string    `json:"query"`
	Price      string    `json:"price,omitempty"`
	Opened     bool      `json:"opened"`
	CycleID    string    `json:"cycle_id"`
	DetectedAt time.Time `json:"detected_at"`
}

// Publisher represents a service for publishing listing events
type Publisher interface {
	// Publish publishes one listing event
	Publish(ctx context.Context, event ListingEvent) error

	// Close closes the publisher connection
	Close() error
}
