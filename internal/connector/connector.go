// Package connector defines the shared surface for external ingest
// channels (Telegram bot, call-platform webhook).
package connector

import "context"

// Connector is a long-running external channel that feeds resident
// reports into the pipeline.
type Connector interface {
	// Name returns the channel name (e.g. "telegram").
	Name() string
	// Start begins listening for inbound turns. Blocks until the
	// context is cancelled.
	Start(ctx context.Context) error
	// Stop gracefully shuts down the connector.
	Stop() error
}
