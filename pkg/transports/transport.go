// Package transports defines the I/O boundary for the agent execution
// side-channel. Implementations own their network lifecycle and deliver
// inbound frames on a channel.
package transports

import (
	"context"

	"github.com/adityow/sourcedesk/pkg/frames"
)

// StreamClient is a session-scoped streaming connection. Exactly one
// live connection exists per session; starting a client for a new
// session requires stopping the previous one first.
type StreamClient interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Recv() <-chan frames.Frame
}
