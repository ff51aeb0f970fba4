package chat

import "context"

// ChannelStatus is the connection state of one channel instance.
type ChannelStatus string

const (
	ChannelStatusPending      ChannelStatus = "pending"
	ChannelStatusConnected    ChannelStatus = "connected"
	ChannelStatusDisconnected ChannelStatus = "disconnected"
)

// ChannelConfig carries everything a transport needs to dial.
type ChannelConfig struct {
	URL    string
	UserID string
	Token  string
}

// Channel is one live bidirectional transport instance. A channel is
// single-shot: the connection manager creates a fresh one per
// generation and never reconnects an existing instance.
//
// OnEvent and OnDisconnect must be set before Connect.
type Channel interface {
	Connect(ctx context.Context) error
	Close() error
	Status() ChannelStatus

	// Emit writes one outbound event. Returns an error when the
	// channel is not connected.
	Emit(ctx context.Context, name EventName, payload any) error

	// OnEvent registers the single inbound sink for all event classes.
	OnEvent(handler func(Event))

	// OnDisconnect registers the callback invoked when the transport
	// drops for any reason other than an explicit Close.
	OnDisconnect(handler func(err error))
}

// ChannelFactory builds a new channel instance for one generation.
type ChannelFactory func(cfg ChannelConfig) (Channel, error)
