package realtime

import "errors"

var (
	ErrNotConnected       = errors.New("channel not connected")
	ErrNoOpenConversation = errors.New("no conversation is open")
)
