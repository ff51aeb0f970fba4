package chat

import (
	"context"
	"time"
)

// PeerPresence is the tracked online/offline view of a single peer.
type PeerPresence struct {
	PeerID   string    `json:"peer_id"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"last_seen"`
}

// PresenceStore persists the presence view per peer.
type PresenceStore interface {
	Save(ctx context.Context, presence *PeerPresence) error

	// Get returns nil when no presence is recorded for the peer.
	Get(ctx context.Context, peerID string) (*PeerPresence, error)

	Delete(ctx context.Context, peerID string) error

	GetAll(ctx context.Context) ([]*PeerPresence, error)

	// Clear drops every record; used on session teardown.
	Clear(ctx context.Context) error
}
