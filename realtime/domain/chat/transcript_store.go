package chat

import "context"

// TranscriptStore caches message history per peer so a reopened
// conversation renders before the transcript fetch lands.
type TranscriptStore interface {
	// Append stores one message; appending an id that already exists
	// updates the stored copy.
	Append(ctx context.Context, msg Message) error

	// Replace swaps the cached transcript for a peer wholesale.
	Replace(ctx context.Context, peerID string, msgs []Message) error

	// List returns the cached transcript for a peer in creation order.
	List(ctx context.Context, peerID string) ([]Message, error)

	// MarkSeen flips the seen flag of the matching message. Unknown ids
	// are a no-op.
	MarkSeen(ctx context.Context, messageID string) error

	// Clear drops all cached transcripts; used on session teardown.
	Clear(ctx context.Context) error
}
