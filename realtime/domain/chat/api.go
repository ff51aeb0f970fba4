package chat

import "context"

// API is the HTTP collaborator that owns historical conversation
// content and the peer directory. All calls are plain request/response;
// none of them touch the live channel.
type API interface {
	// ConversationPeers returns the bulk peer directory with
	// last-message summaries.
	ConversationPeers(ctx context.Context) ([]PeerSummary, error)

	// OnlinePeers returns the ids of currently online peers, used once
	// at session start to seed presence before live events arrive.
	OnlinePeers(ctx context.Context) ([]string, error)

	// Heartbeat is a fire-and-forget liveness ping.
	Heartbeat(ctx context.Context) error

	// Transcript returns the ordered message history with a peer.
	Transcript(ctx context.Context, peerID string) ([]Message, error)

	// SendMessage persists a message and returns it with the
	// server-assigned id and timestamp.
	SendMessage(ctx context.Context, to, text string) (Message, error)

	// MarkSeen issues an idempotent seen-acknowledgement.
	MarkSeen(ctx context.Context, messageID string) error
}
