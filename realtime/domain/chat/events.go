package chat

import "encoding/json"

// EventName identifies one class of channel event.
type EventName string

const (
	// Inbound event classes bound by the connection manager.
	EventMessage   EventName = "message"
	EventSeen      EventName = "seen"
	EventPresence  EventName = "presence"
	EventTyping    EventName = "typing"
	EventMatch     EventName = "matchNotification"
	EventAuthError EventName = "authError"

	// Outbound event classes.
	EventIdentify EventName = "identify"
)

// Event is one raw frame received from or written to the channel.
type Event struct {
	Name EventName       `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IdentifyEvent announces the current user's identity during handshake.
type IdentifyEvent struct {
	UserID string `json:"user_id"`
}

// PresenceEvent carries an online/offline transition. Outbound it
// broadcasts our own state; inbound it reports a peer's.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// TypingEvent carries a typing-indicator transition. Outbound PeerID is
// the recipient of the signal; inbound it is the peer who is typing.
type TypingEvent struct {
	PeerID   string `json:"peer_id"`
	IsTyping bool   `json:"is_typing"`
}

// SeenEvent acknowledges that a specific message was read.
type SeenEvent struct {
	MessageID string `json:"message_id"`
}

// MatchEvent announces a new match outside any conversation.
type MatchEvent struct {
	Message string `json:"message"`
}

// AuthErrorEvent reports a server-side session invalidation.
type AuthErrorEvent struct {
	Reason string `json:"reason"`
}
