package chat

import "time"

// Message is a single direct message between the current user and a peer.
// ID, SenderID and RecipientID are immutable once assigned by the server;
// only Seen and Unsent may transition, and each transition is one-way.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	Seen        bool      `json:"seen"`
	Unsent      bool      `json:"unsent"`
}

// MarkSeen flips the seen flag. A seen message is never un-seen.
func (m *Message) MarkSeen() {
	m.Seen = true
}

// MarkUnsent flips the unsent flag. An unsent message is never re-sent.
func (m *Message) MarkUnsent() {
	m.Unsent = true
}

// PeerOf returns the id of the other party of the message, relative to
// selfID: the sender for an inbound message, the recipient for an echo
// of a locally originated one.
func (m Message) PeerOf(selfID string) string {
	if m.SenderID == selfID {
		return m.RecipientID
	}
	return m.SenderID
}

// Inbound reports whether the message was sent to selfID by someone else.
func (m Message) Inbound(selfID string) bool {
	return m.SenderID != selfID
}
