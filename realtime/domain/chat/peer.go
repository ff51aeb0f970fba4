package chat

import "time"

// PeerSummary is one row of the conversation list: who the peer is plus
// the last-message preview used for recency ordering.
type PeerSummary struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"display_name"`
	Username      string    `json:"username"`
	Online        bool      `json:"online"`
	LastMessage   string    `json:"last_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Recency returns the effective sort key for the conversation list: the
// most recent of last-message, last-updated and created timestamps.
func (p PeerSummary) Recency() time.Time {
	t := p.LastMessageAt
	if p.UpdatedAt.After(t) {
		t = p.UpdatedAt
	}
	if p.CreatedAt.After(t) {
		t = p.CreatedAt
	}
	return t
}

// PeerPatch is a partial update merged into a cached PeerSummary.
// Nil fields leave the existing value untouched.
type PeerPatch struct {
	DisplayName   *string
	Online        *bool
	LastMessage   *string
	LastMessageAt *time.Time
}

// Apply merges the patch into the summary and stamps UpdatedAt.
func (patch PeerPatch) Apply(p *PeerSummary, now time.Time) {
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Online != nil {
		p.Online = *patch.Online
	}
	if patch.LastMessage != nil {
		p.LastMessage = *patch.LastMessage
	}
	if patch.LastMessageAt != nil {
		p.LastMessageAt = *patch.LastMessageAt
	}
	p.UpdatedAt = now
}
