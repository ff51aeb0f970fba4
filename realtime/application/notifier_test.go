package application

import (
	"testing"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/stretchr/testify/assert"
)

type navRecorder struct {
	openedPeer  string
	matchesOpen bool
}

func (n *navRecorder) OpenConversation(peerID string) { n.openedPeer = peerID }
func (n *navRecorder) OpenMatches()                   { n.matchesOpen = true }

// Test_Notifier_PermissionGate verifies nothing is shown, queued or
// retried without an explicit grant.
func Test_Notifier_PermissionGate(t *testing.T) {
	sink := &sinkRecorder{}
	d := NewNotificationDispatcher(sink, nil)

	msg := chat.Message{ID: "m1", SenderID: "peer_1", Text: "hi", CreatedAt: time.Now()}

	d.NotifyMessage(chat.PeerSummary{}, msg)
	d.NotifyMatch(chat.MatchEvent{Message: "someone likes you"})
	assert.Empty(t, sink.all(), "default permission shows nothing")

	d.SetPermission(PermissionDenied)
	d.NotifyMessage(chat.PeerSummary{}, msg)
	assert.Empty(t, sink.all())

	d.SetPermission(PermissionGranted)
	d.NotifyMessage(chat.PeerSummary{}, msg)
	assert.Len(t, sink.all(), 1, "granting does not replay earlier skips")
}

// Test_Notifier_MessageContent verifies titles and bodies, including the
// fallbacks for an uncached sender.
func Test_Notifier_MessageContent(t *testing.T) {
	sink := &sinkRecorder{}
	d := NewNotificationDispatcher(sink, nil)
	d.SetPermission(PermissionGranted)

	d.NotifyMessage(
		chat.PeerSummary{ID: "peer_1", DisplayName: "Alex"},
		chat.Message{ID: "m1", SenderID: "peer_1", Text: "see you soon", CreatedAt: time.Now().Add(-2 * time.Minute)},
	)

	notes := sink.all()
	assert.Len(t, notes, 1)
	assert.Equal(t, "Alex", notes[0].Title)
	assert.Contains(t, notes[0].Body, "see you soon")
	assert.Contains(t, notes[0].Body, "ago", "body carries a relative timestamp")
	assert.Equal(t, "peer_1", notes[0].PeerID)
	assert.False(t, notes[0].Match)

	// Uncached sender falls back to the generic title
	d.NotifyMessage(chat.PeerSummary{}, chat.Message{ID: "m2", SenderID: "peer_2", Text: "yo"})
	assert.Equal(t, "New message", sink.all()[1].Title)
}

// Test_Notifier_MatchContent verifies the fixed match title and flag.
func Test_Notifier_MatchContent(t *testing.T) {
	sink := &sinkRecorder{}
	d := NewNotificationDispatcher(sink, nil)
	d.SetPermission(PermissionGranted)

	d.NotifyMatch(chat.MatchEvent{Message: "You matched with Sam"})

	notes := sink.all()
	assert.Len(t, notes, 1)
	assert.Equal(t, MatchTitle, notes[0].Title)
	assert.Equal(t, "You matched with Sam", notes[0].Body)
	assert.True(t, notes[0].Match)
}

// Test_Notifier_ClickNavigation verifies clicks route to the right view.
func Test_Notifier_ClickNavigation(t *testing.T) {
	nav := &navRecorder{}
	d := NewNotificationDispatcher(&sinkRecorder{}, nav)

	d.HandleClick(Notification{PeerID: "peer_1"})
	assert.Equal(t, "peer_1", nav.openedPeer)
	assert.False(t, nav.matchesOpen)

	d.HandleClick(Notification{Match: true})
	assert.True(t, nav.matchesOpen)
}
