package application

import (
	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Permission is the one-time notification grant state.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// MatchTitle is the fixed title for match notifications, distinct from
// message notifications.
const MatchTitle = "You have a new match!"

// Notification is one system notification request.
type Notification struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	PeerID string `json:"peer_id,omitempty"`
	Match  bool   `json:"match"`
}

// Sink is the system notification presentation surface.
type Sink interface {
	Show(n Notification) error
}

// Navigator handles notification clicks: bring the application into
// focus and move to the right view.
type Navigator interface {
	OpenConversation(peerID string)
	OpenMatches()
}

// NotificationDispatcher bridges inbound events for non-focused
// conversations to system notifications. Without a granted permission
// everything is silently skipped: nothing is queued or retried.
type NotificationDispatcher struct {
	sink       Sink
	nav        Navigator
	permission Permission
}

func NewNotificationDispatcher(sink Sink, nav Navigator) *NotificationDispatcher {
	return &NotificationDispatcher{
		sink:       sink,
		nav:        nav,
		permission: PermissionDefault,
	}
}

// SetPermission records the user's grant decision.
func (d *NotificationDispatcher) SetPermission(p Permission) {
	d.permission = p
}

// Permission returns the current grant state.
func (d *NotificationDispatcher) Permission() Permission {
	return d.permission
}

// NotifyMessage requests a notification for an inbound message. The
// sender summary may be zero-valued when the peer is not cached yet.
func (d *NotificationDispatcher) NotifyMessage(sender chat.PeerSummary, msg chat.Message) {
	if d.permission != PermissionGranted {
		return
	}

	title := sender.DisplayName
	if title == "" {
		title = "New message"
	}
	body := msg.Text
	if body == "" {
		body = "sent you a message"
	}
	if !msg.CreatedAt.IsZero() {
		body += " · " + humanize.Time(msg.CreatedAt)
	}

	d.show(Notification{
		ID:     uuid.NewString(),
		Title:  title,
		Body:   body,
		PeerID: msg.SenderID,
	})
}

// NotifyMatch requests a match notification with the fixed title.
func (d *NotificationDispatcher) NotifyMatch(ev chat.MatchEvent) {
	if d.permission != PermissionGranted {
		return
	}

	body := ev.Message
	if body == "" {
		body = "Open the app to see who it is."
	}

	d.show(Notification{
		ID:    uuid.NewString(),
		Title: MatchTitle,
		Body:  body,
		Match: true,
	})
}

// HandleClick navigates to the conversation behind a message
// notification, or to the matches view for a match one.
func (d *NotificationDispatcher) HandleClick(n Notification) {
	if d.nav == nil {
		return
	}
	if n.Match {
		d.nav.OpenMatches()
		return
	}
	if n.PeerID != "" {
		d.nav.OpenConversation(n.PeerID)
	}
}

func (d *NotificationDispatcher) show(n Notification) {
	if d.sink == nil {
		return
	}
	if err := d.sink.Show(n); err != nil {
		logrus.WithError(err).Debug("[Notifier] Failed to show notification")
	}
}
