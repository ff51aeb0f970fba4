package application

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sirupsen/logrus"
)

// MessagePipeline sends, receives and reconciles delivery/seen state
// for the open conversation, and keeps the conversation cache patched
// for every message regardless of which conversation is open. It owns
// the open-peer selection and the in-memory transcript behind it.
type MessagePipeline struct {
	api        chat.API
	cache      *ConversationCache
	presence   *PresenceTimerRegistry
	typing     *TypingCoordinator
	notifier   *NotificationDispatcher
	transcript chat.TranscriptStore

	selfID string

	mu       sync.Mutex
	openPeer string
	messages []chat.Message
}

func NewMessagePipeline(api chat.API, cache *ConversationCache, presence *PresenceTimerRegistry, typing *TypingCoordinator, notifier *NotificationDispatcher, transcript chat.TranscriptStore, selfID string) *MessagePipeline {
	return &MessagePipeline{
		api:        api,
		cache:      cache,
		presence:   presence,
		typing:     typing,
		notifier:   notifier,
		transcript: transcript,
		selfID:     selfID,
	}
}

// OpenPeer returns the currently open conversation peer, or "".
func (p *MessagePipeline) OpenPeer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openPeer
}

// Transcript returns a snapshot of the open conversation.
func (p *MessagePipeline) Transcript() []chat.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]chat.Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// OpenConversation selects a peer, loads its transcript (cached copy
// first, then the authoritative fetch) and acknowledges every unseen
// inbound message. Re-acknowledging an already-seen message is a no-op
// on the receiving end and is never treated as an error here.
func (p *MessagePipeline) OpenConversation(ctx context.Context, peerID string) error {
	p.typing.SetActivePeer(peerID)

	p.mu.Lock()
	p.openPeer = peerID
	p.messages = nil
	if cached, err := p.transcript.List(ctx, peerID); err == nil && len(cached) > 0 {
		p.messages = cached
	}
	p.mu.Unlock()

	msgs, err := p.api.Transcript(ctx, peerID)
	if err != nil {
		return fmt.Errorf("fetch transcript for %s: %w", peerID, err)
	}

	p.mu.Lock()
	if p.openPeer != peerID {
		// The user navigated away while the fetch was in flight.
		p.mu.Unlock()
		return nil
	}
	p.messages = msgs
	p.mu.Unlock()

	if err := p.transcript.Replace(ctx, peerID, msgs); err != nil {
		logrus.WithError(err).Debug("[MessagePipeline] Failed to cache transcript")
	}

	p.markSeenBatch(ctx, peerID, msgs)
	return nil
}

// CloseConversation clears the selection and stops any local typing
// session.
func (p *MessagePipeline) CloseConversation() {
	p.typing.Stop()

	p.mu.Lock()
	p.openPeer = ""
	p.messages = nil
	p.mu.Unlock()
}

// Send persists a message to the open peer. The local typing session is
// closed first. The transcript and cache are only touched after the
// request confirms persistence; a failed send changes nothing.
func (p *MessagePipeline) Send(ctx context.Context, peerID, text string) (chat.Message, error) {
	if err := validation.Validate(strings.TrimSpace(text), validation.Required); err != nil {
		return chat.Message{}, fmt.Errorf("message text: %w", err)
	}
	if err := validation.Validate(peerID, validation.Required); err != nil {
		return chat.Message{}, fmt.Errorf("peer id: %w", err)
	}

	p.typing.Stop()

	msg, err := p.api.SendMessage(ctx, peerID, text)
	if err != nil {
		return chat.Message{}, fmt.Errorf("send message to %s: %w", peerID, err)
	}

	p.mu.Lock()
	if p.openPeer == peerID {
		p.messages = append(p.messages, msg)
	}
	p.mu.Unlock()

	if err := p.transcript.Append(ctx, msg); err != nil {
		logrus.WithError(err).Debug("[MessagePipeline] Failed to cache sent message")
	}

	p.patchCacheFor(peerID, msg)
	return msg, nil
}

// HandleInbound routes one live message event: append to the open
// transcript when it belongs there, auto-acknowledge when its sender is
// the open peer, patch the cache for the other party either way, treat
// receipt as liveness proof, and notify when the conversation is not in
// focus.
func (p *MessagePipeline) HandleInbound(msg chat.Message) {
	ctx := context.Background()
	other := msg.PeerOf(p.selfID)

	p.mu.Lock()
	open := p.openPeer
	belongsToOpen := open != "" && other == open
	if belongsToOpen {
		p.messages = append(p.messages, msg)
	}
	p.mu.Unlock()

	if err := p.transcript.Append(ctx, msg); err != nil {
		logrus.WithError(err).Debug("[MessagePipeline] Failed to cache inbound message")
	}

	if belongsToOpen && msg.SenderID == open {
		// The user is looking at this conversation; acknowledge now.
		go p.ackSeen(msg.ID)
	}

	p.patchCacheFor(other, msg)

	// Receipt of an inbound message proves the sender is alive, but no
	// explicit offline signal will follow. Echoes of our own sends say
	// nothing about the recipient.
	if msg.Inbound(p.selfID) {
		p.presence.MarkOnlineWithExpiry(other)
	}

	if msg.Inbound(p.selfID) && !belongsToOpen {
		sender, _ := p.cache.Get(msg.SenderID)
		p.notifier.NotifyMessage(sender, msg)
	}
}

// ApplySeen updates the seen flag of the matching local message.
// Unknown ids and repeated acknowledgements change nothing.
func (p *MessagePipeline) ApplySeen(ev chat.SeenEvent) {
	p.mu.Lock()
	for i := range p.messages {
		if p.messages[i].ID == ev.MessageID {
			p.messages[i].MarkSeen()
			break
		}
	}
	p.mu.Unlock()

	if err := p.transcript.MarkSeen(context.Background(), ev.MessageID); err != nil {
		logrus.WithError(err).Debug("[MessagePipeline] Failed to persist seen flag")
	}
}

// Teardown clears the selection and the persisted transcript cache.
func (p *MessagePipeline) Teardown(ctx context.Context) {
	p.mu.Lock()
	p.openPeer = ""
	p.messages = nil
	p.mu.Unlock()

	if err := p.transcript.Clear(ctx); err != nil {
		logrus.WithError(err).Warn("[MessagePipeline] Failed to clear transcript cache")
	}
}

// markSeenBatch acknowledges every unseen inbound message of a freshly
// opened transcript.
func (p *MessagePipeline) markSeenBatch(ctx context.Context, peerID string, msgs []chat.Message) {
	for _, m := range msgs {
		if m.Seen || !m.Inbound(p.selfID) {
			continue
		}
		if err := p.api.MarkSeen(ctx, m.ID); err != nil {
			logrus.WithError(err).WithField("message_id", m.ID).Debug("[MessagePipeline] Seen ack failed")
			continue
		}
		p.mu.Lock()
		if p.openPeer == peerID {
			for i := range p.messages {
				if p.messages[i].ID == m.ID {
					p.messages[i].MarkSeen()
					break
				}
			}
		}
		p.mu.Unlock()
		if err := p.transcript.MarkSeen(ctx, m.ID); err != nil {
			logrus.WithError(err).Debug("[MessagePipeline] Failed to persist seen flag")
		}
	}
}

func (p *MessagePipeline) ackSeen(messageID string) {
	if err := p.api.MarkSeen(context.Background(), messageID); err != nil {
		logrus.WithError(err).WithField("message_id", messageID).Debug("[MessagePipeline] Seen ack failed")
		return
	}
	p.ApplySeen(chat.SeenEvent{MessageID: messageID})
}

// patchCacheFor writes the message preview into the cache entry of its
// other party, creating the entry when the peer is brand new.
func (p *MessagePipeline) patchCacheFor(peerID string, msg chat.Message) {
	text := msg.Text
	at := msg.CreatedAt
	patch := chat.PeerPatch{LastMessage: &text, LastMessageAt: &at}
	if !p.cache.ApplyLiveUpdate(peerID, patch) {
		p.cache.Upsert(chat.PeerSummary{ID: peerID}, patch)
	}
}
