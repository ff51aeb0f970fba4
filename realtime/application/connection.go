package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/AzielCF/az-chat/realtime/domain/session"
	"github.com/sirupsen/logrus"
)

// ReconnectPolicy bounds the automatic reconnection loop.
type ReconnectPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultReconnectPolicy matches the expected heartbeat cadence: up to
// five attempts with the delay growing from ~1s to ~5s.
var DefaultReconnectPolicy = ReconnectPolicy{
	MaxAttempts: 5,
	BaseDelay:   time.Second,
	MaxDelay:    5 * time.Second,
}

// ConnectionManager owns the single live channel. It performs the
// identify+presence handshake on every (re)connect, tears the old
// generation down before a new one is established, and routes inbound
// events to the handlers wired by the session manager.
//
// All handler fields must be set before Open is called.
type ConnectionManager struct {
	factory  chat.ChannelFactory
	identity session.IdentityProvider
	url      string
	policy   ReconnectPolicy

	mu         sync.Mutex
	channel    chat.Channel
	generation uint64
	closed     bool
	userID     string

	// Inbound event sinks, one per event class.
	OnMessage   func(chat.Message)
	OnSeen      func(chat.SeenEvent)
	OnPresence  func(chat.PresenceEvent)
	OnTyping    func(chat.TypingEvent)
	OnMatch     func(chat.MatchEvent)
	OnAuthError func(chat.AuthErrorEvent)

	// OnHandshake fires after every successful (re)connect handshake.
	OnHandshake func(generation uint64)

	// OnGiveUp fires when the reconnect budget is exhausted; presence
	// for all peers degrades to unknown until the next Open.
	OnGiveUp func()
}

func NewConnectionManager(factory chat.ChannelFactory, identity session.IdentityProvider, url string, policy ReconnectPolicy) *ConnectionManager {
	if policy.MaxAttempts <= 0 {
		policy = DefaultReconnectPolicy
	}
	return &ConnectionManager{
		factory:  factory,
		identity: identity,
		url:      url,
		policy:   policy,
	}
}

// Open establishes a fresh channel generation. Any previous generation
// is torn down first: its handlers are invalidated, a best-effort
// offline signal is sent and the transport closed. Fails fast with
// session.ErrNoIdentity when no valid token is available.
func (cm *ConnectionManager) Open(ctx context.Context) error {
	id, err := cm.identity.Current(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	cm.mu.Lock()
	cm.closed = false
	cm.teardownLocked(true)
	cm.userID = id.UserID
	gen := cm.generation
	cm.mu.Unlock()

	return cm.connect(ctx, gen, id)
}

// Close tears the current generation down and emits a best-effort
// offline presence signal. Safe to call multiple times.
func (cm *ConnectionManager) Close() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.closed = true
	cm.teardownLocked(true)
}

// Generation returns the current channel generation.
func (cm *ConnectionManager) Generation() uint64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.generation
}

// Status reports the live transport state.
func (cm *ConnectionManager) Status() chat.ChannelStatus {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.channel == nil {
		return chat.ChannelStatusDisconnected
	}
	return cm.channel.Status()
}

// SendTyping forwards a typing signal for the given peer. All other
// components reach the channel through these emit helpers; none of
// them holds the channel handle directly.
func (cm *ConnectionManager) SendTyping(ctx context.Context, peerID string, isTyping bool) error {
	return cm.emit(ctx, chat.EventTyping, chat.TypingEvent{PeerID: peerID, IsTyping: isTyping})
}

// SendPresence broadcasts our own online flag.
func (cm *ConnectionManager) SendPresence(ctx context.Context, userID string, online bool) error {
	return cm.emit(ctx, chat.EventPresence, chat.PresenceEvent{UserID: userID, Online: online})
}

func (cm *ConnectionManager) emit(ctx context.Context, name chat.EventName, payload any) error {
	cm.mu.Lock()
	ch := cm.channel
	cm.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("emit %s: channel not connected", name)
	}
	return ch.Emit(ctx, name, payload)
}

// connect dials a new channel for generation gen and performs the
// handshake. It is a no-op when gen has been superseded meanwhile.
func (cm *ConnectionManager) connect(ctx context.Context, gen uint64, id session.Identity) error {
	ch, err := cm.factory(chat.ChannelConfig{URL: cm.url, UserID: id.UserID, Token: id.Token})
	if err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	ch.OnEvent(func(ev chat.Event) {
		cm.dispatch(ch, gen, ev)
	})
	ch.OnDisconnect(func(err error) {
		cm.handleDisconnect(gen, id, err)
	})

	if err := ch.Connect(ctx); err != nil {
		return fmt.Errorf("connect channel: %w", err)
	}

	cm.mu.Lock()
	if cm.generation != gen || cm.closed {
		cm.mu.Unlock()
		_ = ch.Close()
		return nil
	}
	cm.channel = ch
	cm.mu.Unlock()

	if err := cm.handshake(ctx, ch, id); err != nil {
		logrus.WithError(err).Warn("[ConnectionManager] Handshake failed")
		// A half-established channel must not survive: a retry dials a
		// replacement for the same generation, and this one would keep
		// feeding dispatch past the generation guard.
		cm.mu.Lock()
		if cm.channel == ch {
			cm.channel = nil
		}
		cm.mu.Unlock()
		_ = ch.Close()
		return err
	}

	logrus.WithField("generation", gen).Info("[ConnectionManager] Channel established")
	if cm.OnHandshake != nil {
		cm.OnHandshake(gen)
	}
	return nil
}

// handshake announces identity and an online presence broadcast. It is
// idempotent and repeats on every successful reconnect.
func (cm *ConnectionManager) handshake(ctx context.Context, ch chat.Channel, id session.Identity) error {
	if err := ch.Emit(ctx, chat.EventIdentify, chat.IdentifyEvent{UserID: id.UserID}); err != nil {
		return fmt.Errorf("identify: %w", err)
	}
	if err := ch.Emit(ctx, chat.EventPresence, chat.PresenceEvent{UserID: id.UserID, Online: true}); err != nil {
		return fmt.Errorf("presence broadcast: %w", err)
	}
	return nil
}

// dispatch routes one inbound event to its bound handler. Events from a
// superseded generation, or from a channel that is no longer the live
// one (an abandoned half-established dial), are dropped before they can
// touch any state.
func (cm *ConnectionManager) dispatch(ch chat.Channel, gen uint64, ev chat.Event) {
	cm.mu.Lock()
	stale := cm.generation != gen || cm.closed || cm.channel != ch
	cm.mu.Unlock()
	if stale {
		logrus.WithFields(logrus.Fields{
			"generation": gen,
			"event":      ev.Name,
		}).Debug("[ConnectionManager] Dropping stale-generation event")
		return
	}

	switch ev.Name {
	case chat.EventMessage:
		var msg chat.Message
		if err := json.Unmarshal(ev.Data, &msg); err != nil {
			logrus.WithError(err).Warn("[ConnectionManager] Malformed message event")
			return
		}
		if cm.OnMessage != nil {
			cm.OnMessage(msg)
		}
	case chat.EventSeen:
		var seen chat.SeenEvent
		if err := json.Unmarshal(ev.Data, &seen); err != nil {
			logrus.WithError(err).Warn("[ConnectionManager] Malformed seen event")
			return
		}
		if cm.OnSeen != nil {
			cm.OnSeen(seen)
		}
	case chat.EventPresence:
		var pres chat.PresenceEvent
		if err := json.Unmarshal(ev.Data, &pres); err != nil {
			logrus.WithError(err).Warn("[ConnectionManager] Malformed presence event")
			return
		}
		if cm.OnPresence != nil {
			cm.OnPresence(pres)
		}
	case chat.EventTyping:
		var typing chat.TypingEvent
		if err := json.Unmarshal(ev.Data, &typing); err != nil {
			logrus.WithError(err).Warn("[ConnectionManager] Malformed typing event")
			return
		}
		if cm.OnTyping != nil {
			cm.OnTyping(typing)
		}
	case chat.EventMatch:
		var match chat.MatchEvent
		if err := json.Unmarshal(ev.Data, &match); err != nil {
			logrus.WithError(err).Warn("[ConnectionManager] Malformed match event")
			return
		}
		if cm.OnMatch != nil {
			cm.OnMatch(match)
		}
	case chat.EventAuthError:
		var authErr chat.AuthErrorEvent
		_ = json.Unmarshal(ev.Data, &authErr)
		logrus.WithField("reason", authErr.Reason).Error("[ConnectionManager] Auth error from server, closing channel")
		cm.Close()
		if cm.OnAuthError != nil {
			cm.OnAuthError(authErr)
		}
	default:
		logrus.WithField("event", ev.Name).Debug("[ConnectionManager] Ignoring unknown event")
	}
}

// handleDisconnect drives the bounded reconnection loop for the
// generation that dropped. Auth errors never land here; they force an
// explicit Close in dispatch.
func (cm *ConnectionManager) handleDisconnect(gen uint64, id session.Identity, cause error) {
	cm.mu.Lock()
	if cm.generation != gen || cm.closed {
		cm.mu.Unlock()
		return
	}
	// Supersede the dropped generation so its late events are inert.
	cm.generation++
	cm.channel = nil
	next := cm.generation
	cm.mu.Unlock()

	logrus.WithError(cause).WithField("generation", gen).Warn("[ConnectionManager] Channel dropped, reconnecting")

	go cm.reconnect(next, id)
}

func (cm *ConnectionManager) reconnect(gen uint64, id session.Identity) {
	delay := cm.policy.BaseDelay
	for attempt := 1; attempt <= cm.policy.MaxAttempts; attempt++ {
		time.Sleep(delay)

		cm.mu.Lock()
		superseded := cm.generation != gen || cm.closed
		cm.mu.Unlock()
		if superseded {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := cm.connect(ctx, gen, id)
		cancel()
		if err == nil {
			return
		}

		logrus.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"max":     cm.policy.MaxAttempts,
		}).Warn("[ConnectionManager] Reconnect attempt failed")

		delay *= 2
		if delay > cm.policy.MaxDelay {
			delay = cm.policy.MaxDelay
		}
	}

	logrus.Error("[ConnectionManager] Reconnect budget exhausted, session left disconnected")
	if cm.OnGiveUp != nil {
		cm.OnGiveUp()
	}
}

// teardownLocked invalidates the current generation and closes the
// transport. With announce set it sends a best-effort offline signal
// first. Callers hold cm.mu.
func (cm *ConnectionManager) teardownLocked(announce bool) {
	ch := cm.channel
	cm.channel = nil
	cm.generation++

	if ch == nil {
		return
	}
	if announce {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = ch.Emit(ctx, chat.EventPresence, chat.PresenceEvent{UserID: cm.userID, Online: false})
		cancel()
	}
	_ = ch.Close()
}
