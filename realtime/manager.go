package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AzielCF/az-chat/pkg/evworker"
	"github.com/AzielCF/az-chat/realtime/application"
	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/AzielCF/az-chat/realtime/domain/session"
	"github.com/sirupsen/logrus"
)

// Options bundles the tunables and collaborators of one session
// manager. Zero durations fall back to the application defaults.
type Options struct {
	SocketURL         string
	HeartbeatInterval time.Duration
	PresenceExpiry    time.Duration
	OfflineGrace      time.Duration
	TypingIdle        time.Duration
	Reconnect         application.ReconnectPolicy
	Workers           int
	WorkerQueue       int

	NotificationSink application.Sink
	Navigator        application.Navigator
}

// Manager assembles and drives the realtime conversation subsystem for
// one client session: channel lifecycle, presence timers, typing
// coordination, the message pipeline and the conversation cache. It is
// started on conversation-view mount and torn down on unmount/logout.
type Manager struct {
	identity    session.IdentityProvider
	api         chat.API
	transcripts chat.TranscriptStore

	conn     *application.ConnectionManager
	presence *application.PresenceTimerRegistry
	typing   *application.TypingCoordinator
	pipeline *application.MessagePipeline
	cache    *application.ConversationCache
	notifier *application.NotificationDispatcher
	pool     *evworker.Pool

	heartbeat   time.Duration
	workers     int
	workerQueue int

	mu      sync.Mutex
	started bool
	selfID  string

	// OnAuthRedirect fires when the session must be re-authenticated:
	// a missing token at Start or a server-side auth error later.
	OnAuthRedirect func(reason string)
}

func NewManager(identity session.IdentityProvider, api chat.API, factory chat.ChannelFactory, presenceStore chat.PresenceStore, transcriptStore chat.TranscriptStore, opts Options) *Manager {
	m := &Manager{
		identity:    identity,
		api:         api,
		transcripts: transcriptStore,
		heartbeat:   opts.HeartbeatInterval,
		workers:     opts.Workers,
		workerQueue: opts.WorkerQueue,
	}

	m.cache = application.NewConversationCache()
	m.notifier = application.NewNotificationDispatcher(opts.NotificationSink, opts.Navigator)
	m.presence = application.NewPresenceTimerRegistry(presenceStore, opts.PresenceExpiry, opts.OfflineGrace)
	m.conn = application.NewConnectionManager(factory, identity, opts.SocketURL, opts.Reconnect)
	m.typing = application.NewTypingCoordinator(m.conn.SendTyping, opts.TypingIdle)

	// A committed presence change is mirrored into the cached peer row.
	m.presence.OnChange = func(peerID string, online bool) {
		o := online
		m.cache.ApplyLiveUpdate(peerID, chat.PeerPatch{Online: &o})
	}

	// Inbound event wiring. Message events go through the worker pool
	// so one slow peer cannot stall the rest; the pool keeps per-peer
	// arrival order.
	m.conn.OnMessage = func(msg chat.Message) {
		m.mu.Lock()
		pool, pipeline := m.pool, m.pipeline
		m.mu.Unlock()
		if pool == nil || pipeline == nil {
			return
		}
		pool.Dispatch(evworker.Job{PeerID: msg.SenderID, Handler: func(ctx context.Context) {
			pipeline.HandleInbound(msg)
		}})
	}
	m.conn.OnSeen = func(ev chat.SeenEvent) {
		if p := m.currentPipeline(); p != nil {
			p.ApplySeen(ev)
		}
	}
	m.conn.OnPresence = func(ev chat.PresenceEvent) {
		if ev.Online {
			m.presence.MarkOnline(ev.UserID)
		} else {
			m.presence.MarkOffline(ev.UserID)
		}
	}
	m.conn.OnTyping = func(ev chat.TypingEvent) {
		m.typing.HandleRemote(ev)
	}
	m.conn.OnMatch = func(ev chat.MatchEvent) {
		m.notifier.NotifyMatch(ev)
	}
	m.conn.OnAuthError = func(ev chat.AuthErrorEvent) {
		logrus.WithField("reason", ev.Reason).Warn("[Manager] Session invalidated by server")
		m.teardown(context.Background())
		if m.OnAuthRedirect != nil {
			m.OnAuthRedirect(ev.Reason)
		}
	}

	return m
}

// Start opens the session: channel handshake, bulk directory fetch,
// presence seeding and the heartbeat loop. Fails fast with
// session.ErrNoIdentity when no token is available.
func (m *Manager) Start(ctx context.Context) error {
	id, err := m.identity.Current(ctx)
	if err != nil {
		if m.OnAuthRedirect != nil {
			m.OnAuthRedirect(err.Error())
		}
		return err
	}

	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.selfID = id.UserID
	m.mu.Unlock()

	m.presence.Reset()

	m.mu.Lock()
	m.pipeline = application.NewMessagePipeline(m.api, m.cache, m.presence, m.typing, m.notifier, m.transcripts, id.UserID)
	m.pool = evworker.NewPool(m.workers, m.workerQueue)
	m.mu.Unlock()
	m.pool.Start(ctx)

	if err := m.conn.Open(ctx); err != nil {
		m.mu.Lock()
		m.started = false
		pool := m.pool
		m.pipeline = nil
		m.pool = nil
		m.mu.Unlock()
		pool.Stop()
		return fmt.Errorf("open channel: %w", err)
	}

	peers, err := m.api.ConversationPeers(ctx)
	if err != nil {
		logrus.WithError(err).Warn("[Manager] Bulk peer fetch failed; cache stays empty until retried")
	} else {
		m.cache.ApplyBulkFetch(peers)
	}

	online, err := m.api.OnlinePeers(ctx)
	if err != nil {
		logrus.WithError(err).Debug("[Manager] Online peer seed failed")
	} else {
		m.presence.SeedOnline(online)
	}

	m.presence.StartHeartbeat(ctx, m.heartbeat, m.api.Heartbeat)

	logrus.WithField("user_id", id.UserID).Info("[Manager] Realtime session started")
	return nil
}

// Stop tears the session down: channel closed with an offline
// broadcast, every timer cancelled, caches cleared. Idempotent.
func (m *Manager) Stop(ctx context.Context) {
	m.teardown(ctx)
}

// OpenConversation selects a peer, loads its transcript and
// acknowledges unseen messages. A channel left disconnected after an
// exhausted reconnect budget is reopened here with a fresh generation;
// the transcript fetch proceeds either way since it is plain HTTP.
func (m *Manager) OpenConversation(ctx context.Context, peerID string) error {
	p := m.currentPipeline()
	if p == nil {
		return ErrNotConnected
	}
	if m.conn.Status() == chat.ChannelStatusDisconnected {
		if err := m.conn.Open(ctx); err != nil {
			logrus.WithError(err).Warn("[Manager] Channel reopen failed; conversation opens without live events")
		}
	}
	return p.OpenConversation(ctx, peerID)
}

// CloseConversation navigates away from the open peer.
func (m *Manager) CloseConversation() {
	if p := m.currentPipeline(); p != nil {
		p.CloseConversation()
	}
}

// SendMessage sends text to the open peer.
func (m *Manager) SendMessage(ctx context.Context, text string) (chat.Message, error) {
	p := m.currentPipeline()
	if p == nil {
		return chat.Message{}, ErrNotConnected
	}
	peer := p.OpenPeer()
	if peer == "" {
		return chat.Message{}, ErrNoOpenConversation
	}
	return p.Send(ctx, peer, text)
}

// Keystroke records local typing activity for the open conversation.
func (m *Manager) Keystroke() {
	m.typing.Keystroke()
}

// Conversations returns a snapshot of the recency-sorted peer list.
func (m *Manager) Conversations() []chat.PeerSummary {
	return m.cache.Snapshot()
}

// Transcript returns a snapshot of the open conversation.
func (m *Manager) Transcript() []chat.Message {
	if p := m.currentPipeline(); p != nil {
		return p.Transcript()
	}
	return nil
}

// PeerTyping reports whether the open peer is composing.
func (m *Manager) PeerTyping() bool {
	return m.typing.PeerTyping()
}

// Status reports the live channel state.
func (m *Manager) Status() chat.ChannelStatus {
	return m.conn.Status()
}

// Generation returns the current channel generation.
func (m *Manager) Generation() uint64 {
	return m.conn.Generation()
}

// Notifier exposes the permission surface to the embedding UI.
func (m *Manager) Notifier() *application.NotificationDispatcher {
	return m.notifier
}

// PoolStats reports event worker pool counters for the status surface.
func (m *Manager) PoolStats() evworker.PoolStats {
	m.mu.Lock()
	pool := m.pool
	m.mu.Unlock()
	if pool == nil {
		return evworker.PoolStats{}
	}
	return pool.GetStats()
}

func (m *Manager) currentPipeline() *application.MessagePipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}
	return m.pipeline
}

func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	pipeline := m.pipeline
	pool := m.pool
	m.pipeline = nil
	m.pool = nil
	m.mu.Unlock()

	m.conn.Close()
	m.typing.Teardown()
	m.presence.Teardown(ctx)
	if pipeline != nil {
		pipeline.Teardown(ctx)
	}
	m.cache.Invalidate()
	if pool != nil {
		pool.Stop()
	}

	logrus.Info("[Manager] Realtime session torn down")
}
