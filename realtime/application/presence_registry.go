package application

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPresenceExpiry is how long an inferred online state lives
	// without a refresh, based on the expected heartbeat cadence.
	DefaultPresenceExpiry = 35 * time.Second

	// DefaultOfflineGrace smooths over rapid reconnect blips before an
	// offline flip is committed.
	DefaultOfflineGrace = 5 * time.Second

	// DefaultHeartbeatInterval is the cadence of our own liveness ping.
	DefaultHeartbeatInterval = 30 * time.Second
)

// PresenceTimerRegistry converts presence and heartbeat signals into a
// stable per-peer online/offline view. At most one expiry timer and one
// grace timer exist per peer; a fresh online signal cancels both.
type PresenceTimerRegistry struct {
	store chat.PresenceStore

	expiry       time.Duration
	offlineGrace time.Duration

	mu           sync.Mutex
	expiryTimers map[string]*time.Timer
	graceTimers  map[string]*time.Timer
	torndown     bool

	heartbeatMu     sync.Mutex
	heartbeatCancel context.CancelFunc

	// OnChange fires after a peer's committed online flag changes.
	OnChange func(peerID string, online bool)
}

func NewPresenceTimerRegistry(store chat.PresenceStore, expiry, offlineGrace time.Duration) *PresenceTimerRegistry {
	if expiry <= 0 {
		expiry = DefaultPresenceExpiry
	}
	if offlineGrace <= 0 {
		offlineGrace = DefaultOfflineGrace
	}
	return &PresenceTimerRegistry{
		store:        store,
		expiry:       expiry,
		offlineGrace: offlineGrace,
		expiryTimers: make(map[string]*time.Timer),
		graceTimers:  make(map[string]*time.Timer),
	}
}

// MarkOnline sets the peer online and cancels any pending expiry or
// grace timer for it.
func (r *PresenceTimerRegistry) MarkOnline(peerID string) {
	r.mu.Lock()
	if r.torndown {
		r.mu.Unlock()
		return
	}
	r.cancelTimersLocked(peerID)
	r.mu.Unlock()

	r.commit(peerID, true)
}

// MarkOnlineWithExpiry sets the peer online and schedules an expiry
// flip to offline, used when liveness is implied (an inbound message)
// but no explicit offline signal is expected soon.
func (r *PresenceTimerRegistry) MarkOnlineWithExpiry(peerID string) {
	r.mu.Lock()
	if r.torndown {
		r.mu.Unlock()
		return
	}
	r.cancelTimersLocked(peerID)
	r.expiryTimers[peerID] = time.AfterFunc(r.expiry, func() {
		r.mu.Lock()
		if r.torndown {
			r.mu.Unlock()
			return
		}
		delete(r.expiryTimers, peerID)
		r.mu.Unlock()

		logrus.WithField("peer_id", peerID).Debug("[PresenceRegistry] Presence expired, flipping offline")
		r.commit(peerID, false)
	})
	r.mu.Unlock()

	r.commit(peerID, true)
}

// MarkOffline schedules the offline flip behind a short grace period.
// A fresh online signal for the peer during the window cancels it.
func (r *PresenceTimerRegistry) MarkOffline(peerID string) {
	r.mu.Lock()
	if r.torndown {
		r.mu.Unlock()
		return
	}
	if _, pending := r.graceTimers[peerID]; pending {
		r.mu.Unlock()
		return
	}
	r.graceTimers[peerID] = time.AfterFunc(r.offlineGrace, func() {
		r.mu.Lock()
		if r.torndown {
			r.mu.Unlock()
			return
		}
		delete(r.graceTimers, peerID)
		r.mu.Unlock()

		r.commit(peerID, false)
	})
	r.mu.Unlock()
}

// SeedOnline bulk-marks peers online from the session-start directory
// fetch, without scheduling any timers.
func (r *PresenceTimerRegistry) SeedOnline(peerIDs []string) {
	for _, id := range peerIDs {
		r.MarkOnline(id)
	}
}

// Online reports the committed view for a peer.
func (r *PresenceTimerRegistry) Online(ctx context.Context, peerID string) bool {
	p, err := r.store.Get(ctx, peerID)
	if err != nil || p == nil {
		return false
	}
	return p.Online
}

// StartHeartbeat emits our own liveness signal on a fixed interval for
// as long as the session exists. Failures are swallowed; the ping is
// best-effort.
func (r *PresenceTimerRegistry) StartHeartbeat(ctx context.Context, interval time.Duration, ping func(context.Context) error) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	r.heartbeatMu.Lock()
	if r.heartbeatCancel != nil {
		r.heartbeatCancel()
	}
	hbCtx, cancel := context.WithCancel(ctx)
	r.heartbeatCancel = cancel
	r.heartbeatMu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := ping(hbCtx); err != nil {
					logrus.WithError(err).Debug("[PresenceRegistry] Heartbeat failed")
				}
			}
		}
	}()
}

// Teardown cancels every outstanding timer and the heartbeat loop, and
// clears the store. No timer fires after Teardown returns.
func (r *PresenceTimerRegistry) Teardown(ctx context.Context) {
	r.mu.Lock()
	r.torndown = true
	for id, t := range r.expiryTimers {
		t.Stop()
		delete(r.expiryTimers, id)
	}
	for id, t := range r.graceTimers {
		t.Stop()
		delete(r.graceTimers, id)
	}
	r.mu.Unlock()

	r.heartbeatMu.Lock()
	if r.heartbeatCancel != nil {
		r.heartbeatCancel()
		r.heartbeatCancel = nil
	}
	r.heartbeatMu.Unlock()

	if err := r.store.Clear(ctx); err != nil {
		logrus.WithError(err).Warn("[PresenceRegistry] Failed to clear presence store")
	}
}

// Reset re-arms a torn-down registry for a fresh session.
func (r *PresenceTimerRegistry) Reset() {
	r.mu.Lock()
	r.torndown = false
	r.mu.Unlock()
}

func (r *PresenceTimerRegistry) cancelTimersLocked(peerID string) {
	if t, ok := r.expiryTimers[peerID]; ok {
		t.Stop()
		delete(r.expiryTimers, peerID)
	}
	if t, ok := r.graceTimers[peerID]; ok {
		t.Stop()
		delete(r.graceTimers, peerID)
	}
}

// commit persists the flag and notifies the change hook when the
// committed value actually changed.
func (r *PresenceTimerRegistry) commit(peerID string, online bool) {
	ctx := context.Background()

	prev, _ := r.store.Get(ctx, peerID)
	changed := prev == nil || prev.Online != online

	p := &chat.PeerPresence{PeerID: peerID, Online: online}
	if online {
		p.LastSeen = time.Now()
	} else if prev != nil {
		p.LastSeen = prev.LastSeen
	}
	if err := r.store.Save(ctx, p); err != nil {
		logrus.WithError(err).WithField("peer_id", peerID).Warn("[PresenceRegistry] Failed to save presence")
		return
	}

	if changed && r.OnChange != nil {
		r.OnChange(peerID, online)
	}
}
