package application

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"github.com/stretchr/testify/assert"
)

// fakePresenceStore is an in-memory chat.PresenceStore for timer tests.
type fakePresenceStore struct {
	mu    sync.Mutex
	peers map[string]chat.PeerPresence
}

func newFakePresenceStore() *fakePresenceStore {
	return &fakePresenceStore{peers: make(map[string]chat.PeerPresence)}
}

func (s *fakePresenceStore) Save(ctx context.Context, p *chat.PeerPresence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.PeerID] = *p
	return nil
}

func (s *fakePresenceStore) Get(ctx context.Context, peerID string) (*chat.PeerPresence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[peerID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *fakePresenceStore) Delete(ctx context.Context, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peerID)
	return nil
}

func (s *fakePresenceStore) GetAll(ctx context.Context) ([]*chat.PeerPresence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*chat.PeerPresence, 0, len(s.peers))
	for _, p := range s.peers {
		copy := p
		out = append(out, &copy)
	}
	return out, nil
}

func (s *fakePresenceStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = make(map[string]chat.PeerPresence)
	return nil
}

func (s *fakePresenceStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// changeRecorder captures OnChange transitions in order.
type changeRecorder struct {
	mu      sync.Mutex
	changes []bool
}

func (r *changeRecorder) record(_ string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, online)
}

func (r *changeRecorder) all() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.changes))
	copy(out, r.changes)
	return out
}

// Test_PresenceRegistry_OnlineCancelsGrace verifies that a fresh online
// signal during the offline grace window prevents the offline flip.
func Test_PresenceRegistry_OnlineCancelsGrace(t *testing.T) {
	store := newFakePresenceStore()
	rec := &changeRecorder{}
	r := NewPresenceTimerRegistry(store, 500*time.Millisecond, 40*time.Millisecond)
	r.OnChange = rec.record

	r.MarkOnline("peer_1")
	r.MarkOffline("peer_1")
	r.MarkOnline("peer_1") // reconnect blip resolved within grace

	time.Sleep(100 * time.Millisecond)

	assert.True(t, r.Online(context.Background(), "peer_1"))
	assert.Equal(t, []bool{true}, rec.all(), "offline flip must never commit")
}

// Test_PresenceRegistry_OfflineAfterGrace verifies the flip lands once
// the grace window elapses undisturbed.
func Test_PresenceRegistry_OfflineAfterGrace(t *testing.T) {
	store := newFakePresenceStore()
	rec := &changeRecorder{}
	r := NewPresenceTimerRegistry(store, 500*time.Millisecond, 30*time.Millisecond)
	r.OnChange = rec.record

	r.MarkOnline("peer_1")
	r.MarkOffline("peer_1")

	time.Sleep(80 * time.Millisecond)

	assert.False(t, r.Online(context.Background(), "peer_1"))
	assert.Equal(t, []bool{true, false}, rec.all())
}

// Test_PresenceRegistry_ExpiryFlipsOffline covers inferred liveness:
// online with expiry degrades to offline without any explicit signal.
func Test_PresenceRegistry_ExpiryFlipsOffline(t *testing.T) {
	store := newFakePresenceStore()
	r := NewPresenceTimerRegistry(store, 40*time.Millisecond, 500*time.Millisecond)

	r.MarkOnlineWithExpiry("peer_2")
	assert.True(t, r.Online(context.Background(), "peer_2"))

	time.Sleep(100 * time.Millisecond)

	assert.False(t, r.Online(context.Background(), "peer_2"))
}

// Test_PresenceRegistry_ExplicitOnlineCancelsExpiry verifies an explicit
// presence signal supersedes the pending expiry timer.
func Test_PresenceRegistry_ExplicitOnlineCancelsExpiry(t *testing.T) {
	store := newFakePresenceStore()
	r := NewPresenceTimerRegistry(store, 40*time.Millisecond, 500*time.Millisecond)

	r.MarkOnlineWithExpiry("peer_3")
	r.MarkOnline("peer_3")

	time.Sleep(100 * time.Millisecond)

	assert.True(t, r.Online(context.Background(), "peer_3"))
}

// Test_PresenceRegistry_TeardownCancelsEverything verifies that no timer
// fires after teardown and the store is emptied.
func Test_PresenceRegistry_TeardownCancelsEverything(t *testing.T) {
	store := newFakePresenceStore()
	rec := &changeRecorder{}
	r := NewPresenceTimerRegistry(store, 40*time.Millisecond, 40*time.Millisecond)
	r.OnChange = rec.record

	r.MarkOnlineWithExpiry("peer_a")
	r.MarkOnline("peer_b")
	r.MarkOffline("peer_b")

	r.Teardown(context.Background())
	before := len(rec.all())

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, store.count(), "store must be cleared")
	assert.Equal(t, before, len(rec.all()), "no change may fire after teardown")

	// Signals after teardown are ignored until Reset
	r.MarkOnline("peer_c")
	assert.False(t, r.Online(context.Background(), "peer_c"))

	r.Reset()
	r.MarkOnline("peer_c")
	assert.True(t, r.Online(context.Background(), "peer_c"))
}

// Test_PresenceRegistry_HeartbeatLoop verifies the periodic ping and its
// cancellation on teardown.
func Test_PresenceRegistry_HeartbeatLoop(t *testing.T) {
	store := newFakePresenceStore()
	r := NewPresenceTimerRegistry(store, 0, 0)

	var pings int64
	r.StartHeartbeat(context.Background(), 15*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt64(&pings, 1)
		return nil
	})

	time.Sleep(80 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt64(&pings), int64(2))

	r.Teardown(context.Background())
	stopped := atomic.LoadInt64(&pings)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt64(&pings), "heartbeat must stop on teardown")
}
