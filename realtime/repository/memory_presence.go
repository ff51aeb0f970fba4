package repository

import (
	"context"
	"sync"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
)

// MemoryPresenceStore implements chat.PresenceStore in process memory.
// This is the default store; presence only needs to survive as long as
// the session.
type MemoryPresenceStore struct {
	mu    sync.RWMutex
	peers map[string]chat.PeerPresence
}

func NewMemoryPresenceStore() *MemoryPresenceStore {
	return &MemoryPresenceStore{
		peers: make(map[string]chat.PeerPresence),
	}
}

func (s *MemoryPresenceStore) Save(ctx context.Context, presence *chat.PeerPresence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[presence.PeerID] = *presence
	return nil
}

func (s *MemoryPresenceStore) Get(ctx context.Context, peerID string) (*chat.PeerPresence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryPresenceStore) Delete(ctx context.Context, peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.peers, peerID)
	return nil
}

func (s *MemoryPresenceStore) GetAll(ctx context.Context) ([]*chat.PeerPresence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chat.PeerPresence, 0, len(s.peers))
	for _, p := range s.peers {
		copy := p
		out = append(out, &copy)
	}
	return out, nil
}

func (s *MemoryPresenceStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = make(map[string]chat.PeerPresence)
	return nil
}
