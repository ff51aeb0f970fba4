package repository

import (
	"context"
	"sync"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
)

// MemoryTranscriptStore implements chat.TranscriptStore in process
// memory, keyed by peer id. selfID lets it derive the peer from a
// message's sender/recipient pair.
type MemoryTranscriptStore struct {
	selfID string

	mu          sync.RWMutex
	transcripts map[string][]chat.Message
	byMessageID map[string]string // message id -> peer id
}

func NewMemoryTranscriptStore(selfID string) *MemoryTranscriptStore {
	return &MemoryTranscriptStore{
		selfID:      selfID,
		transcripts: make(map[string][]chat.Message),
		byMessageID: make(map[string]string),
	}
}

func (s *MemoryTranscriptStore) Append(ctx context.Context, msg chat.Message) error {
	peerID := msg.PeerOf(s.selfID)

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.transcripts[peerID]
	for i := range list {
		if list[i].ID == msg.ID {
			list[i] = msg
			return nil
		}
	}
	s.transcripts[peerID] = append(list, msg)
	s.byMessageID[msg.ID] = peerID
	return nil
}

func (s *MemoryTranscriptStore) Replace(ctx context.Context, peerID string, msgs []chat.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, old := range s.transcripts[peerID] {
		delete(s.byMessageID, old.ID)
	}
	list := make([]chat.Message, len(msgs))
	copy(list, msgs)
	s.transcripts[peerID] = list
	for _, m := range list {
		s.byMessageID[m.ID] = peerID
	}
	return nil
}

func (s *MemoryTranscriptStore) List(ctx context.Context, peerID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.transcripts[peerID]
	out := make([]chat.Message, len(list))
	copy(out, list)
	return out, nil
}

func (s *MemoryTranscriptStore) MarkSeen(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	peerID, ok := s.byMessageID[messageID]
	if !ok {
		return nil
	}
	list := s.transcripts[peerID]
	for i := range list {
		if list[i].ID == messageID {
			list[i].MarkSeen()
			return nil
		}
	}
	return nil
}

func (s *MemoryTranscriptStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts = make(map[string][]chat.Message)
	s.byMessageID = make(map[string]string)
	return nil
}
