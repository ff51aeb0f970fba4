package application

import (
	"sort"
	"sync"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
)

// ConversationCache is the single writer of the recency-sorted peer
// list behind the conversation view. It merges three update sources:
// the bulk directory fetch, live channel events and local sends. Every
// merge is atomic under the cache lock and re-establishes the sort
// invariant before returning; readers only ever get snapshots.
type ConversationCache struct {
	mu    sync.RWMutex
	peers []*chat.PeerSummary
	index map[string]int
}

func NewConversationCache() *ConversationCache {
	return &ConversationCache{
		index: make(map[string]int),
	}
}

// ApplyBulkFetch replaces the cache wholesale with the directory
// result, sorted by recency.
func (c *ConversationCache) ApplyBulkFetch(list []chat.PeerSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.peers = make([]*chat.PeerSummary, 0, len(list))
	for i := range list {
		p := list[i]
		c.peers = append(c.peers, &p)
	}
	c.resortLocked()
}

// ApplyLiveUpdate merges a partial update into the matching entry and
// re-sorts. An update for a peer not in cache is a no-op merge and
// returns false.
func (c *ConversationCache) ApplyLiveUpdate(peerID string, patch chat.PeerPatch) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[peerID]
	if !ok {
		return false
	}
	patch.Apply(c.peers[i], time.Now())
	c.resortLocked()
	return true
}

// Upsert merges the patch into an existing entry, or inserts a fresh
// one built from the summary when the peer is unknown. Covers the first
// message from a brand-new match arriving before any directory fetch.
func (c *ConversationCache) Upsert(summary chat.PeerSummary, patch chat.PeerPatch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if i, ok := c.index[summary.ID]; ok {
		patch.Apply(c.peers[i], now)
	} else {
		p := summary
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		patch.Apply(&p, now)
		c.peers = append(c.peers, &p)
	}
	c.resortLocked()
}

// Get returns a copy of the cached entry for a peer.
func (c *ConversationCache) Get(peerID string) (chat.PeerSummary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[peerID]
	if !ok {
		return chat.PeerSummary{}, false
	}
	return *c.peers[i], true
}

// Snapshot returns a copy of the full list in recency order.
func (c *ConversationCache) Snapshot() []chat.PeerSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]chat.PeerSummary, len(c.peers))
	for i, p := range c.peers {
		out[i] = *p
	}
	return out
}

// Len returns the number of cached conversations.
func (c *ConversationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers)
}

// Invalidate clears the cache; the next bulk fetch repopulates it.
func (c *ConversationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers = nil
	c.index = make(map[string]int)
}

// resortLocked re-establishes descending recency order and rebuilds the
// id index. Stable so that equal-recency entries keep their relative
// order across merges.
func (c *ConversationCache) resortLocked() {
	sort.SliceStable(c.peers, func(i, j int) bool {
		return c.peers[i].Recency().After(c.peers[j].Recency())
	})
	c.index = make(map[string]int, len(c.peers))
	for i, p := range c.peers {
		c.index[p.ID] = i
	}
}
