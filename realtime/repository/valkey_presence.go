package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AzielCF/az-chat/infrastructure/valkey"
	"github.com/AzielCF/az-chat/realtime/domain/chat"
)

// ValkeyPresenceStore implements chat.PresenceStore on Valkey, for
// deployments where several runner instances share one presence view.
// Entries carry a TTL aligned with the presence expiry window, so a
// writer that dies without tearing down leaves no stale online flags:
// its peers simply age out of the keyspace.
type ValkeyPresenceStore struct {
	client *valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyPresenceStore keys entries under <prefix>presence:<peerID>.
// A zero ttl stores entries without expiry.
func NewValkeyPresenceStore(client *valkey.Client, ttl time.Duration) *ValkeyPresenceStore {
	return &ValkeyPresenceStore{
		client: client,
		prefix: client.Key("presence") + ":",
		ttl:    ttl,
	}
}

func (s *ValkeyPresenceStore) Save(ctx context.Context, presence *chat.PeerPresence) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}

	inner := s.client.Inner()
	set := inner.B().Set().Key(s.prefix + presence.PeerID).Value(string(data))
	if s.ttl > 0 {
		err = inner.Do(ctx, set.Ex(s.ttl).Build()).Error()
	} else {
		err = inner.Do(ctx, set.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("save presence to valkey: %w", err)
	}
	return nil
}

func (s *ValkeyPresenceStore) Get(ctx context.Context, peerID string) (*chat.PeerPresence, error) {
	inner := s.client.Inner()
	data, err := inner.Do(ctx, inner.B().Get().Key(s.prefix+peerID).Build()).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get presence from valkey: %w", err)
	}

	var presence chat.PeerPresence
	if err := json.Unmarshal(data, &presence); err != nil {
		return nil, fmt.Errorf("unmarshal presence: %w", err)
	}
	return &presence, nil
}

func (s *ValkeyPresenceStore) Delete(ctx context.Context, peerID string) error {
	inner := s.client.Inner()
	return inner.Do(ctx, inner.B().Del().Key(s.prefix+peerID).Build()).Error()
}

func (s *ValkeyPresenceStore) GetAll(ctx context.Context) ([]*chat.PeerPresence, error) {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	inner := s.client.Inner()
	values, err := inner.Do(ctx, inner.B().Mget().Key(keys...).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("mget presences: %w", err)
	}

	presences := make([]*chat.PeerPresence, 0, len(values))
	for _, val := range values {
		if val == "" {
			// Key expired between SCAN and MGET.
			continue
		}
		var p chat.PeerPresence
		if err := json.Unmarshal([]byte(val), &p); err == nil {
			presences = append(presences, &p)
		}
	}
	return presences, nil
}

func (s *ValkeyPresenceStore) Clear(ctx context.Context) error {
	keys, err := s.scanKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	inner := s.client.Inner()
	if err := inner.Do(ctx, inner.B().Del().Key(keys...).Build()).Error(); err != nil {
		return fmt.Errorf("delete presence keys: %w", err)
	}
	return nil
}

// scanKeys walks the presence keyspace with SCAN so a large directory
// never blocks the server the way KEYS would.
func (s *ValkeyPresenceStore) scanKeys(ctx context.Context) ([]string, error) {
	inner := s.client.Inner()
	var keys []string
	var cursor uint64

	for {
		cmd := inner.B().Scan().Cursor(cursor).Match(s.prefix + "*").Count(100).Build()
		result, err := inner.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("scan presence keys: %w", err)
		}
		keys = append(keys, result.Elements...)
		cursor = result.Cursor
		if cursor == 0 {
			return keys, nil
		}
	}
}
