package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-chat/realtime/domain/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRecord is the persisted row behind GormTranscriptStore.
type MessageRecord struct {
	ID          string    `gorm:"primaryKey"`
	PeerID      string    `gorm:"index"`
	SenderID    string    `gorm:"index"`
	RecipientID string
	Text        string
	CreatedAt   time.Time
	Seen        bool
	Unsent      bool
}

func (MessageRecord) TableName() string {
	return "transcript_messages"
}

// GormTranscriptStore implements chat.TranscriptStore on a relational
// database so transcripts survive a process restart.
type GormTranscriptStore struct {
	db     *gorm.DB
	selfID string
}

func NewGormTranscriptStore(db *gorm.DB, selfID string) *GormTranscriptStore {
	return &GormTranscriptStore{db: db, selfID: selfID}
}

// AutoMigrate ensures the table exists.
func (s *GormTranscriptStore) AutoMigrate() error {
	return s.db.AutoMigrate(&MessageRecord{})
}

func (s *GormTranscriptStore) Append(ctx context.Context, msg chat.Message) error {
	record := s.toRecord(msg)
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&record).Error
}

func (s *GormTranscriptStore) Replace(ctx context.Context, peerID string, msgs []chat.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("peer_id = ?", peerID).Delete(&MessageRecord{}).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		records := make([]MessageRecord, 0, len(msgs))
		for _, m := range msgs {
			records = append(records, s.toRecord(m))
		}
		return tx.Create(&records).Error
	})
}

func (s *GormTranscriptStore) List(ctx context.Context, peerID string) ([]chat.Message, error) {
	var records []MessageRecord
	err := s.db.WithContext(ctx).
		Where("peer_id = ?", peerID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	msgs := make([]chat.Message, 0, len(records))
	for _, r := range records {
		msgs = append(msgs, chat.Message{
			ID:          r.ID,
			SenderID:    r.SenderID,
			RecipientID: r.RecipientID,
			Text:        r.Text,
			CreatedAt:   r.CreatedAt,
			Seen:        r.Seen,
			Unsent:      r.Unsent,
		})
	}
	return msgs, nil
}

func (s *GormTranscriptStore) MarkSeen(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).
		Model(&MessageRecord{}).
		Where("id = ?", messageID).
		Update("seen", true).Error
}

func (s *GormTranscriptStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&MessageRecord{}).Error
}

func (s *GormTranscriptStore) toRecord(msg chat.Message) MessageRecord {
	return MessageRecord{
		ID:          msg.ID,
		PeerID:      msg.PeerOf(s.selfID),
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Text:        msg.Text,
		CreatedAt:   msg.CreatedAt,
		Seen:        msg.Seen,
		Unsent:      msg.Unsent,
	}
}
