package repo

import (
	"context"
	"errors"

	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkhv/tg-monitor/internal/domain"
)

// CheckpointGet returns the last processed message marker for a chat, or
// ErrNotFound when the chat has never been processed.
func CheckpointGet(ctx context.Context, db *gorm.DB, chatID int64) (*domain.ChannelCheckpoint, error) {
	var cp domain.ChannelCheckpoint
	err := db.WithContext(ctx).First(&cp, "chat_id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// CheckpointUpsert inserts or updates the marker for a chat.
func CheckpointUpsert(ctx context.Context, db *gorm.DB, chatID, lastMessageID int64, lastMessageDate *time.Time) error {
	cp := domain.ChannelCheckpoint{
		ChatID:          chatID,
		LastMessageID:   lastMessageID,
		LastMessageDate: lastMessageDate,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_message_id", "last_message_date", "updated_at"}),
	}).Create(&cp).Error
}
