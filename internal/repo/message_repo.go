package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/utils"
)

// CreateMessage inserts a new message row. CreatedAt is truncated to
// microseconds so it survives a round trip through every supported driver
// and stays usable as a pagination cursor.
func CreateMessage(ctx context.Context, db *gorm.DB, chatID, senderID, content string) (*domain.Message, error) {
	m := &domain.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessagesBefore returns up to limit messages of a chat, newest first,
// strictly older than the cursor (or the newest ones when cursor is nil).
// Ordering is (created_at DESC, id DESC) so ties are deterministic.
func ListMessagesBefore(ctx context.Context, db *gorm.DB, chatID string, cursor *utils.Cursor, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).Where("chat_id = ?", chatID)
	if cursor != nil {
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Message
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

// LastMessage returns the newest message of a chat, or nil when it is empty.
func LastMessage(ctx context.Context, db *gorm.DB, chatID string) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
