package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// ChatsStats returns how many chats journeyID takes part in and the newest
// chats.updated_at among them. Chats are touched on every message and read
// marker, so the pair moves whenever a chat summary would. No chats gives
// (0, nil).
func ChatsStats(ctx context.Context, db *gorm.DB, journeyID string) (int64, *time.Time, error) {
	return countAndLatest(chatsForJourney(db.WithContext(ctx), journeyID), "chats.updated_at")
}

// MessagesStats returns how many messages chatID holds and the newest
// created_at. An empty chat gives (0, nil).
func MessagesStats(ctx context.Context, db *gorm.DB, chatID string) (int64, *time.Time, error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("chat_id = ?", chatID)
	return countAndLatest(q, "created_at")
}

// countAndLatest reads the newest value of column by ordering rather than
// MAX(), which SQLite hands back as TEXT.
func countAndLatest(q *gorm.DB, column string) (int64, *time.Time, error) {
	var n int64
	if err := q.Session(&gorm.Session{}).Count(&n).Error; err != nil {
		return 0, nil, err
	}
	if n == 0 {
		return 0, nil, nil
	}
	var latest []time.Time
	err := q.Session(&gorm.Session{}).
		Order(column+" DESC").
		Limit(1).
		Pluck(column, &latest).Error
	if err != nil {
		return 0, nil, err
	}
	if len(latest) == 0 {
		return n, nil, nil
	}
	return n, &latest[0], nil
}
