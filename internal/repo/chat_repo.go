package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// CreateChat inserts the chat for an accepted match. It returns ErrDuplicate
// if the match already has one.
func CreateChat(ctx context.Context, db *gorm.DB, matchID string) (*domain.Chat, error) {
	now := time.Now().UTC()
	c := &domain.Chat{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return c, nil
}

// GetChat fetches a chat with its match, or ErrNotFound.
func GetChat(ctx context.Context, db *gorm.DB, id string) (*domain.Chat, error) {
	var c domain.Chat
	err := db.WithContext(ctx).
		Preload("Match").
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChatByMatch fetches the chat created for a match, or ErrNotFound.
func GetChatByMatch(ctx context.Context, db *gorm.DB, matchID string) (*domain.Chat, error) {
	var c domain.Chat
	if err := db.WithContext(ctx).Where("match_id = ?", matchID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func chatsForJourney(db *gorm.DB, journeyID string) *gorm.DB {
	return db.Model(&domain.Chat{}).
		Joins("JOIN match_requests ON match_requests.id = chats.match_id").
		Where("match_requests.sender_journey_id = ? OR match_requests.receiver_journey_id = ?", journeyID, journeyID)
}

// ListChatsForJourney returns every chat whose match involves journeyID on
// either side, most recently active first.
func ListChatsForJourney(ctx context.Context, db *gorm.DB, journeyID string) ([]domain.Chat, error) {
	var out []domain.Chat
	err := chatsForJourney(db.WithContext(ctx), journeyID).
		Preload("Match").
		Order("COALESCE(chats.last_message_at, chats.created_at) DESC, chats.id ASC").
		Find(&out).Error
	return out, err
}

// TouchChat records activity on a chat at the given instant.
func TouchChat(ctx context.Context, db *gorm.DB, chatID string, at time.Time, newMessage bool) error {
	updates := map[string]any{"updated_at": at.UTC()}
	if newMessage {
		updates["last_message_at"] = at.UTC()
	}
	res := db.WithContext(ctx).Model(&domain.Chat{}).Where("id = ?", chatID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkChatRead upserts the viewer's read marker.
func MarkChatRead(ctx context.Context, db *gorm.DB, chatID, userID string, at time.Time) error {
	row := &domain.ChatRead{ChatID: chatID, UserID: userID, LastReadAt: at.UTC()}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
		}).
		Create(row).Error
}

// LastReadAt returns the viewer's read marker, or nil if they never read.
func LastReadAt(ctx context.Context, db *gorm.DB, chatID, userID string) (*time.Time, error) {
	var r domain.ChatRead
	err := db.WithContext(ctx).Where("chat_id = ? AND user_id = ?", chatID, userID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r.LastReadAt, nil
}

// CountUnread counts messages in a chat sent by someone other than viewerID
// after the viewer's read marker.
func CountUnread(ctx context.Context, db *gorm.DB, chatID, viewerID string) (int64, error) {
	since, err := LastReadAt(ctx, db, chatID, viewerID)
	if err != nil {
		return 0, err
	}
	q := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("chat_id = ? AND sender_id <> ?", chatID, viewerID)
	if since != nil {
		q = q.Where("created_at > ?", *since)
	}
	var n int64
	err = q.Count(&n).Error
	return n, err
}
