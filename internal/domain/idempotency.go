package domain

import "time"

const (
	// MaxIdempotencyKeyLen bounds Idempotency-Key headers.
	MaxIdempotencyKeyLen = 200
	// MaxTempIDLen bounds client tempIds, which double as idempotency keys.
	MaxTempIDLen = 64
)

// Idempotency records the message produced by a previously accepted send,
// keyed by (user_id, chat_id, key). The key is either the client tempId of a
// realtime send or the Idempotency-Key header of the HTTP fallback, so a
// redelivered send returns the originally stored message instead of
// inserting a duplicate.
type Idempotency struct {
	ID        string    `gorm:"type:char(36);primaryKey"`
	UserID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_chat_key,priority:1"`
	ChatID    string    `gorm:"type:char(36);not null;uniqueIndex:ux_user_chat_key,priority:2"`
	Key       string    `gorm:"type:varchar(200);not null;uniqueIndex:ux_user_chat_key,priority:3"`
	MessageID string    `gorm:"type:char(36);not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
