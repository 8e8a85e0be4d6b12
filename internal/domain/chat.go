package domain

import "time"

// Chat is the conversation created exactly once when a MatchRequest is
// accepted (MatchID is unique). It is owned jointly by the two matched
// travelers and is cascade-deleted with its request.
type Chat struct {
	ID            string     `json:"id"            gorm:"type:char(36);primaryKey"`
	MatchID       string     `json:"matchId"       gorm:"type:char(36);not null;uniqueIndex:ux_chat_match"`
	LastMessageAt *time.Time `json:"lastMessageAt" gorm:"index"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	Match MatchRequest `json:"-" gorm:"foreignKey:MatchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// ChatRead is a participant's read marker. Messages from the other
// participant created after LastReadAt count as unread.
type ChatRead struct {
	ChatID     string    `gorm:"type:char(36);primaryKey"`
	UserID     string    `gorm:"type:char(36);primaryKey"`
	LastReadAt time.Time `gorm:"not null"`

	Chat Chat `gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ChatRead.
func (ChatRead) TableName() string { return "chat_reads" }

// Message is a single chat line. TempID is never persisted: it is echoed
// back on the confirmation of a client-originated send so the client can
// replace its optimistic entry.
//
// The (created_at, id) index backs keyset pagination.
type Message struct {
	ID        string    `json:"id"               gorm:"type:char(36);primaryKey"`
	ChatID    string    `json:"chatId"           gorm:"type:char(36);not null;index:idx_chat_msgs,priority:1"`
	SenderID  string    `json:"senderId"         gorm:"type:char(36);not null"`
	Content   string    `json:"content"          gorm:"type:text;not null"`
	CreatedAt time.Time `json:"createdAt"        gorm:"index:idx_chat_msgs,priority:2"`
	TempID    string    `json:"tempId,omitempty" gorm:"-"`

	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
