package services

import "github.com/tbourn/go-layover-backend/internal/domain"

// NotificationType tags out-of-band notifications.
type NotificationType string

const (
	NotifyNewMessage NotificationType = "NEW_MESSAGE"
	NotifyRequest    NotificationType = "REQUEST"
)

// Notification is pushed to a traveler who is not currently looking at the
// conversation or request it refers to.
type Notification struct {
	Type       NotificationType `json:"type"`
	ChatID     string           `json:"chatId,omitempty"`
	MessageID  string           `json:"messageId,omitempty"`
	SenderID   string           `json:"senderId,omitempty"`
	SenderName string           `json:"senderName,omitempty"`
	RequestID  string           `json:"requestId,omitempty"`
	Message    *domain.Message  `json:"message,omitempty"`
}

// Publisher fans service events out to connected clients. The realtime hub
// implements it; services never block on delivery.
type Publisher interface {
	// PublishMessage delivers a persisted message to everyone in the chat
	// room and notifies participants who are not in the room.
	PublishMessage(msg domain.Message, participants []string, senderName string)
	// Notify delivers a notification to every connection of userID.
	Notify(userID string, n Notification)
}

type nopPublisher struct{}

func (nopPublisher) PublishMessage(domain.Message, []string, string) {}
func (nopPublisher) Notify(string, Notification)                     {}

func publisherOrNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}
