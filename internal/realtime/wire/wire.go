// Package wire defines the JSON frames exchanged over the realtime
// WebSocket. Every frame is an Envelope whose Data is the payload for Type.
package wire

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
)

// Server to client events.
const (
	EventNewMessage   = "new_message"
	EventError        = "error"
	EventNotification = "notification"
)

// Error codes carried by EventError.
const (
	CodeBadRequest   = "bad_request"
	CodeNotFound     = "not_found"
	CodeEmptyContent = "empty_content"
	CodeTooLong      = "too_long"
	CodeInternal     = "internal"
)

// Envelope is one frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChatRef is the payload of join_chat and leave_chat.
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// SendMessage is the payload of send_message.
type SendMessage struct {
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
	TempID  string `json:"tempId"`
}

// Message is the payload of new_message. TempID is set only on the
// confirmation of a send that carried one.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	TempID    string    `json:"tempId,omitempty"`
}

// Error is the payload of error. TempID identifies the failed send, if any.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TempID  string `json:"tempId,omitempty"`
}

// Notification is the payload of notification.
type Notification struct {
	Type       string   `json:"type"`
	ChatID     string   `json:"chatId,omitempty"`
	MessageID  string   `json:"messageId,omitempty"`
	SenderID   string   `json:"senderId,omitempty"`
	SenderName string   `json:"senderName,omitempty"`
	RequestID  string   `json:"requestId,omitempty"`
	Message    *Message `json:"message,omitempty"`
}

// Encode marshals a frame of the given type.
func Encode(typ string, payload any) ([]byte, error) {
	env := Envelope{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

// Decode unmarshals a frame. Use DecodeData for its payload.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(frame, &env)
	return env, err
}

// DecodeData unmarshals the payload of env into v.
func DecodeData(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(env.Data, v)
}
