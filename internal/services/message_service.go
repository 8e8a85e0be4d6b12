// Package services – MessageService
//
// MessageService owns the lifecycle of chat messages: validation, idempotent
// persistence, cursor pagination and fan-out to connected participants.
//
// A send carries an optional idempotency key (the client tempId of a
// realtime send, or the Idempotency-Key header of the HTTP fallback). A
// redelivered send with the same key returns the stored message instead of
// inserting a duplicate and is not broadcast again.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include chat/user identifiers and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/observability"
	"github.com/tbourn/go-layover-backend/internal/repo"
	"github.com/tbourn/go-layover-backend/internal/utils"
)

const (
	// DefaultPageSize is the message page size when the caller sends none.
	DefaultPageSize = 30
	// MaxPageSize bounds a single message page.
	MaxPageSize = 100

	defaultMaxRunes       = 2000
	defaultIdempotencyTTL = 24 * time.Hour
)

// Transports a message can arrive on.
const (
	TransportRealtime = "ws"
	TransportHTTP     = "http"
)

// SendInput is one message send.
type SendInput struct {
	UserID  string
	ChatID  string
	Content string
	// TempID is echoed back on the stored message.
	TempID string
	// Key deduplicates redelivered sends. When empty, TempID is used.
	Key       string
	Transport string
}

// SendResult is the stored message and whether it was a replay of an earlier
// send with the same key.
type SendResult struct {
	Message  *domain.Message
	Replayed bool
}

// MessagePage is one page of a chat's history, newest first. NextCursor is
// empty when there is nothing older.
type MessagePage struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// MessageService coordinates message persistence and delivery.
type MessageService struct {
	DB        *gorm.DB
	Publisher Publisher
	Metrics   *observability.Metrics
	Log       zerolog.Logger

	MaxRunes       int
	IdempotencyTTL time.Duration
}

// NewMessageService constructs a MessageService. A nil publisher drops
// events.
func NewMessageService(db *gorm.DB, p Publisher, m *observability.Metrics, log zerolog.Logger) *MessageService {
	return &MessageService{
		DB:             db,
		Publisher:      publisherOrNop(p),
		Metrics:        m,
		Log:            log.With().Str("component", "messages").Logger(),
		MaxRunes:       defaultMaxRunes,
		IdempotencyTTL: defaultIdempotencyTTL,
	}
}

var errReplay = errors.New("idempotent replay")

// Send validates and stores a message, then publishes it to the chat's
// participants.
func (s *MessageService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("chat.id", in.ChatID),
			attribute.String("user.id", in.UserID),
			attribute.String("transport", in.Transport),
		),
	)
	defer span.End()

	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if s.MaxRunes > 0 && utf8.RuneCountInString(content) > s.MaxRunes {
		return nil, ErrTooLong
	}
	chat, err := participantChat(ctx, s.DB, in.UserID, in.ChatID)
	if err != nil {
		return nil, err
	}

	key := strings.TrimSpace(in.Key)
	if key == "" {
		key = strings.TrimSpace(in.TempID)
	}
	if key != "" {
		prev, err := s.replay(ctx, in.UserID, in.ChatID, key)
		if err != nil {
			return nil, err
		}
		if prev != nil {
			prev.TempID = in.TempID
			span.SetAttributes(attribute.Bool("replayed", true))
			return &SendResult{Message: prev, Replayed: true}, nil
		}
	}

	ttl := s.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := repo.CreateMessage(ctx, tx, in.ChatID, in.UserID, content)
		if err != nil {
			return err
		}
		if err := repo.TouchChat(ctx, tx, in.ChatID, m.CreatedAt, true); err != nil {
			return err
		}
		if key != "" {
			if _, err := repo.CreateIdempotency(ctx, tx, in.UserID, in.ChatID, key, m.ID, m.CreatedAt, ttl); err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return errReplay
				}
				return err
			}
		}
		msg = m
		return nil
	})
	if errors.Is(err, errReplay) {
		// A concurrent send with the same key won the race.
		prev, rerr := s.replay(ctx, in.UserID, in.ChatID, key)
		if rerr != nil {
			return nil, rerr
		}
		if prev == nil {
			return nil, err
		}
		prev.TempID = in.TempID
		return &SendResult{Message: prev, Replayed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	msg.TempID = in.TempID
	transport := in.Transport
	if transport == "" {
		transport = TransportHTTP
	}
	s.Metrics.MessageSent(transport)
	s.Log.Debug().
		Str("chat_id", in.ChatID).
		Str("user_id", in.UserID).
		Str("message_id", msg.ID).
		Str("transport", transport).
		Msg("message stored")

	senderName := ""
	if u, err := repo.GetUser(ctx, s.DB, in.UserID); err == nil {
		senderName = u.FirstName
	}
	s.Publisher.PublishMessage(*msg, []string{chat.Match.SenderID, chat.Match.ReceiverID}, senderName)
	return &SendResult{Message: msg}, nil
}

// replay returns the message stored for an earlier send with key, or nil.
func (s *MessageService) replay(ctx context.Context, userID, chatID, key string) (*domain.Message, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, chatID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg, err := repo.GetMessage(ctx, s.DB, rec.MessageID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return msg, err
}

// List returns one page of a chat's history, newest first, continuing
// strictly before cursor. limit <= 0 selects DefaultPageSize.
func (s *MessageService) List(ctx context.Context, userID, chatID, cursor string, limit int) (*MessagePage, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", userID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if _, err := participantChat(ctx, s.DB, userID, chatID); err != nil {
		return nil, err
	}
	cur, err := utils.DecodeCursor(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	limit = utils.ClampLimit(limit, DefaultPageSize, MaxPageSize)

	items, err := repo.ListMessagesBefore(ctx, s.DB, chatID, cur, limit+1)
	if err != nil {
		return nil, err
	}
	page := &MessagePage{Messages: items}
	if len(items) > limit {
		page.Messages = items[:limit]
		last := page.Messages[limit-1]
		page.NextCursor = utils.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	if page.Messages == nil {
		page.Messages = []domain.Message{}
	}
	return page, nil
}

// Stats returns a chat's message count and newest CreatedAt for conditional
// responses.
func (s *MessageService) Stats(ctx context.Context, userID, chatID string) (int64, *time.Time, error) {
	if _, err := participantChat(ctx, s.DB, userID, chatID); err != nil {
		return 0, nil, err
	}
	return repo.MessagesStats(ctx, s.DB, chatID)
}
