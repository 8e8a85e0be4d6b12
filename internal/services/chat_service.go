// Package services – ChatService
//
// ChatService exposes the chats created by accepted match requests. It builds
// per-viewer chat summaries (counterpart names, unread count, last message),
// enforces that only the two matched travelers can see a chat, and maintains
// read markers.
//
// Service-level errors (e.g., ErrChatNotFound) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/repo"
)

// MatchSummary is the accepted request behind a chat, with both travelers'
// display names and the flight it started from.
type MatchSummary struct {
	ID                string               `json:"id"`
	SenderJourneyID   string               `json:"senderJourneyId"`
	ReceiverJourneyID string               `json:"receiverJourneyId"`
	SenderID          string               `json:"senderId"`
	ReceiverID        string               `json:"receiverId"`
	FlightNumber      string               `json:"flightNumber,omitempty"`
	DepartureTime     *time.Time           `json:"departureTime,omitempty"`
	Status            domain.RequestStatus `json:"status"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
	Sender            domain.PublicUser    `json:"sender"`
	Receiver          domain.PublicUser    `json:"receiver"`
}

// ChatSummary is a chat as seen by one of its participants.
type ChatSummary struct {
	ID            string          `json:"id"`
	MatchID       string          `json:"matchId"`
	CreatedAt     time.Time       `json:"createdAt"`
	UnreadCount   int64           `json:"unreadCount"`
	LastMessage   *domain.Message `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time      `json:"lastMessageAt,omitempty"`
	Match         MatchSummary    `json:"match"`
}

// Counterpart returns the participant other than viewerID.
func (c ChatSummary) Counterpart(viewerID string) domain.PublicUser {
	if c.Match.SenderID == viewerID {
		return c.Match.Receiver
	}
	return c.Match.Sender
}

// ChatService provides chat listing, access checks and read markers.
type ChatService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	now func() time.Time
}

// NewChatService constructs a ChatService.
func NewChatService(db *gorm.DB, log zerolog.Logger) *ChatService {
	return &ChatService{DB: db, Log: log.With().Str("component", "chats").Logger(), now: time.Now}
}

func (s *ChatService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// ListForJourney returns summaries of every chat involving one of the
// caller's journeys, most recently active first.
func (s *ChatService) ListForJourney(ctx context.Context, userID, journeyID string) ([]ChatSummary, error) {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "ListForJourney",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("journey.id", journeyID),
		),
	)
	defer span.End()

	if _, err := ownedJourney(ctx, s.DB, userID, journeyID); err != nil {
		return nil, err
	}
	chats, err := repo.ListChatsForJourney(ctx, s.DB, journeyID)
	if err != nil {
		return nil, err
	}
	out := make([]ChatSummary, 0, len(chats))
	if len(chats) == 0 {
		return out, nil
	}

	ids := make([]string, 0, 2*len(chats))
	for _, c := range chats {
		ids = append(ids, c.Match.SenderID, c.Match.ReceiverID)
	}
	users, err := repo.UsersByID(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}

	for _, c := range chats {
		sum, err := s.summarize(ctx, c, userID, users)
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	span.SetAttributes(attribute.Int("chats", len(out)))
	return out, nil
}

func (s *ChatService) summarize(ctx context.Context, c domain.Chat, viewerID string, users map[string]domain.User) (ChatSummary, error) {
	unread, err := repo.CountUnread(ctx, s.DB, c.ID, viewerID)
	if err != nil {
		return ChatSummary{}, err
	}
	last, err := repo.LastMessage(ctx, s.DB, c.ID)
	if err != nil {
		return ChatSummary{}, err
	}

	m := c.Match
	ms := MatchSummary{
		ID:                m.ID,
		SenderJourneyID:   m.SenderJourneyID,
		ReceiverJourneyID: m.ReceiverJourneyID,
		SenderID:          m.SenderID,
		ReceiverID:        m.ReceiverID,
		Status:            m.Status,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		Sender:            users[m.SenderID].Public(),
		Receiver:          users[m.ReceiverID].Public(),
	}
	if j, err := repo.GetJourney(ctx, s.DB, m.SenderJourneyID); err == nil && len(j.Legs) > 0 {
		dep := j.Legs[0].DepartureTime
		ms.FlightNumber = j.Legs[0].FlightNumber
		ms.DepartureTime = &dep
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return ChatSummary{}, err
	}

	return ChatSummary{
		ID:            c.ID,
		MatchID:       c.MatchID,
		CreatedAt:     c.CreatedAt,
		UnreadCount:   unread,
		LastMessage:   last,
		LastMessageAt: c.LastMessageAt,
		Match:         ms,
	}, nil
}

// Stats returns the number of chats of one of the caller's journeys and their
// latest UpdatedAt, for conditional responses.
func (s *ChatService) Stats(ctx context.Context, userID, journeyID string) (int64, *time.Time, error) {
	if _, err := ownedJourney(ctx, s.DB, userID, journeyID); err != nil {
		return 0, nil, err
	}
	return repo.ChatsStats(ctx, s.DB, journeyID)
}

// Get returns a chat the caller participates in.
func (s *ChatService) Get(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	return participantChat(ctx, s.DB, userID, chatID)
}

// MarkRead moves the caller's read marker to now, resetting their unread
// count for this chat only.
func (s *ChatService) MarkRead(ctx context.Context, userID, chatID string) error {
	ctx, span := otel.Tracer("services/ChatService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.String("chat.id", chatID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	if _, err := participantChat(ctx, s.DB, userID, chatID); err != nil {
		return err
	}
	now := s.clock()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkChatRead(ctx, tx, chatID, userID, now); err != nil {
			return err
		}
		return repo.TouchChat(ctx, tx, chatID, now, false)
	})
}

// participantChat loads a chat and checks userID is one of its two
// participants. Chats of other travelers are reported as not found.
func participantChat(ctx context.Context, db *gorm.DB, userID, chatID string) (*domain.Chat, error) {
	c, err := repo.GetChat(ctx, db, chatID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrChatNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Match.SenderID != userID && c.Match.ReceiverID != userID {
		return nil, ErrChatNotFound
	}
	return c, nil
}
