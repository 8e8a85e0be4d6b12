package apiclient

import (
	"time"

	"golang.org/x/oauth2"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/matching"
)

// User is the signed-in traveler.
type User struct {
	ID        string    `json:"id"        validate:"required"`
	Email     string    `json:"email"     validate:"required"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is what a successful register, login or refresh yields. The
// refresh token itself stays in the client's cookie jar.
type Session struct {
	Token *oauth2.Token
	User  User
}

type authResponse struct {
	AccessToken string    `json:"accessToken" validate:"required"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        User      `json:"user"`
}

func (r authResponse) session() *Session {
	return &Session{
		Token: &oauth2.Token{AccessToken: r.AccessToken, TokenType: "Bearer", Expiry: r.ExpiresAt},
		User:  r.User,
	}
}

// LegInput is one flight of a journey being created.
type LegInput struct {
	FlightNumber     string    `json:"flightNumber"`
	DepartureAirport string    `json:"departureAirport"`
	ArrivalAirport   string    `json:"arrivalAirport"`
	DepartureTime    time.Time `json:"departureTime"`
	ArrivalTime      time.Time `json:"arrivalTime"`
}

// MatchTarget addresses a request or dismissal from one of my journeys to a
// counterpart journey.
type MatchTarget struct {
	SenderJourneyID   string `json:"senderJourneyId"`
	ReceiverID        string `json:"receiverId"`
	ReceiverJourneyID string `json:"receiverJourneyId"`
}

// Discovery is the raw match list for one journey, before aggregation.
type Discovery struct {
	SameFlightMatches []matching.SameFlightMatch `json:"sameFlightMatches"`
	LayoverMatches    []matching.LayoverMatch    `json:"layoverMatches"`
}

// PendingGroup is every pending request one sender addressed to my journey.
// Requests[0] represents the group when accepting or rejecting.
type PendingGroup struct {
	Sender      domain.PublicUser          `json:"sender"`
	Requests    []domain.MatchRequest      `json:"requests" validate:"min=1"`
	SameFlights []matching.SameFlightMatch `json:"sameFlights"`
	Layovers    []matching.LayoverMatch    `json:"layovers"`
	FlightText  string                     `json:"flightText,omitempty"`
	LayoverText string                     `json:"layoverText,omitempty"`
}

// MatchContext is one request seen by either participant.
type MatchContext struct {
	Request     domain.MatchRequest        `json:"request"`
	Counterpart domain.PublicUser          `json:"counterpart"`
	SameFlights []matching.SameFlightMatch `json:"sameFlights"`
	Layovers    []matching.LayoverMatch    `json:"layovers"`
	FlightText  string                     `json:"flightText,omitempty"`
	LayoverText string                     `json:"layoverText,omitempty"`
}

// UserProfile is a traveler with their profile. Email is only present on
// my own.
type UserProfile struct {
	ID        string          `json:"id"        validate:"required"`
	Email     string          `json:"email,omitempty"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Profile   *domain.Profile `json:"profile"`
}

// ProfilePatch is a partial profile edit: nil fields are left alone and
// empty strings clear them. DateOfBirth is YYYY-MM-DD.
type ProfilePatch struct {
	Bio             *string `json:"bio,omitempty"`
	City            *string `json:"city,omitempty"`
	DateOfBirth     *string `json:"dateOfBirth,omitempty"`
	Gender          *string `json:"gender,omitempty"`
	Location        *string `json:"location,omitempty"`
	Nationality     *string `json:"nationality,omitempty"`
	ProfilePhotoURL *string `json:"profilePhotoUrl,omitempty"`
}

// Decision is the outcome of accepting or rejecting a request group.
type Decision struct {
	Requests []domain.MatchRequest `json:"requests"`
	Chats    []domain.Chat         `json:"chats"`
}

// Message is a chat message as the client sees it. TempID is set only on
// the echo of a send that carried one.
type Message struct {
	ID        string    `json:"id"               validate:"required"`
	ChatID    string    `json:"chatId"           validate:"required"`
	SenderID  string    `json:"senderId"         validate:"required"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"        validate:"required"`
	TempID    string    `json:"tempId,omitempty"`
}

// MatchSummary is the accepted request behind a chat.
type MatchSummary struct {
	ID                string            `json:"id"`
	SenderJourneyID   string            `json:"senderJourneyId"`
	ReceiverJourneyID string            `json:"receiverJourneyId"`
	SenderID          string            `json:"senderId"`
	ReceiverID        string            `json:"receiverId"`
	FlightNumber      string            `json:"flightNumber,omitempty"`
	DepartureTime     *time.Time        `json:"departureTime,omitempty"`
	Sender            domain.PublicUser `json:"sender"`
	Receiver          domain.PublicUser `json:"receiver"`
}

// ChatSummary is one row of a journey's chat list.
type ChatSummary struct {
	ID            string       `json:"id"          validate:"required"`
	MatchID       string       `json:"matchId"     validate:"required"`
	CreatedAt     time.Time    `json:"createdAt"`
	UnreadCount   int64        `json:"unreadCount" validate:"gte=0"`
	LastMessage   *Message     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time   `json:"lastMessageAt,omitempty"`
	Match         MatchSummary `json:"match"`
}

// Counterpart returns the participant other than viewerID.
func (c ChatSummary) Counterpart(viewerID string) domain.PublicUser {
	if c.Match.SenderID == viewerID {
		return c.Match.Receiver
	}
	return c.Match.Sender
}

// ChatList is the result of a conditional chat list fetch. When
// NotModified is set, Chats is empty and the caller keeps its copy.
type ChatList struct {
	Chats       []ChatSummary
	ETag        string
	NotModified bool
}

// MessagePage is one page of history, newest first as served.
type MessagePage struct {
	Messages   []Message `json:"messages"   validate:"dive"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// PostMessage is the HTTP fallback send.
type PostMessage struct {
	Content string `json:"content"`
	TempID  string `json:"tempId,omitempty"`
	// IdempotencyKey is sent as a header; it defaults to TempID.
	IdempotencyKey string `json:"-"`
}

type errorEnvelope struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Journey, MatchRequest and Chat are served exactly as stored.
type (
	Journey      = domain.Journey
	MatchRequest = domain.MatchRequest
	Chat         = domain.Chat
)
