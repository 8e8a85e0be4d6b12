// Package handlers provides HTTP handler implementations for the public API.
//
// Handlers are transport-thin: they bind and validate input, call the
// application services through the narrow interfaces below, and translate
// results (including conditional and replayed responses) into HTTP.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/http/middleware"
	"github.com/tbourn/go-layover-backend/internal/services"
)

// AuthService covers accounts and sessions.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.Session, error)
	Login(ctx context.Context, email, password string) (*services.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*services.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID string) (*domain.User, error)
}

// JourneyService covers a traveler's itineraries.
type JourneyService interface {
	Create(ctx context.Context, userID string, legs []services.LegInput) (*domain.Journey, error)
	List(ctx context.Context, userID string) ([]domain.Journey, error)
	Get(ctx context.Context, userID, journeyID string) (*domain.Journey, error)
	Delete(ctx context.Context, userID, journeyID string) error
}

// MatchService covers discovery and the match request lifecycle.
type MatchService interface {
	Discover(ctx context.Context, userID, journeyID string) (*services.Discovery, error)
	SendRequest(ctx context.Context, senderID, senderJourneyID, receiverID, receiverJourneyID string) (*domain.MatchRequest, error)
	Dismiss(ctx context.Context, userID, journeyID, otherUserID, otherJourneyID string) error
	Pending(ctx context.Context, userID, journeyID string) ([]services.PendingGroup, error)
	Get(ctx context.Context, userID, requestID string) (*services.MatchContext, error)
	Accept(ctx context.Context, userID, requestID string) (*services.Decision, error)
	Reject(ctx context.Context, userID, requestID string) (*services.Decision, error)
}

// ProfileService covers traveler profiles.
type ProfileService interface {
	Me(ctx context.Context, userID string) (*services.UserProfile, error)
	Public(ctx context.Context, userID string) (*services.UserProfile, error)
	Update(ctx context.Context, userID string, patch services.ProfilePatch) (*domain.Profile, error)
}

// ChatService covers chat summaries and read markers.
type ChatService interface {
	ListForJourney(ctx context.Context, userID, journeyID string) ([]services.ChatSummary, error)
	Stats(ctx context.Context, userID, journeyID string) (int64, *time.Time, error)
	MarkRead(ctx context.Context, userID, chatID string) error
}

// MessageService covers chat history and the HTTP send fallback.
type MessageService interface {
	Send(ctx context.Context, in services.SendInput) (*services.SendResult, error)
	List(ctx context.Context, userID, chatID, cursor string, limit int) (*services.MessagePage, error)
	Stats(ctx context.Context, userID, chatID string) (int64, *time.Time, error)
}

// Realtime upgrades an authenticated request to a WebSocket connection.
type Realtime interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

// CookieOptions controls the refresh-token cookie.
type CookieOptions struct {
	Name   string // defaults to "refresh_token"
	Path   string // scope the cookie to the auth routes
	Secure bool
}

// Deps groups the services the handlers depend on.
type Deps struct {
	Auth     AuthService
	Journeys JourneyService
	Matches  MatchService
	Profiles ProfileService
	Chats    ChatService
	Messages MessageService
	Realtime Realtime
	Cookie   CookieOptions
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	auth     AuthService
	journeys JourneyService
	matches  MatchService
	profiles ProfileService
	chats    ChatService
	messages MessageService
	realtime Realtime
	cookie   CookieOptions
}

// New constructs Handlers bound to the given services.
func New(d Deps) *Handlers {
	if d.Cookie.Name == "" {
		d.Cookie.Name = "refresh_token"
	}
	if d.Cookie.Path == "" {
		d.Cookie.Path = "/"
	}
	return &Handlers{
		auth:     d.Auth,
		journeys: d.Journeys,
		matches:  d.Matches,
		profiles: d.Profiles,
		chats:    d.Chats,
		messages: d.Messages,
		realtime: d.Realtime,
		cookie:   d.Cookie,
	}
}

// userID is the traveler resolved by middleware.RequireAuth.
func userID(c *gin.Context) string { return middleware.UserID(c) }

// bindJSON decodes the body into v and answers 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// uuidParam reads a path parameter that must be a UUID and answers 400
// otherwise.
func uuidParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if _, err := uuid.Parse(v); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a UUID")
		return "", false
	}
	return v, true
}
