package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-layover-backend/internal/auth"
	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/http/middleware"
	"github.com/tbourn/go-layover-backend/internal/repo"
	"github.com/tbourn/go-layover-backend/internal/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testDeparture = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	t  *testing.T
	db *gorm.DB
	r  *gin.Engine
}

func newHandlerDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("api_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newTestAPI wires real services over a temp SQLite file behind the same
// middleware the server uses for authentication and idempotency.
func newTestAPI(t *testing.T, rt Realtime) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newHandlerDB(t)
	log := zerolog.Nop()

	authSvc := services.NewAuthService(db, auth.NewSigner(testSecret), 15*time.Minute, 24*time.Hour, nil, log)
	h := New(Deps{
		Auth:     authSvc,
		Journeys: services.NewJourneyService(db, log),
		Matches:  services.NewMatchService(db, nil, nil, nil, log),
		Profiles: services.NewProfileService(db, log),
		Chats:    services.NewChatService(db, log),
		Messages: services.NewMessageService(db, nil, nil, log),
		Realtime: rt,
		Cookie:   CookieOptions{Path: "/auth"},
	})

	lookup := func(ctx context.Context, uid, chatID, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, uid, chatID, key, now)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	a := r.Group("/auth")
	a.POST("/register", h.Register)
	a.POST("/login", h.Login)
	a.POST("/refresh", h.Refresh)
	a.POST("/logout", h.Logout)

	p := r.Group("/", middleware.RequireAuth(authSvc))
	p.GET("/auth/me", h.Me)
	p.GET("/users/me", h.GetMyProfile)
	p.PATCH("/users/me/profile", h.UpdateMyProfile)
	p.GET("/users/:id/profile", h.GetUserProfile)
	p.POST("/journeys", h.CreateJourney)
	p.GET("/journeys", h.ListJourneys)
	p.GET("/journeys/:id", h.GetJourney)
	p.DELETE("/journeys/:id", h.DeleteJourney)
	p.GET("/matches/journey/:journeyId", h.DiscoverMatches)
	p.GET("/matches/pending/:journeyId", h.PendingRequests)
	p.POST("/matches/request", h.SendMatchRequest)
	p.POST("/matches/dismiss", h.DismissMatch)
	p.GET("/matches/:id", h.GetMatch)
	p.POST("/matches/:id/accept", h.AcceptMatch)
	p.POST("/matches/:id/reject", h.RejectMatch)
	p.GET("/chats/journey/:journeyId", h.ListChats)
	p.POST("/chats/:id/read", h.MarkChatRead)
	p.GET("/chats/:id/messages", h.ListMessages)
	p.POST("/chats/:id/messages", middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup), h.PostMessage)
	p.GET("/ws", h.ServeWS)

	return &testAPI{t: t, db: db, r: r}
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
	cookies []*http.Cookie
}

func (a *testAPI) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (%s)", v, err, w.Body.String())
	}
	return v
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d; want %d (%s)", w.Code, want, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	expectStatus(t, w, status)
	if er := decode[ErrorResponse](t, w); er.Code != code || er.RequestID == "" {
		t.Fatalf("error = %+v; want code %q with request id", er, code)
	}
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "refresh_token" {
			return ck
		}
	}
	t.Fatalf("no refresh_token cookie in response")
	return nil
}

type traveler struct {
	token  string
	user   domain.User
	cookie *http.Cookie
}

func (a *testAPI) register(first string) traveler {
	a.t.Helper()
	w := a.do(call{method: http.MethodPost, path: "/auth/register", body: RegisterRequest{
		Email:     fmt.Sprintf("%s@example.com", first),
		Password:  "long enough password",
		FirstName: first,
		LastName:  "Traveler",
	}})
	expectStatus(a.t, w, http.StatusCreated)
	res := decode[AuthResponse](a.t, w)
	return traveler{token: res.AccessToken, user: res.User, cookie: refreshCookie(a.t, w)}
}

func (a *testAPI) journey(tr traveler, legs ...services.LegInput) domain.Journey {
	a.t.Helper()
	w := a.do(call{method: http.MethodPost, path: "/journeys", token: tr.token, body: CreateJourneyRequest{Legs: legs}})
	expectStatus(a.t, w, http.StatusCreated)
	return decode[domain.Journey](a.t, w)
}

func leg(number, from, to string, dep time.Time, dur time.Duration) services.LegInput {
	return services.LegInput{
		FlightNumber:     number,
		DepartureAirport: from,
		ArrivalAirport:   to,
		DepartureTime:    dep,
		ArrivalTime:      dep.Add(dur),
	}
}

// matchedPair registers Ada and Bo on the same flight and returns them with
// their journeys and the chat created by Bo accepting Ada's request.
type matchedPair struct {
	ada, bo       traveler
	adaJ, boJ     domain.Journey
	chatID        string
	representedBy string
}

func (a *testAPI) matchedPair() matchedPair {
	a.t.Helper()
	ada, bo := a.register("ada"), a.register("bo")
	adaJ := a.journey(ada, leg("EK2", "DXB", "LHR", testDeparture, 7*time.Hour))
	boJ := a.journey(bo, leg("EK 2", "DXB", "LHR", testDeparture, 7*time.Hour))

	w := a.do(call{method: http.MethodPost, path: "/matches/request", token: ada.token, body: MatchTargetRequest{
		SenderJourneyID: adaJ.ID, ReceiverID: bo.user.ID, ReceiverJourneyID: boJ.ID,
	}})
	expectStatus(a.t, w, http.StatusCreated)
	req := decode[domain.MatchRequest](a.t, w)

	w = a.do(call{method: http.MethodPost, path: "/matches/" + req.ID + "/accept", token: bo.token})
	expectStatus(a.t, w, http.StatusOK)
	d := decode[services.Decision](a.t, w)
	if len(d.Chats) != 1 {
		a.t.Fatalf("expected one chat, got %d", len(d.Chats))
	}
	return matchedPair{ada: ada, bo: bo, adaJ: adaJ, boJ: boJ, chatID: d.Chats[0].ID, representedBy: req.ID}
}
