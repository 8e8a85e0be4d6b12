package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/repo"
)

var testDeparture = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%d.db", time.Now().UnixNano()))
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

func mkUser(t *testing.T, db *gorm.DB, first string) *domain.User {
	t.Helper()
	email := fmt.Sprintf("%s-%d@example.com", first, time.Now().UnixNano())
	u, err := repo.CreateUser(context.Background(), db, email, "hash", first, "Traveler")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func mkJourney(t *testing.T, db *gorm.DB, userID string, legs ...LegInput) *domain.Journey {
	t.Helper()
	j, err := NewJourneyService(db, zerolog.Nop()).Create(context.Background(), userID, legs)
	if err != nil {
		t.Fatalf("create journey: %v", err)
	}
	return j
}

func leg(number, from, to string, dep time.Time, dur time.Duration) LegInput {
	return LegInput{
		FlightNumber:     number,
		DepartureAirport: from,
		ArrivalAirport:   to,
		DepartureTime:    dep,
		ArrivalTime:      dep.Add(dur),
	}
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	notes    map[string][]Notification
}

type publishedMessage struct {
	msg          domain.Message
	participants []string
	senderName   string
}

func (p *recordingPublisher) PublishMessage(msg domain.Message, participants []string, senderName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{msg: msg, participants: participants, senderName: senderName})
}

func (p *recordingPublisher) Notify(userID string, n Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.notes == nil {
		p.notes = map[string][]Notification{}
	}
	p.notes[userID] = append(p.notes[userID], n)
}

func (p *recordingPublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

func (p *recordingPublisher) notifications(userID string) []Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Notification(nil), p.notes[userID]...)
}

// acceptedPair is two travelers on the same flight with an accepted request
// and its chat.
type acceptedPair struct {
	sender, receiver *domain.User
	senderJ, recvJ   *domain.Journey
	chat             domain.Chat
}

func mkAcceptedPair(t *testing.T, db *gorm.DB) acceptedPair {
	t.Helper()
	ctx := context.Background()
	a := mkUser(t, db, "Ada")
	b := mkUser(t, db, "Bo")
	ja := mkJourney(t, db, a.ID, leg("EK2", "DXB", "LHR", testDeparture, 7*time.Hour))
	jb := mkJourney(t, db, b.ID, leg("EK2", "DXB", "LHR", testDeparture, 7*time.Hour))

	ms := NewMatchService(db, nil, nil, nil, zerolog.Nop())
	req, err := ms.SendRequest(ctx, a.ID, ja.ID, b.ID, jb.ID)
	if err != nil {
		t.Fatalf("send request: %v", err)
	}
	dec, err := ms.Accept(ctx, b.ID, req.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(dec.Chats) != 1 {
		t.Fatalf("expected one chat, got %d", len(dec.Chats))
	}
	return acceptedPair{sender: a, receiver: b, senderJ: ja, recvJ: jb, chat: dec.Chats[0]}
}
