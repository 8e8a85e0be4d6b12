package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// newRepoDB opens a migrated file-backed database through Open, so tests
// run with the production pragmas.
func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano()))
	db, err := Open(Options{DSN: path})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, email, "hash", "First", "Last")
	if err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return u
}

func seedJourney(t *testing.T, db *gorm.DB, userID string, legs ...domain.Leg) *domain.Journey {
	t.Helper()
	for i := range legs {
		legs[i].Sequence = i + 1
	}
	j := &domain.Journey{UserID: userID, JourneyType: domain.JourneyTypeFor(len(legs)), Legs: legs}
	if err := CreateJourney(context.Background(), db, j); err != nil {
		t.Fatalf("seed journey: %v", err)
	}
	return j
}

func flight(number, from, to string, dep time.Time, dur time.Duration) domain.Leg {
	return domain.Leg{
		FlightNumber:     number,
		DepartureAirport: from,
		ArrivalAirport:   to,
		DepartureTime:    dep,
		ArrivalTime:      dep.Add(dur),
	}
}

// seedAcceptedChat creates two travelers, one journey each, an ACCEPTED
// request between them and its chat.
func seedAcceptedChat(t *testing.T, db *gorm.DB) (sender, receiver *domain.User, req *domain.MatchRequest, chat *domain.Chat) {
	t.Helper()
	ctx := context.Background()
	dep := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	sender = seedUser(t, db, fmt.Sprintf("s-%d@x.io", time.Now().UnixNano()))
	receiver = seedUser(t, db, fmt.Sprintf("r-%d@x.io", time.Now().UnixNano()))
	js := seedJourney(t, db, sender.ID, flight("BA117", "LHR", "JFK", dep, 8*time.Hour))
	jr := seedJourney(t, db, receiver.ID, flight("BA117", "LHR", "JFK", dep, 8*time.Hour))

	req, err := CreateMatchRequest(ctx, db, sender.ID, js.ID, receiver.ID, jr.ID)
	if err != nil {
		t.Fatalf("seed request: %v", err)
	}
	if err := TransitionMatchRequest(ctx, db, req.ID, domain.StatusPending, domain.StatusAccepted); err != nil {
		t.Fatalf("accept request: %v", err)
	}
	chat, err = CreateChat(ctx, db, req.ID)
	if err != nil {
		t.Fatalf("seed chat: %v", err)
	}
	return sender, receiver, req, chat
}
