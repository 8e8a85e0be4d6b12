package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

func TestCreateAndGetJourney_LegsOrdered(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "j@x.io")
	dep := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	j := seedJourney(t, db, u.ID,
		flight("EK2", "LHR", "DXB", dep, 7*time.Hour),
		flight("EK414", "DXB", "SYD", dep.Add(11*time.Hour), 14*time.Hour),
	)
	if j.ID == "" || j.Legs[0].JourneyID != j.ID || j.Legs[1].ID == "" {
		t.Fatalf("ids not assigned: %+v", j)
	}

	got, err := GetJourney(ctx, db, j.ID)
	if err != nil {
		t.Fatalf("GetJourney: %v", err)
	}
	if got.JourneyType != domain.JourneyLayover || len(got.Legs) != 2 {
		t.Fatalf("unexpected journey: %+v", got)
	}
	if got.Legs[0].Sequence != 1 || got.Legs[1].FlightNumber != "EK414" {
		t.Fatalf("legs not ordered by sequence: %+v", got.Legs)
	}

	if _, err := GetJourney(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListJourneysByUser_NewestFirst(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "list@x.io")
	other := seedUser(t, db, "other@x.io")
	dep := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	first := seedJourney(t, db, u.ID, flight("A1", "AAA", "BBB", dep, time.Hour))
	time.Sleep(2 * time.Millisecond)
	second := seedJourney(t, db, u.ID, flight("A2", "BBB", "CCC", dep, time.Hour))
	seedJourney(t, db, other.ID, flight("A3", "CCC", "DDD", dep, time.Hour))

	got, err := ListJourneysByUser(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("ListJourneysByUser: %v", err)
	}
	if len(got) != 2 || got[0].ID != second.ID || got[1].ID != first.ID {
		t.Fatalf("unexpected order: %+v", got)
	}
	if len(got[0].Legs) != 1 {
		t.Fatalf("legs not preloaded")
	}
}

func TestDeleteJourney_OwnerOnly(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	u := seedUser(t, db, "del@x.io")
	j := seedJourney(t, db, u.ID, flight("A1", "AAA", "BBB", time.Now().UTC(), time.Hour))

	if err := DeleteJourney(ctx, db, j.ID, "someone-else"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-owner delete should be ErrNotFound, got %v", err)
	}
	if err := DeleteJourney(ctx, db, j.ID, u.ID); err != nil {
		t.Fatalf("DeleteJourney: %v", err)
	}
	var legs int64
	db.Model(&domain.Leg{}).Where("journey_id = ?", j.ID).Count(&legs)
	if legs != 0 {
		t.Fatalf("legs should cascade, got %d", legs)
	}
}

func TestListCandidateJourneys_PrefilterAndExcludeOwner(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	me := seedUser(t, db, "me@x.io")
	bea := seedUser(t, db, "bea@x.io")
	cal := seedUser(t, db, "cal@x.io")
	dep := time.Date(2026, 5, 1, 6, 0, 0, 0, time.UTC)

	mine := seedJourney(t, db, me.ID,
		flight("EK2", "LHR", "DXB", dep, 7*time.Hour),
		flight("EK414", "DXB", "SYD", dep.Add(11*time.Hour), 14*time.Hour),
	)
	// My other journey on the same flight is never a candidate.
	seedJourney(t, db, me.ID, flight("EK2", "LHR", "DXB", dep, 7*time.Hour))
	// Shares the flight.
	sameFlight := seedJourney(t, db, bea.ID, flight("EK2", "LHR", "DXB", dep, 7*time.Hour))
	// Transits DXB on different flights.
	transit := seedJourney(t, db, cal.ID,
		flight("AF662", "CDG", "DXB", dep, 7*time.Hour),
		flight("QF2", "DXB", "SYD", dep.Add(10*time.Hour), 14*time.Hour),
	)
	// Unrelated.
	seedJourney(t, db, cal.ID, flight("UA1", "SFO", "HNL", dep, 5*time.Hour))

	got, err := ListCandidateJourneys(ctx, db, mine)
	if err != nil {
		t.Fatalf("ListCandidateJourneys: %v", err)
	}
	ids := map[string]domain.Journey{}
	for _, j := range got {
		ids[j.ID] = j
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(ids), got)
	}
	if _, ok := ids[sameFlight.ID]; !ok {
		t.Fatalf("missing same-flight candidate")
	}
	tj, ok := ids[transit.ID]
	if !ok || len(tj.Legs) != 2 || tj.User.ID != cal.ID {
		t.Fatalf("transit candidate not fully loaded: %+v", tj)
	}
}

func TestListCandidateJourneys_NoLegs(t *testing.T) {
	db := newRepoDB(t)
	got, err := ListCandidateJourneys(context.Background(), db, &domain.Journey{UserID: "u"})
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty result, got %v %v", got, err)
	}
}
