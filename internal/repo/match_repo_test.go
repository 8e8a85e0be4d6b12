package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

type pairFixture struct {
	a, b   *domain.User
	ja, jb *domain.Journey
}

func seedPair(t *testing.T) (*gorm.DB, pairFixture) {
	t.Helper()
	db := newRepoDB(t)
	dep := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	a := seedUser(t, db, "a@x.io")
	b := seedUser(t, db, "b@x.io")
	return db, pairFixture{
		a: a, b: b,
		ja: seedJourney(t, db, a.ID, flight("BA117", "LHR", "JFK", dep, 8*time.Hour)),
		jb: seedJourney(t, db, b.ID, flight("BA117", "LHR", "JFK", dep, 8*time.Hour)),
	}
}

func TestMatchRequest_CreateGetAndFindActiveBothDirections(t *testing.T) {
	db, f := seedPair(t)
	ctx := context.Background()

	if _, err := FindActiveRequestBetween(ctx, db, f.ja.ID, f.jb.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before any request, got %v", err)
	}

	r, err := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID)
	if err != nil {
		t.Fatalf("CreateMatchRequest: %v", err)
	}
	if r.Status != domain.StatusPending {
		t.Fatalf("new request should be PENDING, got %s", r.Status)
	}

	got, err := GetMatchRequest(ctx, db, r.ID)
	if err != nil || got.SenderJourneyID != f.ja.ID || got.ReceiverID != f.b.ID {
		t.Fatalf("GetMatchRequest: %+v %v", got, err)
	}

	for _, dir := range [][2]string{{f.ja.ID, f.jb.ID}, {f.jb.ID, f.ja.ID}} {
		found, err := FindActiveRequestBetween(ctx, db, dir[0], dir[1])
		if err != nil || found.ID != r.ID {
			t.Fatalf("FindActiveRequestBetween(%v): %+v %v", dir, found, err)
		}
	}

	// Rejected requests are not active.
	if err := TransitionMatchRequest(ctx, db, r.ID, domain.StatusPending, domain.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := FindActiveRequestBetween(ctx, db, f.ja.ID, f.jb.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("rejected request must not be active, got %v", err)
	}
}

func TestCreateMatchRequest_ActivePairIsUniqueInTheDatabase(t *testing.T) {
	db, f := seedPair(t)
	ctx := context.Background()

	// Inserts skip FindActiveRequestBetween, as two racing senders would.
	first, err := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if _, err := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("same direction err = %v; want ErrDuplicate", err)
	}
	if _, err := CreateMatchRequest(ctx, db, f.b.ID, f.jb.ID, f.a.ID, f.ja.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("reverse direction err = %v; want ErrDuplicate", err)
	}

	if err := TransitionMatchRequest(ctx, db, first.ID, domain.StatusPending, domain.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}
	second, err := CreateMatchRequest(ctx, db, f.b.ID, f.jb.ID, f.a.ID, f.ja.ID)
	if err != nil {
		t.Fatalf("request after rejection: %v", err)
	}
	if err := TransitionMatchRequest(ctx, db, second.ID, domain.StatusPending, domain.StatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("request over an accepted pair err = %v; want ErrDuplicate", err)
	}

	var n int64
	db.Model(&domain.MatchRequest{}).Where("status <> ?", domain.StatusRejected).Count(&n)
	if n != 1 {
		t.Fatalf("active requests = %d; want 1", n)
	}
}

func TestTransitionMatchRequest_ConditionalOnStatus(t *testing.T) {
	db, f := seedPair(t)
	ctx := context.Background()
	r, _ := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID)

	if err := TransitionMatchRequest(ctx, db, r.ID, domain.StatusPending, domain.StatusAccepted); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	if err := TransitionMatchRequest(ctx, db, r.ID, domain.StatusPending, domain.StatusAccepted); !errors.Is(err, ErrConflict) {
		t.Fatalf("second transition should conflict, got %v", err)
	}
	if err := TransitionMatchRequest(ctx, db, "missing", domain.StatusPending, domain.StatusAccepted); !errors.Is(err, ErrConflict) {
		t.Fatalf("unknown id should conflict, got %v", err)
	}
}

func TestPendingListings(t *testing.T) {
	db, f := seedPair(t)
	ctx := context.Background()

	r1, _ := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID)
	time.Sleep(2 * time.Millisecond)
	r2, _ := CreateMatchRequest(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID)

	pending, err := ListPendingForReceiverJourney(ctx, db, f.jb.ID)
	if err != nil || len(pending) != 2 || pending[0].ID != r1.ID || pending[1].ID != r2.ID {
		t.Fatalf("ListPendingForReceiverJourney: %+v %v", pending, err)
	}

	fromSender, err := ListPendingFromSender(ctx, db, f.a.ID, f.jb.ID)
	if err != nil || len(fromSender) != 2 {
		t.Fatalf("ListPendingFromSender: %+v %v", fromSender, err)
	}

	_ = TransitionMatchRequest(ctx, db, r1.ID, domain.StatusPending, domain.StatusRejected)
	pending, _ = ListPendingForReceiverJourney(ctx, db, f.jb.ID)
	if len(pending) != 1 || pending[0].ID != r2.ID {
		t.Fatalf("rejected request still listed: %+v", pending)
	}
}

func TestActiveCounterpartJourneys(t *testing.T) {
	db, f := seedPair(t)
	ctx := context.Background()
	_, _ = CreateMatchRequest(ctx, db, f.b.ID, f.jb.ID, f.a.ID, f.ja.ID)

	got, err := ActiveCounterpartJourneys(ctx, db, f.ja.ID)
	if err != nil {
		t.Fatalf("ActiveCounterpartJourneys: %v", err)
	}
	if _, ok := got[f.jb.ID]; !ok || len(got) != 1 {
		t.Fatalf("expected jb as active counterpart, got %v", got)
	}
}

func TestDismissals_IdempotentAndListed(t *testing.T) {
	db, f := seedPair(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := CreateDismissal(ctx, db, f.a.ID, f.ja.ID, f.b.ID, f.jb.ID); err != nil {
			t.Fatalf("CreateDismissal #%d: %v", i, err)
		}
	}
	got, err := DismissedJourneys(ctx, db, f.ja.ID)
	if err != nil {
		t.Fatalf("DismissedJourneys: %v", err)
	}
	if _, ok := got[f.jb.ID]; !ok || len(got) != 1 {
		t.Fatalf("unexpected dismissals: %v", got)
	}
	// Scoped to the dismissing journey.
	other, _ := DismissedJourneys(ctx, db, f.jb.ID)
	if len(other) != 0 {
		t.Fatalf("dismissal must not apply to the other side: %v", other)
	}
	var reqs int64
	db.Model(&domain.MatchRequest{}).Count(&reqs)
	if reqs != 0 {
		t.Fatalf("dismissal must not create requests")
	}
}
