// Package services – MatchService
//
// MatchService turns itinerary overlaps into connections. Discovery runs the
// matcher over candidate journeys and hides pairs that were dismissed or
// already have an active request. The request lifecycle is a small state
// machine (PENDING -> ACCEPTED | REJECTED); acceptance creates the pair's chat
// in the same transaction.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry journey, request and user identifiers.
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
	"github.com/tbourn/go-layover-backend/internal/matching"
	"github.com/tbourn/go-layover-backend/internal/observability"
	"github.com/tbourn/go-layover-backend/internal/repo"
)

// Discovery is the raw match list for one of the caller's journeys.
type Discovery struct {
	SameFlightMatches []matching.SameFlightMatch `json:"sameFlightMatches"`
	LayoverMatches    []matching.LayoverMatch    `json:"layoverMatches"`
}

// PendingGroup is every PENDING request one sender has addressed to one of
// the caller's journeys, plus the reason they matched. Requests[0] is the
// representative used to accept or reject the group.
type PendingGroup struct {
	Sender      domain.PublicUser          `json:"sender"`
	Requests    []domain.MatchRequest      `json:"requests"`
	SameFlights []matching.SameFlightMatch `json:"sameFlights"`
	Layovers    []matching.LayoverMatch    `json:"layovers"`
	FlightText  string                     `json:"flightText,omitempty"`
	LayoverText string                     `json:"layoverText,omitempty"`
}

// MatchContext is one request seen by either participant, with the
// counterpart and the reason the two journeys matched.
type MatchContext struct {
	Request     domain.MatchRequest        `json:"request"`
	Counterpart domain.PublicUser          `json:"counterpart"`
	SameFlights []matching.SameFlightMatch `json:"sameFlights"`
	Layovers    []matching.LayoverMatch    `json:"layovers"`
	FlightText  string                     `json:"flightText,omitempty"`
	LayoverText string                     `json:"layoverText,omitempty"`
}

// Decision is the outcome of accepting or rejecting a request group.
type Decision struct {
	Requests []domain.MatchRequest `json:"requests"`
	Chats    []domain.Chat         `json:"chats"`
}

// MatchService coordinates discovery and the request lifecycle.
type MatchService struct {
	DB        *gorm.DB
	Matcher   *matching.Matcher
	Publisher Publisher
	Metrics   *observability.Metrics
	Log       zerolog.Logger
}

// NewMatchService constructs a MatchService. A nil publisher drops events.
func NewMatchService(db *gorm.DB, m *matching.Matcher, p Publisher, metrics *observability.Metrics, log zerolog.Logger) *MatchService {
	if m == nil {
		m = matching.New(0)
	}
	return &MatchService{
		DB:        db,
		Matcher:   m,
		Publisher: publisherOrNop(p),
		Metrics:   metrics,
		Log:       log.With().Str("component", "matches").Logger(),
	}
}

// Discover computes same-flight and layover matches for one of the caller's
// journeys. Counterpart journeys that were dismissed from this journey, or
// that already have a PENDING or ACCEPTED request with it, are left out.
func (s *MatchService) Discover(ctx context.Context, userID, journeyID string) (*Discovery, error) {
	ctx, span := otel.Tracer("services/MatchService").Start(ctx, "Discover",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("journey.id", journeyID),
		),
	)
	defer span.End()
	start := time.Now()

	mine, err := ownedJourney(ctx, s.DB, userID, journeyID)
	if err != nil {
		return nil, err
	}
	journeys, err := repo.ListCandidateJourneys(ctx, s.DB, mine)
	if err != nil {
		return nil, err
	}
	dismissed, err := repo.DismissedJourneys(ctx, s.DB, journeyID)
	if err != nil {
		return nil, err
	}
	active, err := repo.ActiveCounterpartJourneys(ctx, s.DB, journeyID)
	if err != nil {
		return nil, err
	}

	candidates := make([]matching.Candidate, 0, len(journeys))
	for _, j := range journeys {
		if _, ok := dismissed[j.ID]; ok {
			continue
		}
		if _, ok := active[j.ID]; ok {
			continue
		}
		candidates = append(candidates, matching.Candidate{Journey: j, User: j.User.Public()})
	}

	out := &Discovery{
		SameFlightMatches: s.Matcher.SameFlightMatches(*mine, candidates),
		LayoverMatches:    s.Matcher.LayoverMatches(*mine, candidates),
	}
	span.SetAttributes(
		attribute.Int("matches.same_flight", len(out.SameFlightMatches)),
		attribute.Int("matches.layover", len(out.LayoverMatches)),
	)
	s.Metrics.ObserveDiscovery(time.Since(start), len(out.SameFlightMatches), len(out.LayoverMatches))
	return out, nil
}

// SendRequest proposes a connection from one of the caller's journeys to a
// counterpart journey. It fails with ErrDuplicateRequest when a PENDING or
// ACCEPTED request already exists between the two journeys in either
// direction.
func (s *MatchService) SendRequest(ctx context.Context, senderID, senderJourneyID, receiverID, receiverJourneyID string) (*domain.MatchRequest, error) {
	ctx, span := otel.Tracer("services/MatchService").Start(ctx, "SendRequest",
		trace.WithAttributes(
			attribute.String("user.id", senderID),
			attribute.String("journey.sender", senderJourneyID),
			attribute.String("journey.receiver", receiverJourneyID),
		),
	)
	defer span.End()

	if senderID == receiverID {
		return nil, ErrSelfMatch
	}
	if _, err := ownedJourney(ctx, s.DB, senderID, senderJourneyID); err != nil {
		return nil, err
	}
	if _, err := ownedJourney(ctx, s.DB, receiverID, receiverJourneyID); err != nil {
		return nil, err
	}

	var req *domain.MatchRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := repo.FindActiveRequestBetween(ctx, tx, senderJourneyID, receiverJourneyID)
		if err == nil {
			return ErrDuplicateRequest
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		req, err = repo.CreateMatchRequest(ctx, tx, senderID, senderJourneyID, receiverID, receiverJourneyID)
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrDuplicateRequest
		}
		return err
	})
	if errors.Is(err, ErrDuplicateRequest) {
		s.Metrics.Request("duplicate")
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	s.Metrics.Request("sent")
	s.Log.Info().Str("request_id", req.ID).Str("user_id", senderID).Msg("match request sent")
	s.Publisher.Notify(receiverID, Notification{Type: NotifyRequest, RequestID: req.ID, SenderID: senderID})
	return req, nil
}

// Dismiss hides a counterpart journey from the discovery list of one of the
// caller's journeys. No request is created. Dismissing twice is a no-op.
func (s *MatchService) Dismiss(ctx context.Context, userID, journeyID, otherUserID, otherJourneyID string) error {
	ctx, span := otel.Tracer("services/MatchService").Start(ctx, "Dismiss",
		trace.WithAttributes(
			attribute.String("journey.id", journeyID),
			attribute.String("journey.other", otherJourneyID),
		),
	)
	defer span.End()

	if _, err := ownedJourney(ctx, s.DB, userID, journeyID); err != nil {
		return err
	}
	if _, err := ownedJourney(ctx, s.DB, otherUserID, otherJourneyID); err != nil {
		return err
	}
	if err := repo.CreateDismissal(ctx, s.DB, userID, journeyID, otherUserID, otherJourneyID); err != nil {
		return err
	}
	s.Metrics.Request("dismissed")
	return nil
}

// Pending lists PENDING requests addressed to one of the caller's journeys,
// grouped by sender in order of each sender's oldest request. Each group
// carries the re-derived reasons the two journeys matched.
func (s *MatchService) Pending(ctx context.Context, userID, journeyID string) ([]PendingGroup, error) {
	ctx, span := otel.Tracer("services/MatchService").Start(ctx, "Pending",
		trace.WithAttributes(attribute.String("journey.id", journeyID)),
	)
	defer span.End()

	mine, err := ownedJourney(ctx, s.DB, userID, journeyID)
	if err != nil {
		return nil, err
	}
	reqs, err := repo.ListPendingForReceiverJourney(ctx, s.DB, journeyID)
	if err != nil {
		return nil, err
	}

	groups := make([]PendingGroup, 0)
	index := make(map[string]int)
	senderIDs := make([]string, 0)
	for _, r := range reqs {
		if i, ok := index[r.SenderID]; ok {
			groups[i].Requests = append(groups[i].Requests, r)
			continue
		}
		index[r.SenderID] = len(groups)
		senderIDs = append(senderIDs, r.SenderID)
		groups = append(groups, PendingGroup{Requests: []domain.MatchRequest{r}})
	}
	if len(groups) == 0 {
		return groups, nil
	}

	users, err := repo.UsersByID(ctx, s.DB, senderIDs)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		senderID := groups[i].Requests[0].SenderID
		groups[i].Sender = users[senderID].Public()

		journeyIDs := make([]string, 0, len(groups[i].Requests))
		for _, r := range groups[i].Requests {
			journeyIDs = append(journeyIDs, r.SenderJourneyID)
		}
		why, err := s.reason(ctx, *mine, groups[i].Sender, journeyIDs)
		if err != nil {
			return nil, err
		}
		groups[i].SameFlights, groups[i].Layovers = why.SameFlights, why.Layovers
		groups[i].FlightText, groups[i].LayoverText = why.FlightText, why.LayoverText
	}
	return groups, nil
}

// Get returns one request to its sender or receiver. Anyone else gets
// ErrRequestNotFound.
func (s *MatchService) Get(ctx context.Context, userID, requestID string) (*MatchContext, error) {
	ctx, span := otel.Tracer("services/MatchService").Start(ctx, "Get",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	r, err := repo.GetMatchRequest(ctx, s.DB, requestID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	var mineID, theirID, counterpartID string
	switch userID {
	case r.SenderID:
		mineID, theirID, counterpartID = r.SenderJourneyID, r.ReceiverJourneyID, r.ReceiverID
	case r.ReceiverID:
		mineID, theirID, counterpartID = r.ReceiverJourneyID, r.SenderJourneyID, r.SenderID
	default:
		return nil, ErrRequestNotFound
	}

	mine, err := repo.GetJourney(ctx, s.DB, mineID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	other, err := repo.GetUser(ctx, s.DB, counterpartID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	out := &MatchContext{Request: *r, Counterpart: other.Public()}
	why, err := s.reason(ctx, *mine, out.Counterpart, []string{theirID})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	out.SameFlights, out.Layovers = why.SameFlights, why.Layovers
	out.FlightText, out.LayoverText = why.FlightText, why.LayoverText
	return out, nil
}

type matchReason struct {
	SameFlights []matching.SameFlightMatch
	Layovers    []matching.LayoverMatch
	FlightText  string
	LayoverText string
}

// reason re-derives why mine matched the counterpart's journeys from the
// current itineraries. Repeated journey IDs are evaluated once.
func (s *MatchService) reason(ctx context.Context, mine domain.Journey, counterpart domain.PublicUser, journeyIDs []string) (matchReason, error) {
	seen := map[string]bool{}
	var candidates []matching.Candidate
	for _, id := range journeyIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		j, err := repo.GetJourney(ctx, s.DB, id)
		if err != nil {
			return matchReason{}, err
		}
		candidates = append(candidates, matching.Candidate{Journey: *j, User: counterpart})
	}
	u := matching.UnifiedMatch{
		User:        counterpart,
		SameFlights: s.Matcher.SameFlightMatches(mine, candidates),
		Layovers:    s.Matcher.LayoverMatches(mine, candidates),
	}
	flight, layover := matching.Summary(u)
	return matchReason{SameFlights: u.SameFlights, Layovers: u.Layovers, FlightText: flight, LayoverText: layover}, nil
}

// Accept moves a request to ACCEPTED and creates its chat. Every other
// PENDING request from the same sender to the same receiver journey is
// accepted with it, each getting its own chat. Only the receiver may accept.
func (s *MatchService) Accept(ctx context.Context, userID, requestID string) (*Decision, error) {
	return s.decide(ctx, userID, requestID, domain.StatusAccepted)
}

// Reject moves a request (and the rest of its sender group) to REJECTED.
// No chat is created. Only the receiver may reject.
func (s *MatchService) Reject(ctx context.Context, userID, requestID string) (*Decision, error) {
	return s.decide(ctx, userID, requestID, domain.StatusRejected)
}

func (s *MatchService) decide(ctx context.Context, userID, requestID string, to domain.RequestStatus) (*Decision, error) {
	ctx, span := otel.Tracer("services/MatchService").Start(ctx, "decide",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("request.to", string(to)),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	out := &Decision{Requests: []domain.MatchRequest{}, Chats: []domain.Chat{}}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rep, err := repo.GetMatchRequest(ctx, tx, requestID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if rep.ReceiverID != userID {
			return ErrForbidden
		}
		if !rep.Status.CanTransitionTo(to) {
			return ErrInvalidStateTransition
		}

		group, err := repo.ListPendingFromSender(ctx, tx, rep.SenderID, rep.ReceiverJourneyID)
		if err != nil {
			return err
		}
		for _, r := range group {
			if err := repo.TransitionMatchRequest(ctx, tx, r.ID, domain.StatusPending, to); err != nil {
				if errors.Is(err, repo.ErrConflict) {
					if r.ID == rep.ID {
						return ErrInvalidStateTransition
					}
					continue
				}
				return err
			}
			r.Status = to
			out.Requests = append(out.Requests, r)

			if to != domain.StatusAccepted {
				continue
			}
			chat, err := repo.CreateChat(ctx, tx, r.ID)
			if err != nil {
				if errors.Is(err, repo.ErrDuplicate) {
					return ErrInvalidStateTransition
				}
				return err
			}
			out.Chats = append(out.Chats, *chat)
		}
		if len(out.Requests) == 0 {
			// The representative was transitioned between the read and the
			// group listing.
			return ErrInvalidStateTransition
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	outcome := "rejected"
	if to == domain.StatusAccepted {
		outcome = "accepted"
	}
	for range out.Requests {
		s.Metrics.Request(outcome)
	}
	for range out.Chats {
		s.Metrics.ChatCreated()
	}
	s.Log.Info().
		Str("request_id", requestID).
		Str("user_id", userID).
		Str("outcome", outcome).
		Int("requests", len(out.Requests)).
		Int("chats", len(out.Chats)).
		Msg("match request decided")
	return out, nil
}
