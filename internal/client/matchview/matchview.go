// Package matchview holds the client's per-journey match lists: discovered
// travelers aggregated one entry per user, and incoming pending requests
// grouped by sender. Both lists are updated optimistically when the
// traveler acts on an entry.
package matchview

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-layover-backend/internal/client/apiclient"
	"github.com/tbourn/go-layover-backend/internal/client/state"
	"github.com/tbourn/go-layover-backend/internal/matching"
)

// ErrUnknownEntry is returned when acting on a user or sender group the
// view does not hold for that journey.
var ErrUnknownEntry = errors.New("matchview: no such entry")

// API is the subset of the HTTP client the view uses.
type API interface {
	DiscoverMatches(ctx context.Context, journeyID string) (apiclient.Discovery, error)
	PendingRequests(ctx context.Context, journeyID string) ([]apiclient.PendingGroup, error)
	SendMatchRequest(ctx context.Context, t apiclient.MatchTarget) (apiclient.MatchRequest, error)
	DismissMatch(ctx context.Context, t apiclient.MatchTarget) error
	AcceptMatch(ctx context.Context, requestID string) (apiclient.Decision, error)
	RejectMatch(ctx context.Context, requestID string) (apiclient.Decision, error)
}

// Loading reports which fetches are in flight for a journey.
type Loading struct {
	Discovery bool
	Pending   bool
}

// View is safe for concurrent use.
type View struct {
	api API
	log zerolog.Logger

	discovery *state.Store[string, []matching.UnifiedMatch]
	pending   *state.Store[string, []apiclient.PendingGroup]
	loading   *state.Store[string, Loading]
}

// New returns an empty View backed by api.
func New(api API, log zerolog.Logger) *View {
	return &View{
		api:       api,
		log:       log.With().Str("component", "matchview").Logger(),
		discovery: state.New[string, []matching.UnifiedMatch](),
		pending:   state.New[string, []apiclient.PendingGroup](),
		loading:   state.New[string, Loading](),
	}
}

// LoadDiscovery fetches the journey's matches and aggregates them per user.
func (v *View) LoadDiscovery(ctx context.Context, journeyID string) ([]matching.UnifiedMatch, error) {
	v.setLoading(journeyID, func(l *Loading) { l.Discovery = true })
	defer v.setLoading(journeyID, func(l *Loading) { l.Discovery = false })

	d, err := v.api.DiscoverMatches(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	list := matching.Aggregate(d.SameFlightMatches, d.LayoverMatches)
	v.discovery.Set(journeyID, list)
	v.log.Debug().Str("journey_id", journeyID).Int("users", len(list)).Msg("discovery loaded")
	return list, nil
}

// Discovery returns the aggregated matches held for a journey.
func (v *View) Discovery(journeyID string) []matching.UnifiedMatch {
	list, _ := v.discovery.Get(journeyID)
	return list
}

// RemoveDiscoveryUser drops a user from the journey's match list. Removing
// an absent user is a no-op.
func (v *View) RemoveDiscoveryUser(journeyID, userID string) {
	v.discovery.Update(journeyID, func(cur []matching.UnifiedMatch, ok bool) ([]matching.UnifiedMatch, bool) {
		i := indexUser(cur, userID)
		if i < 0 {
			return cur, ok
		}
		next := make([]matching.UnifiedMatch, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		return append(next, cur[i+1:]...), true
	})
}

// SendRequest asks userID to connect from journeyID, targeting the
// counterpart journey of their first match. The user leaves the list on
// success and when a request between the two journeys already exists.
func (v *View) SendRequest(ctx context.Context, journeyID, userID string) (apiclient.MatchRequest, error) {
	t, err := v.target(journeyID, userID)
	if err != nil {
		return apiclient.MatchRequest{}, err
	}
	req, err := v.api.SendMatchRequest(ctx, t)
	if err != nil && !errors.Is(err, apiclient.ErrDuplicateRequest) {
		return apiclient.MatchRequest{}, err
	}
	v.RemoveDiscoveryUser(journeyID, userID)
	return req, err
}

// Dismiss hides userID from journeyID for good.
func (v *View) Dismiss(ctx context.Context, journeyID, userID string) error {
	t, err := v.target(journeyID, userID)
	if err != nil {
		return err
	}
	if err := v.api.DismissMatch(ctx, t); err != nil {
		return err
	}
	v.RemoveDiscoveryUser(journeyID, userID)
	return nil
}

func (v *View) target(journeyID, userID string) (apiclient.MatchTarget, error) {
	list := v.Discovery(journeyID)
	i := indexUser(list, userID)
	if i < 0 {
		return apiclient.MatchTarget{}, fmt.Errorf("user %s on journey %s: %w", userID, journeyID, ErrUnknownEntry)
	}
	return apiclient.MatchTarget{
		SenderJourneyID:   journeyID,
		ReceiverID:        userID,
		ReceiverJourneyID: list[i].ReceiverJourneyID(),
	}, nil
}

// LoadPending fetches the requests waiting on the journey, one group per
// sender.
func (v *View) LoadPending(ctx context.Context, journeyID string) ([]apiclient.PendingGroup, error) {
	v.setLoading(journeyID, func(l *Loading) { l.Pending = true })
	defer v.setLoading(journeyID, func(l *Loading) { l.Pending = false })

	groups, err := v.api.PendingRequests(ctx, journeyID)
	if err != nil {
		return nil, err
	}
	v.pending.Set(journeyID, groups)
	return groups, nil
}

// Pending returns the request groups held for a journey.
func (v *View) Pending(journeyID string) []apiclient.PendingGroup {
	groups, _ := v.pending.Get(journeyID)
	return groups
}

// Accept accepts every request senderID addressed to journeyID. The group
// disappears immediately; see decide for failure handling.
func (v *View) Accept(ctx context.Context, journeyID, senderID string) (apiclient.Decision, error) {
	return v.decide(ctx, journeyID, senderID, v.api.AcceptMatch)
}

// Reject rejects every request senderID addressed to journeyID.
func (v *View) Reject(ctx context.Context, journeyID, senderID string) (apiclient.Decision, error) {
	return v.decide(ctx, journeyID, senderID, v.api.RejectMatch)
}

// decide removes the sender group, then applies fn to its representative
// request. The group is restored at its old position when the call fails,
// unless the server says the request is gone or already decided.
func (v *View) decide(ctx context.Context, journeyID, senderID string, fn func(context.Context, string) (apiclient.Decision, error)) (apiclient.Decision, error) {
	var (
		group apiclient.PendingGroup
		at    = -1
	)
	v.pending.Update(journeyID, func(cur []apiclient.PendingGroup, ok bool) ([]apiclient.PendingGroup, bool) {
		at = indexSender(cur, senderID)
		if at < 0 {
			return cur, ok
		}
		group = cur[at]
		next := make([]apiclient.PendingGroup, 0, len(cur)-1)
		next = append(next, cur[:at]...)
		return append(next, cur[at+1:]...), true
	})
	if at < 0 || len(group.Requests) == 0 {
		return apiclient.Decision{}, fmt.Errorf("sender %s on journey %s: %w", senderID, journeyID, ErrUnknownEntry)
	}

	d, err := fn(ctx, group.Requests[0].ID)
	if err == nil {
		return d, nil
	}
	if errors.Is(err, apiclient.ErrInvalidStateTransition) || errors.Is(err, apiclient.ErrNotFound) {
		return apiclient.Decision{}, err
	}
	v.log.Warn().Err(err).Str("journey_id", journeyID).Str("request_id", group.Requests[0].ID).Msg("decision failed; restoring group")
	v.pending.Update(journeyID, func(cur []apiclient.PendingGroup, _ bool) ([]apiclient.PendingGroup, bool) {
		if indexSender(cur, senderID) >= 0 {
			return cur, true
		}
		i := min(at, len(cur))
		next := make([]apiclient.PendingGroup, 0, len(cur)+1)
		next = append(next, cur[:i]...)
		next = append(next, group)
		return append(next, cur[i:]...), true
	})
	return apiclient.Decision{}, err
}

// Loading reports the in-flight fetches for a journey.
func (v *View) Loading(journeyID string) Loading {
	l, _ := v.loading.Get(journeyID)
	return l
}

func (v *View) setLoading(journeyID string, fn func(*Loading)) {
	v.loading.Update(journeyID, func(cur Loading, _ bool) (Loading, bool) {
		fn(&cur)
		return cur, cur.Discovery || cur.Pending
	})
}

// Reset forgets everything held for a journey, as when it is deleted.
func (v *View) Reset(journeyID string) {
	v.discovery.Delete(journeyID)
	v.pending.Delete(journeyID)
}

// ResetAll forgets every journey, as on logout.
func (v *View) ResetAll() {
	v.discovery.Reset()
	v.pending.Reset()
}

func indexUser(list []matching.UnifiedMatch, userID string) int {
	for i, u := range list {
		if u.User.ID == userID {
			return i
		}
	}
	return -1
}

func indexSender(groups []apiclient.PendingGroup, senderID string) int {
	for i, g := range groups {
		if g.Sender.ID == senderID {
			return i
		}
	}
	return -1
}
