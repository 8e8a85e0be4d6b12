package matching

import "github.com/tbourn/go-layover-backend/internal/domain"

// UnifiedMatch groups every same-flight and layover match with one other
// traveler.
type UnifiedMatch struct {
	User        domain.PublicUser `json:"user"`
	SameFlights []SameFlightMatch `json:"sameFlights"`
	Layovers    []LayoverMatch    `json:"layovers"`
}

// Aggregate merges both match kinds into one entry per distinct user id.
// Entries are ordered by first appearance, scanning same-flight matches
// before layover matches. Input order is preserved inside each entry.
func Aggregate(sameFlights []SameFlightMatch, layovers []LayoverMatch) []UnifiedMatch {
	out := make([]UnifiedMatch, 0)
	index := make(map[string]int)

	slot := func(u domain.PublicUser) *UnifiedMatch {
		if i, ok := index[u.ID]; ok {
			return &out[i]
		}
		index[u.ID] = len(out)
		out = append(out, UnifiedMatch{
			User:        u,
			SameFlights: []SameFlightMatch{},
			Layovers:    []LayoverMatch{},
		})
		return &out[len(out)-1]
	}

	for _, m := range sameFlights {
		e := slot(m.OtherUser)
		e.SameFlights = append(e.SameFlights, m)
	}
	for _, m := range layovers {
		e := slot(m.User)
		e.Layovers = append(e.Layovers, m)
	}
	return out
}

// ReceiverJourneyID picks the counterpart journey a request from this entry
// targets: the first same-flight match's other leg, else the first layover
// match's leg. It returns "" for an entry with no matches.
func (u UnifiedMatch) ReceiverJourneyID() string {
	if len(u.SameFlights) > 0 {
		return u.SameFlights[0].OtherLeg.JourneyID
	}
	if len(u.Layovers) > 0 {
		return u.Layovers[0].Leg.JourneyID
	}
	return ""
}

// JourneyIDs lists every distinct counterpart journey referenced by the
// entry, in first-appearance order.
func (u UnifiedMatch) JourneyIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, m := range u.SameFlights {
		add(m.OtherLeg.JourneyID)
	}
	for _, m := range u.Layovers {
		add(m.Leg.JourneyID)
	}
	return ids
}
