// Package matching computes why two travelers should meet: same-flight
// matches (both on the same physical flight) and layover matches (both on the
// ground at the same connecting airport at the same time), and aggregates
// them per counterpart traveler.
//
// Everything in this package is a pure function over journey snapshots. It
// never touches storage, so it is safe to call concurrently and repeatedly,
// both for discovery and for re-deriving the context of an existing request.
package matching

import (
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// SameFlightMatch pairs one of my legs with another traveler's leg on the
// same flight instance.
type SameFlightMatch struct {
	MyLeg     domain.Leg        `json:"myLeg"`
	OtherLeg  domain.Leg        `json:"otherLeg"`
	OtherUser domain.PublicUser `json:"otherUser"`
}

// LayoverMatch reports an intersecting ground-time window at a connecting
// airport. Leg is the other traveler's arriving leg; OverlapMinutes is
// always > 0.
type LayoverMatch struct {
	User           domain.PublicUser `json:"user"`
	ArrivalAirport string            `json:"arrivalAirport"`
	OverlapMinutes int               `json:"overlapMinutes"`
	Leg            domain.Leg        `json:"leg"`
}

// Candidate is another traveler's journey considered for matching.
type Candidate struct {
	Journey domain.Journey
	User    domain.PublicUser
}

// Matcher holds the matching policy. The zero value uses exact departure
// timestamp equality for same-flight matches.
type Matcher struct {
	// DepartureTolerance is the maximum absolute difference between two
	// scheduled departures still treated as the same flight instance.
	// Zero means the timestamps must be equal.
	DepartureTolerance time.Duration
}

// New returns a Matcher with the given same-flight departure tolerance.
// Negative tolerances are treated as zero.
func New(tolerance time.Duration) *Matcher {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Matcher{DepartureTolerance: tolerance}
}

var upper = cases.Upper(language.Und)

// NormalizeFlightNumber upper-cases a flight designator and strips blanks so
// "ba 117" and "BA117" compare equal.
func NormalizeFlightNumber(s string) string {
	return upper.String(strings.Join(strings.Fields(s), ""))
}

// NormalizeAirport upper-cases and trims an IATA airport code.
func NormalizeAirport(s string) string {
	return upper.String(strings.TrimSpace(s))
}

// SameFlightMatches returns one match per (my leg, other leg) pair sharing a
// flight number and departure window. Candidates owned by the same traveler
// as mine are ignored.
func (m *Matcher) SameFlightMatches(mine domain.Journey, candidates []Candidate) []SameFlightMatch {
	myLegs := orderedLegs(mine.Legs)
	out := make([]SameFlightMatch, 0)

	for _, c := range candidates {
		if c.Journey.UserID == mine.UserID || c.Journey.ID == mine.ID {
			continue
		}
		for _, a := range myLegs {
			for _, b := range orderedLegs(c.Journey.Legs) {
				if m.sameFlight(a, b) {
					out = append(out, SameFlightMatch{MyLeg: a, OtherLeg: b, OtherUser: c.User})
				}
			}
		}
	}
	return out
}

// LayoverMatches returns one match per pair of connections where both
// travelers arrive at and depart from the same airport and their ground
// windows intersect for at least one whole minute.
func (m *Matcher) LayoverMatches(mine domain.Journey, candidates []Candidate) []LayoverMatch {
	myConns := connections(mine.Legs)
	out := make([]LayoverMatch, 0)
	if len(myConns) == 0 {
		return out
	}

	for _, c := range candidates {
		if c.Journey.UserID == mine.UserID || c.Journey.ID == mine.ID {
			continue
		}
		for _, mc := range myConns {
			for _, oc := range connections(c.Journey.Legs) {
				if mc.airport != oc.airport {
					continue
				}
				overlap := OverlapMinutes(mc.arrive, mc.depart, oc.arrive, oc.depart)
				if overlap <= 0 {
					continue
				}
				out = append(out, LayoverMatch{
					User:           c.User,
					ArrivalAirport: mc.airport,
					OverlapMinutes: overlap,
					Leg:            oc.arriveLeg,
				})
			}
		}
	}
	return out
}

// OverlapMinutes is the whole-minute length of the intersection of the
// intervals [arriveA, departA] and [arriveB, departB]. The result is zero or
// negative when they do not intersect.
func OverlapMinutes(arriveA, departA, arriveB, departB time.Time) int {
	start := arriveA
	if arriveB.After(start) {
		start = arriveB
	}
	end := departA
	if departB.Before(end) {
		end = departB
	}
	return int(end.Sub(start) / time.Minute)
}

func (m *Matcher) sameFlight(a, b domain.Leg) bool {
	if NormalizeFlightNumber(a.FlightNumber) != NormalizeFlightNumber(b.FlightNumber) {
		return false
	}
	if m == nil || m.DepartureTolerance == 0 {
		return a.DepartureTime.Equal(b.DepartureTime)
	}
	d := a.DepartureTime.Sub(b.DepartureTime)
	if d < 0 {
		d = -d
	}
	return d <= m.DepartureTolerance
}

// connection is the ground time between two consecutive legs.
type connection struct {
	airport   string
	arrive    time.Time
	depart    time.Time
	arriveLeg domain.Leg
}

// connections lists genuine connection points: the arriving leg lands where
// the next leg departs.
func connections(legs []domain.Leg) []connection {
	ordered := orderedLegs(legs)
	if len(ordered) < 2 {
		return nil
	}
	out := make([]connection, 0, len(ordered)-1)
	for i := 0; i+1 < len(ordered); i++ {
		in, next := ordered[i], ordered[i+1]
		airport := NormalizeAirport(in.ArrivalAirport)
		if airport == "" || airport != NormalizeAirport(next.DepartureAirport) {
			continue
		}
		out = append(out, connection{
			airport:   airport,
			arrive:    in.ArrivalTime,
			depart:    next.DepartureTime,
			arriveLeg: in,
		})
	}
	return out
}

// orderedLegs returns a copy of legs sorted by sequence, then departure.
func orderedLegs(legs []domain.Leg) []domain.Leg {
	out := make([]domain.Leg, len(legs))
	copy(out, legs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	return out
}
