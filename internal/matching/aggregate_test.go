package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

func TestAggregate_OneEntryPerUser(t *testing.T) {
	bea := domain.PublicUser{ID: "ub", FirstName: "Bea"}
	cal := domain.PublicUser{ID: "uc", FirstName: "Cal"}

	sf := []SameFlightMatch{
		{OtherUser: bea, OtherLeg: domain.Leg{JourneyID: "jb", FlightNumber: "EK2"}},
		{OtherUser: bea, OtherLeg: domain.Leg{JourneyID: "jb", FlightNumber: "EK414"}},
	}
	lo := []LayoverMatch{
		{User: cal, ArrivalAirport: "DXB", OverlapMinutes: 90, Leg: domain.Leg{JourneyID: "jc"}},
		{User: bea, ArrivalAirport: "DXB", OverlapMinutes: 150, Leg: domain.Leg{JourneyID: "jb"}},
	}

	got := Aggregate(sf, lo)
	require.Len(t, got, 2)

	assert.Equal(t, "ub", got[0].User.ID)
	assert.Len(t, got[0].SameFlights, 2)
	assert.Len(t, got[0].Layovers, 1)
	assert.Equal(t, "EK2", got[0].SameFlights[0].OtherLeg.FlightNumber)

	assert.Equal(t, "uc", got[1].User.ID)
	assert.Empty(t, got[1].SameFlights)
	assert.NotNil(t, got[1].SameFlights)
	assert.Len(t, got[1].Layovers, 1)
}

func TestAggregate_Empty(t *testing.T) {
	got := Aggregate(nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReceiverJourneyID(t *testing.T) {
	u := UnifiedMatch{
		SameFlights: []SameFlightMatch{{OtherLeg: domain.Leg{JourneyID: "j-flight"}}},
		Layovers:    []LayoverMatch{{Leg: domain.Leg{JourneyID: "j-layover"}}},
	}
	assert.Equal(t, "j-flight", u.ReceiverJourneyID())

	u.SameFlights = nil
	assert.Equal(t, "j-layover", u.ReceiverJourneyID())

	assert.Equal(t, "", UnifiedMatch{}.ReceiverJourneyID())
}

func TestJourneyIDs_Distinct(t *testing.T) {
	u := UnifiedMatch{
		SameFlights: []SameFlightMatch{{OtherLeg: domain.Leg{JourneyID: "j1"}}, {OtherLeg: domain.Leg{JourneyID: "j1"}}},
		Layovers:    []LayoverMatch{{Leg: domain.Leg{JourneyID: "j2"}}, {Leg: domain.Leg{JourneyID: "j1"}}},
	}
	assert.Equal(t, []string{"j1", "j2"}, u.JourneyIDs())
}
