package domain

import "time"

// JourneyType classifies a journey by its number of legs.
type JourneyType string

const (
	JourneyDirect  JourneyType = "DIRECT"
	JourneyLayover JourneyType = "LAYOVER"
)

// JourneyTypeFor derives the journey type from a leg count: LAYOVER iff more
// than one leg.
func JourneyTypeFor(legCount int) JourneyType {
	if legCount > 1 {
		return JourneyLayover
	}
	return JourneyDirect
}

// Journey is an itinerary owned by exactly one traveler. Deleting a journey
// cascades to its legs, match requests, dismissals and (through requests)
// chats.
type Journey struct {
	ID          string      `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string      `json:"userId"      gorm:"type:char(36);not null;index:idx_user_journeys"`
	JourneyType JourneyType `json:"journeyType" gorm:"type:varchar(16);not null;check:journey_type IN ('DIRECT','LAYOVER')"`
	Legs        []Leg       `json:"legs"        gorm:"foreignKey:JourneyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Journey.
func (Journey) TableName() string { return "journeys" }

// Leg is one flight segment of a journey. Sequence is 1-based and contiguous,
// ordered by departure time. LayoverMinutesAfter is the ground time before the
// next leg and is nil on the last leg.
type Leg struct {
	ID                  string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	JourneyID           string    `json:"journeyId"           gorm:"type:char(36);not null;uniqueIndex:ux_journey_leg_seq,priority:1"`
	Sequence            int       `json:"sequence"            gorm:"not null;uniqueIndex:ux_journey_leg_seq,priority:2;check:sequence >= 1"`
	FlightNumber        string    `json:"flightNumber"        gorm:"type:varchar(16);not null;index:idx_leg_flight,priority:1"`
	DepartureAirport    string    `json:"departureAirport"    gorm:"type:varchar(8);not null"`
	ArrivalAirport      string    `json:"arrivalAirport"      gorm:"type:varchar(8);not null;index:idx_leg_arrival"`
	DepartureTime       time.Time `json:"departureTime"       gorm:"not null;index:idx_leg_flight,priority:2"`
	ArrivalTime         time.Time `json:"arrivalTime"         gorm:"not null"`
	LayoverMinutesAfter *int      `json:"layoverMinutesAfter"`
	CreatedAt           time.Time `json:"createdAt"`
}

// TableName returns the database table name for Leg.
func (Leg) TableName() string { return "journey_legs" }
