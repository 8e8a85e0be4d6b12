package domain

import "time"

// RequestStatus is the lifecycle state of a MatchRequest.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusAccepted RequestStatus = "ACCEPTED"
	StatusRejected RequestStatus = "REJECTED"
)

// Active reports whether the status blocks a new request between the same
// journey pair.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted
}

// Terminal reports whether no further transition is legal.
func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// CanTransitionTo reports whether s -> next is a legal lifecycle step.
// Only PENDING -> ACCEPTED and PENDING -> REJECTED are allowed.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return s == StatusPending && next.Terminal()
}

// MatchRequest is a directional proposal to connect, tied to a specific
// sender/receiver journey pair. It is created PENDING and mutated only by
// accept/reject.
type MatchRequest struct {
	ID                string        `json:"id"                gorm:"type:char(36);primaryKey"`
	SenderJourneyID   string        `json:"senderJourneyId"   gorm:"type:char(36);not null;index:idx_req_pair,priority:1"`
	SenderID          string        `json:"senderId"          gorm:"type:char(36);not null;index"`
	ReceiverID        string        `json:"receiverId"        gorm:"type:char(36);not null;index"`
	ReceiverJourneyID string        `json:"receiverJourneyId" gorm:"type:char(36);not null;index:idx_req_pair,priority:2;index:idx_req_receiver_status,priority:1"`
	Status            RequestStatus `json:"status"            gorm:"type:varchar(16);not null;default:'PENDING';index:idx_req_receiver_status,priority:2;check:status IN ('PENDING','ACCEPTED','REJECTED')"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`

	// PairKey is the unordered journey pair. At most one non-rejected
	// request may hold it.
	PairKey string `json:"-" gorm:"type:varchar(80);uniqueIndex:ux_req_active_pair,where:status <> 'REJECTED'"`

	SenderJourney   Journey `json:"-" gorm:"foreignKey:SenderJourneyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	ReceiverJourney Journey `json:"-" gorm:"foreignKey:ReceiverJourneyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// PairKey returns the same key for (a, b) and (b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// TableName returns the database table name for MatchRequest.
func (MatchRequest) TableName() string { return "match_requests" }

// Dismissal records that a traveler declined a potential match from the
// discovery list, so the pair is not resurfaced. It is not a MatchRequest.
type Dismissal struct {
	ID             string `gorm:"type:char(36);primaryKey"`
	UserID         string `gorm:"type:char(36);not null"`
	JourneyID      string `gorm:"type:char(36);not null;uniqueIndex:ux_dismissal_pair,priority:1"`
	OtherUserID    string `gorm:"type:char(36);not null"`
	OtherJourneyID string `gorm:"type:char(36);not null;uniqueIndex:ux_dismissal_pair,priority:2"`
	CreatedAt      time.Time

	Journey      Journey `gorm:"foreignKey:JourneyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	OtherJourney Journey `gorm:"foreignKey:OtherJourneyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Dismissal.
func (Dismissal) TableName() string { return "match_dismissals" }
