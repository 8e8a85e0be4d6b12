package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

func orderedLegs(db *gorm.DB) *gorm.DB {
	return db.Order("sequence ASC")
}

// CreateJourney inserts a journey with its legs in one statement group.
// Missing ids are generated; the caller supplies sequence and journey type.
func CreateJourney(ctx context.Context, db *gorm.DB, j *domain.Journey) error {
	now := time.Now().UTC()
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.CreatedAt, j.UpdatedAt = now, now
	for i := range j.Legs {
		if j.Legs[i].ID == "" {
			j.Legs[i].ID = uuid.NewString()
		}
		j.Legs[i].JourneyID = j.ID
		j.Legs[i].CreatedAt = now
	}
	return db.WithContext(ctx).Create(j).Error
}

// GetJourney fetches a journey with its legs ordered by sequence, or
// ErrNotFound.
func GetJourney(ctx context.Context, db *gorm.DB, id string) (*domain.Journey, error) {
	var j domain.Journey
	err := db.WithContext(ctx).
		Preload("Legs", orderedLegs).
		Where("id = ?", id).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJourneysByUser returns a traveler's journeys, newest first.
func ListJourneysByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Journey, error) {
	var out []domain.Journey
	err := db.WithContext(ctx).
		Preload("Legs", orderedLegs).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// DeleteJourney removes a journey owned by userID. Legs, requests, chats and
// messages go with it through FK cascades. Returns ErrNotFound if nothing
// matched.
func DeleteJourney(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Journey{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCandidateJourneys returns other travelers' journeys that share at least
// one flight number or arrival airport with mine. It is a coarse prefilter;
// the matcher decides what actually matches.
func ListCandidateJourneys(ctx context.Context, db *gorm.DB, mine *domain.Journey) ([]domain.Journey, error) {
	flights := make([]string, 0, len(mine.Legs))
	airports := make([]string, 0, len(mine.Legs))
	for _, l := range mine.Legs {
		flights = append(flights, l.FlightNumber)
		airports = append(airports, l.ArrivalAirport)
	}
	if len(flights) == 0 {
		return []domain.Journey{}, nil
	}

	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Leg{}).
		Distinct().
		Joins("JOIN journeys ON journeys.id = journey_legs.journey_id").
		Where("journeys.user_id <> ?", mine.UserID).
		Where("journey_legs.flight_number IN ? OR journey_legs.arrival_airport IN ?", flights, airports).
		Pluck("journey_legs.journey_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Journey{}, nil
	}

	var out []domain.Journey
	err = db.WithContext(ctx).
		Preload("Legs", orderedLegs).
		Preload("User").
		Where("id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
