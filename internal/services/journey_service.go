package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/matching"
	"github.com/tbourn/go-layover-backend/internal/repo"
)

// LegInput is one flight segment as submitted by a traveler.
type LegInput struct {
	FlightNumber     string    `json:"flightNumber"`
	DepartureAirport string    `json:"departureAirport"`
	ArrivalAirport   string    `json:"arrivalAirport"`
	DepartureTime    time.Time `json:"departureTime"`
	ArrivalTime      time.Time `json:"arrivalTime"`
}

// JourneyService manages travelers' itineraries.
type JourneyService struct {
	DB      *gorm.DB
	MaxLegs int
	Log     zerolog.Logger
}

// NewJourneyService constructs a JourneyService.
func NewJourneyService(db *gorm.DB, log zerolog.Logger) *JourneyService {
	return &JourneyService{DB: db, MaxLegs: 8, Log: log.With().Str("component", "journeys").Logger()}
}

// Create validates and stores a journey. Legs are ordered by departure,
// numbered from 1, and the ground time after each leg but the last is
// derived. Flight numbers and airports are normalized.
func (s *JourneyService) Create(ctx context.Context, userID string, legs []LegInput) (*domain.Journey, error) {
	ctx, span := otel.Tracer("services/JourneyService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("legs", len(legs)),
		),
	)
	defer span.End()

	built, err := s.buildLegs(legs)
	if err != nil {
		return nil, err
	}
	j := &domain.Journey{
		UserID:      userID,
		JourneyType: domain.JourneyTypeFor(len(built)),
		Legs:        built,
	}
	if err := repo.CreateJourney(ctx, s.DB, j); err != nil {
		return nil, err
	}
	s.Log.Info().Str("user_id", userID).Str("journey_id", j.ID).Int("legs", len(built)).Msg("journey created")
	return j, nil
}

func (s *JourneyService) buildLegs(in []LegInput) ([]domain.Leg, error) {
	if len(in) == 0 || (s.MaxLegs > 0 && len(in) > s.MaxLegs) {
		return nil, ErrInvalidJourney
	}
	legs := make([]domain.Leg, 0, len(in))
	for _, l := range in {
		leg := domain.Leg{
			FlightNumber:     matching.NormalizeFlightNumber(l.FlightNumber),
			DepartureAirport: matching.NormalizeAirport(l.DepartureAirport),
			ArrivalAirport:   matching.NormalizeAirport(l.ArrivalAirport),
			DepartureTime:    l.DepartureTime.UTC(),
			ArrivalTime:      l.ArrivalTime.UTC(),
		}
		if leg.FlightNumber == "" || leg.DepartureAirport == "" || leg.ArrivalAirport == "" ||
			leg.DepartureTime.IsZero() || !leg.ArrivalTime.After(leg.DepartureTime) {
			return nil, ErrInvalidJourney
		}
		legs = append(legs, leg)
	}
	sort.SliceStable(legs, func(i, j int) bool { return legs[i].DepartureTime.Before(legs[j].DepartureTime) })

	for i := range legs {
		legs[i].Sequence = i + 1
		if i+1 < len(legs) {
			gap := legs[i+1].DepartureTime.Sub(legs[i].ArrivalTime)
			if gap < 0 {
				return nil, ErrInvalidJourney
			}
			mins := int(gap / time.Minute)
			legs[i].LayoverMinutesAfter = &mins
		}
	}
	return legs, nil
}

// List returns the caller's journeys, newest first.
func (s *JourneyService) List(ctx context.Context, userID string) ([]domain.Journey, error) {
	return repo.ListJourneysByUser(ctx, s.DB, userID)
}

// Get returns one of the caller's journeys.
func (s *JourneyService) Get(ctx context.Context, userID, journeyID string) (*domain.Journey, error) {
	return ownedJourney(ctx, s.DB, userID, journeyID)
}

// Delete removes one of the caller's journeys with everything hanging off
// it (legs, requests, chats, messages).
func (s *JourneyService) Delete(ctx context.Context, userID, journeyID string) error {
	err := repo.DeleteJourney(ctx, s.DB, journeyID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrJourneyNotFound
	}
	if err == nil {
		s.Log.Info().Str("user_id", userID).Str("journey_id", journeyID).Msg("journey deleted")
	}
	return err
}

// ownedJourney loads a journey and checks the caller owns it. Journeys of
// other travelers are reported as not found.
func ownedJourney(ctx context.Context, db *gorm.DB, userID, journeyID string) (*domain.Journey, error) {
	j, err := repo.GetJourney(ctx, db, journeyID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrJourneyNotFound
	}
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, ErrJourneyNotFound
	}
	return j, nil
}
