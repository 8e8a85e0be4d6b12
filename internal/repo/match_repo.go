package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// ErrConflict is returned by conditional updates whose precondition no
// longer holds (the row changed state concurrently).
var ErrConflict = errors.New("conflict")

// CreateMatchRequest inserts a PENDING request for the given journey pair.
// It returns ErrDuplicate when a PENDING or ACCEPTED request already holds
// the pair in either direction.
func CreateMatchRequest(ctx context.Context, db *gorm.DB, senderID, senderJourneyID, receiverID, receiverJourneyID string) (*domain.MatchRequest, error) {
	now := time.Now().UTC()
	r := &domain.MatchRequest{
		ID:                uuid.NewString(),
		SenderJourneyID:   senderJourneyID,
		SenderID:          senderID,
		ReceiverID:        receiverID,
		ReceiverJourneyID: receiverJourneyID,
		Status:            domain.StatusPending,
		PairKey:           domain.PairKey(senderJourneyID, receiverJourneyID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return r, nil
}

// GetMatchRequest fetches a request by id, or ErrNotFound.
func GetMatchRequest(ctx context.Context, db *gorm.DB, id string) (*domain.MatchRequest, error) {
	var r domain.MatchRequest
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// FindActiveRequestBetween returns a PENDING or ACCEPTED request between two
// journeys in either direction, or ErrNotFound.
func FindActiveRequestBetween(ctx context.Context, db *gorm.DB, journeyA, journeyB string) (*domain.MatchRequest, error) {
	var r domain.MatchRequest
	err := db.WithContext(ctx).
		Where("status IN ?", []domain.RequestStatus{domain.StatusPending, domain.StatusAccepted}).
		Where(
			db.Where("sender_journey_id = ? AND receiver_journey_id = ?", journeyA, journeyB).
				Or("sender_journey_id = ? AND receiver_journey_id = ?", journeyB, journeyA),
		).
		Order("created_at ASC").
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPendingForReceiverJourney returns PENDING requests addressed to a
// journey, oldest first.
func ListPendingForReceiverJourney(ctx context.Context, db *gorm.DB, journeyID string) ([]domain.MatchRequest, error) {
	var out []domain.MatchRequest
	err := db.WithContext(ctx).
		Where("receiver_journey_id = ? AND status = ?", journeyID, domain.StatusPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListPendingFromSender returns PENDING requests from one sender to one
// receiver journey, oldest first.
func ListPendingFromSender(ctx context.Context, db *gorm.DB, senderID, receiverJourneyID string) ([]domain.MatchRequest, error) {
	var out []domain.MatchRequest
	err := db.WithContext(ctx).
		Where("sender_id = ? AND receiver_journey_id = ? AND status = ?", senderID, receiverJourneyID, domain.StatusPending).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ActiveCounterpartJourneys returns the ids of journeys that have a PENDING
// or ACCEPTED request with journeyID in either direction.
func ActiveCounterpartJourneys(ctx context.Context, db *gorm.DB, journeyID string) (map[string]struct{}, error) {
	var rows []domain.MatchRequest
	err := db.WithContext(ctx).
		Select("sender_journey_id", "receiver_journey_id").
		Where("status IN ?", []domain.RequestStatus{domain.StatusPending, domain.StatusAccepted}).
		Where("sender_journey_id = ? OR receiver_journey_id = ?", journeyID, journeyID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.SenderJourneyID == journeyID {
			out[r.ReceiverJourneyID] = struct{}{}
		} else {
			out[r.SenderJourneyID] = struct{}{}
		}
	}
	return out, nil
}

// TransitionMatchRequest moves a request from one status to another only if
// it is still in the expected status. It returns ErrConflict otherwise.
func TransitionMatchRequest(ctx context.Context, db *gorm.DB, id string, from, to domain.RequestStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.MatchRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CreateDismissal records that userID dismissed otherJourneyID from the
// discovery list of journeyID. Dismissing the same pair twice is a no-op.
func CreateDismissal(ctx context.Context, db *gorm.DB, userID, journeyID, otherUserID, otherJourneyID string) error {
	d := &domain.Dismissal{
		ID:             uuid.NewString(),
		UserID:         userID,
		JourneyID:      journeyID,
		OtherUserID:    otherUserID,
		OtherJourneyID: otherJourneyID,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return err
	}
	return nil
}

// DismissedJourneys returns the counterpart journey ids dismissed from
// journeyID's discovery list.
func DismissedJourneys(ctx context.Context, db *gorm.DB, journeyID string) (map[string]struct{}, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Dismissal{}).
		Where("journey_id = ?", journeyID).
		Pluck("other_journey_id", &ids).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
