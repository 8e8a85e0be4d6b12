package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-layover-backend/internal/domain"
)

// GetProfile fetches a traveler's profile, or ErrNotFound when they never
// saved one.
func GetProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.Profile, error) {
	var p domain.Profile
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile inserts p or overwrites every field of the existing row.
func SaveProfile(ctx context.Context, db *gorm.DB, p *domain.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"bio", "city", "date_of_birth", "gender", "location", "nationality", "profile_photo_url", "updated_at"}),
		}).
		Create(p).Error
}
