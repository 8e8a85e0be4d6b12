// Package services – ProfileService
//
// ProfileService reads and edits the optional personal details travelers
// show each other. Edits are partial: a nil field is left as is and an empty
// string clears it.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-layover-backend/internal/domain"
	"github.com/tbourn/go-layover-backend/internal/repo"
)

// DateOfBirthLayout is the wire format of Profile.DateOfBirth in edits.
const DateOfBirthLayout = "2006-01-02"

// UserProfile is a traveler with their profile. Email is only set for the
// traveler's own view; Profile is nil until they save one.
type UserProfile struct {
	ID        string          `json:"id"`
	Email     string          `json:"email,omitempty"`
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	Profile   *domain.Profile `json:"profile"`
}

// ProfilePatch is a partial profile edit.
type ProfilePatch struct {
	Bio             *string `json:"bio,omitempty"`
	City            *string `json:"city,omitempty"`
	DateOfBirth     *string `json:"dateOfBirth,omitempty" example:"1990-03-14"`
	Gender          *string `json:"gender,omitempty"`
	Location        *string `json:"location,omitempty"`
	Nationality     *string `json:"nationality,omitempty"`
	ProfilePhotoURL *string `json:"profilePhotoUrl,omitempty" example:"/uploads/ada.jpg"`
}

// textRules are the validator tags applied to each free-text field.
var textRules = []struct {
	name  string
	field func(*ProfilePatch) *string
	dst   func(*domain.Profile) **string
	rule  string
}{
	{"bio", func(p *ProfilePatch) *string { return p.Bio }, func(d *domain.Profile) **string { return &d.Bio }, "max=500"},
	{"city", func(p *ProfilePatch) *string { return p.City }, func(d *domain.Profile) **string { return &d.City }, "max=100"},
	{"gender", func(p *ProfilePatch) *string { return p.Gender }, func(d *domain.Profile) **string { return &d.Gender }, "max=32"},
	{"location", func(p *ProfilePatch) *string { return p.Location }, func(d *domain.Profile) **string { return &d.Location }, "max=100"},
	{"nationality", func(p *ProfilePatch) *string { return p.Nationality }, func(d *domain.Profile) **string { return &d.Nationality }, "max=100"},
	{"profilePhotoUrl", func(p *ProfilePatch) *string { return p.ProfilePhotoURL }, func(d *domain.Profile) **string { return &d.ProfilePhotoURL },
		"max=2048,uri,startswith=/|startswith=https://|startswith=http://"},
}

// ProfileService owns traveler profiles.
type ProfileService struct {
	DB  *gorm.DB
	Log zerolog.Logger

	now func() time.Time
}

// NewProfileService constructs a ProfileService.
func NewProfileService(db *gorm.DB, log zerolog.Logger) *ProfileService {
	return &ProfileService{DB: db, Log: log.With().Str("component", "profiles").Logger(), now: time.Now}
}

// Me returns the caller's account and profile.
func (s *ProfileService) Me(ctx context.Context, userID string) (*UserProfile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Me",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	out, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Public returns another traveler's name and profile, without their email.
func (s *ProfileService) Public(ctx context.Context, userID string) (*UserProfile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Public",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	out, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.Email = ""
	return out, nil
}

func (s *ProfileService) load(ctx context.Context, userID string) (*UserProfile, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	out := &UserProfile{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
	p, err := repo.GetProfile(ctx, s.DB, userID)
	switch {
	case err == nil:
		out.Profile = p
	case !errors.Is(err, repo.ErrNotFound):
		return nil, err
	}
	return out, nil
}

// Update applies patch to the caller's profile, creating it on first use.
func (s *ProfileService) Update(ctx context.Context, userID string, patch ProfilePatch) (*domain.Profile, error) {
	ctx, span := otel.Tracer("services/ProfileService").Start(ctx, "Update",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	var out *domain.Profile
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.GetUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		p, err := repo.GetProfile(ctx, tx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			p, err = &domain.Profile{UserID: userID}, nil
		}
		if err != nil {
			return err
		}
		if err := s.apply(p, patch); err != nil {
			return err
		}
		if err := repo.SaveProfile(ctx, tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info().Str("user_id", userID).Msg("profile updated")
	return out, nil
}

func (s *ProfileService) apply(p *domain.Profile, patch ProfilePatch) error {
	for _, r := range textRules {
		v := r.field(&patch)
		if v == nil {
			continue
		}
		trimmed := strings.TrimSpace(*v)
		if trimmed == "" {
			*r.dst(p) = nil
			continue
		}
		if validate.Var(trimmed, r.rule) != nil || (r.name == "profilePhotoUrl" && strings.HasPrefix(trimmed, "//")) {
			return fmt.Errorf("%w: %s", ErrInvalidProfile, r.name)
		}
		*r.dst(p) = &trimmed
	}

	if patch.DateOfBirth != nil {
		raw := strings.TrimSpace(*patch.DateOfBirth)
		if raw == "" {
			p.DateOfBirth = nil
			return nil
		}
		dob, err := time.Parse(DateOfBirthLayout, raw)
		if err != nil || dob.Year() < 1900 || !dob.Before(s.now().UTC()) {
			return fmt.Errorf("%w: dateOfBirth", ErrInvalidProfile)
		}
		p.DateOfBirth = &dob
	}
	return nil
}
