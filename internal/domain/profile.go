package domain

import "time"

// Profile is the optional personal detail a traveler shows to others. Every
// field may be empty; a traveler who never edited their profile has no row.
type Profile struct {
	UserID          string     `json:"-"               gorm:"type:char(36);primaryKey"`
	Bio             *string    `json:"bio"             gorm:"type:varchar(2000)"`
	City            *string    `json:"city"            gorm:"type:varchar(100)"`
	DateOfBirth     *time.Time `json:"dateOfBirth"     gorm:"type:date"`
	Gender          *string    `json:"gender"          gorm:"type:varchar(32)"`
	Location        *string    `json:"location"        gorm:"type:varchar(100)"`
	Nationality     *string    `json:"nationality"     gorm:"type:varchar(100)"`
	ProfilePhotoURL *string    `json:"profilePhotoUrl" gorm:"type:varchar(2048)"`
	UpdatedAt       time.Time  `json:"updatedAt"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Profile.
func (Profile) TableName() string { return "user_profiles" }
