package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Name              string    `gorm:"not null"                 json:"name"`
	Email             string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash      string    `gorm:"not null"                 json:"-"`
	IsAdmin           bool      `gorm:"not null;default:false"   json:"isAdmin"`
	IsVerified        bool      `gorm:"not null;default:false"   json:"isVerified"`
	VerificationToken *string   `gorm:"index"                    json:"-"`
	CreatedAt         time.Time `                                json:"createdAt"`
	UpdatedAt         time.Time `                                json:"updatedAt"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// Product owns its image references; each is a URL whose last path segment is
// a filename in the file storage root.
type Product struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Name        string    `gorm:"not null"                 json:"name"`
	Description string    `gorm:"not null"                 json:"description"`
	Price       float64   `gorm:"not null"                 json:"price"`
	Stock       int       `gorm:"not null;default:0"       json:"stock"`
	Category    string    `gorm:"index;not null"           json:"category"`
	Images      []string  `gorm:"serializer:json"          json:"images"`
	CreatedAt   time.Time `gorm:"index"                    json:"createdAt"`
	UpdatedAt   time.Time `                                json:"updatedAt"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PublicUser is the user shape exposed over HTTP and kept in the cache.
type PublicUser struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	IsAdmin    bool      `json:"isAdmin"`
	IsVerified bool      `json:"isVerified"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		IsAdmin:    u.IsAdmin,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
