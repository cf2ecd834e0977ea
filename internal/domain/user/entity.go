package user

import (
	"time"

	"github.com/google/uuid"
)

// User represents the users table. Identity fields are immutable after
// registration.
type User struct {
	ID           uuid.UUID
	DisplayName  string
	Email        string `gorm:"uniqueIndex"`
	PasswordHash string `json:"-"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (User) TableName() string {
	return "users"
}
