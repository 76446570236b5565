package models

import "time"

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Organization struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Domain    string    `gorm:"size:255" json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

func (Organization) TableName() string { return "organizations" }

// User is a dashboard account. Only the bcrypt hash of the password is stored.
type User struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	Username       string        `gorm:"size:64;uniqueIndex;not null" json:"username"`
	PasswordHash   string        `gorm:"size:255;not null" json:"-"`
	OrganizationID uint          `gorm:"index;not null" json:"organization_id"`
	Organization   *Organization `gorm:"constraint:OnDelete:CASCADE" json:"organization,omitempty"`
	Role           string        `gorm:"size:16;not null" json:"role"`
	CreatedAt      time.Time     `json:"created_at"`
	LastLoginAt    *time.Time    `json:"last_login_at,omitempty"`
}

func (User) TableName() string { return "users" }

// AuthSession is a bearer token issued at login.
type AuthSession struct {
	ID        uint      `gorm:"primaryKey"`
	Token     string    `gorm:"size:64;uniqueIndex;not null"`
	UserID    uint      `gorm:"index;not null"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (AuthSession) TableName() string { return "user_sessions" }
