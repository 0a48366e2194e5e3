package auth

import "time"

// User is an institute staff account. Email is unique within an institute.
type User struct {
	ID           string
	InstituteID  string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PlatformUser is an operator of the platform itself.
type PlatformUser struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role is a named set of permissions inside one institute.
type Role struct {
	ID          string
	InstituteID string
	Name        string
	Permissions []string
	CreatedAt   time.Time
}

// Assignment gives a user a role.
type Assignment struct {
	UserID    string
	RoleID    string
	CreatedAt time.Time
}

// Profile is the user summary returned alongside a token.
type Profile struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	FirstName   string   `json:"firstName"`
	LastName    string   `json:"lastName"`
	InstituteID string   `json:"instituteId,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Role        string   `json:"role,omitempty"`
	Target      Audience `json:"target"`
}

// Session is the result of a successful login.
type Session struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        Profile   `json:"user"`
}
