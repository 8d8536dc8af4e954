package domain

import "time"

// User is the internal record for an external identity subject.
type User struct {
	ID            int64     `json:"id"            db:"id"`
	Subject       string    `json:"subject"       db:"subject"`
	Email         string    `json:"email"         db:"email"`
	DisplayName   string    `json:"displayName"   db:"display_name"`
	PhotoURL      string    `json:"photoUrl"      db:"photo_url"`
	EmailVerified bool      `json:"emailVerified" db:"email_verified"`
	CreatedAt     time.Time `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt"     db:"updated_at"`
}

// ExternalProfile is what the identity provider asserts about a signed-in user.
// The provider is the source of truth for these fields.
type ExternalProfile struct {
	Subject       string
	Email         string
	DisplayName   string
	PhotoURL      string
	EmailVerified bool
}

// UserContext is the authenticated user context injected into request handlers.
type UserContext struct {
	UserID  int64  `json:"user_id"`
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}
