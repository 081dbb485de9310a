package model

import "time"

// Profile is the identity record of a resident, trainer or administrator
// as stored in the `profiles` table.  Its ID equals the identity ID and the
// `sub` claim of issued access tokens.  A profile is created together with
// its identity at signup and is never deleted by the service.
type Profile struct {
	ID          string    `json:"id"`           // profiles.id (UUID)
	Email       string    `json:"email"`        // profiles.email (unique)
	DisplayName string    `json:"display_name"` // profiles.display_name
	Unit        *string   `json:"unit"`         // profiles.unit, flat identifier (nullable)
	Role        Role      `json:"role"`         // profiles.role
	CreatedAt   time.Time `json:"created_at"`   // profiles.created_at
}

// Identity mirrors the `identities` table: the credential half of an
// account.  PasswordHash never leaves the repository and handler layers.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
	ID         uint64
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}
