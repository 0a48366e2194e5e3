package auth

import "context"

// Store describes persistence operations required by the auth subsystem.
// Lookups return ErrNotFound for missing rows.
type Store interface {
	FindUser(ctx context.Context, id string) (*User, error)
	// FindUserByEmail matches email case-insensitively; an empty instituteID
	// matches the oldest account with that email in any institute.
	FindUserByEmail(ctx context.Context, email, instituteID string) (*User, error)
	UserRoles(ctx context.Context, userID string) ([]string, error)
	// CreateUserWithRole inserts u and assigns the institute role named roleName
	// atomically. It returns ErrConflict for a duplicate email and ErrNotFound
	// when the institute has no such role.
	CreateUserWithRole(ctx context.Context, u *User, roleName string) error

	FindPlatformUser(ctx context.Context, id string) (*PlatformUser, error)
	FindPlatformUserByEmail(ctx context.Context, email string) (*PlatformUser, error)
	CreatePlatformUser(ctx context.Context, u *PlatformUser) error
}
