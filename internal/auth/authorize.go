package auth

import (
	"fmt"
	"slices"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	Subject     string
	Email       string
	InstituteID string
	Roles       []string
	Audience    Audience
}

// PrincipalFromClaims builds a principal from verified claims.
func PrincipalFromClaims(c *Claims) Principal {
	return Principal{
		Subject:     c.Subject,
		Email:       c.Email,
		InstituteID: c.InstituteID,
		Roles:       slices.Clone(c.Roles),
		Audience:    c.Target,
	}
}

// IsPlatform reports whether the principal is a platform operator.
func (p Principal) IsPlatform() bool { return p.Audience == AudiencePlatform }

// HasRole reports whether the principal holds role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// CanAccess reports whether the principal may act in the given tenancy context.
// Platform operators may act anywhere; staff only inside their own institute.
func (p Principal) CanAccess(instituteID string) bool {
	if p.IsPlatform() {
		return true
	}
	return p.InstituteID != "" && p.InstituteID == instituteID
}

// RequireRole returns ErrForbidden naming the missing privilege.
func (p Principal) RequireRole(audience Audience, role string) error {
	if p.Audience != audience || !p.HasRole(role) {
		return fmt.Errorf("%w: %s privileges required", ErrForbidden, role)
	}
	return nil
}
