package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"instituteos.app/internal/tenancy"
)

const (
	// DefaultTokenTTL is the validity window of every issued token.
	DefaultTokenTTL = 7 * 24 * time.Hour
	defaultIssuer   = "instituteos"
)

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = errors.New("auth secret is not configured")

// Audience separates operator tokens from institute staff tokens.
type Audience string

const (
	AudiencePlatform  Audience = "platform"
	AudienceInstitute Audience = "institute"
)

// Valid reports whether a is a known audience.
func (a Audience) Valid() bool {
	return a == AudiencePlatform || a == AudienceInstitute
}

// Claims is the signed token payload.
type Claims struct {
	Email       string   `json:"email"`
	InstituteID string   `json:"instituteId"`
	Roles       []string `json:"roles"`
	Target      Audience `json:"target"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 identity tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithTokenTTL overrides the token lifetime.
func WithTokenTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewTokenService builds a token service around the shared secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	s := &TokenService{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// IssuePlatformToken signs an operator token. At least one role is required.
func (s *TokenService) IssuePlatformToken(operatorID, email string, roles []string) (string, time.Time, error) {
	roles = normalizeRoles(roles)
	if len(roles) == 0 {
		return "", time.Time{}, fmt.Errorf("%w: platform token requires at least one role", ErrInvalidInput)
	}
	return s.sign(operatorID, email, tenancy.PlatformSentinel, roles, AudiencePlatform)
}

// IssueInstituteToken signs a staff token bound to instituteID.
func (s *TokenService) IssueInstituteToken(userID, email, instituteID string, roles []string) (string, time.Time, error) {
	instituteID = strings.TrimSpace(instituteID)
	if instituteID == "" || instituteID == tenancy.PlatformSentinel {
		return "", time.Time{}, fmt.Errorf("%w: institute id is required", ErrInvalidInput)
	}
	return s.sign(userID, email, instituteID, normalizeRoles(roles), AudienceInstitute)
}

func (s *TokenService) sign(subject, email, instituteID string, roles []string, target Audience) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if roles == nil {
		roles = []string{}
	}
	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Email:       strings.TrimSpace(email),
		InstituteID: instituteID,
		Roles:       roles,
		Target:      target,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry and payload shape. Any failure yields (nil, false).
func (s *TokenService) Verify(token string) (*Claims, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}
	claims := &Claims{}
	parsed, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if err := validateClaims(claims); err != nil {
		return nil, false
	}
	claims.Roles = normalizeRoles(claims.Roles)
	return claims, true
}

func validateClaims(c *Claims) error {
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("subject missing")
	}
	switch c.Target {
	case AudiencePlatform:
		if c.InstituteID != tenancy.PlatformSentinel {
			return errors.New("platform token bound to an institute")
		}
		if len(normalizeRoles(c.Roles)) == 0 {
			return errors.New("platform token without roles")
		}
	case AudienceInstitute:
		if c.InstituteID == "" || c.InstituteID == tenancy.PlatformSentinel {
			return errors.New("institute token without institute")
		}
	default:
		return fmt.Errorf("unknown target %q", c.Target)
	}
	return nil
}

// normalizeRoles trims, drops empties and dedupes while keeping order and case.
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
