package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"instituteos.app/internal/ids"
	"instituteos.app/internal/obs"
)

// Service authenticates staff and operators and registers staff accounts.
type Service struct {
	store  Store
	tokens *TokenService
	now    func() time.Time
	cost   int
	log    *zap.Logger
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source used for timestamps.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithPasswordCost overrides the bcrypt cost (tests use bcrypt.MinCost).
func WithPasswordCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.cost = cost
		}
	}
}

// NewService constructs Service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		tokens: tokens,
		now:    time.Now,
		cost:   PasswordCost,
		log:    obs.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tokens exposes the token service used for issuing and verifying.
func (s *Service) Tokens() *TokenService { return s.tokens }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login authenticates institute staff. When instituteID is set only accounts of
// that institute match.
func (s *Service) Login(ctx context.Context, email, password, instituteID string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email, strings.TrimSpace(instituteID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, fmt.Errorf("find user: %w", err)
	}
	if !user.Active {
		return Session{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	roles, err := s.store.UserRoles(ctx, user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("load roles: %w", err)
	}
	token, expiresAt, err := s.tokens.IssueInstituteToken(user.ID, user.Email, user.InstituteID, roles)
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User: Profile{
			ID:          user.ID,
			Email:       user.Email,
			FirstName:   user.FirstName,
			LastName:    user.LastName,
			InstituteID: user.InstituteID,
			Roles:       normalizeRoles(roles),
			Target:      AudienceInstitute,
		},
	}, nil
}

// PlatformLogin authenticates an active platform operator.
func (s *Service) PlatformLogin(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrUnauthorized
	}
	user, err := s.store.FindPlatformUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, fmt.Errorf("find platform user: %w", err)
	}
	if !user.Active {
		return Session{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	token, expiresAt, err := s.tokens.IssuePlatformToken(user.ID, user.Email, []string{user.Role})
	if err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User: Profile{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Role:      user.Role,
			Target:    AudiencePlatform,
		},
	}, nil
}

// Authenticate verifies a token and confirms its subject still exists and is active.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, ok := s.tokens.Verify(token)
	if !ok {
		return Principal{}, ErrUnauthorized
	}
	switch claims.Target {
	case AudiencePlatform:
		user, err := s.store.FindPlatformUser(ctx, claims.Subject)
		if err != nil {
			return Principal{}, s.lookupFailure(err, claims)
		}
		if !user.Active {
			return Principal{}, ErrUnauthorized
		}
	default:
		user, err := s.store.FindUser(ctx, claims.Subject)
		if err != nil {
			return Principal{}, s.lookupFailure(err, claims)
		}
		if !user.Active || user.InstituteID != claims.InstituteID {
			return Principal{}, ErrUnauthorized
		}
	}
	return PrincipalFromClaims(claims), nil
}

func (s *Service) lookupFailure(err error, claims *Claims) error {
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthorized
	}
	s.log.Warn("principal lookup failed",
		zap.String("subject", claims.Subject),
		zap.String("target", string(claims.Target)),
		zap.Error(err))
	return fmt.Errorf("load principal: %w", err)
}

// RegisterInput carries a new staff account.
type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"roleName"`
}

// Register creates a staff account inside instituteID. The caller must be an
// administrator of that same institute.
func (s *Service) Register(ctx context.Context, caller Principal, instituteID string, in RegisterInput) (*User, error) {
	if err := caller.RequireRole(AudienceInstitute, RoleInstituteAdmin); err != nil {
		return nil, err
	}
	if !caller.CanAccess(instituteID) {
		return nil, fmt.Errorf("%w: cross-tenant registration", ErrForbidden)
	}

	email := normalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	role := strings.ToUpper(strings.TrimSpace(in.Role))
	if !IsInstituteRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	hash, err := HashPasswordCost(in.Password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		InstituteID:  instituteID,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUserWithRole(ctx, user, role); err != nil {
		return nil, err
	}
	return user, nil
}

// SeedPlatformUser creates an operator account, used to bootstrap an empty install.
func (s *Service) SeedPlatformUser(ctx context.Context, email, password, firstName, lastName string) (*PlatformUser, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLength)
	}
	hash, err := HashPasswordCost(password, s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &PlatformUser{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		Role:         RoleSuperAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreatePlatformUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
