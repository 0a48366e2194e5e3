package institute

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/ids"
	"instituteos.app/internal/obs"
	"instituteos.app/internal/tenancy"
	"instituteos.app/internal/trial"
)

// Invalidator drops cached domain lookups.
type Invalidator interface {
	Invalidate(ctx context.Context, domains ...string)
}

// Service provisions and administers institutes.
type Service struct {
	store Store
	cache Invalidator
	now   func() time.Time
	cost  int
	log   *zap.Logger
}

// Option configures Service.
type Option func(*Service)

// WithInvalidator registers the domain cache to flush on domain changes.
func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) { s.cache = inv }
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithPasswordCost overrides the bcrypt cost for admin passwords.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		if cost > 0 {
			s.cost = cost
		}
	}
}

// NewService constructs Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now, cost: auth.PasswordCost, log: obs.Logger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeDomain turns user input into a domain label.
func NormalizeDomain(raw string) (string, error) {
	label := slug.Make(strings.TrimSpace(raw))
	if label == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	if tenancy.IsReservedLabel(label) {
		return "", fmt.Errorf("%w: domain %q is reserved", ErrInvalidInput, label)
	}
	return label, nil
}

// ProvisionInput describes a new institute and its first administrator.
type ProvisionInput struct {
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	AdminEmail    string `json:"adminEmail"`
	AdminName     string `json:"adminName"`
	AdminPassword string `json:"adminPassword,omitempty"`
}

// ProvisionResult is returned once. OneTimePassword is only set when the
// password was generated.
type ProvisionResult struct {
	Institute       Institute `json:"institute"`
	AdminID         string    `json:"adminId"`
	AdminEmail      string    `json:"adminEmail"`
	OneTimePassword string    `json:"oneTimePassword,omitempty"`
}

// Provision creates an institute with its default roles, administrator,
// subscription and ROI stats. Only platform super admins may call it.
func (s *Service) Provision(ctx context.Context, caller auth.Principal, in ProvisionInput) (*ProvisionResult, error) {
	if err := caller.RequireRole(auth.AudiencePlatform, auth.RoleSuperAdmin); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	domain, err := NormalizeDomain(in.Domain)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.AdminEmail))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, fmt.Errorf("%w: valid admin email is required", ErrInvalidInput)
	}

	password, generated := in.AdminPassword, false
	if password == "" {
		if password, err = auth.GeneratePassword(); err != nil {
			return nil, err
		}
		generated = true
	} else if len(password) < auth.MinPasswordLength {
		return nil, fmt.Errorf("%w: admin password must be at least %d characters", ErrInvalidInput, auth.MinPasswordLength)
	}
	hash, err := auth.HashPasswordCost(password, s.cost)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	inst := Institute{
		ID:             ids.New(),
		Name:           name,
		Domain:         domain,
		Tier:           TierTrial,
		TrialStartDate: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	p := &Provisioning{Institute: inst}
	for _, r := range auth.DefaultInstituteRoles {
		role := auth.Role{
			ID:          ids.New(),
			InstituteID: inst.ID,
			Name:        r.Name,
			Permissions: append([]string(nil), r.Permissions...),
			CreatedAt:   now,
		}
		if role.Name == auth.RoleInstituteAdmin {
			p.AdminRoleID = role.ID
		}
		p.Roles = append(p.Roles, role)
	}
	first, last := splitName(in.AdminName)
	p.Admin = auth.User{
		ID:           ids.New(),
		InstituteID:  inst.ID,
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p.Subscription = Subscription{ID: ids.New(), InstituteID: inst.ID, ActiveModules: []string{}, UpdatedAt: now}
	p.RoiStats = RoiStats{InstituteID: inst.ID, LastCalculatedAt: now}

	if err := s.store.Provision(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("institute provisioned",
		zap.String("institute_id", inst.ID),
		zap.String("domain", domain),
		zap.String("by", caller.Subject))

	res := &ProvisionResult{Institute: inst, AdminID: p.Admin.ID, AdminEmail: email}
	if generated {
		res.OneTimePassword = password
	}
	return res, nil
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// List returns every institute with user and student counts. Platform only.
func (s *Service) List(ctx context.Context, caller auth.Principal) ([]Summary, error) {
	if !caller.IsPlatform() {
		return nil, fmt.Errorf("%w: platform access required", auth.ErrForbidden)
	}
	return s.store.ListInstitutes(ctx)
}

// Get returns the institute with the given id.
func (s *Service) Get(ctx context.Context, id string) (*Institute, error) {
	return s.store.FindInstitute(ctx, id)
}

// UpdateInput holds optional changes; nil fields are left untouched.
type UpdateInput struct {
	Name   *string `json:"name,omitempty"`
	Domain *string `json:"domain,omitempty"`
}

// Update renames an institute or changes its domain label. The caller must be
// an administrator of that institute.
func (s *Service) Update(ctx context.Context, caller auth.Principal, instituteID string, in UpdateInput) (*Institute, error) {
	if err := caller.RequireRole(auth.AudienceInstitute, auth.RoleInstituteAdmin); err != nil {
		return nil, err
	}
	if !caller.CanAccess(instituteID) {
		return nil, fmt.Errorf("%w: cross-tenant update", auth.ErrForbidden)
	}
	inst, err := s.store.FindInstitute(ctx, instituteID)
	if err != nil {
		return nil, err
	}
	oldDomain := inst.Domain
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		inst.Name = name
	}
	if in.Domain != nil {
		domain, err := NormalizeDomain(*in.Domain)
		if err != nil {
			return nil, err
		}
		inst.Domain = domain
	}
	inst.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateInstitute(ctx, inst); err != nil {
		return nil, err
	}
	if inst.Domain != oldDomain && s.cache != nil {
		s.cache.Invalidate(ctx, oldDomain, inst.Domain)
	}
	return inst, nil
}

// TrialLoader exposes institute and subscription state to the trial gate.
func TrialLoader(s Store) trial.Loader { return trialLoader{store: s} }

type trialLoader struct{ store Store }

func (l trialLoader) TrialState(ctx context.Context, instituteID string) (trial.State, error) {
	inst, err := l.store.FindInstitute(ctx, instituteID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return trial.State{}, trial.ErrNotFound
		}
		return trial.State{}, err
	}
	state := trial.State{TrialStart: inst.TrialStartDate}
	sub, err := l.store.FindSubscription(ctx, instituteID)
	switch {
	case errors.Is(err, ErrNotFound):
		return state, nil
	case err != nil:
		return trial.State{}, err
	}
	state.HasSubscription = true
	state.Paid = sub.IsPaid
	return state, nil
}
