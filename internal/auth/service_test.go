package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"instituteos.app/internal/auth"
	"instituteos.app/internal/store/memory"
)

type fixture struct {
	store  *memory.Store
	tokens *auth.TokenService
	svc    *auth.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	tokens, err := auth.NewTokenService("test-secret")
	require.NoError(t, err)
	hash, err := auth.HashPasswordCost("correct-horse", bcrypt.MinCost)
	require.NoError(t, err)

	store.PutUser(auth.User{ID: "u-admin", InstituteID: "inst-1", Email: "admin@greenwood.edu", PasswordHash: hash, FirstName: "Ada", Active: true}, auth.RoleInstituteAdmin)
	store.PutUser(auth.User{ID: "u-teacher", InstituteID: "inst-1", Email: "teacher@greenwood.edu", PasswordHash: hash, Active: true}, auth.RoleTeacher)
	store.PutUser(auth.User{ID: "u-gone", InstituteID: "inst-1", Email: "gone@greenwood.edu", PasswordHash: hash, Active: false}, auth.RoleTeacher)
	store.PutUser(auth.User{ID: "u-other", InstituteID: "inst-2", Email: "admin@oakridge.edu", PasswordHash: hash, Active: true}, auth.RoleInstituteAdmin)
	require.NoError(t, store.CreatePlatformUser(context.Background(), &auth.PlatformUser{ID: "op-1", Email: "ops@instituteos.app", PasswordHash: hash, Role: auth.RoleSuperAdmin, Active: true}))
	require.NoError(t, store.CreatePlatformUser(context.Background(), &auth.PlatformUser{ID: "op-2", Email: "former@instituteos.app", PasswordHash: hash, Role: auth.RoleSuperAdmin}))

	return fixture{store: store, tokens: tokens, svc: auth.NewService(store, tokens, auth.WithPasswordCost(bcrypt.MinCost))}
}

func TestLoginIssuesInstituteToken(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Login(context.Background(), " Admin@Greenwood.edu ", "correct-horse", "")
	require.NoError(t, err)
	assert.Equal(t, auth.AudienceInstitute, sess.User.Target)
	assert.Equal(t, "inst-1", sess.User.InstituteID)
	assert.Equal(t, []string{auth.RoleInstituteAdmin}, sess.User.Roles)

	claims, ok := f.tokens.Verify(sess.AccessToken)
	require.True(t, ok)
	assert.Equal(t, "u-admin", claims.Subject)
	assert.Equal(t, "inst-1", claims.InstituteID)
	assert.Equal(t, auth.AudienceInstitute, claims.Target)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	cases := []struct{ email, password, institute string }{
		{"admin@greenwood.edu", "wrong", ""},
		{"nobody@greenwood.edu", "correct-horse", ""},
		{"gone@greenwood.edu", "correct-horse", ""},
		{"admin@greenwood.edu", "correct-horse", "inst-2"},
		{"", "correct-horse", ""},
		{"ops@instituteos.app", "correct-horse", ""},
	}
	for _, tc := range cases {
		_, err := f.svc.Login(context.Background(), tc.email, tc.password, tc.institute)
		assert.ErrorIs(t, err, auth.ErrUnauthorized, tc.email)
	}
}

func TestPlatformLogin(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.PlatformLogin(context.Background(), "ops@instituteos.app", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, auth.AudiencePlatform, sess.User.Target)
	assert.Equal(t, auth.RoleSuperAdmin, sess.User.Role)

	_, err = f.svc.PlatformLogin(context.Background(), "former@instituteos.app", "correct-horse")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = f.svc.PlatformLogin(context.Background(), "admin@greenwood.edu", "correct-horse")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, _, err := f.tokens.IssueInstituteToken("u-teacher", "teacher@greenwood.edu", "inst-1", []string{auth.RoleTeacher})
	require.NoError(t, err)
	p, err := f.svc.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-teacher", p.Subject)
	assert.True(t, p.CanAccess("inst-1"))
	assert.False(t, p.CanAccess("inst-2"))

	inactive, _, err := f.tokens.IssueInstituteToken("u-gone", "gone@greenwood.edu", "inst-1", nil)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, inactive)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	moved, _, err := f.tokens.IssueInstituteToken("u-teacher", "teacher@greenwood.edu", "inst-2", nil)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, moved)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	op, _, err := f.tokens.IssuePlatformToken("op-1", "ops@instituteos.app", []string{auth.RoleSuperAdmin})
	require.NoError(t, err)
	p, err = f.svc.Authenticate(ctx, op)
	require.NoError(t, err)
	assert.True(t, p.IsPlatform())
	assert.True(t, p.CanAccess("inst-2"))

	former, _, err := f.tokens.IssuePlatformToken("op-2", "former@instituteos.app", []string{auth.RoleSuperAdmin})
	require.NoError(t, err)
	_, err = f.svc.Authenticate(ctx, former)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	_, err = f.svc.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := auth.Principal{Subject: "u-admin", InstituteID: "inst-1", Roles: []string{auth.RoleInstituteAdmin}, Audience: auth.AudienceInstitute}
	in := auth.RegisterInput{Email: "new@greenwood.edu", Password: "longenough", FirstName: "New", Role: "teacher"}

	u, err := f.svc.Register(ctx, admin, "inst-1", in)
	require.NoError(t, err)
	assert.Equal(t, "inst-1", u.InstituteID)
	roles, err := f.store.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{auth.RoleTeacher}, roles)

	_, err = f.svc.Register(ctx, admin, "inst-1", in)
	assert.ErrorIs(t, err, auth.ErrConflict)

	_, err = f.svc.Register(ctx, admin, "inst-2", auth.RegisterInput{Email: "x@y.z", Password: "longenough", Role: auth.RoleTeacher})
	assert.ErrorIs(t, err, auth.ErrForbidden, "cross-tenant")

	teacher := auth.Principal{Subject: "u-teacher", InstituteID: "inst-1", Roles: []string{auth.RoleTeacher}, Audience: auth.AudienceInstitute}
	_, err = f.svc.Register(ctx, teacher, "inst-1", auth.RegisterInput{Email: "x@y.z", Password: "longenough", Role: auth.RoleTeacher})
	assert.ErrorIs(t, err, auth.ErrForbidden)

	for _, bad := range []auth.RegisterInput{
		{Email: "not-an-email", Password: "longenough", Role: auth.RoleTeacher},
		{Email: "a@b.c", Password: "short", Role: auth.RoleTeacher},
		{Email: "a@b.c", Password: "longenough", Role: auth.RoleSuperAdmin},
	} {
		_, err := f.svc.Register(ctx, admin, "inst-1", bad)
		assert.True(t, errors.Is(err, auth.ErrInvalidInput), "%+v: %v", bad, err)
	}

	_, err = f.svc.Register(ctx, admin, "inst-1", auth.RegisterInput{Email: "p@greenwood.edu", Password: "longenough", Role: auth.RolePrincipal})
	assert.ErrorIs(t, err, auth.ErrNotFound, "institute has no PRINCIPAL role in this fixture")
}

func TestSeedPlatformUser(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.SeedPlatformUser(context.Background(), "Root@InstituteOS.app", "longenough", "Root", "")
	require.NoError(t, err)
	assert.Equal(t, "root@instituteos.app", u.Email)
	assert.Equal(t, auth.RoleSuperAdmin, u.Role)

	sess, err := f.svc.PlatformLogin(context.Background(), "root@instituteos.app", "longenough")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), sess.ExpiresAt, time.Minute)

	_, err = f.svc.SeedPlatformUser(context.Background(), "root@instituteos.app", "longenough", "", "")
	assert.ErrorIs(t, err, auth.ErrConflict)
}
