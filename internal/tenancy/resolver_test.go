package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func staticLookup(domains map[string]string) LookupFunc {
	return func(_ context.Context, domain string) (string, error) {
		if id, ok := domains[domain]; ok {
			return id, nil
		}
		return "", ErrNotFound
	}
}

func TestResolvePlatformHost(t *testing.T) {
	r := NewResolver(staticLookup(nil), WithLogger(zap.NewNop()))
	for _, host := range []string{"platform.example.com", "platform.localhost:3000"} {
		res := r.Resolve(context.Background(), host, "")
		assert.Equal(t, SurfacePlatform, res.Surface)
		assert.Equal(t, PlatformSentinel, res.InstituteID)
	}
}

func TestResolveTenantCaseInsensitive(t *testing.T) {
	r := NewResolver(staticLookup(map[string]string{"greenwood": "inst-1"}), WithLogger(zap.NewNop()))
	for _, host := range []string{"greenwood.example.com", "GreenWood.example.com", "greenwood.localhost:3000"} {
		res := r.Resolve(context.Background(), host, "")
		require.True(t, res.Resolved(), host)
		assert.Equal(t, "inst-1", res.InstituteID)
		assert.Equal(t, SurfaceTenant, res.Surface)
	}
}

func TestResolveBareRootIsPublic(t *testing.T) {
	called := false
	r := NewResolver(LookupFunc(func(context.Context, string) (string, error) {
		called = true
		return "x", nil
	}), WithLogger(zap.NewNop()))
	for _, host := range []string{"example.com", "localhost:3000", "localhost"} {
		res := r.Resolve(context.Background(), host, "")
		assert.False(t, res.Resolved(), host)
		assert.Equal(t, SurfacePublic, res.Surface)
	}
	assert.False(t, called, "public hosts must not hit storage")
}

func TestResolveUnknownTenantIsUnresolved(t *testing.T) {
	r := NewResolver(staticLookup(map[string]string{"greenwood": "inst-1"}), WithLogger(zap.NewNop()))
	res := r.Resolve(context.Background(), "oakridge.example.com", "")
	assert.False(t, res.Resolved())
	assert.Equal(t, SurfaceTenant, res.Surface)
}

func TestResolveLookupErrorFailsClosed(t *testing.T) {
	r := NewResolver(LookupFunc(func(context.Context, string) (string, error) {
		return "inst-guess", errors.New("connection refused")
	}), WithLogger(zap.NewNop()))
	res := r.Resolve(context.Background(), "greenwood.example.com", "")
	assert.False(t, res.Resolved())
}

func TestResolveOverrideVerbatim(t *testing.T) {
	r := NewResolver(staticLookup(nil), WithLogger(zap.NewNop()))
	res := r.Resolve(context.Background(), "example.com", "inst-42")
	assert.True(t, res.Override)
	assert.Equal(t, "inst-42", res.InstituteID)
	assert.Equal(t, SurfaceTenant, res.Surface)

	res = r.Resolve(context.Background(), "greenwood.example.com", "  ")
	assert.False(t, res.Override)
}

func TestResolveWithRootDomain(t *testing.T) {
	r := NewResolver(staticLookup(map[string]string{"greenwood": "inst-1"}),
		WithRootDomain("App.InstituteOS.co.in"), WithLogger(zap.NewNop()))
	res := r.Resolve(context.Background(), "greenwood.app.instituteos.co.in", "")
	assert.Equal(t, "inst-1", res.InstituteID)
	assert.Equal(t, "app.instituteos.co.in", r.RootDomain())
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	_, ok := InstituteFromContext(ctx)
	assert.False(t, ok)

	assert.Equal(t, ctx, WithInstitute(ctx, ""))

	ctx = WithInstitute(ctx, "inst-1")
	id, ok := InstituteFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "inst-1", id)
	assert.True(t, IsTenant(ctx))
	assert.False(t, IsTenant(WithInstitute(context.Background(), PlatformSentinel)))
}
