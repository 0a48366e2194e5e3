package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New(), false)
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 60*24*time.Hour, cfg.Trial.Window)
	assert.False(t, cfg.Tenancy.TrustOverrideHeader)
	assert.Equal(t, ":3001", cfg.HTTP.Addr)
	assert.False(t, cfg.HTTP.TrustForwardedFor)
	assert.True(t, cfg.Signal.Enabled)
	assert.Equal(t, "@hourly", cfg.Signal.OverdueSchedule)
	assert.Equal(t, 24*time.Hour, cfg.Signal.ProximityWindow)
	assert.Error(t, cfg.Validate(), "missing secret must fail validation")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("INSTITUTEOS_AUTH_SECRET", "s3cret")
	t.Setenv("INSTITUTEOS_ROOT_DOMAIN", " InstituteOS.App. ")
	t.Setenv("INSTITUTEOS_TENANCY_TRUST_OVERRIDE_HEADER", "true")
	t.Setenv("INSTITUTEOS_AUTH_TOKEN_TTL", "24h")

	cfg, err := load(viper.New(), false)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Auth.Secret)
	assert.Equal(t, "instituteos.app", cfg.RootDomain)
	assert.True(t, cfg.Tenancy.TrustOverrideHeader)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.NoError(t, cfg.Validate())
}
