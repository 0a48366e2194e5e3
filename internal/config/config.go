package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "INSTITUTEOS"

// Config holds process-wide settings for the api, edge and tooling binaries.
type Config struct {
	AppEnv  string `mapstructure:"app_env"`
	Version string `mapstructure:"version"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	HTTP struct {
		Addr              string        `mapstructure:"addr"`
		ReadTimeout       time.Duration `mapstructure:"read_timeout"`
		ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
		WriteTimeout      time.Duration `mapstructure:"write_timeout"`
		IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
		// TrustForwardedFor keys client IPs on X-Forwarded-For. Only set behind the edge.
		TrustForwardedFor bool          `mapstructure:"trust_forwarded_for"`
	} `mapstructure:"http"`

	GRPC struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"grpc"`

	Edge struct {
		Addr     string `mapstructure:"addr"`
		Upstream string `mapstructure:"upstream"`
	} `mapstructure:"edge"`

	// RootDomain is the registrable domain tenants hang off, e.g. instituteos.app.
	// Empty means "derive from the host" (last two labels, or localhost).
	RootDomain string `mapstructure:"root_domain"`

	Auth struct {
		Secret   string        `mapstructure:"secret"`
		Issuer   string        `mapstructure:"issuer"`
		TokenTTL time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Tenancy struct {
		// TrustOverrideHeader enables x-institute-id. Only set behind the edge.
		TrustOverrideHeader bool          `mapstructure:"trust_override_header"`
		CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"tenancy"`

	Trial struct {
		Window time.Duration `mapstructure:"window"`
	} `mapstructure:"trial"`

	Usage struct {
		MaxInFlight  int           `mapstructure:"max_in_flight"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"usage"`

	Signal struct {
		Enabled           bool          `mapstructure:"enabled"`
		OverdueSchedule   string        `mapstructure:"overdue_schedule"`
		ProximitySchedule string        `mapstructure:"proximity_schedule"`
		ProximityWindow   time.Duration `mapstructure:"proximity_window"`
		JobTimeout        time.Duration `mapstructure:"job_timeout"`
	} `mapstructure:"signal"`

	Login struct {
		RateBurst  int `mapstructure:"rate_burst"`
		RatePerSec int `mapstructure:"rate_per_sec"`
	} `mapstructure:"login"`

	Database struct {
		DSN             string        `mapstructure:"dsn"`
		MaxOpenConns    int           `mapstructure:"max_open_conns"`
		MaxIdleConns    int           `mapstructure:"max_idle_conns"`
		ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`

	// Bootstrap seeds a platform operator on an empty install.
	Bootstrap struct {
		Email    string `mapstructure:"email"`
		Password string `mapstructure:"password"`
	} `mapstructure:"bootstrap"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")
	v.SetDefault("version", "dev")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("http.addr", ":3001")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.read_header_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.trust_forwarded_for", false)

	v.SetDefault("grpc.addr", ":9091")

	v.SetDefault("edge.addr", ":3000")
	v.SetDefault("edge.upstream", "http://127.0.0.1:3100")

	v.SetDefault("root_domain", "")

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "instituteos")
	v.SetDefault("auth.token_ttl", 7*24*time.Hour)

	v.SetDefault("tenancy.trust_override_header", false)
	v.SetDefault("tenancy.cache_ttl", 5*time.Minute)

	v.SetDefault("trial.window", 60*24*time.Hour)

	v.SetDefault("usage.max_in_flight", 64)
	v.SetDefault("usage.write_timeout", 5*time.Second)

	v.SetDefault("signal.enabled", true)
	v.SetDefault("signal.overdue_schedule", "@hourly")
	v.SetDefault("signal.proximity_schedule", "@hourly")
	v.SetDefault("signal.proximity_window", 24*time.Hour)
	v.SetDefault("signal.job_timeout", time.Minute)

	v.SetDefault("login.rate_burst", 10)
	v.SetDefault("login.rate_per_sec", 2)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("bootstrap.email", "")
	v.SetDefault("bootstrap.password", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Load reads defaults, an optional config.yaml (current directory or /etc/instituteos)
// and INSTITUTEOS_* environment variables, in increasing priority.
func Load() (*Config, error) {
	return load(viper.New(), true)
}

func load(v *viper.Viper, readFile bool) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if readFile {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/instituteos")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.RootDomain = strings.Trim(strings.ToLower(strings.TrimSpace(cfg.RootDomain)), ".")
	return &cfg, nil
}

// Validate checks settings every token-handling binary depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("config: auth.secret is required (INSTITUTEOS_AUTH_SECRET)")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	if c.Trial.Window <= 0 {
		return errors.New("config: trial.window must be positive")
	}
	return nil
}

// IsProduction reports whether the process runs with app_env=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}
