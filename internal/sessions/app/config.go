package app

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aussiebroadwan/sessions/internal/sessions/service"
	"github.com/aussiebroadwan/sessions/pkg/httpx"
	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	KeyStorageEphemeral  = "ephemeral"
	KeyStoragePersistent = "persistent"
)

// Config is read from the environment and an optional .env file.
type Config struct {
	Port                int           `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	LogFormat           string        `mapstructure:"LOG_FORMAT"`
	ShutdownGracePeriod time.Duration `mapstructure:"SHUTDOWN_GRACE_PERIOD"`

	Issuer         string `mapstructure:"SESSIONS_ISSUER"`
	Algorithm      string `mapstructure:"SESSIONS_ALGORITHM"` // RS256, ES256 or EdDSA
	NumKeys        int    `mapstructure:"SESSIONS_NUM_KEYS"`
	RSABits        int    `mapstructure:"SESSIONS_RSA_BITS"`
	KeyStorageMode string `mapstructure:"KEY_STORAGE_MODE"`
	MasterKeyPath  string `mapstructure:"MASTER_KEY_PATH"`
	PepperFile     string `mapstructure:"PEPPER_FILE"`

	DatabaseDriver   string `mapstructure:"DATABASE_DRIVER"`
	DatabaseFile     string `mapstructure:"DATABASE_FILE"`
	DatabaseURL      string `mapstructure:"DATABASE_URL"`
	DatabaseMaxConns int32  `mapstructure:"DATABASE_MAX_CONNS"`

	// RedisURL enables the shared revocation cache when set.
	RedisURL    string `mapstructure:"REDIS_URL"`
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	AccessTokenTTL       time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL      time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	SessionTTL           time.Duration `mapstructure:"SESSION_TTL"`
	RotateRefreshTokens  bool          `mapstructure:"ROTATE_REFRESH_TOKENS"`
	UnknownJTIPolicy     string        `mapstructure:"REVOCATION_UNKNOWN_JTI"`
	RevocationCacheTTL   time.Duration `mapstructure:"REVOCATION_CACHE_TTL"`
	RevocationCacheSize  int           `mapstructure:"REVOCATION_CACHE_SIZE"`
	BackendTimeout       time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	HousekeepingInterval time.Duration `mapstructure:"HOUSEKEEPING_INTERVAL"`
	SessionRetention     time.Duration `mapstructure:"SESSION_RETENTION"`

	// Rate limits are "requests/window", e.g. "5/1m".
	RateLimitStrict   string `mapstructure:"RATE_LIMIT_STRICT"`
	RateLimitModerate string `mapstructure:"RATE_LIMIT_MODERATE"`
	RateLimitLenient  string `mapstructure:"RATE_LIMIT_LENIENT"`
	RateLimitPublic   string `mapstructure:"RATE_LIMIT_PUBLIC"`
}

var defaults = map[string]any{
	"PORT":                  8080,
	"ENV":                   "dev",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "json",
	"SHUTDOWN_GRACE_PERIOD": 10 * time.Second,

	"SESSIONS_ISSUER":    "sessions",
	"SESSIONS_ALGORITHM": jwtx.AlgorithmEdDSA,
	"SESSIONS_NUM_KEYS":  3,
	"SESSIONS_RSA_BITS":  0,
	"KEY_STORAGE_MODE":   KeyStoragePersistent,
	"MASTER_KEY_PATH":    "master.key",
	"PEPPER_FILE":        "pepper",

	"DATABASE_DRIVER":    DriverSQLite,
	"DATABASE_FILE":      "sessions.db",
	"DATABASE_URL":       "",
	"DATABASE_MAX_CONNS": 10,

	"REDIS_URL":    "",
	"REDIS_PREFIX": "sessions:revoked:",

	"ACCESS_TOKEN_TTL":       time.Hour,
	"REFRESH_TOKEN_TTL":      7 * 24 * time.Hour,
	"SESSION_TTL":            7 * 24 * time.Hour,
	"ROTATE_REFRESH_TOKENS":  true,
	"REVOCATION_UNKNOWN_JTI": string(service.AllowUnknownJTI),
	"REVOCATION_CACHE_TTL":   service.DefaultRevocationCacheTTL,
	"REVOCATION_CACHE_SIZE":  100_000,
	"BACKEND_TIMEOUT":        service.DefaultBackendTimeout,
	"HOUSEKEEPING_INTERVAL":  time.Hour,
	"SESSION_RETENTION":      30 * 24 * time.Hour,

	"RATE_LIMIT_STRICT":   "5/1m",
	"RATE_LIMIT_MODERATE": "20/1m",
	"RATE_LIMIT_LENIENT":  "100/1m",
	"RATE_LIMIT_PUBLIC":   "1000/1m",
}

// LoadConfig reads .env (if present) then the environment. Environment
// variables win over .env.
func LoadConfig() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // a missing .env is fine

	v.AutomaticEnv()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalise() {
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	c.KeyStorageMode = strings.ToLower(strings.TrimSpace(c.KeyStorageMode))
	c.UnknownJTIPolicy = strings.ToLower(strings.TrimSpace(c.UnknownJTIPolicy))
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("config: PORT %d out of range", c.Port))
	}
	if c.Issuer == "" {
		errs = append(errs, errors.New("config: SESSIONS_ISSUER must be set"))
	}
	if !slices.Contains([]string{jwtx.AlgorithmEdDSA, jwtx.AlgorithmES256, jwtx.AlgorithmRS256}, c.Algorithm) {
		errs = append(errs, fmt.Errorf("config: unsupported SESSIONS_ALGORITHM %q", c.Algorithm))
	}
	if c.KeyStorageMode != KeyStorageEphemeral && c.KeyStorageMode != KeyStoragePersistent {
		errs = append(errs, fmt.Errorf("config: KEY_STORAGE_MODE must be %s or %s", KeyStorageEphemeral, KeyStoragePersistent))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("config: DATABASE_FILE must be set for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL must be set for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: DATABASE_DRIVER must be %s or %s", DriverSQLite, DriverPostgres))
	}

	if _, err := service.ParseUnknownJTIPolicy(c.UnknownJTIPolicy); err != nil {
		errs = append(errs, fmt.Errorf("config: REVOCATION_UNKNOWN_JTI: %w", err))
	}

	for name, d := range map[string]time.Duration{
		"ACCESS_TOKEN_TTL":     c.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":    c.RefreshTokenTTL,
		"SESSION_TTL":          c.SessionTTL,
		"REVOCATION_CACHE_TTL": c.RevocationCacheTTL,
		"BACKEND_TIMEOUT":      c.BackendTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be positive", name))
		}
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		errs = append(errs, errors.New("config: ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL"))
	}
	if _, err := c.RateProfiles(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Policy returns the parsed unknown-jti policy. Call after Validate.
func (c Config) Policy() service.UnknownJTIPolicy {
	p, _ := service.ParseUnknownJTIPolicy(c.UnknownJTIPolicy)
	return p
}

// MaxTokenTTL is the longest lifetime of any token the service signs.
func (c Config) MaxTokenTTL() time.Duration {
	return max(c.AccessTokenTTL, c.RefreshTokenTTL)
}

// KeyLifetime is how long a persisted signing key verifies tokens. It
// always leaves a key at least one MaxTokenTTL of signing time.
func (c Config) KeyLifetime() time.Duration {
	return max(jwtx.DefaultKeyLifetime, 2*c.MaxTokenTTL())
}

// RateProfiles parses the RATE_LIMIT_* settings.
func (c Config) RateProfiles() (httpx.RateProfiles, error) {
	var (
		p    httpx.RateProfiles
		errs []error
	)
	for _, f := range []struct {
		name string
		raw  string
		dst  *httpx.RateProfile
	}{
		{"RATE_LIMIT_STRICT", c.RateLimitStrict, &p.Strict},
		{"RATE_LIMIT_MODERATE", c.RateLimitModerate, &p.Moderate},
		{"RATE_LIMIT_LENIENT", c.RateLimitLenient, &p.Lenient},
		{"RATE_LIMIT_PUBLIC", c.RateLimitPublic, &p.Public},
	} {
		rp, err := httpx.ParseRateProfile(f.raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", f.name, err))
			continue
		}
		*f.dst = rp
	}
	return p, errors.Join(errs...)
}
