// Package config loads Charon's bootstrap configuration (spec.md §6's
// "Configuration surface"). It follows the teacher's pattern in
// internal/config/config.go: load a .env file with godotenv if one is
// present, then populate a struct with cleanenv, then run struct-tag
// validation with go-playground/validator before handing the result
// back to the caller.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/UpperCi/charon/transport"
)

// Config is the configuration surface spec.md §6 enumerates.
type Config struct {
	TokenIssuer string `env:"CHARON_TOKEN_ISSUER" validate:"required"`

	AccessTokenTTL  time.Duration `env:"CHARON_ACCESS_TOKEN_TTL" env-default:"900s"`
	RefreshTokenTTL time.Duration `env:"CHARON_REFRESH_TOKEN_TTL" env-default:"1440h"` // 60 days
	SessionTTL      time.Duration `env:"CHARON_SESSION_TTL" env-default:"8760h"`       // 365 days

	AccessCookieName  string `env:"CHARON_ACCESS_COOKIE_NAME" env-default:"_access_token_signature"`
	RefreshCookieName string `env:"CHARON_REFRESH_COOKIE_NAME" env-default:"_refresh_token_signature"`

	AccessCookieHTTPOnly bool   `env:"CHARON_ACCESS_COOKIE_HTTP_ONLY" env-default:"true"`
	AccessCookieSameSite string `env:"CHARON_ACCESS_COOKIE_SAME_SITE" env-default:"strict" validate:"oneof=default lax strict none"`
	AccessCookieSecure   bool   `env:"CHARON_ACCESS_COOKIE_SECURE" env-default:"true"`

	RefreshCookieHTTPOnly bool   `env:"CHARON_REFRESH_COOKIE_HTTP_ONLY" env-default:"true"`
	RefreshCookieSameSite string `env:"CHARON_REFRESH_COOKIE_SAME_SITE" env-default:"strict" validate:"oneof=default lax strict none"`
	RefreshCookieSecure   bool   `env:"CHARON_REFRESH_COOKIE_SECURE" env-default:"true"`

	// SessionStoreModule selects the Store implementation at boot
	// ("redis" or "postgres"), per spec.md §9's pluggability note.
	SessionStoreModule string `env:"CHARON_SESSION_STORE_MODULE" env-default:"redis" validate:"oneof=redis postgres"`

	// TokenFactoryModule is currently always "hmac"; kept as a selector
	// so an alternate Factory can be wired without touching callers.
	TokenFactoryModule string `env:"CHARON_TOKEN_FACTORY_MODULE" env-default:"hmac"`

	// RedisAddr/RedisDB/RedisKeyPrefix describe the Redis store used
	// when SessionStoreModule is "redis". charon.New takes an
	// already-built Redis client and uses only RedisKeyPrefix; RedisAddr
	// and RedisDB are there for the host that builds that client.
	RedisAddr      string `env:"CHARON_REDIS_ADDR" env-default:"localhost:6379"`
	RedisDB        int    `env:"CHARON_REDIS_DB" env-default:"0"`
	RedisKeyPrefix string `env:"CHARON_REDIS_KEY_PREFIX" env-default:"charon"`

	// PostgresDSN is read when SessionStoreModule is "postgres".
	PostgresDSN string `env:"CHARON_POSTGRES_DSN"`

	// KafkaBrokers/KafkaEventsTopic are read when OptionalModules["events"]
	// is enabled (spec.md §6.3's events add-on), comma-separated broker
	// list following the teacher's internal/utils/kafka.Producer, which
	// also takes a []string of broker addresses.
	KafkaBrokers     string `env:"CHARON_KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaEventsTopic string `env:"CHARON_KAFKA_EVENTS_TOPIC" env-default:"charon.session.events"`

	// OptionalModules toggles spec.md §6.3's metrics/events add-ons.
	OptionalModules map[string]bool `env:"-"`
}

// KafkaBrokerList splits KafkaBrokers on commas, trimming blanks, for
// callers (charon.New, primarily) that need a []string for
// kafka.TCP(brokers...).
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	start := 0
	for i := 0; i <= len(c.KafkaBrokers); i++ {
		if i == len(c.KafkaBrokers) || c.KafkaBrokers[i] == ',' {
			if b := strings.TrimSpace(c.KafkaBrokers[start:i]); b != "" {
				brokers = append(brokers, b)
			}
			start = i + 1
		}
	}
	return brokers
}

// ErrInvalid wraps a configuration validation failure. spec.md §7:
// "Configuration missing required key: Bootstrap: Fatal; refuse to
// start" — hosts are expected to treat this as unrecoverable.
type ErrInvalid struct {
	Err error
}

func (e *ErrInvalid) Error() string { return "config: invalid: " + e.Err.Error() }
func (e *ErrInvalid) Unwrap() error { return e.Err }

// LoadConfig reads envPath (if it exists) with godotenv, then populates
// a Config from the process environment with cleanenv, then validates
// it. envPath may be empty to skip the .env step entirely.
func LoadConfig(envPath string) (*Config, error) {
	if envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", envPath, err)
			}
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	cfg.OptionalModules = readOptionalModules()

	if err := cfg.Validate(); err != nil {
		return nil, &ErrInvalid{Err: err}
	}
	return &cfg, nil
}

// Validate runs go-playground/validator over the struct tags above,
// then cross-field checks cleanenv can't express as tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("access_token_ttl must be positive")
	}
	if c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("refresh_token_ttl must be positive")
	}
	if c.SessionStoreModule == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required when session_store_module=postgres")
	}
	return nil
}

// AccessCookieOpts renders the access-cookie env knobs into a
// transport.CookieOpts.
func (c *Config) AccessCookieOpts() transport.CookieOpts {
	return transport.CookieOpts{
		HTTPOnly: c.AccessCookieHTTPOnly,
		SameSite: parseSameSite(c.AccessCookieSameSite),
		Secure:   c.AccessCookieSecure,
		Path:     "/",
	}
}

// RefreshCookieOpts renders the refresh-cookie env knobs into a
// transport.CookieOpts.
func (c *Config) RefreshCookieOpts() transport.CookieOpts {
	return transport.CookieOpts{
		HTTPOnly: c.RefreshCookieHTTPOnly,
		SameSite: parseSameSite(c.RefreshCookieSameSite),
		Secure:   c.RefreshCookieSecure,
		Path:     "/",
	}
}

func parseSameSite(v string) transport.SameSite {
	switch v {
	case "lax":
		return transport.SameSiteLax
	case "strict":
		return transport.SameSiteStrict
	case "none":
		return transport.SameSiteNone
	default:
		return transport.SameSiteDefault
	}
}

// readOptionalModules parses CHARON_OPTIONAL_MODULES as a comma-
// separated enable-list, e.g. "metrics,events". cleanenv has no clean
// way to express a set-from-CSV, so this is read directly.
func readOptionalModules() map[string]bool {
	raw := os.Getenv("CHARON_OPTIONAL_MODULES")
	modules := map[string]bool{}
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if name := raw[start:i]; name != "" {
				modules[name] = true
			}
			start = i + 1
		}
	}
	return modules
}
