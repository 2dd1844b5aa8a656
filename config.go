package holocrypt

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PlaceholderSentinel marks credentials copied from the example environment
const PlaceholderSentinel = "placeholder"

const (
	DriverSupabase = "supabase"
	DriverLocal    = "local"
)

// Config holds application options
type Config interface {
	GetAddr() string
	GetDebug() bool
	GetStore() StoreConfig
	GetClientCookieName() string
	GetClientTTL() time.Duration
	GetMaxClientScopes() int
	GetSweepInterval() time.Duration
	GetLoadingGrace() time.Duration
	GetRequestTimeout() time.Duration
	GetMaxLoginAttempts() int
	GetCSRFEnabled() bool
	GetSecureCookies() bool
	Warnings() []string
}

// RedisConfig enables the redis token storage when Addr is set
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// StoreConfig selects and configures the session store adapter
type StoreConfig struct {
	Driver      string        `yaml:"driver"`
	URL         string        `yaml:"url"`
	Key         string        `yaml:"key"`
	JWTSecret   string        `yaml:"jwt_secret"`
	JWKSURL     string        `yaml:"jwks_url"`
	DSN         string        `yaml:"dsn"`
	AutoConfirm bool          `yaml:"auto_confirm"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	Redis       RedisConfig   `yaml:"redis"`
}

// Configured reports whether the credentials can reach a real store
func (s StoreConfig) Configured() bool {
	if s.Driver == DriverLocal {
		return true
	}
	return !IsPlaceholder(s.URL) && !IsPlaceholder(s.Key)
}

// ClientConfig controls client scopes
type ClientConfig struct {
	CookieName    string        `yaml:"cookie_name"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	SecureCookies bool          `yaml:"secure_cookies"`
	// MaxScopes caps live client scopes, zero disables the cap
	MaxScopes     int           `yaml:"max_scopes"`
}

// BaseConfig is the default Config implementation
type BaseConfig struct {
	Addr             string        `yaml:"addr"`
	Debug            bool          `yaml:"debug"`
	Store            StoreConfig   `yaml:"store"`
	Client           ClientConfig  `yaml:"client"`
	LoadingGrace     time.Duration `yaml:"loading_grace"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	CSRF             *bool         `yaml:"csrf"`
}

var _ Config = (*BaseConfig)(nil)

// DefaultConfig returns a config with every default applied
func DefaultConfig() *BaseConfig {
	csrf := true
	return &BaseConfig{
		Addr: ":8572",
		Store: StoreConfig{
			Driver:   DriverSupabase,
			DSN:      "file:holocrypt.db?cache=shared",
			TokenTTL: time.Hour,
			Redis: RedisConfig{
				Prefix: "holocrypt:session:",
				TTL:    7 * 24 * time.Hour,
			},
		},
		Client: ClientConfig{
			CookieName:    "holocrypt_client",
			TTL:           30 * time.Minute,
			SweepInterval: time.Minute,
			MaxScopes:     10000,
		},
		LoadingGrace:     250 * time.Millisecond,
		RequestTimeout:   10 * time.Second,
		MaxLoginAttempts: DefaultMaxLoginAttempts,
		CSRF:             &csrf,
	}
}

// LoadConfig reads the optional YAML file at path and applies environment
// overrides on top of it.
func LoadConfig(path string) (*BaseConfig, error) {
	return LoadConfigWithEnv(path, os.LookupEnv)
}

// LoadConfigWithEnv is LoadConfig with an injectable environment
func LoadConfigWithEnv(path string, lookup func(string) (string, bool)) (*BaseConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	cfg.normalize()
	return cfg, nil
}

func (c *BaseConfig) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}

	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Addr, "HOLOCRYPT_ADDR")
	str(&c.Store.Driver, "HOLOCRYPT_STORE_DRIVER")
	str(&c.Store.URL, "HOLOCRYPT_STORE_URL", "SUPABASE_URL")
	str(&c.Store.Key, "HOLOCRYPT_STORE_KEY", "SUPABASE_ANON_KEY")
	str(&c.Store.JWTSecret, "HOLOCRYPT_JWT_SECRET", "SUPABASE_JWT_SECRET")
	str(&c.Store.JWKSURL, "HOLOCRYPT_JWKS_URL")
	str(&c.Store.DSN, "HOLOCRYPT_DSN")
	str(&c.Store.Redis.Addr, "HOLOCRYPT_REDIS_ADDR")
	str(&c.Store.Redis.Password, "HOLOCRYPT_REDIS_PASSWORD")

	if v, ok := lookup("HOLOCRYPT_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HOLOCRYPT_DEBUG: %w", err)
		}
		c.Debug = b
	}

	if v, ok := lookup("HOLOCRYPT_AUTO_CONFIRM"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("HOLOCRYPT_AUTO_CONFIRM: %w", err)
		}
		c.Store.AutoConfirm = b
	}

	return nil
}

func (c *BaseConfig) normalize() {
	def := DefaultConfig()
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSupabase
	}
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.Client.CookieName == "" {
		c.Client.CookieName = def.Client.CookieName
	}
	if c.Client.TTL <= 0 {
		c.Client.TTL = def.Client.TTL
	}
	if c.Client.SweepInterval <= 0 {
		c.Client.SweepInterval = def.Client.SweepInterval
	}
	if c.Client.MaxScopes < 0 {
		c.Client.MaxScopes = 0
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = DefaultMaxLoginAttempts
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.LoadingGrace < 0 {
		c.LoadingGrace = 0
	}
	if c.Store.TokenTTL <= 0 {
		c.Store.TokenTTL = def.Store.TokenTTL
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = def.Store.Redis.Prefix
	}
	if c.Store.Redis.TTL <= 0 {
		c.Store.Redis.TTL = def.Store.Redis.TTL
	}
	if c.CSRF == nil {
		c.CSRF = def.CSRF
	}
}

// IsPlaceholder reports values that are empty or still carry the sentinel
func IsPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.Contains(strings.ToLower(v), PlaceholderSentinel)
}

// Warnings lists configuration problems that leave the app degraded. The
// app keeps running; store calls then fail with a configuration error.
func (c *BaseConfig) Warnings() []string {
	var out []string
	switch c.Store.Driver {
	case DriverSupabase:
		if IsPlaceholder(c.Store.URL) {
			out = append(out, "session store URL is missing or a placeholder")
		}
		if IsPlaceholder(c.Store.Key) {
			out = append(out, "session store public key is missing or a placeholder")
		}
	case DriverLocal:
		if c.Store.JWTSecret == "" {
			out = append(out, "local store has no jwt secret, a random one is used and sessions do not survive restarts")
		}
	default:
		out = append(out, fmt.Sprintf("unknown session store driver %q", c.Store.Driver))
	}
	return out
}

func (c *BaseConfig) GetAddr() string                  { return c.Addr }
func (c *BaseConfig) GetDebug() bool                   { return c.Debug }
func (c *BaseConfig) GetStore() StoreConfig            { return c.Store }
func (c *BaseConfig) GetClientCookieName() string      { return c.Client.CookieName }
func (c *BaseConfig) GetClientTTL() time.Duration      { return c.Client.TTL }
func (c *BaseConfig) GetSweepInterval() time.Duration  { return c.Client.SweepInterval }
func (c *BaseConfig) GetMaxClientScopes() int          { return c.Client.MaxScopes }
func (c *BaseConfig) GetLoadingGrace() time.Duration   { return c.LoadingGrace }
func (c *BaseConfig) GetRequestTimeout() time.Duration { return c.RequestTimeout }
func (c *BaseConfig) GetMaxLoginAttempts() int         { return c.MaxLoginAttempts }
func (c *BaseConfig) GetSecureCookies() bool           { return c.Client.SecureCookies }

func (c *BaseConfig) GetCSRFEnabled() bool {
	return c.CSRF == nil || *c.CSRF
}

// Redacted returns a copy safe to print
func (c *BaseConfig) Redacted() BaseConfig {
	out := *c
	out.Store.Key = redact(out.Store.Key)
	out.Store.JWTSecret = redact(out.Store.JWTSecret)
	out.Store.Redis.Password = redact(out.Store.Redis.Password)
	return out
}

func redact(v string) string {
	if v == "" {
		return ""
	}
	return "********"
}
