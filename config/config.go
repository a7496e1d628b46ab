// Package config loads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// DefaultAllowedOrigins are always accepted by CORS in addition to FRONTEND_URL.
var DefaultAllowedOrigins = []string{
	"http://localhost:4200",
	"http://localhost:3000",
	"http://localhost:3001",
	"http://13.203.201.58:3000",
	"http://13.203.201.58",
	"https://13.203.201.58:3000",
	"https://13.203.201.58",
}

type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Mongo    MongoConfig
	JWT      JWTConfig
	CORS     CORSConfig
	LogLevel string
}

type ServerConfig struct {
	Port    string
	Mode    string
	Env     string
	Timeout time.Duration
}

type StoreConfig struct {
	Driver  string
	Timeout time.Duration
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
}

type MongoConfig struct {
	URI      string
	Database string
}

type JWTConfig struct {
	Secret        string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type CORSConfig struct {
	FrontendURL    string
	AllowedOrigins []string
}

// IsDevelopment reports whether APP_ENV explicitly selects development
// behaviour. Anything else, including an unset APP_ENV, is production.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Origins is the effective CORS allow-list.
func (c CORSConfig) Origins() []string {
	out := make([]string, 0, len(c.AllowedOrigins)+1)
	seen := map[string]bool{}
	for _, o := range append(append([]string{}, c.AllowedOrigins...), c.FrontendURL) {
		o = strings.TrimSpace(o)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("PORT", "5000")
	v.SetDefault("GIN_MODE", "release")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	v.SetDefault("STORE_DRIVER", DriverPostgres)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "enquiries")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_EXPIRE", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRE", "168h")

	v.SetDefault("FRONTEND_URL", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", strings.Join(DefaultAllowedOrigins, ","))

	v.AutomaticEnv()
	return v
}

// FromViper builds a Config from an already-populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    v.GetString("PORT"),
			Mode:    v.GetString("GIN_MODE"),
			Env:     v.GetString("APP_ENV"),
			Timeout: v.GetDuration("REQUEST_TIMEOUT"),
		},
		Store: StoreConfig{
			Driver:  strings.ToLower(v.GetString("STORE_DRIVER")),
			Timeout: v.GetDuration("STORE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
		},
		JWT: JWTConfig{
			Secret:        v.GetString("JWT_SECRET"),
			RefreshSecret: v.GetString("JWT_REFRESH_SECRET"),
			AccessTTL:     parseTTL(v.GetString("JWT_EXPIRE")),
			RefreshTTL:    parseTTL(v.GetString("JWT_REFRESH_EXPIRE")),
		},
		CORS: CORSConfig{
			FrontendURL:    v.GetString("FRONTEND_URL"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("MONGODB_URI and MONGODB_DATABASE are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if !c.IsDevelopment() {
		for _, o := range c.CORS.Origins() {
			if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
				errs = append(errs, fmt.Errorf("CORS origin %q must start with http:// or https://", o))
			}
		}
	}
	if c.JWT.Secret == "" {
		if !c.IsDevelopment() {
			errs = append(errs, errors.New("JWT_SECRET is required outside development"))
		} else {
			c.JWT.Secret = "development-secret"
		}
	}
	if c.JWT.RefreshSecret == "" {
		if !c.IsDevelopment() {
			errs = append(errs, errors.New("JWT_REFRESH_SECRET is required outside development"))
		} else {
			c.JWT.RefreshSecret = c.JWT.Secret + "-refresh"
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// parseTTL accepts Go durations and a "7d" day suffix. Unparseable values
// fall back to zero, which callers treat as "use the default".
func parseTTL(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if strings.HasSuffix(raw, "d") {
		if d, err := time.ParseDuration(strings.TrimSuffix(raw, "d") + "h"); err == nil {
			return d * 24
		}
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
