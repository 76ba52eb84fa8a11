package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (optionally seeded from a .env file by the process).
// It is built once at startup and passed explicitly to the components that need it.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Ingest   IngestConfig
	Forward  ForwardConfig
	Auth     AuthConfig
}

type AppConfig struct {
	Env  string
	Port int

	// TrustProxy makes capture honor X-Forwarded-* headers.
	TrustProxy bool
}

// StoreDriver selects the document store backend.
type StoreDriver string

const (
	StoreMongo    StoreDriver = "mongo"
	StorePostgres StoreDriver = "postgres"
	StoreMemory   StoreDriver = "memory"
)

type StoreConfig struct {
	Driver  StoreDriver
	// Timeout bounds a single store session.
	Timeout time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type PostgresConfig struct {
	DSN string
}

// RedisConfig is optional. When Addr is empty the record cache and the
// forward in-flight cap are disabled.
type RedisConfig struct {
	Addr     string
	CacheTTL time.Duration
}

type IngestConfig struct {
	Workers   int
	QueueSize int
}

type ForwardConfig struct {
	Timeout     time.Duration
	// MaxInFlight caps concurrent forwards per service; 0 disables the cap.
	MaxInFlight int
}

// AuthConfig is optional. When JWTSecret is empty the read and forward
// routes are open.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT")
	c.App.TrustProxy, parseErrs = optionalBool(parseErrs, "TRUST_PROXY")

	c.Store.Driver = StoreDriver(strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER"))))
	c.Store.Timeout, parseErrs = optionalDuration(parseErrs, "STORE_TIMEOUT")

	c.Mongo.URI = strings.TrimSpace(os.Getenv("MONGO_URI"))
	c.Mongo.Database = strings.TrimSpace(os.Getenv("MONGO_DB"))

	c.Postgres.DSN = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))

	c.Redis.Addr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	c.Redis.CacheTTL, parseErrs = optionalDuration(parseErrs, "CACHE_TTL")

	c.Ingest.Workers, parseErrs = optionalInt(parseErrs, "INGEST_WORKERS")
	c.Ingest.QueueSize, parseErrs = optionalInt(parseErrs, "INGEST_QUEUE_SIZE")

	c.Forward.Timeout, parseErrs = optionalDuration(parseErrs, "FORWARD_TIMEOUT")
	c.Forward.MaxInFlight, parseErrs = optionalInt(parseErrs, "FORWARD_MAX_INFLIGHT")

	c.Auth, parseErrs = readAuth(parseErrs)

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults and reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		c.App.Env = "local"
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port == 0 {
		c.App.Port = 3000
	}
	if c.App.Port < 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Store.Driver == "" {
		c.Store.Driver = StoreMongo
	}
	switch c.Store.Driver {
	case StoreMongo:
		if c.Mongo.URI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE_DRIVER=mongo"))
		}
		if c.Mongo.Database == "" {
			c.Mongo.Database = "webhook"
		}
	case StorePostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required when STORE_DRIVER=postgres"))
		}
	case StoreMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of mongo, postgres, memory, got %q", c.Store.Driver))
	}
	if c.Store.Timeout <= 0 {
		c.Store.Timeout = 10 * time.Second
	}

	if c.Redis.CacheTTL <= 0 {
		c.Redis.CacheTTL = 10 * time.Minute
	}

	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 1024
	}

	if c.Forward.Timeout <= 0 {
		// Conservative default for outbound replays.
		c.Forward.Timeout = 30 * time.Second
	}
	if c.Forward.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("FORWARD_MAX_INFLIGHT must be >= 0, got %d", c.Forward.MaxInFlight))
	}
	if c.Forward.MaxInFlight > 0 && c.Redis.Addr == "" {
		errs = append(errs, errors.New("FORWARD_MAX_INFLIGHT requires REDIS_ADDR"))
	}

	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 12 * time.Hour
	}
	if c.IsProduction() && c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, errors.New("AUTH_JWT_SECRET must be at least 32 bytes in production"))
	}

	return joinErrors(errs)
}

// LoadAuth reads only the AUTH_* keys, for tools that mint or check tokens
// without running the service.
func LoadAuth() (AuthConfig, error) {
	a, errs := readAuth(nil)
	if err := joinErrors(errs); err != nil {
		return AuthConfig{}, err
	}
	if a.JWTSecret == "" {
		return AuthConfig{}, errors.New("AUTH_JWT_SECRET is required")
	}
	if a.TokenTTL <= 0 {
		a.TokenTTL = 12 * time.Hour
	}
	return a, nil
}

func readAuth(errs []error) (AuthConfig, []error) {
	a := AuthConfig{
		JWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer:   strings.TrimSpace(os.Getenv("AUTH_JWT_ISSUER")),
		JWTAudience: strings.TrimSpace(os.Getenv("AUTH_JWT_AUDIENCE")),
	}
	a.TokenTTL, errs = optionalDuration(errs, "AUTH_TOKEN_TTL")
	return a, errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func optionalInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
