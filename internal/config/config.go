package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"call-pipeline/internal/retry"
)

// Config holds all configuration required by the API process.
// Values come from env (optionally seeded from a .env file), with an optional
// YAML file named by CONFIG_FILE underneath; env always wins.
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	Store     StoreConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Vapi      VapiConfig
	Reconcile ReconcileConfig
	Firestore FirestoreConfig
}

type AppConfig struct {
	Env  string
	Port int
}

const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

type StoreConfig struct {
	// Backend is one of postgres, firestore, memory.
	Backend string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. When Host is empty reconciliation runs without a
// cross-replica lease.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type VapiConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type ReconcileConfig struct {
	Grace       time.Duration
	MaxAttempts int
	BackoffUnit time.Duration
	LeaseTTL    time.Duration
}

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
}

func Load() (Config, error) {
	// .env is a local convenience; deployments set real env vars.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := Config{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		fc.applyTo(&c)
	}

	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	setString(&c.Store.Backend, "STORE_BACKEND")

	setString(&c.DB.Host, "DB_HOST")
	parseErrs = setInt(parseErrs, &c.DB.Port, "DB_PORT")
	setString(&c.DB.User, "DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	setString(&c.DB.Name, "DB_NAME")
	setString(&c.DB.SSLMode, "DB_SSLMODE")

	setString(&c.Redis.Host, "REDIS_HOST")
	parseErrs = setInt(parseErrs, &c.Redis.Port, "REDIS_PORT")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	setString(&c.Auth.JWTIssuer, "JWT_ISSUER")
	setString(&c.Auth.JWTAudience, "JWT_AUDIENCE")
	parseErrs = setDuration(parseErrs, &c.Auth.AccessTokenTTL, "JWT_ACCESS_TTL")
	parseErrs = setDuration(parseErrs, &c.Auth.RefreshTokenTTL, "JWT_REFRESH_TTL")

	setString(&c.Vapi.BaseURL, "VAPI_BASE_URL")
	c.Vapi.APIKey = strings.TrimSpace(os.Getenv("VAPI_PRIVATE_API_KEY"))
	parseErrs = setDuration(parseErrs, &c.Vapi.HTTPTimeout, "VAPI_HTTP_TIMEOUT")

	parseErrs = setDuration(parseErrs, &c.Reconcile.Grace, "RECONCILE_GRACE")
	parseErrs = setInt(parseErrs, &c.Reconcile.MaxAttempts, "RECONCILE_MAX_ATTEMPTS")
	parseErrs = setDuration(parseErrs, &c.Reconcile.BackoffUnit, "RECONCILE_BACKOFF_UNIT")
	parseErrs = setDuration(parseErrs, &c.Reconcile.LeaseTTL, "RECONCILE_LEASE_TTL")

	setString(&c.Firestore.ProjectID, "FIRESTORE_PROJECT_ID")
	setString(&c.Firestore.CredentialsFile, "FIRESTORE_CREDENTIALS_FILE")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults in place and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendPostgres
	}
	switch c.Store.Backend {
	case BackendPostgres:
		errs = append(errs, c.validateDB()...)
	case BackendFirestore:
		if c.Firestore.ProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID is required for the firestore backend"))
		}
	case BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be one of postgres, firestore, memory, got %q", c.Store.Backend))
	}

	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	// Without a key reconciliation fails permanently and flags records for
	// manual processing; tolerated outside production.
	if c.Vapi.APIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("VAPI_PRIVATE_API_KEY is required in production"))
	}
	if c.Vapi.HTTPTimeout <= 0 {
		c.Vapi.HTTPTimeout = 20 * time.Second
	}

	def := retry.DefaultPolicy()
	if c.Reconcile.MaxAttempts == 0 {
		c.Reconcile.MaxAttempts = def.MaxAttempts
	}
	if c.Reconcile.Grace == 0 {
		c.Reconcile.Grace = def.Grace
	}
	if c.Reconcile.BackoffUnit == 0 {
		c.Reconcile.BackoffUnit = def.Unit
	}
	policy := c.RetryPolicy()
	if err := policy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("RECONCILE_*: %w", err))
	}
	if c.Reconcile.LeaseTTL == 0 {
		c.Reconcile.LeaseTTL = policy.Worst() + time.Minute
	}
	if c.Reconcile.LeaseTTL <= policy.Worst() {
		errs = append(errs, fmt.Errorf("RECONCILE_LEASE_TTL must exceed the retry worst case %s, got %s", policy.Worst(), c.Reconcile.LeaseTTL))
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// RedisAddr is empty when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Reconcile.MaxAttempts,
		Grace:       c.Reconcile.Grace,
		Unit:        c.Reconcile.BackoffUnit,
	}
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

// setString, setInt and setDuration only override dst when the key is set,
// so file values survive an unset env var.
func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(errs []error, dst *int, key string) []error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	*dst = n
	return errs
}

func setDuration(errs []error, dst *time.Duration, key string) []error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	*dst = d
	return errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
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
