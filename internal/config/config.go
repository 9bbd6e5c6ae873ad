package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration required by the API process.
// Scalar values come from env; structured settings (staff directory, phone number map) come
// from the optional YAML file named by CONFIG_FILE.
type Config struct {
	App       AppConfig
	Store     StoreConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Twilio    TwilioConfig
	Intake    IntakeConfig
	Jobs      JobsConfig
	Routing   RoutingConfig
	Telephony TelephonyConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// StoreConfig selects the lead store backend: postgres, sqlite or memory.
type StoreConfig struct {
	Driver     string
	SQLitePath string
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

// RedisConfig is optional; an empty host disables the counts cache.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	CountsTTL time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AuthToken     string
	ForwardNumber string
}

type IntakeConfig struct {
	// DefaultRegion is the ISO-3166 region used to parse national phone numbers.
	DefaultRegion string
	AutoRoute     bool
}

type JobsConfig struct {
	BucketGaugeSchedule string
}

// RoutingConfig is the static staff directory used for automatic assignment.
type RoutingConfig struct {
	Staff []StaffConfig `yaml:"staff"`
}

type StaffConfig struct {
	UserID    string   `yaml:"user_id"`
	Locations []string `yaml:"locations"`
	Services  []string `yaml:"services"`
	Weight    int      `yaml:"weight"`
}

// TelephonyConfig maps dialed salon numbers (E.164) to a location name.
type TelephonyConfig struct {
	Numbers map[string]string `yaml:"numbers"`
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	c.Store.SQLitePath = strings.TrimSpace(os.Getenv("SQLITE_PATH"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optionalInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optionalInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	{
		n, err := optionalInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.CountsTTL = mustDuration("COUNTS_CACHE_TTL")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.ForwardNumber = strings.TrimSpace(os.Getenv("TWILIO_FORWARD_NUMBER"))

	c.Intake.DefaultRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))
	c.Intake.AutoRoute = parseBool(os.Getenv("AUTO_ROUTE"))

	c.Jobs.BucketGaugeSchedule = strings.TrimSpace(os.Getenv("BUCKET_GAUGE_SCHEDULE"))

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := c.loadFile(path); err != nil {
			parseErrs = append(parseErrs, err)
		}
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// loadFile overlays the YAML sections (routing, telephony) onto c.
func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("CONFIG_FILE: %w", err)
	}
	defer f.Close()

	var file struct {
		Routing   RoutingConfig
		Telephony TelephonyConfig
	}
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return fmt.Errorf("CONFIG_FILE %s: %w", path, err)
	}
	c.Routing = file.Routing
	c.Telephony = file.Telephony
	return nil
}

// Validate checks the configuration and fills env-dependent defaults.
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

	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	switch c.Store.Driver {
	case "postgres":
		errs = append(errs, c.validatePostgres()...)
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for STORE_DRIVER=sqlite"))
		}
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory, got %q", c.Store.Driver))
	}

	if c.Redis.Host != "" {
		if c.Redis.Port == 0 {
			c.Redis.Port = 6379
		}
		if c.Redis.Port < 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}
	if c.Redis.CountsTTL <= 0 {
		// Upper bound on badge staleness if an invalidation is lost.
		c.Redis.CountsTTL = 30 * time.Second
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
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
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

	if c.Intake.DefaultRegion == "" {
		c.Intake.DefaultRegion = "US"
	}
	if len(c.Intake.DefaultRegion) != 2 {
		errs = append(errs, fmt.Errorf("PHONE_DEFAULT_REGION must be an ISO-3166 alpha-2 code, got %q", c.Intake.DefaultRegion))
	}

	if c.Jobs.BucketGaugeSchedule == "" {
		c.Jobs.BucketGaugeSchedule = "@every 1m"
	}

	for i, s := range c.Routing.Staff {
		if strings.TrimSpace(s.UserID) == "" {
			errs = append(errs, fmt.Errorf("routing.staff[%d].user_id is required", i))
		}
		if s.Weight < 0 {
			errs = append(errs, fmt.Errorf("routing.staff[%d].weight must be >= 0", i))
		}
	}

	return joinErrors(errs)
}

func (c *Config) validatePostgres() []error {
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

// RedisAddr returns "" when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
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

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
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
