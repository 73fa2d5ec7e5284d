package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	App struct {
		Name string `env:"APP_NAME" envDefault:"outreach-campaigns"`
		Env  string `env:"APP_ENV" envDefault:"development"`
	}

	API struct {
		Host string `env:"API_HOST" envDefault:"0.0.0.0"`
		Port string `env:"API_PORT" envDefault:"8080"`
	}

	Store struct {
		Backend        string        `env:"STORE_BACKEND" envDefault:"file"`
		Path           string        `env:"STORE_PATH" envDefault:"data/delivery_log.csv"`
		ReadRetries    int           `env:"READ_RETRIES" envDefault:"3"`
		ReadRetryDelay time.Duration `env:"READ_RETRY_DELAY" envDefault:"500ms"`
	}

	DB struct {
		Host     string `env:"DB_HOST" envDefault:"db"`
		Port     int    `env:"DB_PORT" envDefault:"5432"`
		User     string `env:"DB_USER" envDefault:"root"`
		Password string `env:"DB_PASSWORD"`
		Name     string `env:"DB_NAME" envDefault:"db_outreach"`
		SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	}

	// Redis is optional; an empty address disables it.
	Redis struct {
		Addr     string        `env:"REDIS_ADDR"`
		Password string        `env:"REDIS_PASSWORD"`
		DB       int           `env:"REDIS_DB" envDefault:"0"`
		TTL      time.Duration `env:"REDIS_TTL" envDefault:"24h"`
	}

	Provider struct {
		BaseURL string        `env:"PROVIDER_BASE_URL" envDefault:"http://localhost:8000/mock"`
		Timeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s"`
	}

	Scheduler struct {
		Interval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"30s"`
		StopWait time.Duration `env:"SCHEDULER_STOP_WAIT" envDefault:"2m"`
	}

	Worker struct {
		MaxWorkers        int           `env:"MESSAGE_MAX_WORKERS" envDefault:"4"`
		PerMessageTimeout time.Duration `env:"MESSAGE_PER_MESSAGE_TIMEOUT" envDefault:"5s"`
		Pacing            time.Duration `env:"DISPATCH_PACING" envDefault:"500ms"`
	}

	Campaign struct {
		LeadsPath        string `env:"LEADS_PATH" envDefault:"data/leads.csv"`
		TemplatesPath    string `env:"TEMPLATES_PATH" envDefault:"data/templates.json"`
		FollowupTemplate string `env:"FOLLOWUP_TEMPLATE" envDefault:"Hi {name}, just a quick follow-up - any questions about our program?"`
	}

	Policy struct {
		MaxRetries    int           `env:"MAX_RETRIES" envDefault:"5"`
		RetryBackoff  time.Duration `env:"RETRY_BACKOFF" envDefault:"1m"`
		ReplyWindow   time.Duration `env:"REPLY_WINDOW" envDefault:"1h"`
		FollowupDelay time.Duration `env:"FOLLOWUP_DELAY" envDefault:"10m"`
	}
}

// New loads .env (if present) and parses the environment into a validated Config.
func New() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment without touching .env files.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// maxRetryLimit is the hard cap on retries per record.
const maxRetryLimit = 5

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("STORE_PATH is required for the file backend"))
		}
	case BackendPostgres:
		if c.DB.Host == "" || c.DB.Name == "" {
			errs = append(errs, errors.New("DB_HOST and DB_NAME are required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendPostgres, c.Store.Backend))
	}

	if c.Store.ReadRetries <= 0 {
		errs = append(errs, errors.New("READ_RETRIES must be > 0"))
	}
	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("PROVIDER_BASE_URL is required"))
	}
	if c.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHEDULER_INTERVAL must be > 0"))
	}
	if c.Worker.MaxWorkers <= 0 {
		errs = append(errs, errors.New("MESSAGE_MAX_WORKERS must be > 0"))
	}
	if c.Policy.MaxRetries <= 0 || c.Policy.MaxRetries > maxRetryLimit {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be between 1 and %d", maxRetryLimit))
	}
	if c.Policy.ReplyWindow <= 0 || c.Policy.FollowupDelay <= 0 || c.Policy.RetryBackoff <= 0 {
		errs = append(errs, errors.New("RETRY_BACKOFF, REPLY_WINDOW and FOLLOWUP_DELAY must be > 0"))
	}

	return errors.Join(errs...)
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return c.API.Host + ":" + c.API.Port
}

// RedisEnabled reports whether a Redis address was configured.
func (c *Config) RedisEnabled() bool {
	return strings.TrimSpace(c.Redis.Addr) != ""
}

func (c *Config) PostgresDSN() string {
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
