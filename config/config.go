package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultSessionSecret = "change-this-secret-key"

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Database  DatabaseConfig  `envconfig:"DB"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Session   SessionConfig   `envconfig:"SESSION"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Demo      DemoConfig      `envconfig:"DEMO"`
	Log       LogConfig       `envconfig:"LOG"`
	CORS      CORSConfig      `envconfig:"CORS"`
}

type ServerConfig struct {
	Port string `split_words:"true" default:"8080"`
	Env  string `split_words:"true" default:"development"`
}

type DatabaseConfig struct {
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"5432"`
	User     string `split_words:"true" default:"livechat"`
	Password string `split_words:"true" default:"livechat_password"`
	Name     string `split_words:"true" default:"livechat_db"`
	SSLMode  string `split_words:"true" default:"disable"`
}

type RedisConfig struct {
	Enabled  bool   `split_words:"true" default:"true"`
	Host     string `split_words:"true" default:"localhost"`
	Port     string `split_words:"true" default:"6379"`
	Password string `split_words:"true" default:""`
	DB       int    `split_words:"true" default:"0"`
}

type SessionConfig struct {
	Secret     string        `split_words:"true" default:"change-this-secret-key"`
	CookieName string        `split_words:"true" default:"livechat_session"`
	MaxAge     time.Duration `split_words:"true" default:"168h"`
	// Sessions idle for longer than IdleTTL are evicted every SweepInterval.
	IdleTTL       time.Duration `split_words:"true" default:"30m"`
	SweepInterval time.Duration `split_words:"true" default:"1m"`
}

// RateLimitConfig holds the posting window (per room and user) and the
// coarser HTTP request limit (per user).
type RateLimitConfig struct {
	Window            time.Duration `split_words:"true" default:"10s"`
	MaxMessages       int           `split_words:"true" default:"5"`
	RequestsPerSecond int           `split_words:"true" default:"10"`
}

type DemoConfig struct {
	GuardedWork      time.Duration `split_words:"true" default:"2s"`
	CancellableDelay time.Duration `split_words:"true" default:"3s"`
}

type LogConfig struct {
	Level   string `split_words:"true" default:"info"`
	Backend string `split_words:"true" default:""`
}

type CORSConfig struct {
	AllowedOrigins []string `split_words:"true" default:"http://localhost:3000"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Session.Secret == defaultSessionSecret && c.IsProduction() {
		return fmt.Errorf("SESSION_SECRET must be set in production")
	}
	if c.RateLimit.MaxMessages <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window and max messages must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetDSN returns the database connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}
