package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/schedule"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/scheduler"
)

type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	Dispatch  DispatchConfig  `envconfig:"DISPATCH"`
	API       APIConfig       `envconfig:"API"`
	Metrics   MetricsConfig   `envconfig:"METRICS"`
	Tracing   TracingConfig   `envconfig:"TRACING"`
	Log       LogConfig       `envconfig:"LOG"`
}

type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8080"`
	Host            string        `envconfig:"HOST" default:"localhost"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type RedisConfig struct {
	URL      string        `envconfig:"URL" default:"redis://localhost:6379"`
	Password string        `envconfig:"PASSWORD" default:""`
	DB       int           `envconfig:"DB" default:"0"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

type SchedulerConfig struct {
	Instance        string        `envconfig:"INSTANCE" default:"default"`
	Store           string        `envconfig:"STORE" default:"redis"` // redis, sqlite or memory
	SQLitePath      string        `envconfig:"SQLITE_PATH" default:"gopher-scheduler.db"`
	SQLiteBusy      time.Duration `envconfig:"SQLITE_BUSY_TIMEOUT" default:"5s"`
	CronMode        string        `envconfig:"CRON_MODE" default:"standard"`
	Timezone        string        `envconfig:"TIMEZONE" default:"UTC"`
	HistoryLimit    int           `envconfig:"HISTORY_LIMIT" default:"100"`
	RetryDelay      time.Duration `envconfig:"RETRY_DELAY" default:"1s"`
	DispatchTimeout time.Duration `envconfig:"DISPATCH_TIMEOUT" default:"0s"`
}

type DispatchConfig struct {
	ContainerURL   string        `envconfig:"CONTAINER_URL" default:""`
	WebhookTimeout time.Duration `envconfig:"WEBHOOK_TIMEOUT" default:"30s"`
	Queues         QueueMap      `envconfig:"QUEUES"`
	QueueTimeout   time.Duration `envconfig:"QUEUE_TIMEOUT" default:"5s"`
}

// QueueMap maps queue names to collaborator URLs. It decodes
// "name:url,name:url" and splits each item on its first colon only, since
// the URL carries colons of its own.
type QueueMap map[string]string

func (q *QueueMap) Decode(value string) error {
	m := QueueMap{}
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, url, ok := strings.Cut(item, ":")
		if !ok {
			return fmt.Errorf("invalid queue entry %q: expected name:url", item)
		}
		m[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	*q = m
	return nil
}

type APIConfig struct {
	Keys      []string `envconfig:"KEYS"`
	RateLimit float64  `envconfig:"RATE_LIMIT" default:"0"` // requests per second per client, 0 disables
	RateBurst int      `envconfig:"RATE_BURST" default:"20"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	Address string `envconfig:"ADDRESS" default:":9090"`
}

type TracingConfig struct {
	Enabled      bool   `envconfig:"ENABLED" default:"false"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"gopher-scheduler"`
	Environment  string `envconfig:"ENVIRONMENT" default:"development"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL"  default:"info"`
	Format string `envconfig:"FORMAT" default:"console"` // json in prod
}

// Address returns the full server address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Location resolves the configured timezone
func (s SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Load reads config from env variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Config Validator
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Scheduler.Store {
	case "redis", "sqlite", "memory":
	default:
		return fmt.Errorf("unsupported scheduler store %q", c.Scheduler.Store)
	}

	if !scheduler.ValidName(c.Scheduler.Instance) {
		return fmt.Errorf("invalid scheduler instance name %q", c.Scheduler.Instance)
	}

	switch schedule.CronMode(c.Scheduler.CronMode) {
	case schedule.CronStandard, schedule.CronPlaceholder:
	default:
		return fmt.Errorf("unsupported cron mode %q", c.Scheduler.CronMode)
	}

	if _, err := c.Scheduler.Location(); err != nil {
		return fmt.Errorf("invalid scheduler timezone: %w", err)
	}

	if c.Scheduler.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive, got: %d", c.Scheduler.HistoryLimit)
	}

	if c.Scheduler.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got: %s", c.Scheduler.RetryDelay)
	}

	if c.Scheduler.DispatchTimeout < 0 {
		return fmt.Errorf("dispatch timeout cannot be negative, got: %s", c.Scheduler.DispatchTimeout)
	}

	for name, url := range c.Dispatch.Queues {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return fmt.Errorf("queue entries need a name and a URL, got %q=%q", name, url)
		}
	}

	if c.API.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got: %v", c.API.RateLimit)
	}
	if c.API.RateLimit > 0 && c.API.RateBurst <= 0 {
		return fmt.Errorf("rate burst must be positive when rate limiting is enabled, got: %d", c.API.RateBurst)
	}

	return nil
}
