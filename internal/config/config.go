package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Generator struct {
		LookAheadInDays       int `yaml:"look_ahead_in_days"`
		MaxEventsInOrg        int `yaml:"max_events_in_organization"`
		MaxEventsPerUser      int `yaml:"max_events_per_user"`
		MaxEventsOnSameDay    int `yaml:"max_events_on_same_day"`
		WorkerIntervalMinutes int `yaml:"worker_interval_minutes"`
	} `yaml:"generator"`

	Google struct {
		CredentialsFile string  `yaml:"credentials_file"`
		AdminSubject    string  `yaml:"admin_subject"` // impersonated for directory reads
		Domain          string  `yaml:"domain"`
		RequestsPerSec  float64 `yaml:"requests_per_second"`
		Burst           int     `yaml:"burst"`
	} `yaml:"google"`

	Templates struct {
		Path           string `yaml:"path"`
		AttachmentsDir string `yaml:"attachments_dir"`
	} `yaml:"templates"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	History struct {
		Path   string `yaml:"path"`
		Backup struct {
			Enabled       bool   `yaml:"enabled"`
			Dir           string `yaml:"dir"`
			IntervalHours int    `yaml:"interval_hours"`
			RetentionDays int    `yaml:"retention_days"`
		} `yaml:"backup"`
	} `yaml:"history"`

	Report struct {
		Enabled bool   `yaml:"enabled"`
		Dir     string `yaml:"dir"`
	} `yaml:"report"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Generator.LookAheadInDays < 0 {
		return fmt.Errorf("generator.look_ahead_in_days must not be negative")
	}
	if c.Generator.WorkerIntervalMinutes < 0 {
		return fmt.Errorf("generator.worker_interval_minutes must not be negative")
	}
	if c.Templates.Path == "" {
		c.Templates.Path = "configs/templates.yaml"
	}
	if c.Templates.AttachmentsDir == "" {
		c.Templates.AttachmentsDir = "attachments"
	}
	if c.History.Path == "" {
		c.History.Path = "data/calseed.db"
	}
	if c.History.Backup.Dir == "" {
		c.History.Backup.Dir = "backups"
	}
	return nil
}

// WorkerInterval returns the cycle interval with a sane default.
func (c *Config) WorkerInterval() time.Duration {
	if c.Generator.WorkerIntervalMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Generator.WorkerIntervalMinutes) * time.Minute
}

// CacheTTL returns the redis cache TTL; zero disables caching.
func (c *Config) CacheTTL() time.Duration {
	if c.Redis.Address == "" || c.Redis.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

// RequestRate returns the calendar API rate limit with defaults.
func (c *Config) RequestRate() (float64, int) {
	rps := c.Google.RequestsPerSec
	if rps <= 0 {
		rps = 5.0
	}
	burst := c.Google.Burst
	if burst <= 0 {
		burst = 10
	}
	return rps, burst
}
