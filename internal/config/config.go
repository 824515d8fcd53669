package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gastbokning/internal/daterange"
	"gastbokning/internal/pricing"

	"gopkg.in/yaml.v3"
)

// Directory sources.
const (
	DirectoryDB     = "db"
	DirectorySheets = "sheets"
)

type Config struct {
	Server struct {
		Port                   int    `yaml:"port"`
		APIKey                 string `yaml:"api_key"`
		ReadTimeoutSeconds     int    `yaml:"read_timeout_seconds"`
		ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Cron          string `yaml:"cron"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Booking struct {
		AllowSameDayTurnover bool `yaml:"allow_same_day_turnover"`
	} `yaml:"booking"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Lock struct {
		Enabled    bool   `yaml:"enabled"`
		Prefix     string `yaml:"prefix"`
		TTLSeconds int    `yaml:"ttl_seconds"`
		WaitMillis int    `yaml:"wait_millis"`
	} `yaml:"lock"`

	Directory struct {
		Source          string `yaml:"source"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		CacheKey        string `yaml:"cache_key"`
		Sheets          struct {
			CredentialsFile string `yaml:"credentials_file"`
			SpreadsheetID   string `yaml:"spreadsheet_id"`
			Range           string `yaml:"range"`
		} `yaml:"sheets"`
	} `yaml:"directory"`

	Pricing struct {
		TariffFile string `yaml:"tariff_file"`
		Watch      bool   `yaml:"watch"`
	} `yaml:"pricing"`

	// Tariff is an inline price list, used when no tariff file is set.
	Tariff yaml.Node `yaml:"tariff"`

	Report struct {
		Organization string `yaml:"organization"`
		Kind         string `yaml:"kind"`
		Preparer     string `yaml:"preparer"`
	} `yaml:"report"`

	Scheduler struct {
		Enabled  bool   `yaml:"enabled"`
		Cron     string `yaml:"cron"`
		Format   string `yaml:"format"`
		Timezone string `yaml:"timezone"`
	} `yaml:"scheduler"`

	Email struct {
		Enabled        bool     `yaml:"enabled"`
		APIKey         string   `yaml:"api_key"`
		From           string   `yaml:"from"`
		To             []string `yaml:"to"`
		Endpoint       string   `yaml:"endpoint"`
		TimeoutSeconds int      `yaml:"timeout_seconds"`
	} `yaml:"email"`

	Telegram struct {
		Enabled     bool    `yaml:"enabled"`
		BotToken    string  `yaml:"bot_token"`
		APIEndpoint string  `yaml:"api_endpoint"`
		ChatIDs     []int64 `yaml:"chat_ids"`
		PerSecond   float64 `yaml:"per_second"`
	} `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

// Load reads the YAML config at path. ${ENV_VAR} placeholders are expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// Relative tariff paths are resolved against the config file.
	if f := cfg.Pricing.TariffFile; f != "" && !filepath.IsAbs(f) {
		if _, statErr := os.Stat(f); statErr != nil {
			cfg.Pricing.TariffFile = filepath.Join(filepath.Dir(path), f)
		}
	}

	if cfg.DatabaseDriver() == "sqlite3" {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse decodes and validates config bytes.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/gastbokning.db"
	}
	if c.Directory.Source == "" {
		c.Directory.Source = DirectoryDB
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 7 1 * *"
	}
	if c.Backup.Cron == "" {
		c.Backup.Cron = "30 3 * * *"
	}
	if c.Scheduler.Format == "" {
		c.Scheduler.Format = "pdf"
	}
	if c.Report.Organization == "" {
		c.Report.Organization = "Guest apartment"
	}
}

// Validate checks combinations that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	switch c.Directory.Source {
	case DirectoryDB:
	case DirectorySheets:
		if c.Directory.Sheets.SpreadsheetID == "" || c.Directory.Sheets.CredentialsFile == "" {
			errs = append(errs, errors.New("directory.sheets needs spreadsheet_id and credentials_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("directory.source %q must be db or sheets", c.Directory.Source))
	}

	if c.Backup.Enabled && c.DatabaseDriver() != "sqlite3" {
		errs = append(errs, errors.New("backup.enabled is only supported for sqlite"))
	}
	if c.Lock.Enabled && c.Redis.Address == "" {
		errs = append(errs, errors.New("lock.enabled requires redis.address"))
	}
	if c.Email.Enabled && (c.Email.APIKey == "" || c.Email.From == "" || len(c.Email.To) == 0) {
		errs = append(errs, errors.New("email needs api_key, from and to"))
	}
	if c.Telegram.Enabled && (c.Telegram.BotToken == "" || len(c.Telegram.ChatIDs) == 0) {
		errs = append(errs, errors.New("telegram needs bot_token and chat_ids"))
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// DatabaseDriver returns the normalized driver name.
func (c *Config) DatabaseDriver() string {
	if c.Database.Driver == "sqlite" {
		return "sqlite3"
	}
	return c.Database.Driver
}

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.DatabaseDriver() == "postgres" {
		return c.Database.DSN
	}
	return c.Database.Path
}

// OverlapPolicy returns the policy selected by booking.allow_same_day_turnover.
func (c *Config) OverlapPolicy() daterange.Policy {
	return daterange.PolicyFor(c.Booking.AllowSameDayTurnover)
}

func (c *Config) ServerPort() int {
	if c.Server.Port <= 0 {
		return 3001
	}
	return c.Server.Port
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) LockTTL() time.Duration {
	if c.Lock.TTLSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Lock.TTLSeconds) * time.Second
}

func (c *Config) LockWait() time.Duration {
	if c.Lock.WaitMillis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(c.Lock.WaitMillis) * time.Millisecond
}

func (c *Config) LockPrefix() string {
	if c.Lock.Prefix == "" {
		return "gastbokning:lock:"
	}
	return c.Lock.Prefix
}

// DirectoryCacheTTL is zero when caching is disabled.
func (c *Config) DirectoryCacheTTL() time.Duration {
	if c.Directory.CacheTTLSeconds <= 0 || c.Redis.Address == "" {
		return 0
	}
	return time.Duration(c.Directory.CacheTTLSeconds) * time.Second
}

func (c *Config) SheetsRange() string {
	if c.Directory.Sheets.Range == "" {
		return "Residents!A:H"
	}
	return c.Directory.Sheets.Range
}

func (c *Config) EmailTimeout() time.Duration {
	if c.Email.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Email.TimeoutSeconds) * time.Second
}

// SchedulerLocation returns the zone the cron expression is evaluated in.
func (c *Config) SchedulerLocation() *time.Location {
	if c.Scheduler.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// LoadTariff returns the price list: the tariff file when set, otherwise the
// inline tariff section, otherwise the built-in default.
func (c *Config) LoadTariff() (*pricing.Tariff, error) {
	if c.Pricing.TariffFile != "" {
		return pricing.LoadTariff(c.Pricing.TariffFile)
	}
	if c.Tariff.Kind == 0 {
		return pricing.DefaultTariff(), nil
	}
	data, err := yaml.Marshal(&c.Tariff)
	if err != nil {
		return nil, fmt.Errorf("encode inline tariff: %w", err)
	}
	return pricing.ParseTariff(data)
}

// MaskedAPIKey is safe to log.
func (c *Config) MaskedAPIKey() string {
	k := c.Server.APIKey
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return k[:2] + strings.Repeat("*", len(k)-4) + k[len(k)-2:]
}
