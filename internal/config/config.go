package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/rssnotify/internal/dispatch"
	"github.com/ppiankov/rssnotify/internal/logging"
	"github.com/ppiankov/rssnotify/internal/notify"
	"github.com/ppiankov/rssnotify/internal/source"
	"github.com/ppiankov/rssnotify/internal/watermark"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultFeedURL        = "https://webboard-nsoc.ncsa.or.th/category/12.rss"
	DefaultFeedTimeout    = source.DefaultFeedTimeout
	DefaultProvider       = notify.ProviderLine
	DefaultLineEndpoint   = notify.DefaultLineEndpoint
	DefaultLineTokenEnv   = "LINE_NOTIFY_TOKEN"
	DefaultSendTimeout    = notify.DefaultSendTimeout
	DefaultMaxConcurrency = dispatch.DefaultMaxConcurrency
	DefaultStorageDriver  = watermark.DriverFile
	DefaultStoragePath    = ".rssnotify/last_processed_time.txt"
	DefaultListen         = "0.0.0.0:8000"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Feed     FeedConfig     `yaml:"feed"`
	Notify   NotifyConfig   `yaml:"notify"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

type FeedConfig struct {
	URL     string   `yaml:"url"`
	Timeout Duration `yaml:"timeout"`
}

type NotifyConfig struct {
	Provider       string         `yaml:"provider"`
	SendTimeout    Duration       `yaml:"send_timeout"`
	RatePerSec     int            `yaml:"rate_per_sec"`
	MaxConcurrency int            `yaml:"max_concurrency"`
	Line           LineConfig     `yaml:"line"`
	Telegram       TelegramConfig `yaml:"telegram"`
}

type LineConfig struct {
	Endpoint string `yaml:"endpoint"`
	TokenEnv string `yaml:"token_env"`

	// Resolved from env var at load time.
	Token string `yaml:"-"`
}

type TelegramConfig struct {
	APIURL   string `yaml:"api_url"`
	TokenEnv string `yaml:"token_env"`
	ChatID   int64  `yaml:"chat_id"`

	// Resolved from env var at load time.
	Token string `yaml:"-"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// ScheduleConfig drives periodic checks. An empty Cron disables them.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Feed.URL == "" {
		cfg.Feed.URL = DefaultFeedURL
	}
	if cfg.Feed.Timeout.Duration == 0 {
		cfg.Feed.Timeout.Duration = DefaultFeedTimeout
	}
	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = DefaultProvider
	}
	if cfg.Notify.SendTimeout.Duration == 0 {
		cfg.Notify.SendTimeout.Duration = DefaultSendTimeout
	}
	if cfg.Notify.MaxConcurrency == 0 {
		cfg.Notify.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Notify.Line.Endpoint == "" {
		cfg.Notify.Line.Endpoint = DefaultLineEndpoint
	}
	if cfg.Notify.Line.TokenEnv == "" {
		cfg.Notify.Line.TokenEnv = DefaultLineTokenEnv
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Notify.Line.TokenEnv != "" {
		cfg.Notify.Line.Token = os.Getenv(cfg.Notify.Line.TokenEnv)
	}
	if cfg.Notify.Telegram.TokenEnv != "" {
		cfg.Notify.Telegram.Token = os.Getenv(cfg.Notify.Telegram.TokenEnv)
	}
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.Feed.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("feed.url: %q is not an absolute http(s) URL", cfg.Feed.URL)
	}
	if cfg.Feed.Timeout.Duration < 0 {
		return errors.New("feed.timeout: must not be negative")
	}

	switch cfg.Notify.Provider {
	case notify.ProviderLine, notify.ProviderTelegram:
	default:
		return fmt.Errorf("notify.provider: unknown provider %q (want line or telegram)", cfg.Notify.Provider)
	}
	if cfg.Notify.SendTimeout.Duration < 0 {
		return errors.New("notify.send_timeout: must not be negative")
	}
	if cfg.Notify.RatePerSec < 0 {
		return errors.New("notify.rate_per_sec: must not be negative")
	}
	if cfg.Notify.MaxConcurrency < 0 {
		return errors.New("notify.max_concurrency: must not be negative")
	}

	switch cfg.Storage.Driver {
	case watermark.DriverFile, watermark.DriverSQLite, watermark.DriverMemory:
	default:
		return fmt.Errorf("storage.driver: unknown driver %q (want file, sqlite or memory)", cfg.Storage.Driver)
	}

	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron: %w", err)
		}
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return fmt.Errorf("log.format: unknown format %q (want console or json)", cfg.Log.Format)
	}

	return nil
}

// CheckCredentials reports missing secrets for the selected provider.
// Commands that never send (reset, status) skip it.
func (n NotifyConfig) CheckCredentials() error {
	switch n.Provider {
	case notify.ProviderLine:
		if n.Line.Token == "" {
			return fmt.Errorf("notify.line: token env %s is empty", n.Line.TokenEnv)
		}
	case notify.ProviderTelegram:
		if n.Telegram.Token == "" {
			return fmt.Errorf("notify.telegram: token env %s is empty", n.Telegram.TokenEnv)
		}
		if n.Telegram.ChatID == 0 {
			return errors.New("notify.telegram: chat_id is required")
		}
	}
	return nil
}
