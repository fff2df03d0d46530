package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"dealscout/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Scanner      ScannerConfig      `mapstructure:"scanner"`
	Ebay         EbayConfig         `mapstructure:"ebay"`
	Marketplaces MarketplacesConfig `mapstructure:"marketplaces"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	API          APIConfig          `mapstructure:"api"`
	Export       ExportConfig       `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ScannerConfig governs the background scan loop.
type ScannerConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	QueryDelay  time.Duration `mapstructure:"query_delay"`
	SampleLimit int           `mapstructure:"sample_limit"`
	AutoStart   bool          `mapstructure:"auto_start"`
}

// EbayConfig covers both primary-marketplace retrieval strategies.
type EbayConfig struct {
	Mode           string        `mapstructure:"mode"`
	AppID          string        `mapstructure:"app_id"`
	CertID         string        `mapstructure:"cert_id"`
	OAuthURL       string        `mapstructure:"oauth_url"`
	BrowseURL      string        `mapstructure:"browse_url"`
	FindingURL     string        `mapstructure:"finding_url"`
	ScrapeURL      string        `mapstructure:"scrape_url"`
	HomeURL        string        `mapstructure:"home_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// MarketplacesConfig covers the secondary platforms.
type MarketplacesConfig struct {
	FacebookEnabled  bool          `mapstructure:"facebook_enabled"`
	FacebookStateDir string        `mapstructure:"facebook_state_dir"`
	PoshmarkURL      string        `mapstructure:"poshmark_url"`
	MercariURL       string        `mapstructure:"mercari_url"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// APIConfig governs the HTTP control surface.
type APIConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults. The
// returned Runtime is the live view of the reloadable keys.
func Load(path string) (*Config, *Runtime, error) {
	v := viper.New()
	v.SetEnvPrefix("DEALSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	usingFile := true
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		usingFile = false
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	runtime := newRuntime(v)
	if usingFile {
		v.OnConfigChange(runtime.reload)
		v.WatchConfig()
	}

	return &cfg, runtime, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "dealscout")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")

	v.SetDefault("scanner.interval", "10m")
	v.SetDefault("scanner.query_delay", "1s")
	v.SetDefault("scanner.sample_limit", 50)
	v.SetDefault("scanner.auto_start", false)

	v.SetDefault("ebay.mode", "auto")
	v.SetDefault("ebay.request_timeout", "15s")

	v.SetDefault("marketplaces.facebook_enabled", false)
	v.SetDefault("marketplaces.facebook_state_dir", "data/fb_browser_state")
	v.SetDefault("marketplaces.request_timeout", "10s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.addr", ":8080")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Ebay.Mode {
	case "api", "scrape", "auto":
	default:
		return fmt.Errorf("ebay.mode must be one of api, scrape, auto (got %q)", c.Ebay.Mode)
	}
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be greater than zero")
	}
	if c.Scanner.SampleLimit <= 0 {
		return fmt.Errorf("scanner.sample_limit must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
