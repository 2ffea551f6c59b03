package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/inclusioncast/internal/forecast"
	"github.com/rewired-gh/inclusioncast/internal/impact"
	"github.com/rewired-gh/inclusioncast/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	Export   ExportConfig   `mapstructure:"export"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Dataset sources.
const (
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
	SourceSQLite = "sqlite"
)

// DataConfig selects where the record and impact-link tables come from
type DataConfig struct {
	Source      string `mapstructure:"source"` // csv, xlsx or sqlite
	MainPath    string `mapstructure:"main_path"`
	ImpactsPath string `mapstructure:"impacts_path"`
	XLSXPath    string `mapstructure:"xlsx_path"`
}

// ScenarioConfig is one named scale factor on event effects
type ScenarioConfig struct {
	Name  string  `mapstructure:"name"`
	Scale float64 `mapstructure:"scale"`
}

// ForecastConfig holds trend fitting and impact model parameters
type ForecastConfig struct {
	Targets    []string         `mapstructure:"targets"`    // empty = every observed indicator
	StartYear  int              `mapstructure:"start_year"` // 0 = current year
	Horizon    int              `mapstructure:"horizon"`
	MinPoints  int              `mapstructure:"min_points"`
	Ramp       float64          `mapstructure:"ramp"`
	Decay      bool             `mapstructure:"decay"`
	DecayRate  float64          `mapstructure:"decay_rate"`
	Strict     bool             `mapstructure:"strict"`
	TargetLine float64          `mapstructure:"target_line"`
	Scenarios  []ScenarioConfig `mapstructure:"scenarios"`
}

// ExportConfig controls which artefacts the forecast command writes
type ExportConfig struct {
	Dir   string `mapstructure:"dir"`
	CSV   bool   `mapstructure:"csv"`
	XLSX  bool   `mapstructure:"xlsx"`
	Chart bool   `mapstructure:"chart"`
}

// StorageConfig holds the SQLite dataset source location
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional file, a .env file in the working
// directory and INCLUSIONCAST_* environment variables, in increasing priority.
// An empty path skips the config file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// Enable environment variable override, e.g. INCLUSIONCAST_FORECAST_HORIZON
	v.SetEnvPrefix("INCLUSIONCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Data defaults
	v.SetDefault("data.source", SourceCSV)
	v.SetDefault("data.main_path", "./data/raw/main.csv")
	v.SetDefault("data.impacts_path", "./data/raw/impact_links.csv")
	v.SetDefault("data.xlsx_path", "./data/raw/dataset.xlsx")

	// Forecast defaults
	v.SetDefault("forecast.targets", []string{})
	v.SetDefault("forecast.start_year", 0)
	v.SetDefault("forecast.horizon", 5)
	v.SetDefault("forecast.min_points", 2)
	v.SetDefault("forecast.ramp", impact.DefaultConfig().Ramp)
	v.SetDefault("forecast.decay", false)
	v.SetDefault("forecast.decay_rate", 0.0)
	v.SetDefault("forecast.strict", false)
	v.SetDefault("forecast.target_line", 60.0)
	v.SetDefault("forecast.scenarios", []map[string]any{
		{"name": "Pessimistic", "scale": 0.5},
		{"name": "Baseline", "scale": 1.0},
		{"name": "Optimistic", "scale": 1.5},
	})

	// Export defaults
	v.SetDefault("export.dir", "./reports")
	v.SetDefault("export.csv", true)
	v.SetDefault("export.xlsx", false)
	v.SetDefault("export.chart", false)

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/inclusioncast.db")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Data config
	switch c.Data.Source {
	case SourceCSV:
		if c.Data.MainPath == "" {
			return fmt.Errorf("data.main_path is required for the csv source")
		}
	case SourceXLSX:
		if c.Data.XLSXPath == "" {
			return fmt.Errorf("data.xlsx_path is required for the xlsx source")
		}
	case SourceSQLite:
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite source")
		}
	default:
		return fmt.Errorf("data.source must be one of: csv, xlsx, sqlite")
	}

	// Validate Forecast config
	if c.Forecast.Horizon < 1 {
		return fmt.Errorf("forecast.horizon must be at least 1")
	}
	if c.Forecast.StartYear < 0 {
		return fmt.Errorf("forecast.start_year must not be negative")
	}
	if c.Forecast.MinPoints < 2 {
		return fmt.Errorf("forecast.min_points must be at least 2")
	}
	if _, err := impact.New(c.ImpactConfig()); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	if c.Forecast.TargetLine < 0 || c.Forecast.TargetLine > 100 {
		return fmt.Errorf("forecast.target_line must be between 0 and 100")
	}
	if len(c.Forecast.Scenarios) == 0 {
		return fmt.Errorf("forecast.scenarios must contain at least one scenario")
	}
	seen := make(map[string]bool)
	for _, s := range c.Scenarios() {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("forecast.scenarios: %w", err)
		}
		if seen[s.Name] {
			return fmt.Errorf("forecast.scenarios: duplicate scenario %q", s.Name)
		}
		seen[s.Name] = true
	}

	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ImpactConfig returns the impact model parameters
func (c *Config) ImpactConfig() impact.Config {
	return impact.Config{
		Ramp:      c.Forecast.Ramp,
		Decay:     c.Forecast.Decay,
		DecayRate: c.Forecast.DecayRate,
	}
}

// Scenarios returns the configured scenarios in order
func (c *Config) Scenarios() []models.Scenario {
	out := make([]models.Scenario, len(c.Forecast.Scenarios))
	for i, s := range c.Forecast.Scenarios {
		out[i] = models.Scenario{Name: s.Name, Scale: s.Scale}
	}
	return out
}

// Years returns the forecast years, starting at now's year when start_year is unset
func (c *Config) Years(now time.Time) []int {
	start := c.Forecast.StartYear
	if start == 0 {
		start = now.Year()
	}
	return forecast.Years(start, c.Forecast.Horizon)
}
