package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config.yaml"

// Rendering engines understood by render.New.
const (
	EngineChromium = "chromium"
	EngineOksvg    = "oksvg"
)

// Page background policies.
const (
	BackgroundWhite       = "white"
	BackgroundTransparent = "transparent"
)

// Config is the full service configuration as read from YAML.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	RateLimiter struct {
		UserLimit int           `yaml:"user_limit"`
		Interval  time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`

	Redis struct {
		Addr string `yaml:"addr"`
		DB   int    `yaml:"db"`
	} `yaml:"redis"`

	Render RenderConfig `yaml:"render"`
	Chrome ChromeConfig `yaml:"chrome"`

	Raster struct {
		Strict bool `yaml:"strict"`
	} `yaml:"raster"`
}

// RenderConfig holds settings shared by every rendering engine.
type RenderConfig struct {
	Engine         string        `yaml:"engine"`
	ViewportWidth  int           `yaml:"viewport_width"`
	ViewportHeight int           `yaml:"viewport_height"`
	Background     string        `yaml:"background"`
	Timeout        time.Duration `yaml:"timeout"`
	TempDir        string        `yaml:"temp_dir"`
}

// ChromeConfig configures the headless browser backend.
type ChromeConfig struct {
	Path               string        `yaml:"path"`
	NoSandbox          bool          `yaml:"no_sandbox"`
	PoolSize           int           `yaml:"pool_size"`
	UserDataDir        string        `yaml:"user_data_dir"`
	FullPage           bool          `yaml:"full_page"`
	NetworkIdleTimeout time.Duration `yaml:"network_idle_timeout"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads the config from CONFIG_PATH, or config.yaml when unset. A missing
// default file yields Default().
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return Default()
		}
		path = defaultConfigPath
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the YAML config at path. It panics on invalid
// input since the service cannot start without it.
func LoadFrom(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %s: %v", path, err))
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Render.Engine == "" {
		cfg.Render.Engine = EngineChromium
	}
	if cfg.Render.ViewportWidth == 0 {
		cfg.Render.ViewportWidth = 1200
	}
	if cfg.Render.ViewportHeight == 0 {
		cfg.Render.ViewportHeight = 1200
	}
	if cfg.Render.Background == "" {
		cfg.Render.Background = BackgroundWhite
	}
	if cfg.Render.Timeout == 0 {
		cfg.Render.Timeout = 30 * time.Second
	}
	if cfg.Chrome.NetworkIdleTimeout == 0 {
		cfg.Chrome.NetworkIdleTimeout = 5 * time.Second
	}
	if cfg.Chrome.SettleDelay == 0 {
		cfg.Chrome.SettleDelay = 2 * time.Second
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Render.Engine {
	case EngineChromium, EngineOksvg:
	default:
		return fmt.Errorf("render.engine must be %q or %q, got %q", EngineChromium, EngineOksvg, c.Render.Engine)
	}
	if c.Render.ViewportWidth <= 0 || c.Render.ViewportHeight <= 0 {
		return fmt.Errorf("render viewport must be positive, got %dx%d", c.Render.ViewportWidth, c.Render.ViewportHeight)
	}
	switch c.Render.Background {
	case BackgroundWhite, BackgroundTransparent:
	default:
		return fmt.Errorf("render.background must be %q or %q, got %q", BackgroundWhite, BackgroundTransparent, c.Render.Background)
	}
	if c.Render.Timeout < 0 {
		return fmt.Errorf("render.timeout must not be negative")
	}
	if c.Chrome.PoolSize < 0 {
		return fmt.Errorf("chrome.pool_size must not be negative")
	}
	if c.Chrome.NetworkIdleTimeout < 0 || c.Chrome.SettleDelay < 0 {
		return fmt.Errorf("chrome wait durations must not be negative")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if c.RateLimiter.Interval < 0 {
		return fmt.Errorf("rate_limiter.interval must not be negative")
	}
	return nil
}
