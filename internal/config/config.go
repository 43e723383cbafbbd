package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Render   RenderConfig   `yaml:"render" mapstructure:"render"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Manifest ManifestConfig `yaml:"manifest" mapstructure:"manifest"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Preview  PreviewConfig  `yaml:"preview" mapstructure:"preview"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// RenderConfig configures batch rendering of a dataset split.
type RenderConfig struct {
	Root      string `yaml:"root" mapstructure:"root"`
	Out       string `yaml:"out" mapstructure:"out"`
	LineWidth int    `yaml:"line_width" mapstructure:"line_width"`
	Limit     int    `yaml:"limit" mapstructure:"limit"`
	Seed      int64  `yaml:"seed" mapstructure:"seed"`
	Sample    bool   `yaml:"sample" mapstructure:"sample"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
}

// CatalogConfig configures the SQLite run catalog. An empty path disables it.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ManifestConfig configures the per-run YAML manifest.
type ManifestConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Name    string `yaml:"name" mapstructure:"name"`
}

// ServerConfig configures the preview server listener.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// PreviewConfig configures on-demand rendering in the preview server.
type PreviewConfig struct {
	CacheSize      int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL       time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	RatePerSecond  float64       `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst          int           `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DAMAGEVIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("render.root", "")
	v.SetDefault("render.out", "vis_labels")
	v.SetDefault("render.line_width", 2)
	v.SetDefault("render.limit", 0)
	v.SetDefault("render.seed", 42)
	v.SetDefault("render.sample", false)
	v.SetDefault("render.workers", 4)
	v.SetDefault("catalog.path", "")
	v.SetDefault("manifest.enabled", true)
	v.SetDefault("manifest.name", "manifest.yaml")
	v.SetDefault("server.port", 8080)
	v.SetDefault("preview.cache_size", 256)
	v.SetDefault("preview.cache_ttl", 10*time.Minute)
	v.SetDefault("preview.rate_per_second", 8.0)
	v.SetDefault("preview.burst", 16)
	v.SetDefault("preview.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Mode is "render", "serve" or
// "inspect".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "render":
		if c.Render.Root == "" {
			errs = append(errs, "render.root is required")
		}
		if c.Render.Workers < 1 || c.Render.Workers > 64 {
			errs = append(errs, fmt.Sprintf("render.workers must be between 1 and 64, got %d", c.Render.Workers))
		}
		if c.Render.Limit < 0 {
			errs = append(errs, fmt.Sprintf("render.limit must be >= 0, got %d", c.Render.Limit))
		}
		if c.Render.Sample && c.Render.Limit == 0 {
			errs = append(errs, "render.sample requires render.limit > 0")
		}
	case "serve":
		if c.Render.Root == "" {
			errs = append(errs, "render.root is required")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be > 0 and <= 65535, got %d", c.Server.Port))
		}
		if c.Preview.CacheSize < 1 {
			errs = append(errs, "preview.cache_size must be >= 1")
		}
		if c.Preview.RatePerSecond <= 0 {
			errs = append(errs, "preview.rate_per_second must be > 0")
		}
	case "inspect":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Render.LineWidth < 1 {
		errs = append(errs, fmt.Sprintf("render.line_width must be >= 1, got %d", c.Render.LineWidth))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
