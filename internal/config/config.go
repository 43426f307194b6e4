package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/duganchen/feedpreview/internal/cache"
)

const (
	// EnvPrefix prefixes every environment override, e.g. FEEDPREVIEW_CACHE_TTL.
	EnvPrefix = "FEEDPREVIEW"

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Preview PreviewConfig `mapstructure:"preview"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServerConfig stores HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig stores preview cache settings.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	Backend       string        `mapstructure:"backend"`        // "memory" or "sqlite"
	SQLiteDSN     string        `mapstructure:"sqlite_dsn"`     // only for the sqlite backend
	MaxEntries    int           `mapstructure:"max_entries"`    // 0 = unbounded
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // 0 = expire lazily only
}

// PreviewConfig stores request orchestration settings.
type PreviewConfig struct {
	Dedupe bool `mapstructure:"dedupe"` // collapse concurrent fetches of one key
}

// FetchConfig stores feed download settings.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" or "json"
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"log-level": "log.level",
	"cache-ttl": "cache.ttl",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "5s")

	v.SetDefault("cache.ttl", "300s")
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.sqlite_dsn", cache.DefaultSQLiteDSN)
	v.SetDefault("cache.max_entries", 0)
	v.SetDefault("cache.sweep_interval", "1m")

	v.SetDefault("preview.dedupe", true)

	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.user_agent", "feedpreview/1.0")
	v.SetDefault("fetch.max_body_bytes", 32<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration from configPath (or the default search paths when
// empty), the environment and any flags in fs that map to a configuration key.
// A .env file in the working directory is loaded first when present.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/feedpreview")
		v.SetConfigName("feedpreview")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.TTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL))
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be %q or %q, got %q", BackendMemory, BackendSQLite, c.Cache.Backend))
	}
	if c.Cache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries))
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
