package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from every environment variable before it is mapped
// onto the config tree. A double underscore separates nesting levels, so
// NOTES_SERVER__PORT becomes server.port.
const EnvPrefix = "NOTES_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Observability *ObservabilityConfig `koanf:"observability"`
	Logging       *LoggingConfig       `koanf:"logging"`
	Recorder      *RecorderConfig      `koanf:"recorder"`
	Storage       *StorageConfig       `koanf:"storage"`
	Batcher       *BatcherConfig       `koanf:"batcher"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required,oneof=development staging production test"`
}

type ServerConfig struct {
	Port               string        `koanf:"port" validate:"required"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout       time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout        time.Duration `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins" validate:"required"`
	// TrustedProxies are CIDR ranges whose X-Forwarded-For header is
	// believed. Empty means the peer address is always the client.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// TrustedNetworks parses TrustedProxies.
func (s ServerConfig) TrustedNetworks() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, cidr := range s.TrustedProxies {
		_, n, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// URL renders the postgres connection string used by the pool and migrations.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// LoadConfig loads the configuration from an optional .env file and the
// environment using koanf, applies defaults and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return Load(env.Provider(EnvPrefix, ".", envKey))
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Load builds a Config from any koanf provider.
func Load(provider koanf.Provider) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(provider, nil); err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("could not validate config: %w", err)
	}

	// optional sections are pointers so a missing section can be told apart
	// from a zero one
	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	if mainConfig.Logging == nil {
		mainConfig.Logging = DefaultLoggingConfig()
	}
	if mainConfig.Recorder == nil {
		mainConfig.Recorder = DefaultRecorderConfig()
	}
	if mainConfig.Batcher == nil {
		mainConfig.Batcher = DefaultBatcherConfig()
	}

	mainConfig.Observability.Environment = mainConfig.Primary.Env
	mainConfig.Observability.applyDefaults()
	mainConfig.Logging.applyDefaults()
	mainConfig.Recorder.applyDefaults()

	if _, err := mainConfig.Server.TrustedNetworks(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}
	if err := mainConfig.Logging.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	if err := mainConfig.Recorder.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recorder config: %w", err)
	}

	return mainConfig, nil
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Primary.Env == "production"
}
