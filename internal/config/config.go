package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the redzone binaries.
type Config struct {
	// ListenAddress is the address the HTTP API binds to (e.g. ":8080").
	ListenAddress string `yaml:"listen_addr"`
	// StoreBackend selects the shared store implementation: "memory" or "redis".
	StoreBackend string `yaml:"store_backend"`
	// RedisAddr is the Redis server address used when StoreBackend is "redis".
	RedisAddr string `yaml:"redis_addr"`
	// RedisPassword is the optional Redis password.
	RedisPassword string `yaml:"redis_password"`
	// RedisDB is the Redis logical database number.
	RedisDB int `yaml:"redis_db"`
	// ZonesDB is the path to the SQLite file holding durable zone definitions.
	ZonesDB string `yaml:"zones_db"`
	// Timeout is the duration for store and network operations.
	Timeout time.Duration `yaml:"timeout"`
	// TravelSpeedKmh is the assumed responder travel speed used for ETA ranking.
	TravelSpeedKmh float64 `yaml:"travel_speed_kmh"`
	// AllowedOrigins lists browser origins accepted by the CORS middleware.
	AllowedOrigins []string `yaml:"allowed_origins"`
	// LogLevel sets the minimum log level (debug, info, warn, error, fatal).
	LogLevel string `yaml:"log_level"`
}

const (
	// DefaultConfigFilename is the default filename for the settings file.
	DefaultConfigFilename = "redzone-settings.yaml"

	// DefaultListenAddress is the default HTTP listen address.
	DefaultListenAddress = ":8080"

	// DefaultZonesDBFilename is the default filename for the zone SQLite database.
	DefaultZonesDBFilename = "redzone-zones.db"

	// DefaultTimeout is the default duration for store and network operations.
	DefaultTimeout = 5 * time.Second

	// DefaultTravelSpeedKmh is the assumed responder travel speed in km/h.
	DefaultTravelSpeedKmh = 30.0

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// StoreBackendMemory selects the in-process store.
	StoreBackendMemory = "memory"
	// StoreBackendRedis selects the Redis-backed store.
	StoreBackendRedis = "redis"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownStoreBackend is returned when StoreBackend is not a known value.
	errUnknownStoreBackend = errors.New("store backend must be \"memory\" or \"redis\"")
	// errRedisAddrRequired is returned when the redis backend is selected without an address.
	errRedisAddrRequired = errors.New("redis address must be provided for the redis backend")
)

// Load reads configuration from the provided path, applies environment
// overrides and validates essential fields. A missing file is not an error:
// defaults plus environment variables form a complete configuration.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	var cfg Config

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		if err = yaml.Unmarshal(contents, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal settings: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Keep zero config, defaults are applied below.
	default:
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnv(&cfg)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and fills defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}

	if _, err := net.ResolveTCPAddr("tcp", cfg.ListenAddress); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}

	if cfg.StoreBackend == "" {
		cfg.StoreBackend = StoreBackendMemory
	}

	switch cfg.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if cfg.RedisAddr == "" {
			return errRedisAddrRequired
		}
	default:
		return errUnknownStoreBackend
	}

	if cfg.ZonesDB == "" {
		cfg.ZonesDB = DefaultZonesDBFilename
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.TravelSpeedKmh <= 0 {
		cfg.TravelSpeedKmh = DefaultTravelSpeedKmh
	}

	return nil
}

// applyEnv overlays settings from the process environment. A .env file in the
// working directory is honoured when present; explicit environment variables
// win over both the file and the YAML settings.
func applyEnv(cfg *Config) {
	//nolint:errcheck // A missing .env file is the normal case.
	godotenv.Load()

	if v := os.Getenv("REDZONE_PORT"); v != "" {
		cfg.ListenAddress = ":" + v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v

		if cfg.StoreBackend == "" {
			cfg.StoreBackend = StoreBackendRedis
		}
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		// Ignore unparsable values, keep the configured database.
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}
}
