package utils

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strconv"
	"strings"

	"logsink/db"
	"logsink/formats"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds every process setting. It is built once at startup and
// passed to each component; nothing reads configuration globally.
type Config struct {
	UDPAddr   string `yaml:"udp_addr"`
	HTTPAddr  string `yaml:"http_addr"`
	DBDriver  string `yaml:"db_driver"`
	DBPath    string `yaml:"db_path"`
	Format    string `yaml:"format"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		UDPAddr:   "127.0.0.1:7878",
		HTTPAddr:  "127.0.0.1:8080",
		DBDriver:  db.DriverSQLite,
		DBPath:    "logs.db",
		Format:    "json",
		Workers:   max(runtime.NumCPU(), 4),
		QueueSize: 4096,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// FromEnv overlays LOGSINK_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	cfg.UDPAddr = GetSanitizedEnvString("LOGSINK_UDP_ADDR", cfg.UDPAddr)
	cfg.HTTPAddr = GetSanitizedEnvString("LOGSINK_HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBDriver = strings.ToLower(GetSanitizedEnvString("LOGSINK_DB_DRIVER", cfg.DBDriver))
	cfg.DBPath = GetSanitizedEnvString("LOGSINK_DB_PATH", cfg.DBPath)
	cfg.Format = strings.ToLower(GetSanitizedEnvString("LOGSINK_FORMAT", cfg.Format))
	cfg.Workers = int(GetSanitizedEnvInt64("LOGSINK_WORKERS", int64(cfg.Workers)))
	cfg.QueueSize = int(GetSanitizedEnvInt64("LOGSINK_QUEUE_SIZE", int64(cfg.QueueSize)))
	cfg.LogLevel = strings.ToLower(GetSanitizedEnvString("LOGSINK_LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(GetSanitizedEnvString("LOGSINK_LOG_FORMAT", cfg.LogFormat))
}

// BindFlags registers command-line flags that override cfg. Flag defaults
// are the values already in cfg, so parse after LoadFile and FromEnv.
func BindFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.StringVar(&cfg.UDPAddr, "udp-addr", cfg.UDPAddr, "UDP address to receive log events on")
	flags.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP address to serve queries on")
	flags.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "database driver (sqlite3 or duckdb)")
	flags.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "database file path")
	flags.StringVar(&cfg.Format, "format", cfg.Format, "ingestion format ("+strings.Join(formats.Names(), ", ")+")")
	flags.IntVar(&cfg.Workers, "workers", cfg.Workers, "number of ingestion workers")
	flags.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "datagrams buffered before dropping")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log output format (text or json)")
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.UDPAddr == "" {
		return errors.New("udp address is required")
	}
	if c.HTTPAddr == "" {
		return errors.New("http address is required")
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.DBDriver != db.DriverSQLite && c.DBDriver != db.DriverDuckDB {
		return fmt.Errorf("unsupported database driver %q", c.DBDriver)
	}
	if !slices.Contains(formats.Names(), c.Format) {
		return fmt.Errorf("unsupported format %q", c.Format)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}

func GetSanitizedEnvString(key string, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))

	if value == "" {
		return defaultValue
	}

	return value
}

func GetSanitizedEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)

	if value == "" {
		return defaultValue
	}

	value = strings.TrimSpace(value)

	// Convert string to int64
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return intValue
}
