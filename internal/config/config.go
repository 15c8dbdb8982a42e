package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
)

// EndpointConfig описывает endpoint, создаваемый при старте
type EndpointConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind,omitempty"` // General (default) или Edge
	URL  string `yaml:"url"`
}

// GetKind возвращает вариант endpoint с учётом default (General)
func (e EndpointConfig) GetKind() string {
	if e.Kind == "" {
		return "General"
	}
	return e.Kind
}

// ProjectConfig описывает проект, создаваемый при старте
type ProjectConfig struct {
	Name     string `yaml:"name"`
	Key      string `yaml:"key"`      // ключ проекта, передаётся в заголовке CK
	Endpoint string `yaml:"endpoint"` // имя endpoint
}

// ArchiveConfig описывает архив значений датчиков в ClickHouse
type ArchiveConfig struct {
	URL           string        `yaml:"url"`                     // clickhouse://host:port/database?table=xxx
	BatchSize     int           `yaml:"batchSize,omitempty"`     // макс. строк в батче (default: 500)
	FlushInterval time.Duration `yaml:"flushInterval,omitempty"` // интервал сброса (default: 2s)
	BufferSize    int           `yaml:"bufferSize,omitempty"`    // размер очереди (default: 5000)
}

// GetBatchSize возвращает размер батча с default
func (a *ArchiveConfig) GetBatchSize() int {
	if a == nil || a.BatchSize <= 0 {
		return 500
	}
	return a.BatchSize
}

// GetFlushInterval возвращает интервал сброса с default
func (a *ArchiveConfig) GetFlushInterval() time.Duration {
	if a == nil || a.FlushInterval <= 0 {
		return 2 * time.Second
	}
	return a.FlushInterval
}

// GetBufferSize возвращает размер очереди с default
func (a *ArchiveConfig) GetBufferSize() int {
	if a == nil || a.BufferSize <= 0 {
		return 5000
	}
	return a.BufferSize
}

// Enabled возвращает true если архив настроен
func (a *ArchiveConfig) Enabled() bool {
	return a != nil && a.URL != ""
}

// stringSlice реализует flag.Value для множественных строковых флагов
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type Config struct {
	// Endpoints и проекты для начального заполнения каталога
	Endpoints []EndpointConfig
	Projects  []ProjectConfig

	// Архив значений (nil = отключён)
	Archive *ArchiveConfig

	Addr            string // адрес для прослушивания (формат: :port или host:port)
	Storage         StorageType
	SQLitePath      string
	LogFormat       string
	LogLevel        string
	ConfigFile      string        // путь к YAML конфигу
	HTTPTimeout     time.Duration // таймаут запросов к бэкенду (0 = без таймаута)
	RefreshInterval time.Duration // автообновление значений датчиков (0 = отключено)
	SessionTTL      time.Duration // время жизни неактивной сессии
}

// Parse разбирает os.Args; ошибки флагов завершают процесс
func Parse() *Config {
	cfg, err := ParseArgs(flag.CommandLine, os.Args[1:])
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}
	return cfg
}

// ParseArgs разбирает args в fs. Ошибки YAML логируются, конфиг без них остаётся рабочим.
func ParseArgs(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}

	var endpointFlags stringSlice
	var archiveURL string

	fs.Var(&endpointFlags, "endpoint", "Endpoint as name=Kind:url, e.g. e1=General:https://x/api (can be specified multiple times)")
	fs.StringVar(&cfg.Addr, "addr", ":8181", "Listen address (e.g. :8181 or 127.0.0.1:8181)")

	var storageStr string
	fs.StringVar(&storageStr, "storage", "memory", "Storage type: memory or sqlite")

	fs.StringVar(&cfg.SQLitePath, "sqlite-path", "./panel.db", "SQLite database path")
	fs.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML configuration file")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", 0, "Backend request timeout (0 = none)")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", 0, "Sensor values refresh interval (0 = disabled)")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", 30*time.Minute, "Idle session lifetime")
	fs.StringVar(&archiveURL, "archive-url", "", "raw data archive URL: clickhouse://... or sqlite://path (empty = disabled)")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.Storage = StorageType(storageStr)
	if cfg.Storage != StorageMemory && cfg.Storage != StorageSQLite {
		cfg.Storage = StorageMemory
	}

	// Загрузка конфига из YAML (если указан)
	if cfg.ConfigFile != "" {
		yamlConfig, err := LoadFromYAML(cfg.ConfigFile)
		if err != nil {
			slog.Error("Failed to load config file", "path", cfg.ConfigFile, "error", err)
		} else {
			cfg.Endpoints = yamlConfig.Endpoints
			cfg.Projects = yamlConfig.Projects
			cfg.Archive = yamlConfig.Archive
			if cfg.RefreshInterval == 0 {
				cfg.RefreshInterval = yamlConfig.RefreshInterval
			}
		}
	}

	// Endpoints из CLI флагов добавляются после YAML
	for _, value := range endpointFlags {
		ep, err := ParseEndpointFlag(value)
		if err != nil {
			return cfg, err
		}
		cfg.Endpoints = append(cfg.Endpoints, ep)
	}

	// CLI флаг имеет приоритет над YAML
	if archiveURL != "" {
		if cfg.Archive == nil {
			cfg.Archive = &ArchiveConfig{}
		}
		cfg.Archive.URL = archiveURL
	}

	return cfg, nil
}

// ParseEndpointFlag разбирает значение -endpoint в формате name=Kind:url
func ParseEndpointFlag(value string) (EndpointConfig, error) {
	name, rest, ok := strings.Cut(value, "=")
	if !ok || name == "" {
		return EndpointConfig{}, fmt.Errorf("invalid endpoint %q: expected name=Kind:url", value)
	}
	kind, url, ok := strings.Cut(rest, ":")
	if !ok || url == "" {
		return EndpointConfig{}, fmt.Errorf("invalid endpoint %q: expected name=Kind:url", value)
	}
	return EndpointConfig{Name: name, Kind: kind, URL: url}, nil
}

// ParseLogLevel converts string log level to slog.Level
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
