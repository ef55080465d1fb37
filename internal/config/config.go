package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
)

const (
	DefaultAPIURL     = "http://127.0.0.1:7433"
	DefaultDBFileName = ".dupegraph.db"
	DefaultLogLevel   = "info"

	DefaultMaxBatchFiles     = 1000
	DefaultLargeBatchWarning = 100

	DefaultEnqueueRate  = 50.0
	DefaultEnqueueBurst = 100
	DefaultQueueBatch   = 20

	DefaultMaintenanceSchedule = "0 30 3 * * *"

	configFileName           = ".dupegraph.toml"
	configDirEnvKey          = "DUPEGRAPH_CONFIG_DIR"
	trustProjectConfigEnvKey = "DUPEGRAPH_TRUST_PROJECT_CONFIG"
	apiURLEnvKey             = "DUPEGRAPH_API_URL"
	dbPathEnvKey             = "DUPEGRAPH_DB"
)

// DuplicatesConfig bounds decision batches.
type DuplicatesConfig struct {
	MaxBatchFiles     int `toml:"max_batch_files"`
	LargeBatchWarning int `toml:"large_batch_warning"`
}

// PotentialsConfig tunes the potential-pair queue endpoints.
type PotentialsConfig struct {
	// EnqueueRate is the sustained number of enqueue requests per second.
	EnqueueRate  float64 `toml:"enqueue_rate"`
	EnqueueBurst int     `toml:"enqueue_burst"`
	DefaultBatch int     `toml:"default_batch"`
}

// MaintenanceConfig schedules store maintenance. An empty schedule disables it.
type MaintenanceConfig struct {
	Schedule string `toml:"schedule"`
}

// AuthConfig holds the bcrypt hash of the API bearer token.
type AuthConfig struct {
	TokenHash string `toml:"token_hash"`
}

// Config defines runtime configuration for dupegraph.
type Config struct {
	APIURL                   string            `toml:"api_url"`
	DBPath                   string            `toml:"db_path"`
	LogLevel                 string            `toml:"log_level"`
	Duplicates               DuplicatesConfig  `toml:"duplicates"`
	Potentials               PotentialsConfig  `toml:"potentials"`
	Maintenance              MaintenanceConfig `toml:"maintenance"`
	Auth                     AuthConfig        `toml:"auth"`
	TrustedProjectConfigPath string            `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		DBPath:   "",
		LogLevel: DefaultLogLevel,
		Duplicates: DuplicatesConfig{
			MaxBatchFiles:     DefaultMaxBatchFiles,
			LargeBatchWarning: DefaultLargeBatchWarning,
		},
		Potentials: PotentialsConfig{
			EnqueueRate:  DefaultEnqueueRate,
			EnqueueBurst: DefaultEnqueueBurst,
			DefaultBatch: DefaultQueueBatch,
		},
		Maintenance: MaintenanceConfig{Schedule: DefaultMaintenanceSchedule},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"db_path",
	"log_level",
	"duplicates.max_batch_files",
	"duplicates.large_batch_warning",
	"potentials.enqueue_rate",
	"potentials.enqueue_burst",
	"potentials.default_batch",
	"maintenance.schedule",
	"auth.token_hash",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "duplicates.max_batch_files":
		return strconv.Itoa(c.Duplicates.MaxBatchFiles), nil
	case "duplicates.large_batch_warning":
		return strconv.Itoa(c.Duplicates.LargeBatchWarning), nil
	case "potentials.enqueue_rate":
		return strconv.FormatFloat(c.Potentials.EnqueueRate, 'f', -1, 64), nil
	case "potentials.enqueue_burst":
		return strconv.Itoa(c.Potentials.EnqueueBurst), nil
	case "potentials.default_batch":
		return strconv.Itoa(c.Potentials.DefaultBatch), nil
	case "maintenance.schedule":
		return c.Maintenance.Schedule, nil
	case "auth.token_hash":
		return c.Auth.TokenHash, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}

	if apiURL := os.Getenv(apiURLEnvKey); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}

	cfg.normalizeDefaults()
	return &cfg, nil
}

// ValidateSchedule checks a six-field cron expression (seconds first).
func ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", spec, err)
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "duplicates.max_batch_files", "duplicates.large_batch_warning",
		"potentials.enqueue_burst", "potentials.default_batch":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "potentials.enqueue_rate":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive number", key)
		}
		return parsed, nil
	case "maintenance.schedule":
		if err := ValidateSchedule(value); err != nil {
			return nil, err
		}
		return value, nil
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		default:
			return nil, fmt.Errorf("log_level must be one of debug, info, warn, error")
		}
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Duplicates.MaxBatchFiles <= 0 {
		c.Duplicates.MaxBatchFiles = DefaultMaxBatchFiles
	}
	if c.Duplicates.LargeBatchWarning <= 0 {
		c.Duplicates.LargeBatchWarning = DefaultLargeBatchWarning
	}
	if c.Potentials.EnqueueRate <= 0 {
		c.Potentials.EnqueueRate = DefaultEnqueueRate
	}
	if c.Potentials.EnqueueBurst <= 0 {
		c.Potentials.EnqueueBurst = DefaultEnqueueBurst
	}
	if c.Potentials.DefaultBatch <= 0 {
		c.Potentials.DefaultBatch = DefaultQueueBatch
	}
	c.Maintenance.Schedule = strings.TrimSpace(c.Maintenance.Schedule)
}
