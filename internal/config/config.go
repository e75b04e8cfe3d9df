package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/hookd/internal/model"
	"yqhp/hookd/internal/utils"
)

// Config represents the complete configuration of the daemon.
type Config struct {
	Server  ServerConfig          `yaml:"server"`
	DataDir string                `yaml:"data_dir" env:"HOOKD_DATA_DIR"`
	Log     LogConfig             `yaml:"log"`
	Metrics MetricsConfig         `yaml:"metrics"`
	Redis   RedisConfig           `yaml:"redis"`
	Audit   AuditConfig           `yaml:"audit"`
	Hooks   map[string]model.Hook `yaml:"hooks"`

	// Address and LogLevel are the flat keys of older configuration files.
	// When set they override server.address and log.level.
	Address  string `yaml:"address,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `yaml:"address" env:"HOOKD_SERVER_ADDRESS"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HOOKD_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HOOKD_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HOOKD_SERVER_SHUTDOWN_TIMEOUT"`
	BodyLimit       int           `yaml:"body_limit" env:"HOOKD_SERVER_BODY_LIMIT"`
	EnableCORS      bool          `yaml:"enable_cors" env:"HOOKD_SERVER_ENABLE_CORS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" env:"HOOKD_LOG_LEVEL"`
	Format     string `yaml:"format" env:"HOOKD_LOG_FORMAT"`
	Output     string `yaml:"output" env:"HOOKD_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path" env:"HOOKD_LOG_FILE_PATH"`
	MaxSize    int    `yaml:"max_size" env:"HOOKD_LOG_MAX_SIZE"`
	MaxBackups int    `yaml:"max_backups" env:"HOOKD_LOG_MAX_BACKUPS"`
	MaxAge     int    `yaml:"max_age" env:"HOOKD_LOG_MAX_AGE"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"HOOKD_METRICS_ENABLED"`
	Namespace string `yaml:"namespace" env:"HOOKD_METRICS_NAMESPACE"`
	Path      string `yaml:"path" env:"HOOKD_METRICS_PATH"`
}

// RedisConfig holds the lifecycle event publisher configuration.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"HOOKD_REDIS_ENABLED"`
	Addr     string `yaml:"addr" env:"HOOKD_REDIS_ADDR"`
	Password string `yaml:"password" env:"HOOKD_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"HOOKD_REDIS_DB"`
	Channel  string `yaml:"channel" env:"HOOKD_REDIS_CHANNEL"`
}

// AuditConfig holds the sqlite instance index configuration.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"HOOKD_AUDIT_ENABLED"`
	// Path defaults to <data_dir>/audit.db.
	Path string `yaml:"path" env:"HOOKD_AUDIT_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         "127.0.0.1:8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			BodyLimit:       1024 * 1024, // 1MB
			EnableCORS:      false,
		},
		DataDir: DefaultDataDir(),
		Log: LogConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "hookd",
			Path:      "/metrics",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Channel: "hookd:events",
		},
		Audit: AuditConfig{
			Enabled: false,
		},
		Hooks: make(map[string]model.Hook),
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "HOOKD_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for environment variables.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets command-line arguments for configuration override.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}
	cfg.applyLegacyKeys()

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("apply command-line overrides: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. A missing file leaves
// the defaults in place.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", l.configPath, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}

	return nil
}

// applyLegacyKeys folds the flat top-level keys into their sections.
func (c *Config) applyLegacyKeys() {
	if c.Address != "" {
		c.Server.Address = c.Address
		c.Address = ""
	}
	if c.LogLevel != "" {
		c.Log.Level = c.LogLevel
		c.LogLevel = ""
	}
}

// normalize fills values derived from other fields.
func (c *Config) normalize() {
	if c.Hooks == nil {
		c.Hooks = make(map[string]model.Hook)
	}
	if c.Audit.Path == "" && c.DataDir != "" {
		c.Audit.Path = defaultAuditPath(c.DataDir)
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	return l.applyEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func (l *Loader) applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		// tags carry the default prefix
		envTag = l.envPrefix + strings.TrimPrefix(envTag, "HOOKD_")

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("set %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// applyCmdOverrides applies command-line argument overrides to the configuration.
func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a configuration value by its dotted YAML path,
// e.g. "server.address" or "log.level".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("unknown config path: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("%s is a %s, not a section", part, field.Kind())
		}
		v = field
	}

	return nil
}

// fieldByYAMLName finds the field of struct v whose yaml tag is name.
func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("field cannot be set")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyLegacyKeys()
	cfg.normalize()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// HookNames returns the configured hook names in ascending order.
func (c *Config) HookNames() []string {
	return utils.SortedKeys(c.Hooks)
}
