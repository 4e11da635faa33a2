package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ConfigManager manages container configuration as a flat key/value map.
// Keys are case-insensitive dotted paths such as "conversation.timeout".
type ConfigManager interface {
	Load(configPath string) error
	Get(key string) interface{}
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetFloat(key string) float64
	GetDuration(key string) time.Duration
	Set(key string, value interface{})
	Has(key string) bool
	Unmarshal(target interface{}) error
}

// configManager implements ConfigManager
type configManager struct {
	data map[string]interface{}
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() ConfigManager {
	return &configManager{
		data: make(map[string]interface{}),
	}
}

// Load loads configuration from a YAML or JSON file, then applies DOFFY_
// environment overrides
func (cm *configManager) Load(configPath string) error {
	if configPath == "" {
		for _, path := range []string{"doffy.yaml", "doffy.yml", "config/doffy.yaml", "config.json"} {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		return cm.loadFromEnv()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var config map[string]interface{}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".json":
		err = json.Unmarshal(data, &config)
	default:
		err = yaml.Unmarshal(data, &config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	for k, v := range cm.flatten(config) {
		cm.data[k] = v
	}

	return cm.loadFromEnv()
}

// loadFromEnv loads configuration from environment variables
func (cm *configManager) loadFromEnv() error {
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := parts[0]
		if !strings.HasPrefix(key, "DOFFY_") {
			continue
		}

		configKey := strings.TrimPrefix(key, "DOFFY_")
		configKey = strings.ToLower(configKey)
		configKey = strings.ReplaceAll(configKey, "_", ".")
		cm.data[configKey] = parseEnvValue(parts[1])
	}

	return nil
}

// parseEnvValue turns an environment string into the scalar it spells
func parseEnvValue(value string) interface{} {
	if strings.Contains(value, ",") {
		items := strings.Split(value, ",")
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

// flatten flattens a nested map, lowercasing every key
func (cm *configManager) flatten(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for k, v := range m {
		k = strings.ToLower(k)
		switch child := v.(type) {
		case map[string]interface{}:
			for nk, nv := range cm.flatten(child) {
				result[k+"."+nk] = nv
			}
		default:
			result[k] = v
		}
	}

	return result
}

// Get returns a configuration value
func (cm *configManager) Get(key string) interface{} {
	return cm.data[strings.ToLower(key)]
}

// GetString returns a configuration value as string
func (cm *configManager) GetString(key string) string {
	if value, exists := cm.data[strings.ToLower(key)]; exists {
		return fmt.Sprintf("%v", value)
	}
	return ""
}

// GetInt returns a configuration value as int
func (cm *configManager) GetInt(key string) int {
	if value, exists := cm.data[strings.ToLower(key)]; exists {
		switch v := value.(type) {
		case int:
			return v
		case float64:
			return int(v)
		case string:
			if i, err := strconv.Atoi(v); err == nil {
				return i
			}
		}
	}
	return 0
}

// GetBool returns a configuration value as bool
func (cm *configManager) GetBool(key string) bool {
	if value, exists := cm.data[strings.ToLower(key)]; exists {
		switch v := value.(type) {
		case bool:
			return v
		case string:
			return strings.ToLower(v) == "true" || v == "1"
		case int:
			return v != 0
		case float64:
			return v != 0
		}
	}
	return false
}

// GetFloat returns a configuration value as float64
func (cm *configManager) GetFloat(key string) float64 {
	if value, exists := cm.data[strings.ToLower(key)]; exists {
		switch v := value.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
	}
	return 0
}

// GetDuration returns a configuration value as a duration. Plain numbers are milliseconds.
func (cm *configManager) GetDuration(key string) time.Duration {
	if value, exists := cm.data[strings.ToLower(key)]; exists {
		switch v := value.(type) {
		case int:
			return time.Duration(v) * time.Millisecond
		case float64:
			return time.Duration(v) * time.Millisecond
		case string:
			if d, err := time.ParseDuration(v); err == nil {
				return d
			}
		}
	}
	return 0
}

// Set sets a configuration value
func (cm *configManager) Set(key string, value interface{}) {
	cm.data[strings.ToLower(key)] = value
}

// Has checks if a configuration key exists
func (cm *configManager) Has(key string) bool {
	_, exists := cm.data[strings.ToLower(key)]
	return exists
}

// Unmarshal decodes the configuration into a struct using its yaml tags
func (cm *configManager) Unmarshal(target interface{}) error {
	data, err := yaml.Marshal(cm.nest(cm.data))
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, target)
}

// nest converts a flat map to a nested map
func (cm *configManager) nest(flat map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range flat {
		parts := strings.Split(key, ".")
		current := result

		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = value
				continue
			}
			next, ok := current[part].(map[string]interface{})
			if !ok {
				next = make(map[string]interface{})
				current[part] = next
			}
			current = next
		}
	}

	return result
}

// LoadConfigWithDefaults seeds the manager with defaults, then loads the file and environment
func LoadConfigWithDefaults(configPath string, defaults interface{}) (ConfigManager, error) {
	cm := &configManager{data: make(map[string]interface{})}

	if defaults != nil {
		raw, err := yaml.Marshal(defaults)
		if err != nil {
			return nil, fmt.Errorf("failed to encode defaults: %w", err)
		}
		var seed map[string]interface{}
		if err := yaml.Unmarshal(raw, &seed); err != nil {
			return nil, fmt.Errorf("failed to decode defaults: %w", err)
		}
		cm.data = cm.flatten(seed)
	}

	if err := cm.Load(configPath); err != nil {
		return nil, err
	}

	return cm, nil
}

// ExecutorConfig configures the default asynchronous executor
type ExecutorConfig struct {
	ThreadPoolSize int    `yaml:"threadpoolsize" validate:"gte=0"`
	Type           string `yaml:"type" validate:"omitempty,oneof=FIXED SINGLE_THREAD NONE"`
}

// EventsConfig configures asynchronous notification defaults
type EventsConfig struct {
	DefaultMode    string        `yaml:"defaultmode" validate:"omitempty,oneof=SERIAL PARALLEL"`
	DefaultTimeout time.Duration `yaml:"defaulttimeout" validate:"gte=0"`
}

// ConversationConfig configures long-running conversations
type ConversationConfig struct {
	Timeout                 time.Duration `yaml:"timeout" validate:"gte=0"`
	ConcurrentAccessTimeout time.Duration `yaml:"concurrentaccesstimeout" validate:"gte=0"`
}

// ResolutionConfig configures typesafe resolution
type ResolutionConfig struct {
	CacheSize int `yaml:"cachesize" validate:"gte=0"`
}

// BootstrapConfig configures container startup
type BootstrapConfig struct {
	ConcurrentValidation bool `yaml:"concurrentvalidation"`
}

// AlternativesConfig lists globally enabled alternatives by bean id
type AlternativesConfig struct {
	Enabled []string `yaml:"enabled" validate:"dive,required"`
}

// MetricsConfig configures Prometheus collectors
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required_if=Enabled true"`
}

// SessionConfig configures the HTTP session scope adapter
type SessionConfig struct {
	CookieName string        `yaml:"cookiename" validate:"required"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ServerConfig configures the HTTP host
type ServerConfig struct {
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
	Mode string `yaml:"mode" validate:"omitempty,oneof=debug release test"`
}

// Config is the typed container configuration
type Config struct {
	Executor     ExecutorConfig     `yaml:"executor"`
	Events       EventsConfig       `yaml:"events"`
	Conversation ConversationConfig `yaml:"conversation"`
	Resolution   ResolutionConfig   `yaml:"resolution"`
	Bootstrap    BootstrapConfig    `yaml:"bootstrap"`
	Alternatives AlternativesConfig `yaml:"alternatives"`
	Log          LogConfig          `yaml:"log"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Session      SessionConfig      `yaml:"session"`
	Server       ServerConfig       `yaml:"server"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Executor: ExecutorConfig{
			ThreadPoolSize: runtime.GOMAXPROCS(0),
			Type:           "FIXED",
		},
		Events: EventsConfig{
			DefaultMode: "SERIAL",
		},
		Conversation: ConversationConfig{
			Timeout:                 10 * time.Minute,
			ConcurrentAccessTimeout: time.Second,
		},
		Resolution: ResolutionConfig{
			CacheSize: 0x10000,
		},
		Bootstrap: BootstrapConfig{
			ConcurrentValidation: true,
		},
		Log: LogConfig{
			Environment: "development",
			Level:       "info",
		},
		Metrics: MetricsConfig{
			Namespace: "doffy",
		},
		Session: SessionConfig{
			CookieName: "DOFFYSESSIONID",
			Timeout:    30 * time.Minute,
		},
		Server: ServerConfig{
			Port: 8080,
			Mode: "release",
		},
	}
}

var configValidator = validator.New()

// Validate checks every field constraint of the configuration
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("%w: invalid configuration: %v", ErrIllegalArgument, err)
	}
	return nil
}

// LoadConfig reads the file at path over the defaults, applies DOFFY_
// environment overrides and validates the result
func LoadConfig(path string) (*Config, error) {
	cm, err := LoadConfigWithDefaults(path, DefaultConfig())
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := cm.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
