package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/raaihank/numsieve/internal/pattern"
	"github.com/raaihank/numsieve/internal/source"
)

// EnvPrefix prefixes every environment override, e.g. NUMSIEVE_SERVER_PORT.
const EnvPrefix = "NUMSIEVE"

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/numsieve/")
	v.AddConfigPath("$HOME/.numsieve/")

	// Environment variable overrides
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about
	if err := registerDefaults(v); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// registerDefaults walks the YAML form of GetDefaults and registers each
// leaf as a viper default.
func registerDefaults(v *viper.Viper) error {
	raw, err := yaml.Marshal(GetDefaults())
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("failed to decode defaults: %w", err)
	}
	setDefaults(v, "", tree)
	return nil
}

func setDefaults(v *viper.Viper, prefix string, tree map[string]any) {
	for key, value := range tree {
		if prefix != "" {
			key = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, value)
	}
}

func decode(v *viper.Viper) (*Config, error) {
	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("invalid batch size: %d", config.Pipeline.BatchSize)
	}
	if config.Pipeline.Workers <= 0 {
		return fmt.Errorf("invalid worker count: %d", config.Pipeline.Workers)
	}

	if _, err := pattern.ParseStrategy(config.Pattern.Strategy); err != nil {
		return err
	}
	if config.Pattern.ChunkSize <= 0 {
		return fmt.Errorf("invalid pattern chunk size: %d", config.Pattern.ChunkSize)
	}

	if _, err := source.ParsePolicy(config.Scan.Policy); err != nil {
		return err
	}
	if config.Scan.Column < -1 {
		return fmt.Errorf("invalid scan column: %d (must be -1 or a zero-based index)", config.Scan.Column)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMinute)
	}

	if config.Runs.MaxActive <= 0 {
		return fmt.Errorf("invalid max active runs: %d", config.Runs.MaxActive)
	}
	if config.Runs.MaxMatches < 0 {
		return fmt.Errorf("invalid max matches per run: %d", config.Runs.MaxMatches)
	}

	if config.Redis.Enabled && config.Redis.Addr == "" {
		return fmt.Errorf("redis enabled without an address")
	}
	if config.History.Enabled && config.History.DSN == "" {
		return fmt.Errorf("history enabled without a DSN")
	}

	return nil
}

// Watch re-reads configPath on every change and hands each valid
// configuration to callback. Invalid edits are reported to onError and
// otherwise ignored.
func Watch(configPath string, callback func(*Config), onError func(error)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := decode(v)
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		callback(config)
	})
	v.WatchConfig()
	return nil
}

// Dump renders config as YAML.
func Dump(config *Config) ([]byte, error) {
	return yaml.Marshal(config)
}
