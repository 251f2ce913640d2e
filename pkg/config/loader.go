package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file path
	v.SetConfigFile(configPath)

	// Set environment variable prefix
	v.SetEnvPrefix("NETMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal.
		panic(err)
	}
	return &cfg
}

// WriteToFile writes configuration to a YAML file
func WriteToFile(cfg *Config, filePath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	// Monitor defaults
	v.SetDefault("monitor.ignored_domains", []string{})
	v.SetDefault("monitor.record_media_payload", true)
	v.SetDefault("monitor.seed", int64(0))

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_caller", true)

	// Export defaults
	v.SetDefault("export.enabled", false)
	v.SetDefault("export.directory", "netmon-records")
	v.SetDefault("export.setting", "unlimited")
	v.SetDefault("export.count", 0)
	v.SetDefault("export.debounce_delay", time.Duration(500*time.Millisecond))

	// Inspector defaults
	v.SetDefault("inspector.enabled", false)
	v.SetDefault("inspector.host", "127.0.0.1")
	v.SetDefault("inspector.port", 9321)

	// Hot reload defaults
	v.SetDefault("hotreload.enabled", false)
	v.SetDefault("hotreload.debounce_delay", time.Duration(300*time.Millisecond))

	// Capture defaults
	v.SetDefault("capture.timeout", time.Duration(30*time.Second))
	v.SetDefault("capture.rate_limit", float64(10))
	v.SetDefault("capture.burst", 1)
	v.SetDefault("capture.concurrency", 4)
}
