package config

import (
	"time"
)

// Config represents the complete configuration structure
type Config struct {
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Inspector InspectorConfig `yaml:"inspector" mapstructure:"inspector"`
	HotReload HotReloadConfig `yaml:"hotreload" mapstructure:"hotreload"`
	Capture   CaptureConfig   `yaml:"capture" mapstructure:"capture"`
}

// MonitorConfig holds interception and profile configuration
type MonitorConfig struct {
	// IgnoredDomains are substrings never intercepted when present in the
	// absolute request URL.
	IgnoredDomains []string `yaml:"ignored_domains" mapstructure:"ignored_domains"`

	// RecordMediaPayload controls whether image response bodies are retained.
	RecordMediaPayload bool `yaml:"record_media_payload" mapstructure:"record_media_payload"`

	// ProfilesFile points at a YAML/JSON profile set to load at startup.
	ProfilesFile string `yaml:"profiles_file" mapstructure:"profiles_file"`

	// OpenAPISpec points at an OpenAPI 3 document to derive profiles from.
	OpenAPISpec string `yaml:"openapi_spec" mapstructure:"openapi_spec"`

	// Seed drives templated profile body generation for reproducible payloads.
	Seed int64 `yaml:"seed" mapstructure:"seed"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level" mapstructure:"level"`
	Format    string `yaml:"format" mapstructure:"format"` // json or console
	Output    string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
	AddCaller bool   `yaml:"add_caller" mapstructure:"add_caller"`
}

// ExportConfig holds record export configuration
type ExportConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	Directory string `yaml:"directory" mapstructure:"directory"`

	// Setting selects which records an export run keeps: unlimited, first
	// or last. Count bounds first/last.
	Setting string `yaml:"setting" mapstructure:"setting"`
	Count   int    `yaml:"count" mapstructure:"count"`

	DebounceDelay time.Duration `yaml:"debounce_delay" mapstructure:"debounce_delay"`
}

// InspectorConfig holds the read-only inspection server configuration
type InspectorConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
}

// HotReloadConfig holds profile hot reload configuration
type HotReloadConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	DebounceDelay time.Duration `yaml:"debounce_delay" mapstructure:"debounce_delay"`
}

// CaptureConfig holds capture command configuration
type CaptureConfig struct {
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit   float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	Burst       int           `yaml:"burst" mapstructure:"burst"`
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency"`
}
