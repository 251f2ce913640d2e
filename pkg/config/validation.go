package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(ve[0].Error())
	sb.WriteString(fmt.Sprintf(" (and %d more errors)", len(ve)-1))
	return sb.String()
}

// Validate validates the complete configuration
func Validate(cfg *Config) error {
	var errors ValidationErrors

	if errs := validateLogging(&cfg.Logging); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if errs := validateExport(&cfg.Export); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if errs := validateInspector(&cfg.Inspector); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if errs := validateCapture(&cfg.Capture); len(errs) > 0 {
		errors = append(errors, errs...)
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Value:   cfg.Level,
			Message: "must be one of debug, info, warn, error",
		})
	}

	switch cfg.Format {
	case "json", "console":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Value:   cfg.Format,
			Message: "must be json or console",
		})
	}

	return errs
}

func validateExport(cfg *ExportConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return nil
	}

	if cfg.Directory == "" {
		errs = append(errs, ValidationError{
			Field:   "export.directory",
			Value:   cfg.Directory,
			Message: "cannot be empty when export is enabled",
		})
	}

	switch cfg.Setting {
	case "unlimited":
	case "first", "last":
		if cfg.Count <= 0 {
			errs = append(errs, ValidationError{
				Field:   "export.count",
				Value:   cfg.Count,
				Message: "must be positive for first/last settings",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "export.setting",
			Value:   cfg.Setting,
			Message: "must be one of unlimited, first, last",
		})
	}

	if cfg.DebounceDelay < 0 {
		errs = append(errs, ValidationError{
			Field:   "export.debounce_delay",
			Value:   cfg.DebounceDelay,
			Message: "cannot be negative",
		})
	}

	return errs
}

func validateInspector(cfg *InspectorConfig) ValidationErrors {
	var errs ValidationErrors

	if !cfg.Enabled {
		return nil
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "inspector.port",
			Value:   cfg.Port,
			Message: "must be between 1 and 65535",
		})
	}

	if cfg.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "inspector.host",
			Value:   cfg.Host,
			Message: "cannot be empty when the inspector is enabled",
		})
	}

	return errs
}

func validateCapture(cfg *CaptureConfig) ValidationErrors {
	var errs ValidationErrors

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "capture.timeout",
			Value:   cfg.Timeout,
			Message: "must be positive",
		})
	}

	if cfg.RateLimit <= 0 {
		errs = append(errs, ValidationError{
			Field:   "capture.rate_limit",
			Value:   cfg.RateLimit,
			Message: "must be positive",
		})
	}

	if cfg.Concurrency < 1 {
		errs = append(errs, ValidationError{
			Field:   "capture.concurrency",
			Value:   cfg.Concurrency,
			Message: "must be at least 1",
		})
	}

	return errs
}
