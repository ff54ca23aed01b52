package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/conneroisu/glance/internal/logging"
	"github.com/conneroisu/glance/internal/validation"
	"github.com/conneroisu/glance/internal/watcher"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateWatchConfigDetails(&config.Watch, result)
	validateLogConfigDetails(&config.Log, result)

	if err := validation.ValidateStylesheet(config.Page.Stylesheet); err != nil {
		result.addError("page.stylesheet", config.Page.Stylesheet, err.Error(),
			"Use a path such as /theme.css or an http(s) URL")
	}

	if config.Render.Dangerous {
		result.addWarning("render.dangerous", true, "raw HTML in documents is passed to viewers unescaped",
			"Only enable this for documents you trust")
	}

	result.Valid = !result.HasErrors()

	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	if config.Heartbeat <= 0 {
		result.addError("server.heartbeat", config.Heartbeat, "heartbeat interval must be positive",
			"The default is 1s")
	}

	if config.StreamRate <= 0 {
		result.addError("server.stream_rate", config.StreamRate, "stream rate must be positive")
	}
	if config.StreamBurst < 1 {
		result.addError("server.stream_burst", config.StreamBurst, "stream burst must be at least 1")
	}
}

func validateWatchConfigDetails(config *WatchConfig, result *ValidationResult) {
	if _, err := watcher.ParseBackend(config.Backend); err != nil {
		names := lo.Map(watcher.Backends(), func(b watcher.Backend, _ int) string { return string(b) })
		result.addError("watch.backend", config.Backend, "unknown backend",
			"Available backends: "+strings.Join(names, ", "))
	}

	if config.PollInterval <= 0 {
		result.addError("watch.poll_interval", config.PollInterval, "poll interval must be positive")
	} else if config.PollInterval < 100*time.Millisecond {
		result.addWarning("watch.poll_interval", config.PollInterval, "very short poll intervals are expensive on large trees")
	}

	if config.ReadAttempts < 1 {
		result.addError("watch.read_attempts", config.ReadAttempts, "at least one read attempt is required")
	}
	if config.ReadBackoff < 0 {
		result.addError("watch.read_backoff", config.ReadBackoff, "read backoff cannot be negative")
	}

	for _, pattern := range config.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			result.addError("watch.ignore", pattern, fmt.Sprintf("invalid glob pattern %q", pattern),
				"Patterns use doublestar syntax, for example **/*.swp")
		}
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.addError("log.level", config.Level, err.Error(),
			"Use one of debug, info, warn, error")
	}

	if !lo.Contains([]string{"", "text", "json"}, strings.ToLower(config.Format)) {
		result.addError("log.format", config.Format, "unknown log format",
			"Use 'text' or 'json'")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}

	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}
