package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/energizer-project/mcwatch/internal/status"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateServers(cfg.Servers, result)
	validateMonitor(&cfg.Monitor, result)
	validateOutputs(cfg, result)

	return result
}

func validateServers(servers []ServerConfig, result *ValidationResult) {
	labels := make(map[string]int, len(servers))
	for i, s := range servers {
		field := fmt.Sprintf("servers[%d]", i)

		if strings.TrimSpace(s.Label) == "" {
			result.AddError(field+".label", "label is required")
		} else if prev, ok := labels[s.Label]; ok {
			result.AddWarning(field+".label",
				fmt.Sprintf("label %q is also used by servers[%d]", s.Label, prev))
		} else {
			labels[s.Label] = i
		}

		if err := ValidateAddress(s.Address); err != nil {
			result.AddError(field+".address", err.Error())
		}
	}
}

func validateMonitor(m *MonitorConfig, result *ValidationResult) {
	if m.IntervalSeconds < 0 {
		result.AddError("monitor.interval_seconds", "interval must not be negative")
	} else if m.IntervalSeconds < 5 {
		result.AddWarning("monitor.interval_seconds",
			"interval less than 5s may flood the monitored servers")
	}

	if m.TimeoutMs <= 0 {
		result.AddError("monitor.timeout_ms", "timeout must be positive")
	}
	if m.Retries < 1 {
		result.AddError("monitor.retries", "at least 1 attempt is required")
	}
	if m.RetryDelayMs < 0 {
		result.AddError("monitor.retry_delay_ms", "retry delay must not be negative")
	}
	if m.TimeoutMs > 0 && m.Retries > 1 && m.TimeoutMs < (m.Retries-1)*m.RetryDelayMs {
		result.AddWarning("monitor.timeout_ms", fmt.Sprintf(
			"timeout %dms is shorter than the %d retry delays (%dms), later attempts will never run",
			m.TimeoutMs, m.Retries-1, (m.Retries-1)*m.RetryDelayMs))
	}
	if m.RetentionHours < 1 {
		result.AddWarning("monitor.retention_hours", "history retention below 1 hour keeps only the latest probes")
	}
	if m.Parallelism < 1 {
		result.AddError("monitor.parallelism", "parallelism must be at least 1")
	}

	switch strings.ToLower(m.Protocol) {
	case "modern", "legacy":
	default:
		result.AddError("monitor.protocol", fmt.Sprintf("unknown protocol %q (expected modern or legacy)", m.Protocol))
	}
}

func validateOutputs(cfg *Config, result *ValidationResult) {
	if cfg.API.Enabled {
		validatePort(cfg.API.Port, "api.port", result)
		if (cfg.API.TLSCertFile == "") != (cfg.API.TLSKeyFile == "") {
			result.AddError("api.tls_key_file", "TLS needs both a certificate and a key file")
		}
		if cfg.API.RateLimitRPS < 1 {
			result.AddWarning("api.rate_limit_rps",
				"rate limit is disabled (0 RPS), this may expose the API to abuse")
		}
	}

	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		validatePort(cfg.MQTT.Port, "mqtt.port", result)
	}

	if cfg.Discord.Enabled {
		if !strings.HasPrefix(cfg.Discord.WebhookURL, "https://") {
			result.AddError("discord.webhook_url", "an https webhook URL is required when Discord is enabled")
		}
	}

	if cfg.Journal.Enabled {
		if strings.TrimSpace(cfg.Journal.Path) == "" {
			result.AddError("journal.path", "journal path is required when enabled")
		}
		if cfg.Journal.RetentionDays < 1 {
			result.AddError("journal.retention_days", "retention must be at least 1 day")
		}
		if _, err := time.Parse("15:04", cfg.Journal.CleanupTime); err != nil {
			result.AddError("journal.cleanup_time", fmt.Sprintf("invalid cleanup time %q (expected HH:MM)", cfg.Journal.CleanupTime))
		}
	}
}

// ValidateAddress checks a host[:port] server address.
func ValidateAddress(addr string) error {
	_, err := status.ParseEndpoint(addr)
	return err
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
