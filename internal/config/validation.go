package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration and returns ValidationErrors when it is unusable.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Address == "" {
		add("server.address", "address is required")
	} else if !isValidAddress(c.Server.Address) {
		add("server.address", "invalid address %q, expected host:port or :port", c.Server.Address)
	}
	if c.Server.ReadTimeout < 0 {
		add("server.read_timeout", "must not be negative")
	}
	if c.Server.WriteTimeout < 0 {
		add("server.write_timeout", "must not be negative")
	}
	if c.Server.ShutdownTimeout < 0 {
		add("server.shutdown_timeout", "must not be negative")
	}
	if c.Server.BodyLimit < 0 {
		add("server.body_limit", "must not be negative")
	}

	if c.DataDir == "" {
		add("data_dir", "data directory is required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format", "invalid log format %q, must be json or console", c.Log.Format)
	}
	switch c.Log.Output {
	case "stdout", "file", "both":
		if c.Log.Output != "stdout" && c.Log.FilePath == "" {
			add("log.file_path", "required when log.output is %s", c.Log.Output)
		}
	default:
		add("log.output", "invalid log output %q, must be stdout, file or both", c.Log.Output)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path", "must start with /")
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			add("redis.addr", "required when redis is enabled")
		}
		if c.Redis.Channel == "" {
			add("redis.channel", "required when redis is enabled")
		}
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		add("audit.path", "required when audit is enabled")
	}

	for _, name := range c.HookNames() {
		h := c.Hooks[name]
		field := "hooks." + name
		if strings.Contains(name, "/") {
			add(field, "hook name must not contain /")
		}
		if strings.TrimSpace(h.Command) == "" {
			add(field+".command", "command is required")
		}
		if h.Timeout < 0 {
			add(field+".timeout", "must not be negative")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func isValidAddress(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	_, err = net.LookupPort("tcp", port)
	return err == nil
}
