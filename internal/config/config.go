// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/binwatch/binwatch/internal/errors"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Target TargetConfig
	Reload ReloadConfig
	Ops    OpsConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `validate:"oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `validate:"oneof=debug info warn error"`
}

// TargetConfig holds the target executable configuration.
type TargetConfig struct {
	// Path to the executable the build system rewrites.
	Path string `validate:"required"`
	// Strategy is "commandOnly" (mirror the single file) or
	// "parentDirectory" (mirror the whole containing directory).
	Strategy string `validate:"oneof=commandOnly parentDirectory"`
	// Args are passed to the target process on start.
	Args []string
}

// ReloadConfig holds reload sequencing configuration.
type ReloadConfig struct {
	DebounceWindow time.Duration `validate:"gt=0"`
	StopTimeout    time.Duration `validate:"gt=0"`
	StopGrace      time.Duration `validate:"gt=0"`
	RetryWindow    time.Duration `validate:"gt=0"`
	RetryInterval  time.Duration `validate:"gt=0"`
}

// RetryAttempts derives the total attempt budget from the retry window.
func (r ReloadConfig) RetryAttempts() uint64 {
	return uint64(r.RetryWindow / r.RetryInterval) //nolint:gosec // durations are validated positive
}

// OpsConfig holds the optional metrics/health listener configuration.
type OpsConfig struct {
	Enabled bool
	Addr    string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")

	targetPath := flag.String("target", "", "Path to the target executable")
	strategy := flag.String("strategy", "", "Backup strategy (commandOnly, parentDirectory)")

	debounceWindow := flag.String("debounce-window", "", "Quiet period before a reload fires (default: 700ms)")
	stopTimeout := flag.String("stop-timeout", "", "Bound on the target stop call (default: 2s)")
	stopGrace := flag.String("stop-grace", "", "Extra wait after stop for the executable lock (default: 200ms)")
	retryWindow := flag.String("retry-window", "", "Total copy retry budget (default: 60s)")
	retryInterval := flag.String("retry-interval", "", "Delay between copy attempts (default: 100ms)")

	opsAddr := flag.String("ops-addr", "", "Metrics/health listener address (empty: disabled)")

	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Target: TargetConfig{
			Path:     getConfigValue(*targetPath, "TARGET_PATH", ""),
			Strategy: getConfigValue(*strategy, "TARGET_STRATEGY", "commandOnly"),
			Args:     flag.Args(),
		},
		Ops: OpsConfig{
			Addr: getConfigValue(*opsAddr, "OPS_ADDR", ""),
		},
	}
	cfg.Ops.Enabled = cfg.Ops.Addr != ""

	durations := []struct {
		dst        *time.Duration
		flagValue  string
		envKey     string
		defaultVal string
	}{
		{&cfg.Reload.DebounceWindow, *debounceWindow, "DEBOUNCE_WINDOW", "700ms"},
		{&cfg.Reload.StopTimeout, *stopTimeout, "STOP_TIMEOUT", "2s"},
		{&cfg.Reload.StopGrace, *stopGrace, "STOP_GRACE", "200ms"},
		{&cfg.Reload.RetryWindow, *retryWindow, "RETRY_WINDOW", "60s"},
		{&cfg.Reload.RetryInterval, *retryInterval, "RETRY_INTERVAL", "100ms"},
	}
	for _, d := range durations {
		raw := getConfigValue(d.flagValue, d.envKey, d.defaultVal)
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, errors.Validationf("invalid %s %q: %v", strings.ToLower(d.envKey), raw, err)
		}
		*d.dst = parsed
	}

	if err := cfg.expandTargetPath(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errors.Validationf("invalid config: field %s failed %q", fe.Namespace(), fe.Tag())
		}
		return errors.Wrap(err, errors.CodeValidation, "invalid config")
	}
	return nil
}

// expandTargetPath expands ~ and makes the target path absolute.
func (c *Config) expandTargetPath() error {
	path := c.Target.Path
	if path == "" {
		return errors.Validation("target path is required")
	}

	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	c.Target.Path = filepath.Clean(path)
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
