// Package config resolves runtime settings from a .env file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/0xA1M/sentinel-audit/internal/scheduler"
)

// Environment variables
const (
	EnvRoot       = "AUDIT_ROOT"
	EnvSchedule   = "AUDIT_SCHEDULE"
	EnvLogPath    = "AUDIT_LOG_PATH"
	EnvHTTPAddr   = "AUDIT_HTTP_ADDR"
	EnvForwardURL = "AUDIT_FORWARD_URL"
	EnvAgentID    = "AUDIT_AGENT_ID"
	EnvProxies    = "AUDIT_TRUSTED_PROXIES"
	EnvLogLevel   = "LOG_LEVEL"
)

// Defaults
const (
	DefaultRoot     = "/home"
	DefaultSchedule = "@every 60s"
	DefaultLogPath  = "system_audit.log"
	DefaultAgentID  = "sentinel-audit"
)

// Config holds every runtime setting
type Config struct {
	Root           string   `json:"root"`
	Schedule       string   `json:"schedule"`
	LogPath        string   `json:"log_path"`
	HTTPAddr       string   `json:"http_addr"`
	ForwardURL     string   `json:"forward_url"`
	AgentID        string   `json:"agent_id"`
	// TrustedProxies may set client address headers on API requests
	TrustedProxies []string `json:"trusted_proxies"`
	LogLevel       string   `json:"log_level"`
	Console        bool     `json:"console"`
	Once           bool     `json:"once"`
}

// LoadDotEnv loads variables from the given files, or .env when none are
// named. A missing file is not an error; variables already set in the
// environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var errs error
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, fmt.Errorf("failed to load %s: %w", file, err))
		}
	}
	return errs
}

// FromEnv builds a Config from the environment, falling back to defaults
func FromEnv() Config {
	return Config{
		Root:           getEnv(EnvRoot, DefaultRoot),
		Schedule:       getEnv(EnvSchedule, DefaultSchedule),
		LogPath:        getEnv(EnvLogPath, DefaultLogPath),
		HTTPAddr:       getEnv(EnvHTTPAddr, ""),
		ForwardURL:     getEnv(EnvForwardURL, ""),
		AgentID:        getEnv(EnvAgentID, DefaultAgentID),
		TrustedProxies: splitList(getEnv(EnvProxies, "")),
		LogLevel:       getEnv(EnvLogLevel, "info"),
		Console:        true,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// BindFlags registers the daemon flags on flags using the current values as
// defaults, so flags override whatever the environment set.
func (c *Config) BindFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Root, "root", c.Root, "Directory tree to watch for modifications")
	flags.StringVar(&c.Schedule, "schedule", c.Schedule, "Sampling schedule (@every <duration>, @minutely, @hourly, @daily)")
	flags.StringVar(&c.LogPath, "log-path", c.LogPath, "Event log file")
	flags.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "Address for the status API, empty to disable")
	flags.StringVar(&c.ForwardURL, "forward-url", c.ForwardURL, "Collector URL events are forwarded to, empty to disable")
	flags.StringVar(&c.AgentID, "agent-id", c.AgentID, "Identifier sent with forwarded events")
	flags.StringSliceVar(&c.TrustedProxies, "trusted-proxy", c.TrustedProxies, "Proxy address whose X-Forwarded-For is honoured, repeatable")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Diagnostic log level (debug, info, warn, error)")
	flags.BoolVar(&c.Console, "console", c.Console, "Echo warning events to stderr")
	flags.BoolVar(&c.Once, "once", c.Once, "Run every sampler once and exit")
}

// Validate checks every field and reports all problems at once
func (c Config) Validate() error {
	var errs error

	if c.Root == "" {
		errs = multierr.Append(errs, errors.New("root must not be empty"))
	}
	if err := scheduler.ValidateSchedule(c.Schedule); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("schedule: %w", err))
	}
	if c.LogPath == "" {
		errs = multierr.Append(errs, errors.New("log path must not be empty"))
	}
	if c.HTTPAddr != "" {
		if _, _, err := net.SplitHostPort(c.HTTPAddr); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("http address: %w", err))
		}
	}
	for _, proxy := range c.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			errs = multierr.Append(errs, fmt.Errorf("trusted proxy %q is not an IP address", proxy))
		}
	}
	if c.ForwardURL != "" {
		u, err := url.Parse(c.ForwardURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = multierr.Append(errs, fmt.Errorf("forward url %q must be an absolute http(s) URL", c.ForwardURL))
		}
	}

	return errs
}

// Load resolves the configuration for args: .env, then environment, then
// flags. The result is validated.
func Load(args []string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	cfg := FromEnv()
	flags := pflag.NewFlagSet("auditd", pflag.ContinueOnError)
	cfg.BindFlags(flags)
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
