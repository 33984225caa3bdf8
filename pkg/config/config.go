// Package config loads the orchestrator's configuration from environment
// variables, with an optional YAML file overlay for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable named in the external interfaces section:
// listen addresses, TLS material, loop intervals, and the
// authentication/authorization toggle.
type Config struct {
	APIHost string `yaml:"api_host"`
	APIPort int    `yaml:"api_port"`

	TLSCertPath string `yaml:"tls_cert_path"`
	TLSKeyPath  string `yaml:"tls_key_path"`

	DispatchInterval          time.Duration `yaml:"dispatch_interval"`
	CleanSupervisorInterval   time.Duration `yaml:"clean_supervisor_interval"`
	SupervisorStaleThreshold  time.Duration `yaml:"supervisor_stale_threshold"`
	ActorStaleThreshold       time.Duration `yaml:"actor_stale_threshold"`
	AllocationTTL             time.Duration `yaml:"allocation_ttl"`

	Authentication string `yaml:"authentication"`
	Authorization  string `yaml:"authorization"`

	DataDir string `yaml:"data_dir"`
}

// Default returns the configuration's documented defaults.
func Default() Config {
	return Config{
		APIHost:                  "127.0.0.1",
		APIPort:                  8080,
		DispatchInterval:         3000 * time.Millisecond,
		CleanSupervisorInterval:  10000 * time.Millisecond,
		SupervisorStaleThreshold: 30 * time.Second,
		ActorStaleThreshold:      30 * time.Second,
		AllocationTTL:            15 * time.Second,
		Authentication:           "none",
		Authorization:            "none",
		DataDir:                  "./toy-data",
	}
}

// LoadFromEnv overlays cfg with any of the TOY_API_* environment
// variables that are set.
func LoadFromEnv(cfg Config) Config {
	if v := os.Getenv("TOY_API_HOST"); v != "" {
		cfg.APIHost = v
	}
	if v := os.Getenv("TOY_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.APIPort = port
		}
	}
	if v := os.Getenv("TOY_API_TLS_CERT_PATH"); v != "" {
		cfg.TLSCertPath = v
	}
	if v := os.Getenv("TOY_API_TLS_KEY_PATH"); v != "" {
		cfg.TLSKeyPath = v
	}
	if v := durationFromEnv("TOY_API_DISPATCH_INTERVAL"); v > 0 {
		cfg.DispatchInterval = v
	}
	if v := durationFromEnv("TOY_API_CLEAN_SUPERVISOR_INTERVAL"); v > 0 {
		cfg.CleanSupervisorInterval = v
	}
	if v := durationFromEnv("TOY_API_SUPERVISOR_STALE_THRESHOLD"); v > 0 {
		cfg.SupervisorStaleThreshold = v
	}
	if v := durationFromEnv("TOY_API_ACTOR_STALE_THRESHOLD"); v > 0 {
		cfg.ActorStaleThreshold = v
	}
	if v := durationFromEnv("TOY_API_ALLOCATION_TTL"); v > 0 {
		cfg.AllocationTTL = v
	}
	if v := os.Getenv("TOY_AUTHENTICATION"); v != "" {
		cfg.Authentication = v
	}
	if v := os.Getenv("TOY_AUTHORIZATION"); v != "" {
		cfg.Authorization = v
	}
	return cfg
}

func durationFromEnv(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return 0
}

// LoadFromFile overlays cfg with a YAML file's contents, if path is
// non-empty. A missing file is not an error; an explicitly named but
// unreadable file is.
func LoadFromFile(cfg Config, path string) (Config, error) {
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// Load builds the effective configuration: defaults, then an optional
// YAML file overlay, then environment variables (highest precedence).
func Load(filePath string) (Config, error) {
	cfg, err := LoadFromFile(Default(), filePath)
	if err != nil {
		return Config{}, err
	}
	return LoadFromEnv(cfg), nil
}

// Addr returns the host:port the API server should listen on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}

// TLSEnabled reports whether both TLS cert and key paths are configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCertPath != "" && c.TLSKeyPath != ""
}

// AuthenticationEnabled reports whether the "none" sentinel is absent.
func (c Config) AuthenticationEnabled() bool {
	return c.Authentication != "none" && c.Authentication != ""
}

// AuthorizationEnabled reports whether the "none" sentinel is absent.
func (c Config) AuthorizationEnabled() bool {
	return c.Authorization != "none" && c.Authorization != ""
}
