package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/developingchet/staywindow/internal/compliance"
	"github.com/developingchet/staywindow/internal/window"
)

// Config holds all runtime configuration.
type Config struct {
	// Rule
	WindowDays    int `koanf:"window_days"`
	AllowanceDays int `koanf:"allowance_days"`

	// Classification
	StatusPolicy  string `koanf:"status_policy"`
	WarnThreshold int    `koanf:"warn_threshold"` // 0 = keep the preset's cutoff

	// Storage
	Traveller     string        `koanf:"traveller"`
	StoreBackend  string        `koanf:"store_backend"`
	DataDir       string        `koanf:"data_dir"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	RedisTimeout  time.Duration `koanf:"redis_timeout"`

	// Operational
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	ListenAddr      string        `koanf:"listen_addr"`
	MetricsAddr     string        `koanf:"metrics_addr"` // "" = no /metrics endpoint
	RefreshInterval time.Duration `koanf:"refresh_interval"`
}

// defaults is the lowest-priority layer.
var defaults = map[string]any{
	"window_days":      180,
	"allowance_days":   90,
	"status_policy":    "default",
	"warn_threshold":   0,
	"traveller":        "default",
	"store_backend":    "bolt",
	"data_dir":         "/data",
	"redis_addr":       "localhost:6379",
	"redis_password":   "",
	"redis_db":         0,
	"redis_timeout":    3 * time.Second,
	"log_level":        "info",
	"log_format":       "json",
	"listen_addr":      ":8080",
	"metrics_addr":     ":9090",
	"refresh_interval": time.Hour,
}

// Load reads configuration from (lowest → highest priority):
//  1. Built-in defaults
//  2. YAML or JSON file at path, or at the CONFIG_FILE env var path when path is ""
//  3. Environment variables (always highest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults.
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	// Layer 2: optional config file.
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		var parser koanf.Parser = yaml.Parser()
		if strings.EqualFold(filepath.Ext(path), ".json") {
			parser = json.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	// Layer 3: environment variables.
	// Transform: "STORE_BACKEND" → "store_backend".
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	cfg := &Config{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	// Normalise string fields.
	cfg.LogLevel = strings.TrimSpace(strings.ToLower(cfg.LogLevel))
	cfg.LogFormat = strings.TrimSpace(strings.ToLower(cfg.LogFormat))
	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(cfg.StoreBackend))
	cfg.StatusPolicy = strings.TrimSpace(strings.ToLower(cfg.StatusPolicy))
	cfg.Traveller = strings.TrimSpace(cfg.Traveller)

	// Docker-secrets style: REDIS_PASSWORD_FILE supplies the password when the
	// direct variable is unset.
	if cfg.RedisPassword == "" {
		if path := os.Getenv("REDIS_PASSWORD_FILE"); path != "" {
			secret, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("config: read REDIS_PASSWORD_FILE: %w", err)
			}
			cfg.RedisPassword = strings.TrimSpace(string(secret))
		}
	}

	// METRICS_ENABLED=false wins over any METRICS_ADDR.
	if !envBool("METRICS_ENABLED", true) {
		cfg.MetricsAddr = ""
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Rule returns the configured window rule.
func (c *Config) Rule() window.Rule {
	return window.Rule{WindowDays: c.WindowDays, AllowanceDays: c.AllowanceDays}
}

// Policy resolves the classification table. For used-day presets the
// overstay band follows the configured allowance.
func (c *Config) Policy() (compliance.Policy, error) {
	p, err := compliance.PolicyByName(c.StatusPolicy)
	if err != nil {
		return compliance.Policy{}, err
	}
	if p.Metric == compliance.MetricUsed && c.AllowanceDays != window.Schengen.AllowanceDays {
		// Preset cutoffs are written against a 90-day allowance; rescale them.
		warn, _ := p.Threshold(compliance.StatusWarning)
		scaled, err := compliance.NewPolicy(compliance.MetricUsed,
			warn*c.AllowanceDays/window.Schengen.AllowanceDays, c.AllowanceDays)
		if err != nil {
			return compliance.Policy{}, err
		}
		scaled.Name = p.Name
		p = scaled
	}
	if c.WarnThreshold > 0 {
		if p, err = p.WithBand(compliance.StatusWarning, c.WarnThreshold); err != nil {
			return compliance.Policy{}, err
		}
	}
	return p, nil
}

func (c *Config) validate() error {
	var errs []string

	if err := c.Rule().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("WINDOW_DAYS/ALLOWANCE_DAYS invalid: %v", err))
	}
	if c.WarnThreshold < 0 {
		errs = append(errs, "WARN_THRESHOLD must not be negative")
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, fmt.Sprintf("STATUS_POLICY/WARN_THRESHOLD invalid: %v", err))
	}

	switch c.StoreBackend {
	case "bolt", "memory":
	case "redis":
		if c.RedisAddr == "" {
			errs = append(errs, "REDIS_ADDR is required when STORE_BACKEND=redis")
		}
		if c.RedisDB < 0 {
			errs = append(errs, "REDIS_DB must not be negative")
		}
	default:
		errs = append(errs, "STORE_BACKEND must be one of bolt, redis, memory")
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, "LOG_FORMAT must be json or text")
	}

	if c.RefreshInterval < time.Minute {
		errs = append(errs, "REFRESH_INTERVAL must be at least 1m")
	}

	// DataDir path sanitisation: reject traversal sequences and null bytes.
	if strings.Contains(c.DataDir, "..") {
		errs = append(errs, `DATA_DIR must not contain ".." (directory traversal)`)
	}
	if strings.ContainsRune(c.DataDir, 0) {
		errs = append(errs, "DATA_DIR must not contain null bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d configuration error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}
