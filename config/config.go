// Package config loads the mcpd YAML configuration. Path discovery is
// first-match: explicit path, then ./mcpd.yaml, then ~/.mcpd/config.yaml.
// An absent config is not an error; every field has a default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/covailent/mcpd/tools"
)

const (
	projectConfigName = "mcpd.yaml"
	homeConfigDir     = ".mcpd"
	homeConfigName    = "config.yaml"

	DefaultListen       = "127.0.0.1:8080"
	DefaultMaxBodyBytes = 1 << 20
)

// Config is the full daemon configuration.
type Config struct {
	// Listen is the HTTP bind address.
	Listen string `yaml:"listen"`

	// MaxBodyBytes caps the size of one invocation request body.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// CORSOrigin, when set, is echoed as Access-Control-Allow-Origin.
	CORSOrigin string `yaml:"cors_origin"`

	// HistoryPath is the SQLite invocation journal location. Empty selects
	// the default under the user's home; "off" disables the journal.
	HistoryPath string `yaml:"history_path"`

	// HealthSchedule is a five-field UTC cron expression for tool health
	// probes. Empty disables the monitor.
	HealthSchedule string `yaml:"health_schedule"`

	// OTLPEndpoint enables trace export when set, e.g. "localhost:4318".
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Tools carries per-unit settings.
	Tools tools.Config `yaml:"tools"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Listen:       DefaultListen,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// DiscoverPath resolves the config file location with first-match semantics.
// The boolean reports whether a file was found. An explicit path that does
// not exist is an error; missing fallback candidates are not.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		clean = filepath.Clean(clean)
		info, err := os.Stat(clean)
		if err != nil {
			return "", false, fmt.Errorf("config file %q not found", clean)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %q is a directory", clean)
		}
		return clean, true, nil
	}

	candidates := []string{
		filepath.Join(cwd, projectConfigName),
		filepath.Join(homeDir, homeConfigDir, homeConfigName),
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads and parses one config file on top of the defaults.
// Environment references in string fields are expanded.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) expandEnv() {
	for _, field := range []*string{
		&c.Listen,
		&c.CORSOrigin,
		&c.HistoryPath,
		&c.OTLPEndpoint,
		&c.Tools.ChemblBaseURL,
		&c.Tools.RDKitCommand,
		&c.Tools.VinaCommand,
		&c.Tools.PrepareReceptorCommand,
		&c.Tools.PrepareLigandCommand,
		&c.Tools.PyMOLCommand,
	} {
		*field = os.ExpandEnv(*field)
	}
}

// Validate checks the parts of the config that would otherwise only fail
// deep inside startup.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address is empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max_body_bytes must be positive, got %d", c.MaxBodyBytes)
	}
	for name, timeoutMS := range map[string]int{
		"chembl_timeout_ms": c.Tools.ChemblTimeoutMS,
		"rdkit_timeout_ms":  c.Tools.RDKitTimeoutMS,
		"vina_timeout_ms":   c.Tools.VinaTimeoutMS,
		"pymol_timeout_ms":  c.Tools.PyMOLTimeoutMS,
	} {
		if timeoutMS < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}
