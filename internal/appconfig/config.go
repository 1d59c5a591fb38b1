// Package appconfig manages devdeck configuration and file paths.
package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/treykane/devdeck/internal/model"
	"github.com/treykane/devdeck/internal/util"
)

// UIConfig contains TUI display settings.
type UIConfig struct {
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// APIConfig controls the local command API started by `devdeck serve`.
type APIConfig struct {
	Listen string `yaml:"listen"`
}

// HealthService is one URL probed for Spring Boot style health.
type HealthService struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// HealthSection groups services for display.
type HealthSection struct {
	Name     string          `yaml:"name" json:"name"`
	Services []HealthService `yaml:"services" json:"services"`
}

// Config holds application-level configuration.
type Config struct {
	Tunnels      []model.TunnelSpec `yaml:"tunnels"`
	Healthchecks []HealthSection    `yaml:"healthchecks,omitempty"`
	UI           UIConfig           `yaml:"ui"`
	API          APIConfig          `yaml:"api"`
}

// Default returns the default configuration. It has no tunnels.
func Default() Config {
	return Config{
		UI:  UIConfig{RefreshSeconds: util.DefaultRefreshSeconds},
		API: APIConfig{Listen: util.DefaultAPIListen},
	}
}

// pathOverride is set by the --config flag.
var pathOverride string

// SetPath makes Load and Save use path instead of the default location.
func SetPath(path string) { pathOverride = path }

// ConfigDir returns the application config directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/devdeck.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "devdeck"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, ".config", "devdeck"), nil
}

// FilePath returns the full path to config.yaml.
func FilePath() (string, error) {
	if pathOverride != "" {
		return pathOverride, nil
	}
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "config.yaml"), nil
}

// LogFilePath returns where the dashboard writes its log.
func LogFilePath() (string, error) {
	d, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(d, "devdeck.log"), nil
}

// Load reads config.yaml. If the file doesn't exist, it is created with
// defaults. Out-of-range UI and API values are normalized; tunnel specs are
// validated and a bad one fails the load.
func Load() (Config, error) {
	path, err := FilePath()
	if err != nil {
		return Config{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.UI.RefreshSeconds <= 0 {
		cfg.UI.RefreshSeconds = util.DefaultRefreshSeconds
	}
	if strings.TrimSpace(cfg.API.Listen) == "" {
		cfg.API.Listen = util.DefaultAPIListen
	}
	if err := ValidateTunnels(cfg.Tunnels); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to config.yaml.
func Save(cfg Config) error {
	path, err := FilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// ValidateTunnels checks every spec and that names are unique.
func ValidateTunnels(specs []model.TunnelSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, ok := seen[s.Name]; ok {
			return fmt.Errorf("duplicate tunnel name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

type tunnelFile struct {
	Tunnels []model.TunnelSpec `yaml:"tunnels"`
}

// LoadTunnelFile reads tunnel specs from a YAML file with a top-level
// `tunnels:` list, the same shape config.yaml uses.
func LoadTunnelFile(path string) ([]model.TunnelSpec, error) {
	specs, err := ReadTunnelsUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateTunnels(specs); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

// ReadTunnelsUnchecked reads the `tunnels:` list of path without validating
// it. Doctor uses it to report every bad entry instead of the first.
func ReadTunnelsUnchecked(path string) ([]model.TunnelSpec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tunnel file: %w", err)
	}
	var tf tunnelFile
	if err := yaml.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return tf.Tunnels, nil
}

// MergeTunnels returns the fetched specs whose names are not already in
// existing, in fetched order. Existing definitions always win.
func MergeTunnels(existing, fetched []model.TunnelSpec) []model.TunnelSpec {
	have := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		have[s.Name] = struct{}{}
	}
	var out []model.TunnelSpec
	for _, s := range fetched {
		if _, ok := have[s.Name]; ok {
			continue
		}
		have[s.Name] = struct{}{}
		out = append(out, s)
	}
	return out
}
