package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, filling unset fields from Default. Relative
// paths in the file resolve against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.BaseDir = filepath.Dir(path)
	if cfg.Store == "" {
		cfg.Store = "."
	}
	if !filepath.IsAbs(cfg.Store) {
		cfg.Store = filepath.Join(cfg.BaseDir, cfg.Store)
	}
	if cfg.Data != "" && !filepath.IsAbs(cfg.Data) {
		cfg.Data = filepath.Join(cfg.BaseDir, cfg.Data)
	}
	if cfg.Date.Layout == "" {
		cfg.Date.Layout = "2 January 2006"
	}
	if cfg.Date.Locale == "" {
		cfg.Date.Locale = "en_US"
	}
	return cfg, nil
}
