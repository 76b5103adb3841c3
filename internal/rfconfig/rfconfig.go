// Package rfconfig loads optional YAML defaults that CLI flags then
// override — the same overlay shape the teacher's grove.yaml uses, applied
// here to server/worker startup settings rather than project definitions.
// Persisted state is never written here: this is config-only, read once at
// startup.
package rfconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the startup settings that may be supplied via a YAML file
// instead of flags. Only cmd/rfserver loads such a file; RendererCmd is
// parsed but neither binary reads it.
type Config struct {
	Address     string `yaml:"address"`
	Port        int    `yaml:"port"`
	WorkingRoot string `yaml:"working_dir_root"`
	RendererCmd string `yaml:"renderer_cmd"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Load reads path (if non-empty and present) and returns the parsed
// Config. A missing path is not an error: callers get a zero-value Config
// and fall back entirely to flag defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Overlay applies any non-zero fields of override onto base and returns the
// result, field by field — a partial file (e.g. only renderer_cmd:) merges
// with rather than replaces the base, mirroring the teacher's in-repo
// config overlay.
func Overlay(base, override Config) Config {
	out := base
	if override.Address != "" {
		out.Address = override.Address
	}
	if override.Port != 0 {
		out.Port = override.Port
	}
	if override.WorkingRoot != "" {
		out.WorkingRoot = override.WorkingRoot
	}
	if override.RendererCmd != "" {
		out.RendererCmd = override.RendererCmd
	}
	if override.MetricsAddr != "" {
		out.MetricsAddr = override.MetricsAddr
	}
	return out
}
