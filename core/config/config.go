// Package config loads optional per-user defaults for the command line.
// Every value here can be overridden by an explicit flag; absence of the
// file is not an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds defaults applied beneath explicit command-line flags.
type Config struct {
	// DestDir is the default output directory for exported files.
	DestDir string `yaml:"dest_dir"`
	// ExportMetadata controls whether exported images carry the source
	// container's tags. Defaults to true.
	ExportMetadata *bool `yaml:"export_metadata"`
	// FFmpeg is the decoder binary used for frame operations.
	FFmpeg string `yaml:"ffmpeg"`
	// FrameFormat is the image format for exported frames.
	FrameFormat string `yaml:"frame_format"`
	// Verbose enables debug logging by default.
	Verbose bool `yaml:"verbose"`
}

// DefaultPath is the config location probed when none is given:
// $XDG_CONFIG_HOME/mvimg/config.yaml, falling back to ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "mvimg", "config.yaml")
}

// Load reads the config at path. A missing file yields the zero config;
// a present but malformed file is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}
	return &cfg, nil
}

// WantMetadata resolves the metadata default, true when unset.
func (c *Config) WantMetadata() bool {
	if c.ExportMetadata == nil {
		return true
	}
	return *c.ExportMetadata
}
