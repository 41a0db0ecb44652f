// Package config loads the initial device profile a zramctl invocation
// brings a Device up with: disksize, compressor algorithm, and memory
// limit. It mirrors the teacher's single-file HuJSON config loader,
// simplified to the one-file case — a block device has no project
// directory to search, so there is no global/project precedence chain
// to replicate.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/zram-go/zram/internal/compressor"
	"github.com/zram-go/zram/pkg/zram"
)

var (
	errFileNotFound  = errors.New("config file not found")
	errFileRead      = errors.New("cannot read config file")
	errInvalid       = errors.New("invalid config file")
	errDisksizeEmpty = errors.New("disksize must be a positive multiple of the page size")
)

// Profile is the on-disk shape of an initial device profile.
type Profile struct {
	DisksizeBytes int64  `json:"disksize_bytes"` //nolint:tagliatelle // snake_case for config file
	Compressor    string `json:"compressor,omitempty"`
	MemLimitBytes int64  `json:"mem_limit_bytes,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// Default returns the profile used when no --config flag is given.
func Default() Profile {
	return Profile{
		DisksizeBytes: 64 << 20,
		Compressor:    "snappy",
	}
}

// Load reads and parses a HuJSON profile file at path. An empty path
// returns Default unchanged; a named file that does not exist is an
// error. Fields the file leaves out keep their Default values.
func Load(path string) (Profile, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return Profile{}, fmt.Errorf("%w: %s", errFileNotFound, path)
		}

		return Profile{}, fmt.Errorf("%w: %s", errFileRead, path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Profile{}, fmt.Errorf("%w %s: invalid JSONC: %w", errInvalid, path, err)
	}

	cfg := Default()

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Profile{}, fmt.Errorf("%w %s: invalid JSON: %w", errInvalid, path, err)
	}

	if err := validate(cfg); err != nil {
		return Profile{}, fmt.Errorf("%w %s: %w", errInvalid, path, err)
	}

	return cfg, nil
}

func validate(cfg Profile) error {
	if cfg.DisksizeBytes <= 0 || cfg.DisksizeBytes%zram.PageSize != 0 {
		return errDisksizeEmpty
	}

	if cfg.Compressor != "" && !compressor.HasAlgorithm(cfg.Compressor) {
		return fmt.Errorf("unknown compressor %q", cfg.Compressor)
	}

	return nil
}

// Format renders cfg as the indented JSON a "print_config"-style
// command would show a user.
func Format(cfg Profile) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
