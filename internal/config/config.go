// Package config resolves run configuration from the environment and the
// CUE renderer configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/chartgen/internal/render"
)

// Environment variables. All are optional.
const (
	EnvImageDir       = "BAT_IMAGEDIR"
	EnvPickleDir      = "BAT_PICKLEDIR"
	EnvSymlink        = "AGGREGATE_IMAGE_SYMLINK"
	EnvWorkers        = "BAT_IMAGE_WORKERS"
	EnvTimeout        = "BAT_IMAGE_TIMEOUT"
	EnvRendererConfig = "BAT_RENDERER_CONFIG"
)

// Default directory names below the top-level scan directory.
const (
	DefaultImageDirName  = "images"
	DefaultPickleDirName = "pickles"
)

// Config is the resolved configuration of one run.
type Config struct {
	OutputDir      string        `json:"output_dir"`
	CacheDir       string        `json:"cache_dir"`
	Links          bool          `json:"links"`
	Workers        int           `json:"workers"`
	Timeout        time.Duration `json:"timeout"`
	RendererConfig string        `json:"renderer_config,omitempty"`
}

// LookupFunc looks up one environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load resolves the configuration for topDir.
//
// Values come from lookup (os.LookupEnv when nil), overridden by envvars,
// a colon-separated list of NAME=VALUE pairs. Malformed pairs in envvars
// are ignored.
func Load(topDir string, lookup LookupFunc, envvars string) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	overrides := ParseEnvVars(envvars)
	get := func(key string) string {
		if v, ok := overrides[key]; ok {
			return v
		}
		v, _ := lookup(key)
		return v
	}

	cfg := &Config{
		OutputDir:      get(EnvImageDir),
		CacheDir:       get(EnvPickleDir),
		Links:          get(EnvSymlink) == "1",
		Workers:        render.DefaultWorkers(),
		RendererConfig: get(EnvRendererConfig),
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(topDir, DefaultImageDirName)
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(topDir, DefaultPickleDirName)
	}

	if v := get(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%s: want a positive integer, got %q", EnvWorkers, v)
		}
		cfg.Workers = n
	}
	if v := get(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%s: want a non-negative duration, got %q", EnvTimeout, v)
		}
		cfg.Timeout = d
	}

	return cfg, nil
}

// ParseEnvVars parses "A=1:B=2" into a map. Entries without exactly one
// '=' are skipped.
func ParseEnvVars(s string) map[string]string {
	out := make(map[string]string)
	if s == "" {
		return out
	}
	for _, pair := range strings.Split(s, ":") {
		if strings.Count(pair, "=") != 1 {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out
}
