// Package config loads recdb configuration from JSONC files and CLI flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/recdb/pkg/codec"
	"github.com/calvinalkan/recdb/pkg/fs"
	"github.com/calvinalkan/recdb/pkg/walstore"
)

// Error variables for configuration.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDataRootEmpty      = errors.New("data_root cannot be empty")
	ErrInvalidValue       = errors.New("invalid config value")
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DataRoot    string    `json:"data_root"`
	File        string    `json:"file,omitempty"`
	Codec       string    `json:"codec,omitempty"`
	WaitingTime *Duration `json:"waiting_time,omitempty"`
	LogLevel    string    `json:"log_level,omitempty"`
	LogFormat   string    `json:"log_format,omitempty"`
	MetricsAddr string    `json:"metrics_addr,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"`
	DataRootAbs  string `json:"-"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Wait returns the batching window. Zero disables batching.
func (c Config) Wait() time.Duration {
	if c.WaitingTime == nil {
		return walstore.DefaultWaitingTime
	}

	return time.Duration(*c.WaitingTime)
}

// Default returns the default configuration.
func Default() Config {
	wait := Duration(walstore.DefaultWaitingTime)

	return Config{
		DataRoot:    ".recdb",
		Codec:       codec.NameJSON,
		WaitingTime: &wait,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// FileName is the project config file name.
const FileName = ".recdb.json"

// globalPath returns $XDG_CONFIG_HOME/recdb/config.json, falling back to
// ~/.config/recdb/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "recdb", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "recdb", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for [Load].
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	Overrides       Config            // values from CLI flags; zero fields are ignored
	Env             map[string]string // environment variables
	FS              fs.FS             // defaults to the real filesystem
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/recdb/config.json)
// 3. Project config file (.recdb.json in the working directory, if it exists)
// 4. Explicit config file via ConfigPath (replaces 3, must exist)
// 5. CLI overrides.
func Load(input LoadInput) (Config, error) {
	fsys := input.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	} else if !filepath.IsAbs(workDir) {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return Config{}, fmt.Errorf("resolve working directory: %w", err)
		}

		workDir = abs
	}

	cfg := Default()

	if path := globalPath(input.Env); path != "" {
		globalCfg, loaded, err := loadFile(fsys, path, false)
		if err != nil {
			return Config{}, err
		}

		if loaded {
			cfg.Sources.Global = path
			cfg = merge(cfg, globalCfg)
		}
	}

	projectPath := filepath.Join(workDir, FileName)
	mustExist := false

	if input.ConfigPath != "" {
		projectPath = input.ConfigPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true
	}

	projectCfg, loaded, err := loadFile(fsys, projectPath, mustExist)
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg.Sources.Project = projectPath
		cfg = merge(cfg, projectCfg)
	}

	cfg = merge(cfg, input.Overrides)

	err = Validate(cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DataRoot) {
		cfg.DataRootAbs = filepath.Clean(cfg.DataRoot)
	} else {
		cfg.DataRootAbs = filepath.Join(workDir, cfg.DataRoot)
	}

	return cfg, nil
}

// loadFile reads one config file. Missing optional files are not loaded.
func loadFile(fsys fs.FS, path string, mustExist bool) (Config, bool, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, err)
	}

	cfg, err := parse(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "data_root": "" is an error rather than "keep the default".
	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	if val, ok := raw["data_root"]; ok {
		if s, isString := val.(string); isString && s == "" {
			return Config{}, ErrDataRootEmpty
		}
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataRoot != "" {
		base.DataRoot = overlay.DataRoot
	}

	if overlay.File != "" {
		base.File = overlay.File
	}

	if overlay.Codec != "" {
		base.Codec = overlay.Codec
	}

	if overlay.WaitingTime != nil {
		wait := *overlay.WaitingTime
		base.WaitingTime = &wait
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	if overlay.LogFormat != "" {
		base.LogFormat = overlay.LogFormat
	}

	if overlay.MetricsAddr != "" {
		base.MetricsAddr = overlay.MetricsAddr
	}

	return base
}

// Validate checks a merged configuration.
func Validate(cfg Config) error {
	if cfg.DataRoot == "" {
		return ErrDataRootEmpty
	}

	if !slices.Contains(codec.Names(), cfg.Codec) {
		return fmt.Errorf("%w: codec %q (valid: %v)", ErrInvalidValue, cfg.Codec, codec.Names())
	}

	if cfg.WaitingTime != nil && *cfg.WaitingTime < 0 {
		return fmt.Errorf("%w: waiting_time %s is negative", ErrInvalidValue, time.Duration(*cfg.WaitingTime))
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level: %w", ErrInvalidValue, err)
	}

	if !slices.Contains(LogFormats(), cfg.LogFormat) {
		return fmt.Errorf("%w: log_format %q (valid: %v)", ErrInvalidValue, cfg.LogFormat, LogFormats())
	}

	if cfg.File != "" && (filepath.IsAbs(cfg.File) || filepath.Clean(cfg.File) != cfg.File || strings.HasPrefix(cfg.File, "..")) {
		return fmt.Errorf("%w: file %q must be a clean path relative to data_root", ErrInvalidValue, cfg.File)
	}

	return nil
}

// Duration is a time.Duration written as a Go duration string ("10s").
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string

	err := json.Unmarshal(b, &s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}

	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(v)

	return nil
}

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }
