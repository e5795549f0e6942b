// Package config loads shmlog CLI configuration from JSONC files and flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/shmlog/pkg/shmlog"
)

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	Dir          string `json:"dir"`
	Class        string `json:"class,omitempty"`
	PollInterval string `json:"poll_interval,omitempty"`
	MetricsAddr  string `json:"metrics_addr,omitempty"`

	// Resolved values (computed, not serialized)
	EffectiveCwd string        `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DirAbs       string        `json:"-"` // Absolute path to the chunk directory
	Poll         time.Duration `json:"-"` // Parsed PollInterval

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// DefaultDir is where producers publish chunks unless configured otherwise.
const DefaultDir = "/dev/shm/shmlog"

// DefaultPollInterval is the live-tail sleep after an empty poll.
const DefaultPollInterval = 10 * time.Millisecond

// Default returns the default configuration.
func Default() Config {
	return Config{
		Dir:          DefaultDir,
		Class:        shmlog.DefaultClass,
		PollInterval: DefaultPollInterval.String(),
	}
}

// FileName is the default project config file name.
const FileName = ".shmlog.json"

// globalPath returns $XDG_CONFIG_HOME/shmlog/config.json if set, otherwise
// ~/.config/shmlog/config.json. Empty if neither variable is set.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "shmlog", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "shmlog", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DirOverride     *string           // -n/--dir flag value; nil means not given
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.shmlog.json, if exists)
// 4. Explicit config file via ConfigPath (replaces 3)
// 5. CLI overrides.
//
// Dir is resolved against the working directory.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := Default()

	globalCfg, globalFile, err := loadGlobal(input.Env)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalFile
	cfg = merge(cfg, globalCfg)

	projectCfg, projectFile, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectFile
	cfg = merge(cfg, projectCfg)

	if input.DirOverride != nil {
		cfg.Dir = *input.DirOverride
	}

	err = validate(&cfg)
	if err != nil {
		return Config{}, err
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.Dir) {
		cfg.DirAbs = cfg.Dir
	} else {
		cfg.DirAbs = filepath.Join(workDir, cfg.Dir)
	}

	return cfg, nil
}

func loadGlobal(env map[string]string) (Config, string, error) {
	path := globalPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadFile(path, false)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

func loadProject(workDir, configPath string) (Config, string, error) {
	path := filepath.Join(workDir, FileName)
	mustExist := false

	if configPath != "" {
		path = configPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		mustExist = true

		_, statErr := os.Stat(path)
		if statErr != nil {
			return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
		}
	}

	cfg, loaded, err := loadFile(path, mustExist)
	if err != nil || !loaded {
		return Config{}, "", err
	}

	return cfg, path, nil
}

// loadFile loads a config file. If mustExist is false, a missing file yields
// a zero config and loaded=false.
func loadFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // config paths come from flags and env
	if err != nil {
		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileRead, path)
		}

		return Config{}, false, nil
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

	var raw map[string]json.RawMessage

	err = json.Unmarshal(standardized, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	var cfg Config

	err = json.Unmarshal(standardized, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	// An explicit "dir": "" is an error, not "unset".
	if v, ok := raw["dir"]; ok && string(v) == `""` {
		return Config{}, ErrDirEmpty
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Dir != "" {
		base.Dir = overlay.Dir
	}

	if overlay.Class != "" {
		base.Class = overlay.Class
	}

	if overlay.PollInterval != "" {
		base.PollInterval = overlay.PollInterval
	}

	if overlay.MetricsAddr != "" {
		base.MetricsAddr = overlay.MetricsAddr
	}

	return base
}

func validate(cfg *Config) error {
	if cfg.Dir == "" {
		return ErrDirEmpty
	}

	if cfg.Class == "" {
		return ErrClassEmpty
	}

	poll, err := time.ParseDuration(cfg.PollInterval)
	if err != nil || poll <= 0 {
		return fmt.Errorf("%w: %q", ErrPollInterval, cfg.PollInterval)
	}

	cfg.Poll = poll

	return nil
}

// Format renders the effective configuration as key=value lines.
func Format(cfg Config) string {
	out := "effective_cwd=" + cfg.EffectiveCwd + "\n" +
		"dir=" + cfg.DirAbs + "\n" +
		"class=" + cfg.Class + "\n" +
		"poll_interval=" + cfg.Poll.String()

	if cfg.MetricsAddr != "" {
		out += "\nmetrics_addr=" + cfg.MetricsAddr
	}

	return out
}
