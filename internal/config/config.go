// Package config loads the per-folder sync configuration: the YAML file
// inside the metadata directory, overlaid with RCLOUNED_* environment
// variables. The loaded value is immutable; every stage of a cycle receives
// the same snapshot, so a mid-run edit of the file takes effect at the next
// process start, never mid-cycle.
package config

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/anhhuycan83/rclouned/internal/errors"
	"github.com/anhhuycan83/rclouned/internal/workspace"
)

const (
	// defaultIntervalSeconds is the cycle period when the config file does
	// not set one. Cycles start this long after the previous cycle started,
	// not after it finished.
	defaultIntervalSeconds = 90
)

// Config holds the configuration for one synced folder. Folder comes from
// the command line; everything else from the config file with environment
// overrides.
type Config struct {
	// Folder is the absolute path of the local sync folder.
	Folder string `yaml:"-"`

	// Remote is the rclone remote name (the section name in the rclone
	// config, without the colon).
	Remote string `yaml:"remote" env:"RCLOUNED_REMOTE"`

	// Subdir is the path below the remote root to sync against. Empty
	// means the remote root.
	Subdir string `yaml:"subdir" env:"RCLOUNED_SUBDIR"`

	// Options is a space-separated list of extra flags passed to every
	// rclone invocation, e.g. bandwidth limits.
	Options string `yaml:"options" env:"RCLOUNED_OPTIONS"`

	// Interval is the cycle period in seconds.
	Interval int `yaml:"interval" env:"RCLOUNED_INTERVAL"`

	// DryRun reports planned actions without changing either side.
	DryRun bool `yaml:"dryrun" env:"RCLOUNED_DRYRUN"`

	// Careful archives the losing version before any overwrite, not just
	// before deletions.
	Careful bool `yaml:"careful" env:"RCLOUNED_CAREFUL"`

	// Exclude lists extra rclone filter patterns applied when computing
	// differences. The metadata directory is always excluded on top.
	Exclude []string `yaml:"exclude" env:"RCLOUNED_EXCLUDE" envSeparator:","`

	// LogFile mirrors the log to a rotating file under the metadata dir.
	LogFile bool `yaml:"logfile" env:"RCLOUNED_LOGFILE"`
}

// Load reads the config file for the workspace and applies environment
// overrides. Precedence: built-in defaults, then the file, then RCLOUNED_*
// environment variables. A .env file in the working directory is honored
// if present.
func Load(ws *workspace.Workspace) (*Config, error) {
	_ = godotenv.Load()

	if info, err := os.Stat(ws.MetadataDir()); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", errors.ErrMetadataDirMissing, ws.MetadataDir())
	}

	data, err := os.ReadFile(ws.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errors.ErrConfigFileMissing, ws.ConfigPath())
		}

		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{Interval: defaultIntervalSeconds}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", ws.ConfigPath(), err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config environment: %w", err)
	}

	cfg.Folder = ws.Root()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Remote == "" {
		return errors.ErrRemoteNotConfigured
	}

	if strings.Contains(c.Remote, ":") {
		return fmt.Errorf("remote %q must be a bare remote name without ':'", c.Remote)
	}

	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %d", c.Interval)
	}

	return nil
}

// Period returns the cycle interval as a duration.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// RemoteRoot returns the rclone path of the synced remote subtree, e.g.
// "gdrive:documents" or "gdrive:" for the remote root.
func (c *Config) RemoteRoot() string {
	return c.Remote + ":" + c.Subdir
}

// RemoteSubPath returns the rclone path of a slash path below the synced
// remote subtree.
func (c *Config) RemoteSubPath(rel string) string {
	return c.Remote + ":" + path.Join(c.Subdir, rel)
}

// ExtraArgs returns the Options string split into individual arguments.
func (c *Config) ExtraArgs() []string {
	return strings.Fields(c.Options)
}
