package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"hive/pkg/fsroot"
	"hive/pkg/protocol"
)

// Config file names under the hive home. YAML takes precedence over TOML.
const (
	ConfigYAML = "config.yaml"
	ConfigTOML = "config.toml"
)

// Config holds user-level defaults read from the hive home.
type Config struct {
	DefaultWorkers      int    `yaml:"default_workers" toml:"default_workers"`
	PollIntervalMS      int    `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	AwaitTimeoutSeconds int    `yaml:"await_timeout_seconds" toml:"await_timeout_seconds"`
	TmuxSession         string `yaml:"tmux_session" toml:"tmux_session"`
	TmuxWindow          string `yaml:"tmux_window" toml:"tmux_window"`
	Journal             *bool  `yaml:"journal,omitempty" toml:"journal,omitempty"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	on := true
	return Config{
		DefaultWorkers:      6,
		PollIntervalMS:      500,
		AwaitTimeoutSeconds: 300,
		TmuxSession:         "swarm",
		TmuxWindow:          "main",
		Journal:             &on,
	}
}

// PollInterval is the trigger poll interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// AwaitTimeout is the default bound for `hive wait`.
func (c Config) AwaitTimeout() time.Duration {
	return time.Duration(c.AwaitTimeoutSeconds) * time.Second
}

// JournalEnabled reports whether coordination events are recorded.
func (c Config) JournalEnabled() bool {
	return c.Journal == nil || *c.Journal
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultWorkers <= 0 {
		c.DefaultWorkers = d.DefaultWorkers
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = d.PollIntervalMS
	}
	if c.AwaitTimeoutSeconds <= 0 {
		c.AwaitTimeoutSeconds = d.AwaitTimeoutSeconds
	}
	if c.TmuxSession == "" {
		c.TmuxSession = d.TmuxSession
	}
	if c.TmuxWindow == "" {
		c.TmuxWindow = d.TmuxWindow
	}
	if c.Journal == nil {
		c.Journal = d.Journal
	}
	return c
}

// LoadConfig reads config.yaml, or config.toml when there is no YAML file,
// from home. Missing files yield the defaults; unknown keys are ignored.
func LoadConfig(home string) (Config, error) {
	var cfg Config

	yamlPath := filepath.Join(home, ConfigYAML)
	data, err := os.ReadFile(yamlPath) //nolint:gosec // path is under the hive home
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &protocol.CorruptStateError{Key: yamlPath, Err: err}
		}
		return cfg.withDefaults(), nil
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, &protocol.IOError{Op: "read", Path: yamlPath, Err: err}
	}

	tomlPath := filepath.Join(home, ConfigTOML)
	data, err = os.ReadFile(tomlPath) //nolint:gosec // path is under the hive home
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, &protocol.CorruptStateError{Key: tomlPath, Err: err}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return Config{}, &protocol.IOError{Op: "read", Path: tomlPath, Err: err}
	}
	return cfg.withDefaults(), nil
}

// WriteDefaultConfig writes config.yaml with the defaults unless a config
// file already exists. It reports whether a file was written.
func WriteDefaultConfig(home string) (bool, error) {
	root := fsroot.New(home)
	for _, name := range []string{ConfigYAML, ConfigTOML} {
		ok, err := root.Exists(name)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := root.AtomicReplace(ConfigYAML, data); err != nil {
		return false, err
	}
	return true, nil
}
