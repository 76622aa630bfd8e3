// Package config loads mailestd's daemon configuration from a YAML file,
// generalizing the flat NodeID/BindAddr/DataDir config the daemon facade
// used to take as a struct literal into something an operator can hand
// mailestd on the command line.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every knob mailestd's daemon needs to start. Field names
// stay Go-idiomatic; the yaml tags are the literal config-file keys a
// daemon config carries.
type Config struct {
	// Debug runs the daemon in the foreground at debug log level,
	// mirroring the -d flag.
	Debug bool `yaml:"debug"`

	// MaildirRoot is the directory tree gather walks for messages.
	MaildirRoot string `yaml:"maildir"`

	// IndexPath is the bbolt file backing the external index.
	IndexPath string `yaml:"db_path"`

	// SocketPath is the SEQPACKET control socket mailestctl dials.
	SocketPath string `yaml:"sock_path"`

	// LogPath is the file the daemon's logger writes to; empty means
	// stderr. LogSize/LogCount bound size-based rotation of that file.
	LogPath  string `yaml:"log_path"`
	LogSize  int64  `yaml:"log_size"`
	LogCount int    `yaml:"log_count"`

	// TrimSize caps a draft's indexed body text, in bytes.
	TrimSize int `yaml:"trim_size"`

	// Tasks bounds the number of in-flight Draft/PutDB tasks (the
	// kanban slot count).
	Tasks int `yaml:"tasks"`

	// Suffixes lists the message filename suffixes gather matches
	// against a numeric basename (default ".mew"; may hold more than one),
	// set with repeated -S flags.
	Suffixes []string `yaml:"suffixes"`

	// Folders is the include/exclude pattern list gather and the
	// monitor worker apply to a maildir root's direct subdirectories;
	// a "!" prefix negates a pattern.
	Folders []string `yaml:"folders"`

	// Monitor enables the fsnotify-driven watcher; MonitorDelay
	// coalesces bursty filesystem events per folder.
	Monitor      bool          `yaml:"monitor"`
	MonitorDelay time.Duration `yaml:"monitor_delay"`

	// DBSyncBatch is the number of catalogue entries SyncDb reconciles
	// per re-enqueue. Not part of the original config-key list; kept as
	// an internal tuning knob under its own key.
	DBSyncBatch int `yaml:"dbsync_batch"`
}

// Default returns the configuration mailestd starts with when no file is
// given, anchored at maildirRoot.
func Default(maildirRoot string) *Config {
	return &Config{
		MaildirRoot:  maildirRoot,
		IndexPath:    filepath.Join(maildirRoot, ".mailestd", "index.bolt"),
		SocketPath:   filepath.Join(maildirRoot, ".mailest.sock"),
		TrimSize:     131072,
		Tasks:        64,
		DBSyncBatch:  4000,
		Monitor:      true,
		MonitorDelay: 500 * time.Millisecond,
		Suffixes:     []string{".mew"},
	}
}

// IncludeFolder reports whether a maildir root's direct subdirectory
// name passes the configured include/exclude pattern list. With no
// patterns configured, every directory is included. A "!" prefix
// negates a pattern; patterns are evaluated in order and the last
// match wins, so a later "!pattern" can re-exclude an earlier include.
func (c *Config) IncludeFolder(name string) bool {
	if len(c.Folders) == 0 {
		return true
	}

	include := false
	for _, pat := range c.Folders {
		negate := strings.HasPrefix(pat, "!")
		if negate {
			pat = pat[1:]
		}
		matched, err := filepath.Match(pat, name)
		if err != nil || !matched {
			continue
		}
		include = !negate
	}
	return include
}

// Load reads and parses a YAML configuration file, filling any field the
// file omits from Default(maildirRoot).
func Load(path, maildirRoot string) (*Config, error) {
	cfg := Default(maildirRoot)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.MaildirRoot == "" {
		cfg.MaildirRoot = maildirRoot
	}

	return cfg, nil
}

// Validate checks that the configuration is usable before the daemon
// starts any worker.
func (c *Config) Validate() error {
	if c.MaildirRoot == "" {
		return fmt.Errorf("maildir is required")
	}
	if info, err := os.Stat(c.MaildirRoot); err != nil || !info.IsDir() {
		return fmt.Errorf("maildir %s is not a directory", c.MaildirRoot)
	}
	if c.SocketPath == "" {
		return fmt.Errorf("sock_path is required")
	}
	if c.TrimSize <= 0 {
		return fmt.Errorf("trim_size must be positive")
	}
	if c.Tasks <= 0 {
		return fmt.Errorf("tasks must be positive")
	}
	return nil
}
