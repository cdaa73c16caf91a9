package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGracePeriod = 5 * time.Second
	DefaultBufferLines = 1000
	DefaultHistoryFile = "~/.mastershell_history"
)

// LaunchSpec describes how to start one session's child process. Set at load
// time and never mutated afterwards.
type LaunchSpec struct {
	Name    string
	Command string
	Args    []string
	Dir     string
	PTY     bool
}

// Config is the full launch configuration for a supervisor run.
type Config struct {
	Registry    *Registry
	GracePeriod time.Duration
	BufferLines int
	HistoryFile string
	Listen      string
	NoColor     bool
}

type fileConfig struct {
	Sessions    map[string]fileSession `yaml:"sessions"`
	GracePeriod string                 `yaml:"grace-period"`
	BufferLines int                    `yaml:"buffer-lines"`
	HistoryFile string                 `yaml:"history-file"`
	Listen      string                 `yaml:"listen"`
	NoColor     bool                   `yaml:"no-color"`
}

type fileSession struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Dir     string   `yaml:"dir"`
	PTY     bool     `yaml:"pty"`
}

// Load reads and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(payload)
}

// Parse decodes and validates a YAML configuration payload.
func Parse(payload []byte) (*Config, error) {
	raw := fileConfig{}
	decoder := yaml.NewDecoder(strings.NewReader(string(payload)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(raw.Sessions) == 0 {
		return nil, fmt.Errorf("parse config: no sessions configured")
	}

	specs := make(map[string]LaunchSpec, len(raw.Sessions))
	for name, entry := range raw.Sessions {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			return nil, fmt.Errorf("parse config: session with empty name")
		}
		if trimmed != name || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("parse config: session name %q must not contain whitespace", name)
		}
		if name == ReservedName {
			return nil, fmt.Errorf("parse config: session name %q is reserved", name)
		}
		if strings.TrimSpace(entry.Command) == "" {
			return nil, fmt.Errorf("parse config: session %q has no command", name)
		}
		specs[name] = LaunchSpec{
			Name:    name,
			Command: entry.Command,
			Args:    append([]string(nil), entry.Args...),
			Dir:     entry.Dir,
			PTY:     entry.PTY,
		}
	}

	cfg := &Config{
		Registry:    newRegistry(specs),
		GracePeriod: DefaultGracePeriod,
		BufferLines: DefaultBufferLines,
		HistoryFile: DefaultHistoryFile,
		Listen:      raw.Listen,
		NoColor:     raw.NoColor,
	}

	if raw.GracePeriod != "" {
		grace, err := time.ParseDuration(raw.GracePeriod)
		if err != nil {
			return nil, fmt.Errorf("parse config: grace-period: %w", err)
		}
		if grace <= 0 {
			return nil, fmt.Errorf("parse config: grace-period must be positive")
		}
		cfg.GracePeriod = grace
	}
	if raw.BufferLines > 0 {
		cfg.BufferLines = raw.BufferLines
	}
	if strings.TrimSpace(raw.HistoryFile) != "" {
		cfg.HistoryFile = raw.HistoryFile
	}

	return cfg, nil
}

// ExpandHome resolves a leading ~/ against the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ReservedName is the origin tag used for supervisor notices on the console;
// no session may claim it.
const ReservedName = "mastershell"

// Registry is the immutable name-to-LaunchSpec mapping. Lookups are
// case-sensitive.
type Registry struct {
	specs map[string]LaunchSpec
	names []string
}

func newRegistry(specs map[string]LaunchSpec) *Registry {
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{specs: specs, names: names}
}

func (r *Registry) Lookup(name string) (LaunchSpec, bool) {
	if r == nil {
		return LaunchSpec{}, false
	}
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the configured session names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.specs)
}
