package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration options for vestige.
type Config struct {
	// Checks toggles individual diagnostic rules
	Checks ChecksConfig `koanf:"checks"`

	// File exclusion patterns
	Exclude ExcludeConfig `koanf:"exclude"`

	// Library configuration files extending the builtin function table
	Library LibraryConfig `koanf:"library"`

	// Cache settings
	Cache CacheConfig `koanf:"cache"`

	// Output settings
	Output OutputConfig `koanf:"output"`

	// Jobs is the parallel worker count; 0 selects the default
	Jobs int `koanf:"jobs"`
}

// ChecksConfig controls which diagnostic rules are reported.
type ChecksConfig struct {
	UnusedVariable        bool `koanf:"unused_variable"`
	UnreadVariable        bool `koanf:"unread_variable"`
	UnassignedVariable    bool `koanf:"unassigned_variable"`
	UnusedAllocatedMemory bool `koanf:"unused_allocated_memory"`
	UnusedStructMember    bool `koanf:"unused_struct_member"`
	InsufficientTypeInfo  bool `koanf:"insufficient_type_info"`
}

// ExcludeConfig defines file exclusion patterns.
type ExcludeConfig struct {
	Patterns  []string `koanf:"patterns"`
	Dirs      []string `koanf:"dirs"`
	Gitignore bool     `koanf:"gitignore"`
}

// LibraryConfig points at external-function knowledge files.
type LibraryConfig struct {
	Files []string `koanf:"files"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
	TTL     int    `koanf:"ttl"` // TTL in hours
}

// OutputConfig controls output formatting.
type OutputConfig struct {
	Format  string `koanf:"format"` // text, json, markdown
	Color   bool   `koanf:"color"`
	Verbose bool   `koanf:"verbose"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Checks: ChecksConfig{
			UnusedVariable:        true,
			UnreadVariable:        true,
			UnassignedVariable:    true,
			UnusedAllocatedMemory: true,
			UnusedStructMember:    true,
			InsufficientTypeInfo:  true,
		},
		Exclude: ExcludeConfig{
			Patterns: []string{
				"*.min.c",
				"*_generated.c",
				"*_generated.h",
			},
			Dirs: []string{
				"vendor",
				"third_party",
				".git",
				".vestige",
				"build",
				"cmake-build-debug",
				"cmake-build-release",
			},
			Gitignore: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".vestige/cache",
			TTL:     24,
		},
		Output: OutputConfig{
			Format:  "text",
			Color:   true,
			Verbose: false,
		},
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := DefaultConfig()

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault tries to load config from standard locations or returns
// defaults.
func LoadOrDefault() *Config {
	configNames := []string{
		"vestige.toml",
		"vestige.yaml",
		"vestige.yml",
		"vestige.json",
		".vestige.toml",
		".vestige.yaml",
		".vestige.yml",
		".vestige.json",
	}

	searchDirs := []string{".", ".vestige"}

	for _, dir := range searchDirs {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := Load(path)
				if err == nil {
					return cfg
				}
			}
		}
	}

	return DefaultConfig()
}

// RuleEnabled reports whether the diagnostic rule with the given name is
// enabled. Unknown rule names default to enabled.
func (c *Config) RuleEnabled(rule string) bool {
	switch rule {
	case "unusedVariable":
		return c.Checks.UnusedVariable
	case "unreadVariable":
		return c.Checks.UnreadVariable
	case "unassignedVariable":
		return c.Checks.UnassignedVariable
	case "unusedAllocatedMemory":
		return c.Checks.UnusedAllocatedMemory
	case "unusedStructMember":
		return c.Checks.UnusedStructMember
	case "insufficientTypeInfo":
		return c.Checks.InsufficientTypeInfo
	}
	return true
}

// SetRule enables or disables the diagnostic rule with the given name.
// It reports whether the name matched a known rule.
func (c *Config) SetRule(rule string, enabled bool) bool {
	switch rule {
	case "unusedVariable":
		c.Checks.UnusedVariable = enabled
	case "unreadVariable":
		c.Checks.UnreadVariable = enabled
	case "unassignedVariable":
		c.Checks.UnassignedVariable = enabled
	case "unusedAllocatedMemory":
		c.Checks.UnusedAllocatedMemory = enabled
	case "unusedStructMember":
		c.Checks.UnusedStructMember = enabled
	case "insufficientTypeInfo":
		c.Checks.InsufficientTypeInfo = enabled
	default:
		return false
	}
	return true
}

// ShouldExclude checks if a path should be excluded from analysis.
func (c *Config) ShouldExclude(path string) bool {
	for _, dir := range c.Exclude.Dirs {
		if strings.Contains(path, string(filepath.Separator)+dir+string(filepath.Separator)) ||
			strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}

	base := filepath.Base(path)
	for _, pattern := range c.Exclude.Patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}

	return false
}
