package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Global settings
	Format  string `mapstructure:"format"`
	Quiet   bool   `mapstructure:"quiet"`
	Verbose bool   `mapstructure:"verbose"`

	// Workspace files
	LaunchFile string `mapstructure:"launch_file"`
	TasksFile  string `mapstructure:"tasks_file"`
	LogFile    string `mapstructure:"log_file"`

	// Attach loop tuning
	PollingInterval time.Duration `mapstructure:"polling_interval"`
	MaxFailures     int           `mapstructure:"max_failures"`

	// Companion tasks
	TaskPresentation string        `mapstructure:"task_presentation"`
	TaskCacheTTL     time.Duration `mapstructure:"task_cache_ttl"`

	// Debuggers maps a debugger type to the adapter argv used to attach.
	// {pid} and {processName} are substituted.
	Debuggers map[string][]string `mapstructure:"debuggers"`
}

// Task presentation modes
const (
	PresentationProcess = "process"
	PresentationTmux    = "tmux"
)

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Format:           "text",
		Quiet:            false,
		Verbose:          false,
		LaunchFile:       filepath.Join(".vscode", "launch.json"),
		TasksFile:        filepath.Join(".vscode", "tasks.json"),
		PollingInterval:  100 * time.Millisecond,
		MaxFailures:      5,
		TaskPresentation: PresentationProcess,
		TaskCacheTTL:     30 * time.Second,
	}
}

// Validate rejects values the run loop cannot use
func (c *Config) Validate() error {
	switch c.Format {
	case "text", "ndjson":
	default:
		return fmt.Errorf("format must be text or ndjson, got %q", c.Format)
	}
	switch c.TaskPresentation {
	case PresentationProcess, PresentationTmux:
	default:
		return fmt.Errorf("task_presentation must be %s or %s, got %q", PresentationProcess, PresentationTmux, c.TaskPresentation)
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %s", c.PollingInterval)
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("max_failures must be positive, got %d", c.MaxFailures)
	}
	for kind, argv := range c.Debuggers {
		if len(argv) == 0 {
			return fmt.Errorf("debugger %q has an empty command", kind)
		}
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()

	// Environment variables
	v.SetEnvPrefix("WATTACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Set defaults
	cfg := Default()
	v.SetDefault("format", cfg.Format)
	v.SetDefault("quiet", cfg.Quiet)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("launch_file", cfg.LaunchFile)
	v.SetDefault("tasks_file", cfg.TasksFile)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("polling_interval", cfg.PollingInterval)
	v.SetDefault("max_failures", cfg.MaxFailures)
	v.SetDefault("task_presentation", cfg.TaskPresentation)
	v.SetDefault("task_cache_ttl", cfg.TaskCacheTTL)
	return v
}

// Load loads configuration from files and environment
func Load() (*Config, error) {
	v := newViper()

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ConfigFile returns the path to the config file Load would read, or ""
func ConfigFile() string {
	return findConfigFile()
}

// searchDirs lists config directories, highest precedence first
func searchDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(configDir, "wattach"))
	}
	return append(dirs, "/etc/wattach")
}

// findConfigFile returns the first existing .wattach.yaml/.wattach.yml
// (or wattach.yaml inside a config directory)
func findConfigFile() string {
	for _, dir := range searchDirs() {
		for _, name := range []string{".wattach.yaml", ".wattach.yml", "wattach.yaml"} {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				if abs, err := filepath.Abs(path); err == nil {
					return abs
				}
				return path
			}
		}
	}
	return ""
}

// applyEnvOverrides applies the boolean env switches viper cannot parse
// from "1"
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WATTACH_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("WATTACH_QUIET"); v == "1" || v == "true" {
		cfg.Quiet = true
	}
	if v := os.Getenv("WATTACH_VERBOSE"); v == "1" || v == "true" {
		cfg.Verbose = true
	}
	if v := os.Getenv("WATTACH_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}
