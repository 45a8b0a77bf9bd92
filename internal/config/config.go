package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lydakis/studiomcp/internal/paths"
)

// Defaults. The port is fixed by the Studio plugin; change it only if the
// plugin is reconfigured to poll elsewhere.
const (
	DefaultPort     = 44755
	DefaultBindHost = "127.0.0.1"
	DefaultLongPoll = 15 * time.Second
)

// Config is the top-level studiomcp configuration.
type Config struct {
	// Host-facing HTTP surface shared by all bridge processes.
	Port     int    `toml:"port"`
	BindHost string `toml:"bind_host"`

	// LongPoll bounds how long GET /request is held open, as a Go
	// duration string ("15s").
	LongPoll string `toml:"long_poll"`

	// PluginFile is a prebuilt MCPStudioPlugin.rbxm for the installer to
	// copy into the Studio plugins directory. Optional.
	PluginFile string `toml:"plugin_file"`

	LogLevel string `toml:"log_level"`
}

// Load reads the config file and returns the parsed Config.
// If the config file does not exist, it returns defaults (no error).
func Load() (*Config, error) {
	return LoadFrom(paths.ConfigFile())
}

// LoadFrom reads and parses a config file at the given path.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{
		Port:     DefaultPort,
		BindHost: DefaultBindHost,
		LongPoll: DefaultLongPoll.String(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Addr returns the listen address for the host-facing HTTP surface.
func (c *Config) Addr() string {
	host := c.BindHost
	if host == "" {
		host = DefaultBindHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// PollWindow returns the parsed long-poll window.
func (c *Config) PollWindow() time.Duration {
	if c.LongPoll == "" {
		return DefaultLongPoll
	}
	d, err := time.ParseDuration(c.LongPoll)
	if err != nil || d <= 0 {
		return DefaultLongPoll
	}
	return d
}

func validate(cfg *Config) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if cfg.LongPoll != "" {
		d, err := time.ParseDuration(cfg.LongPoll)
		if err != nil {
			return fmt.Errorf("long_poll %q: %w", cfg.LongPoll, err)
		}
		if d <= 0 {
			return fmt.Errorf("long_poll %q must be positive", cfg.LongPoll)
		}
	}
	return nil
}
