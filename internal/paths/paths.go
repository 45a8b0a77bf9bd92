package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	if h := os.Getenv("USERPROFILE"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// ConfigDir returns the studiomcp config directory ($XDG_CONFIG_HOME/studiomcp).
func ConfigDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "studiomcp")
	}
	return filepath.Join(homeDir(), ".config", "studiomcp")
}

// ConfigFile returns the path to config.toml.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// StudioPluginsDir returns the Roblox Studio plugins directory for the
// current OS.
func StudioPluginsDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		local := os.Getenv("LOCALAPPDATA")
		if local == "" {
			return "", fmt.Errorf("LOCALAPPDATA not set")
		}
		return filepath.Join(local, "Roblox", "Plugins"), nil
	case "darwin":
		return filepath.Join(homeDir(), "Documents", "Roblox", "Plugins"), nil
	default:
		return "", fmt.Errorf("no Roblox Studio plugins directory on %s", runtime.GOOS)
	}
}

// ClaudeDesktopConfig returns the Claude Desktop MCP config file path.
func ClaudeDesktopConfig() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("no Claude Desktop config location on %s", runtime.GOOS)
	}
}

// CursorConfig returns the Cursor MCP config file path.
func CursorConfig() string {
	return filepath.Join(homeDir(), ".cursor", "mcp.json")
}

// EnsureDir creates a directory and parents if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0700)
}
