// Package install performs first-run setup: it places the Studio plugin
// into the Roblox plugins directory and registers the bridge binary in
// the MCP client configs (Claude Desktop, Cursor) so the clients spawn
// it with --stdio.
package install

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/lydakis/studiomcp/internal/paths"
)

const (
	serverName = "Roblox Studio"
	pluginName = "MCPStudioPlugin.rbxm"
)

// Run installs the plugin (when pluginFile is set) and registers the
// current executable with every MCP client it can find. Setting up at
// least one client counts as success; individual failures are reported
// but do not abort the rest.
func Run(pluginFile string) error {
	if pluginFile != "" {
		dest, err := InstallPlugin(pluginFile)
		if err != nil {
			return fmt.Errorf("installing studio plugin: %w", err)
		}
		fmt.Printf("Installed Roblox Studio plugin to %s\n", dest)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	type client struct {
		name string
		path func() (string, error)
	}
	clients := []client{
		{"Claude", paths.ClaudeDesktopConfig},
		{"Cursor", func() (string, error) { return paths.CursorConfig(), nil }},
	}

	var successes []string
	var failures []error
	for _, c := range clients {
		configPath, err := c.path()
		if err == nil {
			err = InstallToConfig(configPath, exe)
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		fmt.Printf("Installed studiomcp to %s config %s\n", c.name, configPath)
		successes = append(successes, c.name)
	}

	if len(successes) == 0 {
		return fmt.Errorf("failed to install to any MCP client: %v", failures)
	}

	for _, err := range failures {
		fmt.Fprintf(os.Stderr, "studiomcp: warning: %v\n", err)
	}
	fmt.Println()
	fmt.Println(readyMessage(successes))
	return nil
}

// InstallPlugin copies the plugin file into the Roblox Studio plugins
// directory and returns the destination path.
func InstallPlugin(src string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("reading plugin %s: %w", src, err)
	}

	pluginsDir, err := paths.StudioPluginsDir()
	if err != nil {
		return "", err
	}
	if err := paths.EnsureDir(pluginsDir); err != nil {
		return "", fmt.Errorf("creating plugins dir: %w", err)
	}

	dest := filepath.Join(pluginsDir, pluginName)
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return "", fmt.Errorf("writing plugin to %s: %w", dest, err)
	}
	return dest, nil
}

// InstallToConfig adds (or replaces) the bridge's entry under mcpServers
// in an MCP client config file, creating the file if needed and leaving
// every other key untouched.
func InstallToConfig(configPath, exePath string) error {
	cfg := map[string]any{}

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", configPath, err)
		}
	case os.IsNotExist(err):
		if err := paths.EnsureDir(filepath.Dir(configPath)); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	default:
		return fmt.Errorf("reading %s: %w", configPath, err)
	}

	servers, ok := cfg["mcpServers"].(map[string]any)
	if !ok {
		servers = map[string]any{}
	}
	servers[serverName] = map[string]any{
		"command": exePath,
		"args":    []string{"--stdio"},
	}
	cfg["mcpServers"] = servers

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(configPath, append(out, '\n'), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}
	return nil
}

func readyMessage(clients []string) string {
	msg := "Roblox Studio MCP is ready to go.\nPlease restart Studio and MCP clients to apply the changes.\n\nMCP clients set up:\n"
	for _, c := range clients {
		msg += "  " + c + "\n"
	}
	msg += "\nNote: connecting a third-party LLM to Roblox Studio via an MCP server will share your data with that external service provider. Please review their privacy practices carefully before proceeding.\nTo uninstall, delete " + pluginName + " from your Plugins directory."
	return msg
}
