// studiomcp bridges MCP clients to Roblox Studio. With --stdio it runs
// the bridge: an MCP server on stdin/stdout plus the HTTP surface the
// Studio plugin polls (or a relay to the bridge process that owns it).
// Without --stdio it runs the first-time installer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lydakis/studiomcp/internal/config"
	"github.com/lydakis/studiomcp/internal/dispatch"
	"github.com/lydakis/studiomcp/internal/install"
	"github.com/lydakis/studiomcp/internal/paths"
	"github.com/lydakis/studiomcp/internal/relay"
	"github.com/lydakis/studiomcp/internal/studio"
	"github.com/lydakis/studiomcp/internal/toolserver"
)

const shutdownGrace = 5 * time.Second

func main() {
	stdio := flag.Bool("stdio", false, "run as MCP server on stdio")
	configPath := flag.String("config", "", "config file (default "+paths.ConfigFile()+")")
	pluginFile := flag.String("plugin", "", "Studio plugin file for the installer to copy")
	flag.Parse()

	if err := run(*stdio, *configPath, *pluginFile); err != nil {
		fmt.Fprintf(os.Stderr, "studiomcp: %v\n", err)
		os.Exit(1)
	}
}

func run(stdio bool, configPath, pluginFile string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if !stdio {
		if pluginFile == "" {
			pluginFile = cfg.PluginFile
		}
		return install.Run(pluginFile)
	}

	// stdout carries the MCP JSON-RPC stream; everything we say goes to
	// stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	state := dispatch.NewState()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var httpSrv *studio.Server
	background := make(chan error, 1)

	ln, err := net.Listen("tcp", cfg.Addr())
	if err == nil {
		// This process owns the well-known port and serves Studio
		// directly.
		logger.Info("this bridge owns the studio http surface", "addr", cfg.Addr())
		httpSrv = studio.NewServer(state, cfg.PollWindow(), logger)
		go func() {
			background <- httpSrv.Serve(ln)
		}()
	} else {
		// A sibling bridge got there first; forward through it.
		logger.Info("port busy, relaying through owning bridge", "addr", cfg.Addr())
		rel := relay.New(state, "http://"+cfg.Addr(), logger)
		go func() {
			rel.Run(ctx)
			background <- nil
		}()
	}

	// Blocks until the MCP client closes stdin.
	serveErr := server.ServeStdio(toolserver.New(state, logger))
	if errors.Is(serveErr, io.EOF) || errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}
	if serveErr != nil {
		logger.Error("mcp stdio session ended with error", "error", serveErr)
	}

	cancel()
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down studio http surface", "error", err)
		}
	}
	if err := <-background; err != nil {
		return fmt.Errorf("studio http surface: %w", err)
	}

	logger.Info("bye")
	return serveErr
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load()
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
