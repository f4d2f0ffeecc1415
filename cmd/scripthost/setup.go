package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/xyproto/env/v2"
	"go.uber.org/zap"

	scripthost "github.com/wippyai/wasm-scripthost"
	"github.com/wippyai/wasm-scripthost/build"
	"github.com/wippyai/wasm-scripthost/compiler"
	"github.com/wippyai/wasm-scripthost/diag"
	"github.com/wippyai/wasm-scripthost/engine"
	"github.com/wippyai/wasm-scripthost/errors"
	"github.com/wippyai/wasm-scripthost/host"
	"github.com/wippyai/wasm-scripthost/isolation"
	"github.com/wippyai/wasm-scripthost/proxy"
)

// loadConfig layers settings: defaults rooted at the first script, then
// the environment, then the config file, then flags.
func loadConfig(cmd *cobra.Command, scripts []string) (*scripthost.Config, error) {
	cfg := scripthost.Defaults()
	if len(scripts) > 0 {
		if abs, err := filepath.Abs(scripts[0]); err == nil {
			cfg.Location = abs
			cfg.LocalDir = filepath.Dir(abs)
		}
	}
	cfg.LocalDir = env.Dir("SCRIPTHOST_LOCALDIR", cfg.LocalDir)
	cfg.SystemDir = env.Dir("SCRIPTHOST_LIBDIR", cfg.SystemDir)
	cfg.Engine.MemoryLimitPages = env.UInt32("SCRIPTHOST_MEMORY_PAGES", cfg.Engine.MemoryLimitPages)

	flags := cmd.Flags()
	if path, _ := flags.GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if name, _ := flags.GetString("name"); name != "" {
		cfg.Name = name
	}
	if overrides, _ := flags.GetStringSlice("override"); len(overrides) > 0 {
		cfg.Overrides = append(cfg.Overrides, overrides...)
	}

	debug, _ := flags.GetBool("debug")
	log, err := newLogger(debug)
	if err != nil {
		return nil, err
	}
	cfg.Logger = log
	return cfg, nil
}

// newLogger returns a no-op logger, or with debug a development logger
// that every package logs to.
func newLogger(debug bool) (*zap.Logger, error) {
	if !debug {
		return zap.NewNop(), nil
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.OutputPaths = []string{"stderr"}
	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	for _, set := range []func(*zap.Logger){
		scripthost.SetLogger,
		build.SetLogger,
		compiler.SetLogger,
		engine.SetLogger,
		host.SetLogger,
		isolation.SetLogger,
		proxy.SetLogger,
	} {
		set(log)
	}
	return log, nil
}

// newManager creates a manager for scripts and appends them in order. The
// returned logger is the one the manager logs to.
func newManager(ctx context.Context, cmd *cobra.Command, scripts []string) (*scripthost.Manager, *zap.Logger, error) {
	cfg, err := loadConfig(cmd, scripts)
	if err != nil {
		return nil, nil, err
	}

	var m *scripthost.Manager
	if plain, _ := cmd.Flags().GetBool("plain"); plain {
		if cfg.Name == "" {
			cfg.Name = "ScriptAssembly"
		}
		m, err = scripthost.NewWithConfig(ctx, cfg)
	} else {
		m, err = scripthost.NewFunctions(ctx, cfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create manager: %w", err)
	}

	for _, path := range scripts {
		if err := m.AddScriptFromFile(path); err != nil {
			_ = m.Close(ctx)
			return nil, nil, err
		}
	}
	return m, cfg.Logger, nil
}

// buildScripts builds the manager's scripts, printing diagnostics on
// failure.
func buildScripts(ctx context.Context, cmd *cobra.Command, m *scripthost.Manager) error {
	ok, err := m.Build(ctx)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	if !ok {
		printDiagnostics(os.Stderr, m.Diagnostics(), useColor(cmd, os.Stderr))
		return errors.Compile(m.Name(), len(diag.Errors(m.Diagnostics())))
	}
	return nil
}

// proxyOptions returns the proxy options selected by flags.
func proxyOptions(cmd *cobra.Command, log *zap.Logger) ([]proxy.Option, error) {
	opts := []proxy.Option{proxy.WithLogger(log)}
	if path, _ := cmd.Flags().GetString("wit"); path != "" {
		text, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read WIT declarations: %w", err)
		}
		opts = append(opts, proxy.WithWIT(string(text)))
	}
	return opts, nil
}

func useColor(cmd *cobra.Command, f *os.File) bool {
	mode, _ := cmd.Flags().GetString("color")
	return mode == "on" || (mode == "auto" && isTerminal(f))
}
