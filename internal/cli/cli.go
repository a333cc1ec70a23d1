// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/config"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	baseURL    string
	logLevel   string
	storage    string
}

// NewRootCmd builds the mockchat command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mockchat",
		Short: "Multi-model chat client with a built-in mock LLM server",
		Long: `mockchat streams replies from chat model endpoints into persistent
conversations, and ships the mock server those endpoints point at.

Examples:
  mockchat serve                      # start the mock server on :3001
  mockchat chat                       # interactive chat
  mockchat tui                        # full-screen chat
  mockchat ask "介绍一下自己"          # one-shot question
  mockchat ask -m mock-doubao 代码     # pick a model
  mockchat history                    # list saved conversations`,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default ~/.mockchat/config.toml)")
	flags.StringVar(&opts.baseURL, "base-url", "", "mock server base URL")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.storage, "storage", "", "storage backend: file or sqlite")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newAskCmd(opts),
		newTUICmd(opts),
		newModelsCmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		return ExitCode(err)
	}
	return ExitSuccess
}

// loadConfig loads the config file and applies flag overrides on top.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if o.configPath != "" {
		if err := config.LoadDotEnv(".env"); err != nil {
			return nil, err
		}
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.baseURL != "" {
		cfg.Client.BaseURL = o.baseURL
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.storage != "" {
		cfg.Storage.Backend = o.storage
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

// configFile returns the config file in use.
func (o *rootOptions) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPath()
}
