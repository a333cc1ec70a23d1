// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/logging"
	"github.com/jeranaias/mockchat/internal/mockserver"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr     string
		noDelay  bool
		tokenRPS float64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mock LLM server",
		Long: `Run the mock LLM server.

Routes:
  POST /api/chat/gpt        POST /api/chat/doubao     POST /api/chat/deepseek
  GET  /api/models          GET  /health`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Writer: cmd.ErrOrStderr(),
			})

			opts := mockserver.OptionsFromConfig(cfg.Server)
			opts.Logger = logger
			if addr != "" {
				opts.Addr = addr
			}
			if tokenRPS > 0 {
				opts.MaxTokensPerSecond = tokenRPS
			}
			if noDelay {
				opts.ThinkDelayMin, opts.ThinkDelayMax = 0, 0
				opts.CompletionDelayMin, opts.CompletionDelayMax = 0, 0
				opts.TokenDelayMax = 0
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return mockserver.New(opts).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :3001)")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "reply without simulated thinking or typing delays")
	cmd.Flags().Float64Var(&tokenRPS, "max-tokens-per-second", 0, "cap on streamed tokens per second across all clients")
	return cmd
}
