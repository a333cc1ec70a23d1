// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/tui"
)

func newTUICmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat",
		Long: `Full-screen chat.

Keys: enter sends, alt+enter inserts a newline, esc aborts the reply,
ctrl+r regenerates the last reply, ctrl+n starts a conversation,
ctrl+up/down switch conversations, ctrl+x deletes the conversation,
ctrl+t toggles the theme, ctrl+o cycles the model, ctrl+c quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg, appOptions{logToFile: true})
			if err != nil {
				return err
			}
			defer app.Close()

			if path, err := root.configFile(); err == nil {
				if err := app.WatchConfig(path); err != nil {
					app.Logger.Warn("config watch disabled", "error", err)
				}
			}
			return tui.Run(cmd.Context(), tui.Deps{
				Store:   app.Store,
				Orch:    app.Orch,
				Persist: app.Persist,
				Logger:  app.Logger,
			})
		},
	}
}
