// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/export"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(app *App) error {
				convs := app.Store.Conversations()
				if len(convs) == 0 {
					cmd.Println(DimStyle.Render("no conversations"))
					return nil
				}
				writeConversationList(cmd.OutOrStdout(), convs, app.Store.CurrentID())
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show [n|id]",
		Short: "Print a conversation (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(app *App) error {
				conv := app.Store.Current()
				if len(args) == 1 {
					found, err := findConversation(app.Store.Conversations(), args[0])
					if err != nil {
						return usageError("%v", err)
					}
					conv = found
				}
				if conv == nil {
					return usageError("no current conversation")
				}
				var render = renderMarkdown
				if !IsStdoutTTY() {
					render = nil
				}
				writeTranscript(cmd.OutOrStdout(), conv, render, app.Store.Theme())
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(app *App) error {
				conv, err := findConversation(app.Store.Conversations(), args[0])
				if err != nil {
					return usageError("%v", err)
				}
				app.Store.Delete(conv.ID)
				cmd.Println(SuccessStyle.Render("deleted"), conv.Title)
				return nil
			})
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(app *App) error {
				n := len(app.Store.Conversations())
				app.Store.Clear()
				cmd.Println(SuccessStyle.Render("deleted"), fmt.Sprintf("%d conversations", n))
				return nil
			})
		},
	}

	var (
		format string
		outDir string
	)
	exportCmd := &cobra.Command{
		Use:   "export [n|id]",
		Short: "Export a conversation to Markdown or JSON (default: current)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(app *App) error {
				conv := app.Store.Current()
				if len(args) == 1 {
					found, err := findConversation(app.Store.Conversations(), args[0])
					if err != nil {
						return usageError("%v", err)
					}
					conv = found
				}
				if conv == nil {
					return usageError("no current conversation")
				}

				opts := export.DefaultOptions()
				opts.OutputDir = outDir
				opts.ModelName = func(id string) string {
					desc, _ := app.Store.Model(id)
					return desc.Name
				}
				exp, err := export.ForFormat(format, opts)
				if err != nil {
					return usageError("%v", err)
				}
				path, err := export.ToFile(conv, exp, opts)
				if err != nil {
					return err
				}
				cmd.Println(SuccessStyle.Render("exported"), path)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&format, "format", "f", "md", "md or json")
	exportCmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")

	cmd.AddCommand(show, del, clear, exportCmd)
	return cmd
}

// withApp loads config, opens the app, runs fn and closes the app, which
// persists any change fn made.
func withApp(cmd *cobra.Command, root *rootOptions, fn func(*App) error) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	app, err := newApp(cmd.Context(), cfg, appOptions{stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	if err := fn(app); err != nil {
		app.Close()
		return err
	}
	return app.Close()
}
