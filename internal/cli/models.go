// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/model"
)

func newModelsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(app *App) error {
				current := ""
				if cur := app.Store.Current(); cur != nil {
					current = cur.CurrentModelID
				}
				writeModelList(cmd.OutOrStdout(), app.Store.Models(), current)
				return nil
			})
		},
	}

	var (
		temperature float64
		maxTokens   int
	)
	set := &cobra.Command{
		Use:   "set <model-id>",
		Short: "Change a model's temperature or max tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch model.ConfigPatch
			if cmd.Flags().Changed("temperature") {
				if temperature < 0 || temperature > 2 {
					return usageError("temperature must be between 0 and 2")
				}
				patch.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				if maxTokens <= 0 {
					return usageError("max-tokens must be positive")
				}
				patch.MaxTokens = &maxTokens
			}
			if patch.Temperature == nil && patch.MaxTokens == nil {
				return usageError("nothing to change: pass --temperature or --max-tokens")
			}

			return withApp(cmd, root, func(app *App) error {
				if err := app.Store.UpdateModelConfig(args[0], patch); err != nil {
					return usageError("%v", err)
				}
				desc, _ := app.Store.Model(args[0])
				cmd.Println(SuccessStyle.Render("updated"), desc.String())
				return nil
			})
		},
	}
	set.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature (0-2)")
	set.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum reply tokens")
	cmd.AddCommand(set)
	return cmd
}
