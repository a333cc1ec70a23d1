// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/store"
)

type askOptions struct {
	modelID  string
	noStream bool
	cont     bool
	raw      bool
}

func newAskCmd(root *rootOptions) *cobra.Command {
	opts := &askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask a single question",
		Long: `Ask a single question and print the reply.

The prompt is read from the arguments, or from stdin when none are given.
Each ask starts a new conversation unless --continue is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			app, err := newApp(cmd.Context(), cfg, appOptions{stderr: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if !opts.raw && IsStdoutTTY() {
				return runAsk(ctx, app, cmd.OutOrStdout(), prompt, opts, renderMarkdown)
			}
			return runAsk(ctx, app, cmd.OutOrStdout(), prompt, opts, nil)
		},
	}
	cmd.Flags().StringVarP(&opts.modelID, "model", "m", "", "model to ask")
	cmd.Flags().BoolVar(&opts.noStream, "no-stream", false, "wait for the whole reply instead of streaming it")
	cmd.Flags().BoolVarP(&opts.cont, "continue", "c", false, "ask within the current conversation")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "never render markdown")
	return cmd
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", usageError("no prompt given")
	}
	return prompt, nil
}

// runAsk sends prompt and writes the reply to out. Streaming replies are
// written as they arrive; render, when set, formats non-streaming replies.
func runAsk(ctx context.Context, app *App, out io.Writer, prompt string, opts *askOptions, render func(string, store.Theme) string) error {
	if !opts.cont || app.Store.Current() == nil {
		app.Store.CreateConversation("")
	}
	if opts.modelID != "" {
		if err := app.Store.SetCurrentModel(opts.modelID); err != nil {
			return usageError("%v", err)
		}
	}

	if opts.noStream {
		msg, err := app.Orch.Ask(ctx, prompt)
		if err != nil {
			return err
		}
		content := msg.Content
		if render != nil {
			content = render(content, app.Store.Theme())
		}
		fmt.Fprintln(out, strings.TrimRight(content, "\n"))
		return nil
	}

	s, err := app.Orch.SendPrompt(context.Background(), prompt)
	if err != nil {
		return err
	}
	follow(ctx, out, app.Store, s)
	fmt.Fprintln(out)

	if s.Aborted() {
		return &ExitError{Code: ExitGeneralError, Err: fmt.Errorf("aborted")}
	}
	return s.Err()
}
