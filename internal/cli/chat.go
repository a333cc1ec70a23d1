// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/mockchat/internal/chat"
	"github.com/jeranaias/mockchat/internal/config"
	"github.com/jeranaias/mockchat/internal/model"
	"github.com/jeranaias/mockchat/internal/store"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing for interactive chat.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// ReadInput reads a line of input with the given prompt.
func (r *lineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// COMMAND
// =============================================================================

func newChatCmd(root *rootOptions) *cobra.Command {
	var modelID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat in the terminal",
		Long: `Start an interactive chat session against the mock server.

Type /help for commands. Ctrl+C while a reply is streaming aborts it;
Ctrl+C or Ctrl+D at the prompt exits.`,
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

			r := newREPL(app, cmd.OutOrStdout())
			if modelID != "" {
				if err := r.switchModel(modelID); err != nil {
					return usageError("%v", err)
				}
			}
			return r.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&modelID, "model", "m", "", "model for the current conversation")
	return cmd
}

// =============================================================================
// REPL
// =============================================================================

// repl is the interactive chat loop. Input handling is kept apart from the
// terminal so it can run against any writer.
type repl struct {
	app    *App
	out    io.Writer
	render func(content string, theme store.Theme) string
}

func newREPL(app *App, out io.Writer) *repl {
	r := &repl{app: app, out: out}
	if IsStdoutTTY() {
		r.render = renderMarkdown
	}
	return r
}

func (r *repl) run(ctx context.Context) error {
	input := newLineReader()
	defer input.Close()

	// Ctrl+C outside the prompt aborts whatever is streaming.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if r.app.Orch.Active() > 0 {
				r.app.Orch.AbortAll()
			}
		}
	}()

	r.banner()
	for {
		line, err := input.ReadInput(promptStyle.Render("mockchat> "))
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed stdin.
			fmt.Fprintln(r.out)
			return nil
		}
		quit, err := r.handleLine(ctx, line)
		if err != nil {
			fmt.Fprintf(r.out, "%s %v\n", ErrorStyle.Render("[错误]"), err)
		}
		if err := r.app.Persist(ctx); err != nil {
			r.app.Logger.Error("failed to persist", "error", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) banner() {
	desc := r.currentModel()
	fmt.Fprintln(r.out, TitleStyle.Render("mockchat"))
	fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("模型:"), desc.Name)
	fmt.Fprintln(r.out, DimStyle.Render("输入 /help 查看命令"))
	fmt.Fprintln(r.out)
}

// handleLine runs one line of input. It reports whether the loop should end.
func (r *repl) handleLine(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return true, nil
		}
		return false, r.send(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true, nil
	case "help", "h", "?":
		r.help()
	case "new":
		conv := r.app.Store.CreateConversation(arg)
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("已创建"), conv.Title)
	case "list", "ls":
		r.list()
	case "switch":
		conv, err := r.resolveConversation(arg)
		if err != nil {
			return false, err
		}
		if err := r.app.Store.SetCurrent(conv.ID); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("已切换到"), conv.Title)
		r.history()
	case "delete", "rm":
		conv, err := r.resolveConversation(arg)
		if err != nil {
			return false, err
		}
		r.app.Store.Delete(conv.ID)
		fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("已删除"), conv.Title)
	case "rename":
		if arg == "" {
			return false, errors.New("用法: /rename <标题>")
		}
		cur := r.app.Store.Current()
		if cur == nil {
			return false, errors.New("没有当前会话")
		}
		return false, r.app.Store.Rename(cur.ID, arg)
	case "clear":
		r.app.Orch.AbortAll()
		r.app.Store.Clear()
		fmt.Fprintln(r.out, SuccessStyle.Render("已清空所有会话"))
	case "history":
		r.history()
	case "model":
		if arg == "" {
			r.models()
			return false, nil
		}
		return false, r.switchModel(arg)
	case "models":
		r.models()
	case "temp", "temperature":
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil || v < 0 || v > 2 {
			return false, errors.New("用法: /temp <0-2>")
		}
		return false, r.app.Store.UpdateModelConfig(r.currentModel().ID, model.ConfigPatch{Temperature: &v})
	case "max", "maxtokens":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return false, errors.New("用法: /max <正整数>")
		}
		return false, r.app.Store.UpdateModelConfig(r.currentModel().ID, model.ConfigPatch{MaxTokens: &n})
	case "retry":
		return false, r.retry(ctx)
	case "theme":
		switch store.Theme(arg) {
		case store.ThemeLight, store.ThemeDark:
			r.app.Store.SetTheme(store.Theme(arg))
		case "":
			fmt.Fprintf(r.out, "%s %s\n", DimStyle.Render("主题:"), r.app.Store.Theme())
		default:
			return false, errors.New("用法: /theme light|dark")
		}
	default:
		return false, fmt.Errorf("未知命令 /%s，输入 /help 查看命令", name)
	}
	return false, nil
}

func (r *repl) help() {
	cmds := [][2]string{
		{"/new [标题]", "新建会话"},
		{"/list", "列出会话"},
		{"/switch <序号>", "切换会话"},
		{"/delete [序号]", "删除会话（默认当前）"},
		{"/rename <标题>", "重命名当前会话"},
		{"/clear", "清空所有会话"},
		{"/history", "显示当前会话的消息"},
		{"/model [id]", "查看或切换模型"},
		{"/temp <0-2>", "设置当前模型的 temperature"},
		{"/max <n>", "设置当前模型的 maxTokens"},
		{"/retry", "重新生成最后一条回复"},
		{"/theme light|dark", "切换主题"},
		{"/quit", "退出"},
	}
	for _, c := range cmds {
		fmt.Fprintf(r.out, "  %s %s\n", LabelStyle.Width(20).Render(c[0]), c[1])
	}
	fmt.Fprintln(r.out, DimStyle.Render("  回复生成中按 Ctrl+C 可中断"))
}

// =============================================================================
// SENDING
// =============================================================================

func (r *repl) send(ctx context.Context, prompt string) error {
	s, err := r.app.Orch.SendPrompt(context.Background(), prompt)
	if err != nil {
		return err
	}
	return r.stream(ctx, s)
}

func (r *repl) retry(ctx context.Context) error {
	cur := r.app.Store.Current()
	if cur == nil {
		return errors.New("没有当前会话")
	}
	last := cur.LastAssistantMessage()
	if last == nil {
		return errors.New("没有可以重试的回复")
	}
	s, err := r.app.Orch.Retry(context.Background(), cur.ID, last.ID)
	if errors.Is(err, chat.ErrNoPrompt) {
		return errors.New("该回复之前没有用户消息")
	}
	if err != nil {
		return err
	}
	return r.stream(ctx, s)
}

// stream prints the session as it arrives and reports how it ended.
func (r *repl) stream(ctx context.Context, s *chat.Session) error {
	fmt.Fprintf(r.out, "\n%s\n", assistantStyle.Render(r.currentModel().Name))
	follow(ctx, r.out, r.app.Store, s)
	fmt.Fprintln(r.out)

	switch {
	case s.Aborted():
		fmt.Fprintln(r.out, WarningStyle.Render("[已中断]"))
	case s.Err() != nil:
		return s.Err()
	}
	fmt.Fprintln(r.out)
	return nil
}

// =============================================================================
// LISTINGS
// =============================================================================

func (r *repl) list() {
	convs := r.app.Store.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("暂无会话"))
		return
	}
	writeConversationList(r.out, convs, r.app.Store.CurrentID())
}

func (r *repl) history() {
	cur := r.app.Store.Current()
	if cur == nil || cur.IsEmpty() {
		fmt.Fprintln(r.out, DimStyle.Render("暂无消息"))
		return
	}
	writeTranscript(r.out, cur, r.render, r.app.Store.Theme())
}

func (r *repl) models() {
	writeModelList(r.out, r.app.Store.Models(), r.currentModel().ID)
}

func (r *repl) currentModel() model.ModelDescriptor {
	id := ""
	if cur := r.app.Store.Current(); cur != nil {
		id = cur.CurrentModelID
	}
	if desc, ok := r.app.Store.Model(id); ok {
		return desc
	}
	return r.app.Store.Models()[0]
}

// switchModel sets the model of the current conversation, creating one
// when there is none.
func (r *repl) switchModel(id string) error {
	if _, ok := r.app.Store.Model(id); !ok {
		return fmt.Errorf("%w: %s", store.ErrUnknownModel, id)
	}
	if r.app.Store.Current() == nil {
		r.app.Store.CreateConversation("")
	}
	if err := r.app.Store.SetCurrentModel(id); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%s %s\n", SuccessStyle.Render("已切换模型"), id)
	return nil
}

// resolveConversation accepts a 1-based index into the list, a conversation
// id, or "" for the current conversation.
func (r *repl) resolveConversation(arg string) (*model.Conversation, error) {
	if arg == "" {
		if cur := r.app.Store.Current(); cur != nil {
			return cur, nil
		}
		return nil, errors.New("没有当前会话")
	}
	return findConversation(r.app.Store.Conversations(), arg)
}

func findConversation(convs []*model.Conversation, arg string) (*model.Conversation, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(convs) {
			return nil, fmt.Errorf("序号超出范围: %d", n)
		}
		return convs[n-1], nil
	}
	for _, c := range convs {
		if c.ID == arg {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrConversationNotFound, arg)
}
