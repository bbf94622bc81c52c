package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/gradebot/core/logger"
	"github.com/m3rciful/gradebot/core/telegram/commands"
)

// ErrInvalidCommand reports a registration without a slash name or description.
var ErrInvalidCommand = errors.New("telegram: invalid command")

// Registry is the command catalogue: it feeds the platform menu and the admin help.
type Registry struct {
	commands map[string]commands.Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]commands.Command)}
}

// RegisterCommand adds cmd under name ("/name").
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	name = strings.ToLower(strings.TrimSpace(name))
	switch {
	case name == "" || cmd.Description == "":
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return ErrInvalidCommand
	case name[0] != '/':
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return ErrInvalidCommand
	}
	if _, exists := r.commands[name]; exists {
		logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, "register.command.duplicate",
			slog.String("name", name),
		)
		return fmt.Errorf("telegram: command already registered: %s", name)
	}
	r.commands[name] = cmd
	return nil
}

// Entries returns the commands sorted by name. adminOnly selects the operator set.
func (r *Registry) Entries(adminOnly bool) []commands.Entry {
	list := make([]commands.Entry, 0, len(r.commands))
	for name, cmd := range r.commands {
		if cmd.AdminOnly != adminOnly || cmd.Hidden {
			continue
		}
		list = append(list, commands.Entry{Name: name, Command: cmd})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// ListCommands returns the public menu: neither hidden nor admin-only.
func (r *Registry) ListCommands() []tele.Command {
	entries := r.Entries(false)
	list := make([]tele.Command, 0, len(entries))
	for _, e := range entries {
		list = append(list, tele.Command{Text: strings.TrimPrefix(e.Name, "/"), Description: e.Description})
	}
	return list
}

// LookupCommand searches for a command by name or alias and returns the canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = strings.ToLower(name)
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	if cmd, ok := r.commands[name]; ok {
		return name, cmd, true
	}
	for key, cmd := range r.commands {
		for _, alias := range cmd.Aliases {
			if alias == name || "/"+alias == name {
				return key, cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// HelpText renders entries as "/name - description" lines.
func HelpText(entries []commands.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(e.Name)
		b.WriteString(" - ")
		b.WriteString(e.Description)
	}
	return b.String()
}

// SetupCommands publishes the public menu to the platform.
func SetupCommands(bot *tele.Bot, reg *Registry) {
	list := reg.ListCommands()
	if err := bot.SetCommands(list); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
		return
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.Text)
	}
	summary, _ := logger.SummarizeStrings(names, 10)
	logger.TWire.LogAttrs(context.Background(), slog.LevelInfo, "register.commands.set",
		slog.Int("count", len(list)),
		slog.String("commands", summary),
	)
}
