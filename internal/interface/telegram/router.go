// Package telegram implements the Alpha Wulf bot: it receives updates,
// routes commands and replies with plain text.
package telegram

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/alphawulf/alphawulf-hub/internal/infrastructure/external/telegram"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/handler"
	"github.com/alphawulf/alphawulf-hub/internal/interface/telegram/presenter"
)

type RouterConfig struct {
	Logger *slog.Logger
}

// CommandContext is what a command handler learns about the message.
type CommandContext struct {
	TelegramID int64
	ChatID     int64
	Args       string // text after the command
	Message    *telegram.Message
}

// CommandHandler returns the reply text. An empty reply sends nothing.
type CommandHandler func(ctx context.Context, cmdCtx CommandContext) (string, error)

func unknownCommand(context.Context, CommandContext) (string, error) {
	return presenter.UnknownCommandText, nil
}

// Router maps command names (without "/" and "@bot") to handlers.
type Router struct {
	log *slog.Logger

	mu       sync.RWMutex
	routes   map[string]CommandHandler
	fallback CommandHandler
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		log:      cfg.Logger.With("component", "bot_router"),
		routes:   make(map[string]CommandHandler),
		fallback: unknownCommand,
	}
}

// RegisterCommand replaces any handler already registered for command.
func (r *Router) RegisterCommand(command string, h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.routes[command]; dup {
		r.log.Warn("command handler replaced", slog.String("command", command))
	}
	r.routes[command] = h
}

// SetDefaultCommandHandler handles commands nobody registered.
func (r *Router) SetDefaultCommandHandler(h CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = h
}

func (r *Router) lookup(command string) (CommandHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.routes[command]; ok {
		return h, true
	}
	return r.fallback, false
}

func (r *Router) HandleCommand(ctx context.Context, command string, cmdCtx CommandContext) (string, error) {
	h, _ := r.lookup(command)
	return h(ctx, cmdCtx)
}

func (r *Router) Has(command string) bool {
	_, ok := r.lookup(command)
	return ok
}

// Commands lists registered names alphabetically.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.routes))
}

// RegisterDefaultCommands wires the bot's command set.
func RegisterDefaultCommands(r *Router, c *handler.Commands) {
	for name, fn := range map[string]func(context.Context, handler.Request) (string, error){
		"start":        c.Start,
		"help":         c.Help,
		"progress":     c.Progress,
		"achievements": c.Achievements,
		"streak":       c.Streak,
	} {
		r.RegisterCommand(name, func(ctx context.Context, cc CommandContext) (string, error) {
			return fn(ctx, handler.Request{TelegramID: cc.TelegramID, ChatID: cc.ChatID, Args: cc.Args})
		})
	}
}
