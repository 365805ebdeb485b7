// Package commands holds the slash commands exposed by the bot and the
// registry the platform adapter dispatches them through.
package commands

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"community-portal/verification-backend/internal/platform"
)

type OptionType int

const (
	OptionString OptionType = iota + 1
	OptionBoolean
	OptionUser
)

// Option describes one command argument.
type Option struct {
	Name        string
	Description string
	Type        OptionType
	Required    bool
}

// Interaction is one invocation of a command.
type Interaction struct {
	GuildID   string
	ChannelID string
	// Member is the invoking member, permissions included.
	Member  platform.Member
	Options map[string]string
}

// String returns the named option or "".
func (i Interaction) String(name string) string {
	return i.Options[name]
}

// Bool returns the named option parsed as a boolean.
func (i Interaction) Bool(name string) bool {
	v, err := strconv.ParseBool(i.Options[name])
	return err == nil && v
}

// Reply is what the invoker sees. Every message is sent in order.
type Reply struct {
	Messages  []string
	Ephemeral bool
}

// Public replies visibly in the channel.
func Public(msg string) Reply {
	return Reply{Messages: []string{msg}}
}

// Private replies to the invoker only.
func Private(msg string) Reply {
	return Reply{Messages: []string{msg}, Ephemeral: true}
}

type Handler func(ctx context.Context, in Interaction) (Reply, error)

type Command struct {
	Name        string
	Description string
	Options     []Option
	Handler     Handler
}

// Registry maps command names to handlers, keeping registration order.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]Command
	order    []string
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		commands: make(map[string]Command),
		logger:   logger,
	}
}

// Register adds cmd. Names are unique.
func (r *Registry) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Handler == nil {
		return fmt.Errorf("command needs a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[cmd.Name]; exists {
		return fmt.Errorf("command %q already registered", cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	r.order = append(r.order, cmd.Name)
	return nil
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.commands[name])
	}
	return out
}

// Execute runs the named command. Handler errors and panics are logged
// and turned into a generic private reply.
func (r *Registry) Execute(ctx context.Context, name string, in Interaction) (reply Reply) {
	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		return Private("Unknown command.")
	}

	logger := r.logger.With(zap.String("command", name), zap.String("user_id", in.Member.ID))
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Command panicked", zap.Any("panic", rec))
			reply = Private("Internal error.")
		}
	}()

	reply, err := cmd.Handler(ctx, in)
	if err != nil {
		logger.Error("Command failed", zap.Error(err))
		return Private("Internal error.")
	}
	logger.Info("Command executed")
	return reply
}
