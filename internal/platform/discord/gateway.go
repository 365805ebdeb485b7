package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/commands"
	"community-portal/verification-backend/internal/platform"
)

// commandDeferAfter leaves headroom under the three seconds Discord allows
// before an interaction must be acknowledged.
const commandDeferAfter = 2 * time.Second

// EventHandler receives gateway events.
type EventHandler interface {
	SetBotUserID(id string)
	OnMemberJoin(ctx context.Context, member platform.Member)
	OnMessage(ctx context.Context, msg platform.Message)
	OnReaction(ctx context.Context, reaction platform.Reaction)
}

// CommandExecutor runs slash commands.
type CommandExecutor interface {
	Commands() []commands.Command
	Execute(ctx context.Context, name string, in commands.Interaction) commands.Reply
}

// Gateway routes Discord events to the workflow and slash commands to the
// registry.
type Gateway struct {
	adapter  *Adapter
	events   EventHandler
	commands CommandExecutor
	appID    string
	guildID  string
	logger   *zap.Logger

	ctx      context.Context
	removers []func()
	wg       sync.WaitGroup
}

// NewGateway binds events and commands to adapter's session. appID may be
// empty to use the bot user id; guildID scopes command registration.
func NewGateway(adapter *Adapter, events EventHandler, executor CommandExecutor, appID, guildID string, logger *zap.Logger) *Gateway {
	return &Gateway{
		adapter:  adapter,
		events:   events,
		commands: executor,
		appID:    appID,
		guildID:  guildID,
		logger:   logger,
	}
}

// Open connects to the gateway. Workflows started by events inherit ctx.
func (g *Gateway) Open(ctx context.Context) error {
	g.ctx = ctx
	s := g.adapter.session
	g.removers = append(g.removers,
		s.AddHandler(g.onReady),
		s.AddHandler(g.onMemberAdd),
		s.AddHandler(g.onMessageCreate),
		s.AddHandler(g.onReactionAdd),
		s.AddHandler(g.onInteraction),
	)
	if err := s.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	return nil
}

// Close disconnects and waits for running command handlers.
func (g *Gateway) Close() error {
	for _, remove := range g.removers {
		remove()
	}
	g.removers = nil
	err := g.adapter.session.Close()
	g.wg.Wait()
	return err
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	g.events.SetBotUserID(r.User.ID)
	g.logger.Info("Connected to Discord",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))

	appID := g.appID
	if appID == "" {
		appID = r.User.ID
	}
	if err := g.registerCommands(appID); err != nil {
		g.logger.Error("Slash commands not registered", zap.Error(err))
	}
}

func (g *Gateway) registerCommands(appID string) error {
	var defs []*discordgo.ApplicationCommand
	for _, cmd := range g.commands.Commands() {
		defs = append(defs, toApplicationCommand(cmd))
	}
	if _, err := g.adapter.session.ApplicationCommandBulkOverwrite(appID, g.guildID, defs); err != nil {
		return mapError(err)
	}
	g.logger.Info("Slash commands registered", zap.Int("count", len(defs)), zap.String("guild_id", g.guildID))
	return nil
}

func (g *Gateway) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	g.events.OnMemberJoin(g.ctx, toMember(m.GuildID, m.Member))
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	g.events.OnMessage(g.ctx, toMessage(m.Message))
}

func (g *Gateway) onReactionAdd(s *discordgo.Session, r *discordgo.MessageReactionAdd) {
	g.events.OnReaction(g.ctx, toReaction(r.MessageReaction))
}

func (g *Gateway) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("Interaction handler panicked", zap.Any("panic", r))
			}
		}()
		g.handleCommand(i.Interaction)
	}()
}

// handleCommand answers directly when the command is quick and defers
// otherwise, then delivers the reply.
func (g *Gateway) handleCommand(i *discordgo.Interaction) {
	s := g.adapter.session
	name := i.ApplicationCommandData().Name
	in := toInteraction(i)

	done := make(chan commands.Reply, 1)
	go func() {
		done <- g.commands.Execute(g.ctx, name, in)
	}()

	var reply commands.Reply
	select {
	case reply = <-done:
		g.respond(i, reply)
		return
	case <-time.After(commandDeferAfter):
	}

	if err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		g.logger.Warn("Interaction not deferred", zap.String("command", name), zap.Error(err))
	}
	reply = <-done

	if reply.Ephemeral {
		// a deferred public placeholder cannot turn private
		if err := s.InteractionResponseDelete(i); err != nil {
			g.logger.Debug("Deferred response not deleted", zap.Error(err))
		}
		g.followups(i, reply.Messages, true)
		return
	}
	if len(reply.Messages) == 0 {
		reply.Messages = []string{"Done."}
	}
	first := reply.Messages[0]
	if _, err := s.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &first}); err != nil {
		g.logger.Warn("Deferred response not edited", zap.String("command", name), zap.Error(err))
	}
	g.followups(i, reply.Messages[1:], false)
}

func (g *Gateway) respond(i *discordgo.Interaction, reply commands.Reply) {
	if len(reply.Messages) == 0 {
		reply.Messages = []string{"Done."}
	}
	var flags discordgo.MessageFlags
	if reply.Ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := g.adapter.session.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: reply.Messages[0], Flags: flags},
	})
	if err != nil {
		g.logger.Warn("Interaction not answered", zap.Error(err))
		return
	}
	g.followups(i, reply.Messages[1:], reply.Ephemeral)
}

func (g *Gateway) followups(i *discordgo.Interaction, messages []string, ephemeral bool) {
	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	for _, msg := range messages {
		if _, err := g.adapter.session.FollowupMessageCreate(i, true, &discordgo.WebhookParams{Content: msg, Flags: flags}); err != nil {
			g.logger.Warn("Follow-up not sent", zap.Error(err))
			return
		}
	}
}
