// Package discord implements platform.Adapter over the Discord gateway
// and REST API.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/platform"
)

// threadArchiveMinutes keeps review threads open for a week.
const threadArchiveMinutes = 10080

// Adapter wraps a discordgo session.
type Adapter struct {
	session *discordgo.Session
	logger  *zap.Logger
}

// NewAdapter creates a session for a bot token. The gateway is opened by
// Gateway.Open.
func NewAdapter(token string, logger *zap.Logger) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.ShouldRetryOnRateLimit = false

	return &Adapter{
		session: session,
		logger:  logger,
	}, nil
}

// Session exposes the underlying session to the gateway.
func (a *Adapter) Session() *discordgo.Session {
	return a.session
}

func (a *Adapter) OpenPrivateChannel(ctx context.Context, userID string) (string, error) {
	ch, err := a.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return ch.ID, nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) (platform.Message, error) {
	msg, err := a.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, mapError(err)
	}
	return toMessage(msg), nil
}

// CreateThread opens a forum post, or a thread on a new message in a text
// channel. When the thread cannot be started on that message it stays
// posted and is reported through *platform.StarterPostedError. Discord threads carry no topic; setting it is attempted and
// failures are ignored, the transcript footer identifies the member.
func (a *Adapter) CreateThread(ctx context.Context, channelID, title, topic, firstChunk string) (platform.Channel, error) {
	parent, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Channel{}, mapError(err)
	}

	start := &discordgo.ThreadStart{Name: title, AutoArchiveDuration: threadArchiveMinutes}
	var thread *discordgo.Channel
	switch parent.Type {
	case discordgo.ChannelTypeGuildForum:
		thread, err = a.session.ForumThreadStartComplex(channelID, start, &discordgo.MessageSend{Content: firstChunk}, discordgo.WithContext(ctx))
	case discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews:
		var starter *discordgo.Message
		starter, err = a.session.ChannelMessageSend(channelID, firstChunk, discordgo.WithContext(ctx))
		if err != nil {
			return platform.Channel{}, mapError(err)
		}
		thread, err = a.session.MessageThreadStartComplex(channelID, starter.ID, start, discordgo.WithContext(ctx))
		if err != nil {
			return platform.Channel{}, &platform.StarterPostedError{Starter: toMessage(starter), Err: mapError(err)}
		}
	default:
		return platform.Channel{}, fmt.Errorf("channel %s of type %d: %w", channelID, parent.Type, platform.ErrUnsupported)
	}
	if err != nil {
		return platform.Channel{}, mapError(err)
	}

	if topic != "" {
		if _, err := a.session.ChannelEdit(thread.ID, &discordgo.ChannelEdit{Topic: topic}, discordgo.WithContext(ctx)); err != nil {
			a.logger.Debug("Thread topic not set", zap.String("thread_id", thread.ID), zap.Error(err))
		} else {
			thread.Topic = topic
		}
	}
	return toChannel(thread), nil
}

func (a *Adapter) FetchMember(ctx context.Context, guildID, userID string) (platform.Member, error) {
	m, err := a.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Member{}, mapError(err)
	}
	member := toMember(guildID, m)
	if guild, err := a.guild(ctx, guildID); err == nil {
		member.Permissions = memberPermissions(guild, m)
	} else {
		a.logger.Warn("Member permissions unknown", zap.String("guild_id", guildID), zap.Error(err))
	}
	return member, nil
}

func (a *Adapter) ListRoles(ctx context.Context, guildID string) ([]platform.Role, error) {
	roles, err := a.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]platform.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, platform.Role{ID: r.ID, Name: r.Name})
	}
	return out, nil
}

func (a *Adapter) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapError(a.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	return mapError(a.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)))
}

func (a *Adapter) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	roles := append([]string{}, roleIDs...)
	_, err := a.session.GuildMemberEdit(guildID, userID, &discordgo.GuildMemberParams{Roles: &roles}, discordgo.WithContext(ctx))
	return mapError(err)
}

func (a *Adapter) FetchChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	ch, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Channel{}, mapError(err)
	}
	return toChannel(ch), nil
}

// FindChannelByName searches every guild the bot is in.
func (a *Adapter) FindChannelByName(ctx context.Context, name string) (platform.Channel, error) {
	want := normalizeChannelName(name)

	a.session.State.RLock()
	guildIDs := make([]string, 0, len(a.session.State.Guilds))
	for _, g := range a.session.State.Guilds {
		guildIDs = append(guildIDs, g.ID)
	}
	a.session.State.RUnlock()

	for _, guildID := range guildIDs {
		channels, err := a.session.GuildChannels(guildID, discordgo.WithContext(ctx))
		if err != nil {
			a.logger.Warn("Guild channels not listed", zap.String("guild_id", guildID), zap.Error(err))
			continue
		}
		for _, ch := range channels {
			if normalizeChannelName(ch.Name) == want {
				return toChannel(ch), nil
			}
		}
	}
	return platform.Channel{}, fmt.Errorf("channel named %q: %w", name, platform.ErrNotFound)
}

func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (platform.Message, error) {
	msg, err := a.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.Message{}, mapError(err)
	}
	return toMessage(msg), nil
}

// ListThreads returns the active and public archived threads of channelID.
func (a *Adapter) ListThreads(ctx context.Context, channelID string) ([]platform.Channel, error) {
	parent, err := a.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}

	seen := make(map[string]bool)
	var out []platform.Channel
	collect := func(threads []*discordgo.Channel) {
		for _, t := range threads {
			if t.ParentID != channelID || seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			out = append(out, toChannel(t))
		}
	}

	active, err := a.session.GuildThreadsActive(parent.GuildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	collect(active.Threads)

	archived, err := a.session.ThreadsArchived(channelID, nil, 100, discordgo.WithContext(ctx))
	if err != nil {
		a.logger.Warn("Archived threads not listed", zap.String("channel_id", channelID), zap.Error(err))
	} else {
		collect(archived.Threads)
	}
	return out, nil
}

func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	_, err := a.session.ChannelDelete(channelID, discordgo.WithContext(ctx))
	return mapError(err)
}

func (a *Adapter) GuildName(ctx context.Context, guildID string) (string, error) {
	guild, err := a.guild(ctx, guildID)
	if err != nil {
		return "", err
	}
	return guild.Name, nil
}

// guild prefers the gateway cache, which carries roles.
func (a *Adapter) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if g, err := a.session.State.Guild(guildID); err == nil {
		return g, nil
	}
	g, err := a.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}
	return g, nil
}

var _ platform.Adapter = (*Adapter)(nil)
