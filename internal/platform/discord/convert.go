package discord

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"

	"community-portal/verification-backend/internal/commands"
	"community-portal/verification-backend/internal/platform"
)

// mapError translates discordgo failures into the platform taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var rateLimited *discordgo.RateLimitError
	if errors.As(err, &rateLimited) {
		out := &platform.RateLimitError{Err: err}
		if rateLimited.RateLimit != nil && rateLimited.TooManyRequests != nil {
			out.RetryAfter = rateLimited.RetryAfter
		}
		return out
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", platform.ErrForbidden, err)
		case http.StatusTooManyRequests:
			return &platform.RateLimitError{Err: err}
		}
	}
	return err
}

func toMember(guildID string, m *discordgo.Member) platform.Member {
	out := platform.Member{
		GuildID:     guildID,
		Nickname:    m.Nick,
		RoleIDs:     append([]string(nil), m.Roles...),
		Permissions: m.Permissions,
	}
	if m.GuildID != "" {
		out.GuildID = m.GuildID
	}
	if m.User != nil {
		out.ID = m.User.ID
		out.Username = m.User.Username
		out.Bot = m.User.Bot
	}
	return out
}

// memberPermissions folds the @everyone role and the member's roles into
// one bitfield. Guild owners get every capability the workflow checks.
func memberPermissions(guild *discordgo.Guild, m *discordgo.Member) int64 {
	if guild == nil {
		return 0
	}
	if m.User != nil && m.User.ID == guild.OwnerID {
		return platform.PermissionAdministrator | platform.PermissionManageGuild
	}
	held := make(map[string]bool, len(m.Roles)+1)
	held[guild.ID] = true
	for _, id := range m.Roles {
		held[id] = true
	}
	var perms int64
	for _, role := range guild.Roles {
		if held[role.ID] {
			perms |= role.Permissions
		}
	}
	return perms
}

func toChannel(ch *discordgo.Channel) platform.Channel {
	out := platform.Channel{
		ID:       ch.ID,
		GuildID:  ch.GuildID,
		ParentID: ch.ParentID,
		Name:     ch.Name,
		Topic:    ch.Topic,
	}
	switch {
	case ch.IsThread():
		out.Kind = platform.ChannelKindThread
	case ch.Type == discordgo.ChannelTypeGuildForum:
		out.Kind = platform.ChannelKindForum
	case ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM:
		out.Kind = platform.ChannelKindPrivate
	default:
		out.Kind = platform.ChannelKindText
	}
	return out
}

func toMessage(m *discordgo.Message) platform.Message {
	out := platform.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Content:   m.Content,
	}
	if m.Author != nil {
		out.AuthorID = m.Author.ID
		out.AuthorBot = m.Author.Bot
	}
	for _, u := range m.Mentions {
		out.MentionIDs = append(out.MentionIDs, u.ID)
	}
	return out
}

func toReaction(r *discordgo.MessageReaction) platform.Reaction {
	return platform.Reaction{
		UserID:    r.UserID,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		MessageID: r.MessageID,
		Emoji:     r.Emoji.Name,
	}
}

// toInteraction extracts the invoker and the option values of a slash
// command. Values are kept as strings.
func toInteraction(i *discordgo.Interaction) commands.Interaction {
	in := commands.Interaction{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Options:   make(map[string]string),
	}
	switch {
	case i.Member != nil:
		in.Member = toMember(i.GuildID, i.Member)
	case i.User != nil:
		in.Member = platform.Member{ID: i.User.ID, Username: i.User.Username, Bot: i.User.Bot}
	}
	if i.Type == discordgo.InteractionApplicationCommand {
		for _, opt := range i.ApplicationCommandData().Options {
			in.Options[opt.Name] = fmt.Sprint(opt.Value)
		}
	}
	return in
}

func toApplicationCommand(cmd commands.Command) *discordgo.ApplicationCommand {
	out := &discordgo.ApplicationCommand{
		Name:        cmd.Name,
		Description: cmd.Description,
	}
	for _, opt := range cmd.Options {
		kind := discordgo.ApplicationCommandOptionString
		switch opt.Type {
		case commands.OptionBoolean:
			kind = discordgo.ApplicationCommandOptionBoolean
		case commands.OptionUser:
			kind = discordgo.ApplicationCommandOptionUser
		}
		out.Options = append(out.Options, &discordgo.ApplicationCommandOption{
			Type:        kind,
			Name:        opt.Name,
			Description: opt.Description,
			Required:    opt.Required,
		})
	}
	return out
}

func normalizeChannelName(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}
