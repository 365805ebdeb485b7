package discord

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-portal/verification-backend/internal/commands"
	"community-portal/verification-backend/internal/platform"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))

	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	assert.ErrorIs(t, mapError(notFound), platform.ErrNotFound)

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.ErrorIs(t, mapError(forbidden), platform.ErrForbidden)

	limited := &discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{
		TooManyRequests: &discordgo.TooManyRequests{RetryAfter: 2 * time.Second},
	}}
	var rl *platform.RateLimitError
	require.ErrorAs(t, mapError(limited), &rl)
	assert.Equal(t, 2*time.Second, rl.RetryAfter)
	assert.True(t, platform.IsTransient(mapError(limited)))

	other := errors.New("boom")
	assert.Same(t, other, mapError(other))
}

func TestMemberPermissions(t *testing.T) {
	guild := &discordgo.Guild{
		ID:      "g",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g", Permissions: 1 << 10},
			{ID: "mod", Permissions: platform.PermissionManageGuild},
			{ID: "admin", Permissions: platform.PermissionAdministrator},
		},
	}

	plain := memberPermissions(guild, &discordgo.Member{User: &discordgo.User{ID: "u"}})
	assert.Equal(t, int64(1<<10), plain)

	mod := memberPermissions(guild, &discordgo.Member{User: &discordgo.User{ID: "u"}, Roles: []string{"mod"}})
	assert.True(t, platform.Member{Permissions: mod}.CanManageGuild())
	assert.False(t, platform.Member{Permissions: mod}.IsAdministrator())

	owner := memberPermissions(guild, &discordgo.Member{User: &discordgo.User{ID: "owner"}})
	assert.True(t, platform.Member{Permissions: owner}.IsAdministrator())
	assert.Zero(t, memberPermissions(nil, &discordgo.Member{}))
}

func TestToChannelKinds(t *testing.T) {
	assert.Equal(t, platform.ChannelKindForum, toChannel(&discordgo.Channel{Type: discordgo.ChannelTypeGuildForum}).Kind)
	assert.Equal(t, platform.ChannelKindThread, toChannel(&discordgo.Channel{Type: discordgo.ChannelTypeGuildPublicThread}).Kind)
	assert.Equal(t, platform.ChannelKindPrivate, toChannel(&discordgo.Channel{Type: discordgo.ChannelTypeDM}).Kind)
	assert.Equal(t, platform.ChannelKindText, toChannel(&discordgo.Channel{Type: discordgo.ChannelTypeGuildText}).Kind)
}

func TestToMessage(t *testing.T) {
	msg := toMessage(&discordgo.Message{
		ID:        "m",
		ChannelID: "c",
		GuildID:   "g",
		Content:   "cancel <@42>",
		Author:    &discordgo.User{ID: "a", Bot: true},
		Mentions:  []*discordgo.User{{ID: "42"}},
	})
	assert.Equal(t, platform.Message{
		ID: "m", ChannelID: "c", GuildID: "g", AuthorID: "a", AuthorBot: true,
		Content: "cancel <@42>", MentionIDs: []string{"42"},
	}, msg)
}

func TestToInteraction(t *testing.T) {
	in := toInteraction(&discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		GuildID:   "g",
		ChannelID: "c",
		Member: &discordgo.Member{
			User:        &discordgo.User{ID: "u", Username: "mod"},
			Roles:       []string{"r"},
			Permissions: platform.PermissionAdministrator,
		},
		Data: discordgo.ApplicationCommandInteractionData{
			Name: "say",
			Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "message", Type: discordgo.ApplicationCommandOptionString, Value: "hello"},
				{Name: "as_message", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
			},
		},
	})
	assert.Equal(t, "g", in.Member.GuildID)
	assert.True(t, in.Member.IsAdministrator())
	assert.Equal(t, "hello", in.String("message"))
	assert.True(t, in.Bool("as_message"))
}

func TestToApplicationCommand(t *testing.T) {
	def := toApplicationCommand(commands.Command{
		Name:        "say",
		Description: "Makes the bot say something",
		Options: []commands.Option{
			{Name: "message", Type: commands.OptionString, Required: true},
			{Name: "as_message", Type: commands.OptionBoolean},
			{Name: "member", Type: commands.OptionUser},
		},
	})
	require.Len(t, def.Options, 3)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, def.Options[0].Type)
	assert.True(t, def.Options[0].Required)
	assert.Equal(t, discordgo.ApplicationCommandOptionBoolean, def.Options[1].Type)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, def.Options[2].Type)
}

func TestNormalizeChannelName(t *testing.T) {
	assert.Equal(t, "verifications", normalizeChannelName(" #Verifications "))
}
