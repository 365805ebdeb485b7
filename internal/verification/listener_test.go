package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/platform/fake"
)

func TestListenerCancelCommand(t *testing.T) {
	h := newHarness(t, nil)
	h.seedAwaiting()
	h.replyWhen(threadID, "remove ALL roles", moderatorID, "cancel: duplicate account")

	h.listener.OnMessage(h.ctx, platform.Message{
		ID:         "m1",
		ChannelID:  threadID,
		GuildID:    guildID,
		AuthorID:   moderatorID,
		Content:    "annuler <@" + targetID + ">",
		MentionIDs: []string{targetID},
	})
	h.listener.Wait()

	rec, _ := h.repo.Get(targetID)
	assert.Equal(t, StatusCancelled, rec.Status)
	// the reason looked like a command but was consumed by the prompt
	assert.Equal(t, "cancel: duplicate account", rec.CancelledReason)
	assert.Equal(t, 1, countRoleOps(h.adapter.RoleOps(), "set", ""))
}

func TestListenerIgnoresBotsAndChatter(t *testing.T) {
	h := newHarness(t, nil)
	h.seedAwaiting()

	h.listener.OnMessage(h.ctx, platform.Message{ChannelID: threadID, GuildID: guildID, AuthorID: "bot", AuthorBot: true, Content: "cancel <@" + targetID + ">"})
	h.listener.OnMessage(h.ctx, platform.Message{ChannelID: threadID, GuildID: guildID, AuthorID: moderatorID, Content: "hello <@" + targetID + ">"})
	h.listener.OnMessage(h.ctx, platform.Message{ChannelID: fake.DMChannelID(moderatorID), AuthorID: moderatorID, Content: "cancel <@" + targetID + ">"})
	h.listener.Wait()

	assert.Empty(t, h.adapter.Sent())
	assert.Equal(t, StatusAwaitingValidation, h.status())
}

func TestListenerReactionAccept(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.Roles.Adult, c.Roles.Minor, c.Roles.Artist = "", "", ""
	})
	h.seedAwaiting()

	h.listener.OnReaction(h.ctx, platform.Reaction{UserID: "bot", GuildID: guildID, ChannelID: threadID, MessageID: threadID, Emoji: EmojiAccept})
	h.listener.OnReaction(h.ctx, platform.Reaction{UserID: moderatorID, GuildID: guildID, ChannelID: threadID, MessageID: threadID, Emoji: "👍"})
	h.listener.Wait()
	assert.Equal(t, StatusAwaitingValidation, h.status())

	h.listener.OnReaction(h.ctx, platform.Reaction{UserID: moderatorID, GuildID: guildID, ChannelID: threadID, MessageID: threadID, Emoji: EmojiAccept})
	h.listener.Wait()
	assert.Equal(t, StatusAccepted, h.status())
	assert.True(t, h.adapter.Member(targetID).HasRole(roleVerified))
}

func TestListenerReactionReject(t *testing.T) {
	h := newHarness(t, nil)
	h.seedAwaiting()
	h.replyWhen(threadID, "justification for the rejection", moderatorID, "Underage")

	h.listener.OnReaction(h.ctx, platform.Reaction{UserID: moderatorID, GuildID: guildID, ChannelID: threadID, MessageID: threadID, Emoji: EmojiReject})
	h.listener.Wait()

	rec, _ := h.repo.Get(targetID)
	assert.Equal(t, StatusRejected, rec.Status)
	assert.Equal(t, "Underage", rec.RejectedReason)
}

func TestListenerUnresolvedReactionIsSilent(t *testing.T) {
	h := newHarness(t, nil)
	msg, _ := h.adapter.SendMessage(h.ctx, forumID, "just chatting")
	sentBefore := len(h.adapter.Sent())

	h.listener.OnReaction(h.ctx, platform.Reaction{UserID: strangerID, GuildID: guildID, ChannelID: forumID, MessageID: msg.ID, Emoji: EmojiAccept})
	h.listener.Wait()

	assert.Len(t, h.adapter.Sent(), sentBefore)
}

func TestListenerMemberJoin(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Questions = []string{"Q"} })

	h.listener.OnMemberJoin(h.ctx, platform.Member{ID: "bot-2", GuildID: guildID, Bot: true})
	h.listener.OnMemberJoin(h.ctx, platform.Member{ID: targetID, GuildID: guildID, Username: "newbie"})
	h.listener.Wait()

	_, ok := h.repo.Get("bot-2")
	assert.False(t, ok)
	rec, ok := h.repo.Get(targetID)
	assert.True(t, ok)
	assert.Equal(t, StatusAwaitingValidation, rec.Status)
}
