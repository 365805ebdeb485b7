package platform

// Permission bits understood by the authorization checks. Values follow
// the Discord permission bitfield.
const (
	PermissionAdministrator int64 = 1 << 3
	PermissionManageGuild   int64 = 1 << 5
)

// Member is a guild member as seen by the verification workflow.
type Member struct {
	ID          string   `json:"id"`
	GuildID     string   `json:"guild_id"`
	Username    string   `json:"username"`
	Nickname    string   `json:"nickname,omitempty"`
	Bot         bool     `json:"bot"`
	RoleIDs     []string `json:"role_ids"`
	Permissions int64    `json:"permissions"`
}

// DisplayName returns the nickname when set, the username otherwise.
func (m Member) DisplayName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	if m.Username != "" {
		return m.Username
	}
	return m.ID
}

// HasRole reports whether the member holds roleID.
func (m Member) HasRole(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// CanManageGuild reports administrator or manage-guild capability.
func (m Member) CanManageGuild() bool {
	return m.Permissions&(PermissionAdministrator|PermissionManageGuild) != 0
}

// IsAdministrator reports the administrator capability.
func (m Member) IsAdministrator() bool {
	return m.Permissions&PermissionAdministrator != 0
}

type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ChannelKind distinguishes the channel flavours the workflow cares about.
type ChannelKind string

const (
	ChannelKindText    ChannelKind = "text"
	ChannelKindForum   ChannelKind = "forum"
	ChannelKindThread  ChannelKind = "thread"
	ChannelKindPrivate ChannelKind = "private"
)

type Channel struct {
	ID       string      `json:"id"`
	GuildID  string      `json:"guild_id"`
	ParentID string      `json:"parent_id,omitempty"`
	Name     string      `json:"name"`
	Topic    string      `json:"topic,omitempty"`
	Kind     ChannelKind `json:"kind"`
}

// Message is an inbound or posted chat message.
type Message struct {
	ID         string   `json:"id"`
	ChannelID  string   `json:"channel_id"`
	GuildID    string   `json:"guild_id,omitempty"`
	AuthorID   string   `json:"author_id"`
	AuthorBot  bool     `json:"author_bot"`
	Content    string   `json:"content"`
	MentionIDs []string `json:"mention_ids,omitempty"`
}

// Reaction is an emoji added to a message.
type Reaction struct {
	UserID    string `json:"user_id"`
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}
