package platform

import "context"

// Adapter is the chat platform surface consumed by the verification
// workflow. Implementations return ErrNotFound, ErrForbidden,
// ErrUnsupported or *RateLimitError (possibly wrapped) where applicable.
type Adapter interface {
	// OpenPrivateChannel returns the id of the direct-message channel with userID.
	OpenPrivateChannel(ctx context.Context, userID string) (string, error)
	SendMessage(ctx context.Context, channelID, content string) (Message, error)
	// CreateThread starts a thread (forum post) in channelID whose first
	// message is firstChunk. topic is stored as thread metadata when the
	// platform supports it. A *StarterPostedError means firstChunk was
	// posted in channelID without a thread.
	CreateThread(ctx context.Context, channelID, title, topic, firstChunk string) (Channel, error)

	FetchMember(ctx context.Context, guildID, userID string) (Member, error)
	ListRoles(ctx context.Context, guildID string) ([]Role, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	// SetMemberRoles replaces the member's role set.
	SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error

	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	FindChannelByName(ctx context.Context, name string) (Channel, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
	ListThreads(ctx context.Context, channelID string) ([]Channel, error)
	DeleteChannel(ctx context.Context, channelID string) error

	GuildName(ctx context.Context, guildID string) (string, error)
}
