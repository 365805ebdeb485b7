package verification

import (
	"context"
	"regexp"
	"strings"

	"community-portal/verification-backend/internal/platform"
)

var (
	topicTagPattern    = regexp.MustCompile(`verification:(\d+)`)
	footerTagPattern   = regexp.MustCompile(`verification_member_id:(\d+)`)
	userMentionPattern = regexp.MustCompile(`<@!?(\d+)>`)
	bareIDPattern      = regexp.MustCompile(`(?:^|\D)(\d{16,19})(?:\D|$)`)
	// RE2 word boundaries are ASCII only, so the keyword end is spelled out
	cancelPattern      = regexp.MustCompile(`(?i)^\s*(?:annuler|cancel|revoquer|revoqu[eé]|stop)(?:[^\p{L}\p{N}_]|$)`)
)

// TopicTag is the destination metadata tag naming the member.
func TopicTag(memberID string) string {
	return "verification:" + memberID
}

// FooterTag is the transcript footer tag naming the member.
func FooterTag(memberID string) string {
	return "verification_member_id:" + memberID
}

// IsCancelCommand reports whether content starts with a cancel keyword.
func IsCancelCommand(content string) bool {
	return cancelPattern.MatchString(content)
}

// ReactionStrategy extracts a member id from a reaction's context.
type ReactionStrategy struct {
	Name    string
	Resolve func(ctx context.Context, reaction platform.Reaction) (string, bool)
}

// TargetResolver runs strategies in order; the first hit wins.
type TargetResolver struct {
	strategies []ReactionStrategy
}

func NewTargetResolver(strategies ...ReactionStrategy) *TargetResolver {
	return &TargetResolver{strategies: strategies}
}

// NewReactionTargetResolver looks at the destination topic, then the
// reacted message footer, then the store.
func NewReactionTargetResolver(adapter platform.Adapter, repo Repository) *TargetResolver {
	return NewTargetResolver(
		TopicTagStrategy(adapter),
		FooterTagStrategy(adapter),
		StoreLookupStrategy(repo),
	)
}

// Resolve returns the member id and the name of the strategy that found it.
func (r *TargetResolver) Resolve(ctx context.Context, reaction platform.Reaction) (memberID, strategy string, ok bool) {
	for _, s := range r.strategies {
		if id, found := s.Resolve(ctx, reaction); found {
			return id, s.Name, true
		}
	}
	return "", "", false
}

func firstGroup(pattern *regexp.Regexp, text string) (string, bool) {
	m := pattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

func TopicTagStrategy(adapter platform.Adapter) ReactionStrategy {
	return ReactionStrategy{
		Name: "topic",
		Resolve: func(ctx context.Context, reaction platform.Reaction) (string, bool) {
			ch, err := adapter.FetchChannel(ctx, reaction.ChannelID)
			if err != nil {
				return "", false
			}
			return firstGroup(topicTagPattern, ch.Topic)
		},
	}
}

func FooterTagStrategy(adapter platform.Adapter) ReactionStrategy {
	return ReactionStrategy{
		Name: "footer",
		Resolve: func(ctx context.Context, reaction platform.Reaction) (string, bool) {
			msg, err := adapter.FetchMessage(ctx, reaction.ChannelID, reaction.MessageID)
			if err != nil {
				return "", false
			}
			return firstGroup(footerTagPattern, msg.Content)
		},
	}
}

func StoreLookupStrategy(repo Repository) ReactionStrategy {
	return ReactionStrategy{
		Name: "store",
		Resolve: func(ctx context.Context, reaction platform.Reaction) (string, bool) {
			if id, ok := repo.FindByDestination(reaction.ChannelID); ok {
				return id, true
			}
			return repo.FindByDestination(reaction.MessageID)
		},
	}
}

// CommandStrategy extracts a member id from a text command.
type CommandStrategy struct {
	Name    string
	Resolve func(msg platform.Message) (string, bool)
}

// CommandStrategies are tried in order by ResolveCommandTarget.
var CommandStrategies = []CommandStrategy{
	{Name: "mention", Resolve: func(msg platform.Message) (string, bool) {
		if len(msg.MentionIDs) == 0 || msg.MentionIDs[0] == "" {
			return "", false
		}
		return msg.MentionIDs[0], true
	}},
	{Name: "footer", Resolve: func(msg platform.Message) (string, bool) {
		return firstGroup(footerTagPattern, msg.Content)
	}},
	{Name: "mention_syntax", Resolve: func(msg platform.Message) (string, bool) {
		return firstGroup(userMentionPattern, msg.Content)
	}},
	{Name: "bare_id", Resolve: func(msg platform.Message) (string, bool) {
		return firstGroup(bareIDPattern, msg.Content)
	}},
}

// ResolveCommandTarget finds the member a cancel command refers to.
func ResolveCommandTarget(msg platform.Message) (string, bool) {
	for _, s := range CommandStrategies {
		if id, ok := s.Resolve(msg); ok && strings.TrimSpace(id) != "" {
			return id, true
		}
	}
	return "", false
}
