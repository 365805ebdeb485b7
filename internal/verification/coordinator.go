package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/retry"
	"community-portal/verification-backend/internal/roles"
	"community-portal/verification-backend/pkg/textsplit"
)

const (
	// MessageLimit is the platform's maximum message length.
	MessageLimit = 2000
	// ThreadFirstChunk bounds the message that opens a review thread.
	ThreadFirstChunk = 1900

	freeFormQuestion = "Answers"
)

// Notifier accepts texts for the outbound notification queue.
type Notifier interface {
	Enqueue(text string) bool
}

// Coordinator interviews members and publishes transcripts for review.
type Coordinator struct {
	adapter   platform.Adapter
	waiter    *platform.Waiter
	repo      Repository
	resolver  *roles.Resolver
	ops       *retry.Operation
	notifier  Notifier
	publisher notifications.Publisher
	config    Config
	logger    *zap.Logger
	now       func() time.Time

	requestsMu   sync.Mutex
	lastRequests map[string]time.Time
}

// CoordinatorDeps groups the collaborators of a Coordinator.
type CoordinatorDeps struct {
	Adapter   platform.Adapter
	Waiter    *platform.Waiter
	Repo      Repository
	Resolver  *roles.Resolver
	Ops       *retry.Operation
	Notifier  Notifier
	Publisher notifications.Publisher
	Logger    *zap.Logger
}

func NewCoordinator(deps CoordinatorDeps, config Config) *Coordinator {
	if deps.Publisher == nil {
		deps.Publisher = notifications.NopPublisher{}
	}
	return &Coordinator{
		adapter:      deps.Adapter,
		waiter:       deps.Waiter,
		repo:         deps.Repo,
		resolver:     deps.Resolver,
		ops:          deps.Ops,
		notifier:     deps.Notifier,
		publisher:    deps.Publisher,
		config:       config,
		logger:       deps.Logger,
		now:          time.Now,
		lastRequests: make(map[string]time.Time),
	}
}

// AllowRequest enforces the per-member cooldown of self-requested
// verifications and records the attempt when allowed.
func (c *Coordinator) AllowRequest(memberID string) error {
	c.requestsMu.Lock()
	defer c.requestsMu.Unlock()

	now := c.now()
	if last, ok := c.lastRequests[memberID]; ok {
		if elapsed := now.Sub(last); elapsed < c.config.RequestCooldown {
			return &CooldownError{Remaining: c.config.RequestCooldown - elapsed}
		}
	}
	c.lastRequests[memberID] = now
	return nil
}

// RunVerificationForMember interviews member, publishes the transcript and
// records the pending verification. Only a missing review destination is
// reported as an error; every other step degrades and continues.
func (c *Coordinator) RunVerificationForMember(ctx context.Context, member platform.Member) error {
	logger := c.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("member_id", member.ID),
		zap.String("guild_id", member.GuildID))
	logger.Info("Starting verification")
	c.publisher.Publish(notifications.Event{
		Type:      notifications.EventVerificationStarted,
		MemberID:  member.ID,
		Timestamp: c.now(),
	})

	c.grantUnverified(ctx, member, logger)

	answers := c.interview(ctx, member, logger)
	transcript := BuildTranscript(member, answers, c.config.NotifyRoleID)

	dest, err := c.publish(ctx, member, transcript)
	if err != nil {
		logger.Error("Transcript not published, no record written", zap.Error(err))
		return err
	}

	if c.notifier != nil {
		mirror := fmt.Sprintf("New verification for %s (%s)\n\n", memberTag(member), member.ID) + transcript
		if !c.notifier.Enqueue(mirror) {
			logger.Warn("Transcript not mirrored to the notification queue")
		}
	}

	record := Record{
		MemberID:           member.ID,
		GuildID:            member.GuildID,
		ThreadID:           dest.threadID,
		ChannelID:          dest.channelID,
		MessageID:          dest.messageID,
		Status:             StatusAwaitingValidation,
		AwaitingValidation: true,
		CreatedAt:          NewTimestamp(c.now()),
	}
	if err := c.repo.Put(record); err != nil {
		logger.Error("Failed to persist verification record", zap.Error(err))
	}

	c.publisher.Publish(notifications.Event{
		Type:      notifications.EventVerificationPublished,
		MemberID:  member.ID,
		ChannelID: dest.channelID,
		Detail:    map[string]string{"thread_id": dest.threadID},
		Timestamp: c.now(),
	})
	logger.Info("Verification awaiting review",
		zap.String("channel_id", dest.channelID),
		zap.String("thread_id", dest.threadID))
	return nil
}

func (c *Coordinator) grantUnverified(ctx context.Context, member platform.Member, logger *zap.Logger) {
	ref := c.config.Roles.Unverified
	if ref == "" {
		return
	}
	role, err := c.resolver.ResolveInGuild(ctx, member.GuildID, ref)
	if err != nil {
		logger.Warn("Unverified role not resolved", zap.String("role", ref), zap.Error(err))
		return
	}
	ok := c.ops.Perform(ctx, func(ctx context.Context) error {
		return c.adapter.AddRole(ctx, member.GuildID, member.ID, role.ID)
	}, "add role "+role.Name, "")
	if !ok {
		logger.Warn("Unverified role not granted", zap.String("role_id", role.ID))
	}
}

func (c *Coordinator) questions() (questions []string, freeForm string) {
	if c.config.OverrideText != "" {
		return nil, c.config.OverrideText
	}
	if len(c.config.Questions) == 0 {
		return DefaultQuestions, ""
	}
	return c.config.Questions, ""
}

func (c *Coordinator) interview(ctx context.Context, member platform.Member, logger *zap.Logger) []QuestionAnswer {
	questions, freeForm := c.questions()

	dm, err := c.adapter.OpenPrivateChannel(ctx, member.ID)
	if err != nil {
		logger.Info("Private channel unavailable, interview skipped", zap.Error(err))
		if freeForm != "" {
			return []QuestionAnswer{{Question: freeFormQuestion, Answer: AnswerDMsClosed}}
		}
		answers := make([]QuestionAnswer, 0, len(questions))
		for _, q := range questions {
			answers = append(answers, QuestionAnswer{Question: q, Answer: AnswerDMsClosed})
		}
		return answers
	}

	if freeForm != "" {
		return c.freeFormInterview(ctx, member, dm, freeForm, logger)
	}
	return c.fixedInterview(ctx, member, dm, questions, logger)
}

func (c *Coordinator) fixedInterview(ctx context.Context, member platform.Member, dm string, questions []string, logger *zap.Logger) []QuestionAnswer {
	answers := make([]QuestionAnswer, 0, len(questions))
	for _, q := range questions {
		// subscribe before asking so a fast reply is not missed
		sub := c.waiter.Subscribe(platform.MessageFilter{AuthorID: member.ID, ChannelID: dm})
		if _, err := c.adapter.SendMessage(ctx, dm, q); err != nil {
			sub.Close()
			logger.Warn("Failed to send interview question", zap.Error(err))
			answers = append(answers, QuestionAnswer{Question: q, Answer: AnswerSendError})
			continue
		}

		msg, err := sub.Next(ctx, c.config.AnswerTimeout)
		sub.Close()
		if err != nil {
			answers = append(answers, QuestionAnswer{Question: q, Answer: AnswerTimedOut})
			continue
		}
		answers = append(answers, QuestionAnswer{Question: q, Answer: msg.Content})
	}
	return answers
}

func (c *Coordinator) freeFormInterview(ctx context.Context, member platform.Member, dm, text string, logger *zap.Logger) []QuestionAnswer {
	sub := c.waiter.Subscribe(platform.MessageFilter{AuthorID: member.ID, ChannelID: dm})
	defer sub.Close()

	for _, chunk := range textsplit.Split(text, MessageLimit) {
		if _, err := c.adapter.SendMessage(ctx, dm, chunk); err != nil {
			logger.Warn("Failed to send interview text", zap.Error(err))
			break
		}
	}
	instruction := fmt.Sprintf("Please answer in this DM. Type `done` when you are finished (or wait %s).", humanDuration(c.config.AnswerTimeout))
	if _, err := c.adapter.SendMessage(ctx, dm, instruction); err != nil {
		logger.Warn("Failed to send interview instruction", zap.Error(err))
	}

	var collected []string
	for {
		msg, err := sub.Next(ctx, c.config.AnswerTimeout)
		if err != nil {
			break
		}
		if strings.EqualFold(strings.TrimSpace(msg.Content), "done") {
			break
		}
		collected = append(collected, msg.Content)
	}

	answer := AnswerNone
	if len(collected) > 0 {
		answer = strings.Join(collected, "\n\n")
		if _, err := c.adapter.SendMessage(ctx, dm, "Your verification has been received and will be reviewed soon."); err != nil {
			logger.Debug("Confirmation not delivered", zap.Error(err))
		}
	}
	return []QuestionAnswer{{Question: freeFormQuestion, Answer: answer}}
}

type destination struct {
	channelID string
	threadID  string
	messageID string
}

// ResolveDestination finds the review channel by id, then by name.
func (c *Coordinator) ResolveDestination(ctx context.Context) (platform.Channel, error) {
	ref := strings.TrimSpace(c.config.Destination)
	if ref == "" {
		return platform.Channel{}, fmt.Errorf("no review destination configured: %w", ErrNoDestination)
	}
	if isID(ref) {
		ch, err := c.adapter.FetchChannel(ctx, ref)
		if err == nil {
			return ch, nil
		}
		c.logger.Warn("Review destination not fetched by id, trying by name", zap.String("destination", ref), zap.Error(err))
	}
	ch, err := c.adapter.FindChannelByName(ctx, ref)
	if err != nil {
		return platform.Channel{}, fmt.Errorf("review destination %q: %v: %w", ref, err, ErrNoDestination)
	}
	return ch, nil
}

// publish posts the transcript, in a dedicated thread when possible. The
// concatenation of every posted chunk equals transcript.
func (c *Coordinator) publish(ctx context.Context, member platform.Member, transcript string) (destination, error) {
	dest, err := c.ResolveDestination(ctx)
	if err != nil {
		return destination{}, err
	}

	first, rest := textsplit.Head(transcript, ThreadFirstChunk)
	result := destination{channelID: dest.ID}
	target := dest.ID

	thread, err := c.adapter.CreateThread(ctx, dest.ID, member.DisplayName(), TopicTag(member.ID), first)
	var posted *platform.StarterPostedError
	switch {
	case err == nil:
		result.threadID = thread.ID
		// the starter message shares the thread id
		result.messageID = thread.ID
		target = thread.ID
	case errors.As(err, &posted):
		c.logger.Warn("Thread creation failed, keeping the posted message", zap.String("channel_id", dest.ID), zap.Error(err))
		result.messageID = posted.Starter.ID
	default:
		if !errors.Is(err, platform.ErrUnsupported) {
			c.logger.Warn("Thread creation failed, posting a plain message", zap.String("channel_id", dest.ID), zap.Error(err))
		}
		msg, sendErr := c.adapter.SendMessage(ctx, dest.ID, first)
		if sendErr != nil {
			return destination{}, fmt.Errorf("failed to publish transcript in %s: %v: %w", dest.ID, sendErr, ErrNoDestination)
		}
		result.messageID = msg.ID
	}

	for _, chunk := range textsplit.Split(rest, MessageLimit) {
		if _, err := c.adapter.SendMessage(ctx, target, chunk); err != nil {
			c.logger.Warn("Failed to post transcript remainder", zap.String("channel_id", target), zap.Error(err))
			break
		}
	}
	return result, nil
}

// BuildTranscript renders the review post for member.
func BuildTranscript(member platform.Member, answers []QuestionAnswer, notifyRoleID string) string {
	header := fmt.Sprintf("New verification request for: **%s** (<@%s>) Accept: ✅ / Deny: ❌", memberTag(member), member.ID)
	if notifyRoleID != "" {
		header += fmt.Sprintf(" <@&%s>", notifyRoleID)
	}

	parts := []string{header, "---"}
	for _, qa := range answers {
		parts = append(parts, fmt.Sprintf("**%s**\n%s", qa.Question, qa.Answer))
	}
	parts = append(parts, fmt.Sprintf("*Meta: %s*", FooterTag(member.ID)))
	return strings.Join(parts, "\n\n")
}

func memberTag(member platform.Member) string {
	if member.Username != "" {
		return member.Username
	}
	return member.ID
}

func isID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if d == time.Minute {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
