package verification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"community-portal/verification-backend/internal/platform"
)

// Reaction emojis driving decisions.
const (
	EmojiAccept = "✅"
	EmojiReject = "❌"
)

// Listener routes platform events to the workflow. Every workflow runs in
// its own goroutine and a panic only ends that workflow.
type Listener struct {
	coordinator *Coordinator
	reviews     *ReviewHandler
	waiter      *platform.Waiter
	targets     *TargetResolver
	botUserID   string
	logger      *zap.Logger

	wg sync.WaitGroup
}

func NewListener(coordinator *Coordinator, reviews *ReviewHandler, waiter *platform.Waiter, targets *TargetResolver, botUserID string, logger *zap.Logger) *Listener {
	return &Listener{
		coordinator: coordinator,
		reviews:     reviews,
		waiter:      waiter,
		targets:     targets,
		botUserID:   botUserID,
		logger:      logger,
	}
}

// SetBotUserID sets the identity whose reactions are ignored.
func (l *Listener) SetBotUserID(id string) {
	l.botUserID = id
}

func (l *Listener) spawn(name string, fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("Workflow panicked", zap.String("workflow", name), zap.Any("panic", r))
			}
		}()
		fn()
	}()
}

// Wait blocks until every spawned workflow returned.
func (l *Listener) Wait() {
	l.wg.Wait()
}

// OnMemberJoin starts the interview of a new member.
func (l *Listener) OnMemberJoin(ctx context.Context, member platform.Member) {
	if member.Bot {
		return
	}
	l.spawn("member_join", func() {
		if err := l.coordinator.RunVerificationForMember(ctx, member); err != nil {
			l.logger.Warn("Verification not started", zap.String("member_id", member.ID), zap.Error(err))
		}
	})
}

// OnMessage resumes waits and detects cancel commands. A message consumed
// by a wait is not parsed as a command.
func (l *Listener) OnMessage(ctx context.Context, msg platform.Message) {
	if msg.AuthorBot {
		return
	}
	if l.waiter.Dispatch(msg) > 0 {
		return
	}
	if msg.GuildID == "" || !IsCancelCommand(msg.Content) {
		return
	}
	targetID, ok := ResolveCommandTarget(msg)
	if !ok {
		return
	}

	d := Decision{
		GuildID:     msg.GuildID,
		ChannelID:   msg.ChannelID,
		ModeratorID: msg.AuthorID,
		TargetID:    targetID,
	}
	l.spawn("cancel", func() {
		if err := l.reviews.Cancel(ctx, d); err != nil {
			l.logger.Info("Cancellation not applied", zap.String("member_id", targetID), zap.Error(err))
		}
	})
}

// OnReaction turns ✅ and ❌ on a transcript into accept and reject.
func (l *Listener) OnReaction(ctx context.Context, reaction platform.Reaction) {
	if reaction.UserID == l.botUserID || reaction.GuildID == "" {
		return
	}
	if reaction.Emoji != EmojiAccept && reaction.Emoji != EmojiReject {
		return
	}

	l.spawn("reaction", func() {
		targetID, strategy, ok := l.targets.Resolve(ctx, reaction)
		if !ok {
			return
		}
		l.logger.Debug("Reaction target resolved", zap.String("member_id", targetID), zap.String("strategy", strategy))

		d := Decision{
			GuildID:     reaction.GuildID,
			ChannelID:   reaction.ChannelID,
			ModeratorID: reaction.UserID,
			TargetID:    targetID,
		}
		var err error
		if reaction.Emoji == EmojiAccept {
			err = l.reviews.Accept(ctx, d)
		} else {
			err = l.reviews.Reject(ctx, d)
		}
		if err != nil {
			l.logger.Info("Decision not applied", zap.String("member_id", targetID), zap.String("emoji", reaction.Emoji), zap.Error(err))
		}
	})
}

// OnVerificationRequest starts a member-requested interview in the
// background. It fails synchronously with a *CooldownError when the member
// asked too recently.
func (l *Listener) OnVerificationRequest(ctx context.Context, member platform.Member) error {
	if err := l.coordinator.AllowRequest(member.ID); err != nil {
		return err
	}
	l.spawn("request", func() {
		if err := l.coordinator.RunVerificationForMember(ctx, member); err != nil {
			l.logger.Warn("Requested verification not started", zap.String("member_id", member.ID), zap.Error(err))
		}
	})
	return nil
}
