package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/retry"
	"community-portal/verification-backend/internal/roles"
)

// ReviewHandler applies moderator decisions to verification records.
type ReviewHandler struct {
	adapter    platform.Adapter
	waiter     *platform.Waiter
	repo       Repository
	resolver   *roles.Resolver
	authorizer *Authorizer
	ops        *retry.Operation
	notifier   Notifier
	publisher  notifications.Publisher
	audit      AuditLog
	config     Config
	logger     *zap.Logger
	now        func() time.Time
}

// ReviewDeps groups the collaborators of a ReviewHandler.
type ReviewDeps struct {
	Adapter    platform.Adapter
	Waiter     *platform.Waiter
	Repo       Repository
	Resolver   *roles.Resolver
	Authorizer *Authorizer
	Ops        *retry.Operation
	Notifier   Notifier
	Publisher  notifications.Publisher
	Audit      AuditLog
	Logger     *zap.Logger
}

func NewReviewHandler(deps ReviewDeps, config Config) *ReviewHandler {
	if deps.Publisher == nil {
		deps.Publisher = notifications.NopPublisher{}
	}
	if deps.Audit == nil {
		deps.Audit = NewMemoryAuditLog()
	}
	return &ReviewHandler{
		adapter:    deps.Adapter,
		waiter:     deps.Waiter,
		repo:       deps.Repo,
		resolver:   deps.Resolver,
		authorizer: deps.Authorizer,
		ops:        deps.Ops,
		notifier:   deps.Notifier,
		publisher:  deps.Publisher,
		audit:      deps.Audit,
		config:     config,
		logger:     deps.Logger,
		now:        time.Now,
	}
}

func (h *ReviewHandler) say(ctx context.Context, channelID, text string) {
	if _, err := h.adapter.SendMessage(ctx, channelID, text); err != nil {
		h.logger.Warn("Failed to post notice", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// dm sends a private message to the member, best-effort.
func (h *ReviewHandler) dm(ctx context.Context, memberID, text string) {
	channelID, err := h.adapter.OpenPrivateChannel(ctx, memberID)
	if err == nil {
		_, err = h.adapter.SendMessage(ctx, channelID, text)
	}
	if err != nil {
		h.logger.Info("Member not notified privately", zap.String("member_id", memberID), zap.Error(err))
	}
}

func (h *ReviewHandler) guildName(ctx context.Context, guildID string) string {
	name, err := h.adapter.GuildName(ctx, guildID)
	if err != nil || name == "" {
		return "the server"
	}
	return name
}

func (h *ReviewHandler) authorize(ctx context.Context, d Decision, action string) error {
	moderator, err := h.adapter.FetchMember(ctx, d.GuildID, d.ModeratorID)
	if err == nil && h.authorizer.Allowed(ctx, moderator) {
		return nil
	}
	h.say(ctx, d.ChannelID, fmt.Sprintf("<@%s> You are not allowed to %s a verification.", d.ModeratorID, action))
	return ErrUnauthorized
}

// checkOpen reports ErrAlreadyProcessed with a notice when the record no
// longer accepts decisions.
func (h *ReviewHandler) checkOpen(ctx context.Context, d Decision) error {
	rec, _ := h.repo.Get(d.TargetID)
	if rec.EffectiveStatus() == StatusAwaitingValidation {
		return nil
	}
	h.say(ctx, d.ChannelID, "This verification has already been processed or cancelled.")
	return fmt.Errorf("member %s is %s: %w", d.TargetID, rec.Status, ErrAlreadyProcessed)
}

func (h *ReviewHandler) claim(ctx context.Context, d Decision) error {
	err := h.repo.Claim(d.TargetID)
	if errors.Is(err, ErrAlreadyProcessed) {
		h.say(ctx, d.ChannelID, "This verification has already been processed or cancelled.")
		return err
	}
	if err != nil {
		h.logger.Warn("Claim not persisted", zap.String("member_id", d.TargetID), zap.Error(err))
	}
	return nil
}

func (h *ReviewHandler) fetchTarget(ctx context.Context, d Decision) (platform.Member, error) {
	target, err := h.adapter.FetchMember(ctx, d.GuildID, d.TargetID)
	if err != nil {
		h.say(ctx, d.ChannelID, "Target member not found on the server.")
		return platform.Member{}, fmt.Errorf("member %s: %v: %w", d.TargetID, err, ErrMemberNotFound)
	}
	return target, nil
}

// waitForModerator asks prompt and waits for the moderator's next message
// in the decision channel.
func (h *ReviewHandler) waitForModerator(ctx context.Context, d Decision, prompt string, timeout time.Duration) (string, bool) {
	sub := h.waiter.Subscribe(platform.MessageFilter{AuthorID: d.ModeratorID, ChannelID: d.ChannelID})
	defer sub.Close()

	h.say(ctx, d.ChannelID, prompt)
	msg, err := sub.Next(ctx, timeout)
	if err != nil {
		return "", false
	}
	return msg.Content, true
}

// grant resolves ref and adds it to the member through the retrying
// operation. It returns the role name on success.
func (h *ReviewHandler) grant(ctx context.Context, d Decision, ref string) (string, bool) {
	role, err := h.resolver.ResolveInGuild(ctx, d.GuildID, ref)
	if err != nil {
		h.logger.Warn("Role not resolved", zap.String("role", ref), zap.Error(err))
		return "", false
	}
	ok := h.ops.Perform(ctx, func(ctx context.Context) error {
		return h.adapter.AddRole(ctx, d.GuildID, d.TargetID, role.ID)
	}, "add role "+role.Name, d.ChannelID)
	return role.Name, ok
}

func (h *ReviewHandler) revoke(ctx context.Context, d Decision, ref string) bool {
	role, err := h.resolver.ResolveInGuild(ctx, d.GuildID, ref)
	if err != nil {
		h.logger.Warn("Role not resolved", zap.String("role", ref), zap.Error(err))
		return false
	}
	return h.ops.Perform(ctx, func(ctx context.Context) error {
		return h.adapter.RemoveRole(ctx, d.GuildID, d.TargetID, role.ID)
	}, "remove role "+role.Name, d.ChannelID)
}

func (h *ReviewHandler) finish(ctx context.Context, d Decision, status, reason string, mutate func(*Record)) {
	if _, err := h.repo.Complete(d.TargetID, status, mutate); err != nil {
		h.logger.Error("Decision not recorded", zap.String("member_id", d.TargetID), zap.String("status", status), zap.Error(err))
	}
	if err := h.audit.Record(ctx, NewDecisionLog(d, status, reason, map[string]any{"channel_id": d.ChannelID})); err != nil {
		h.logger.Warn("Decision not audited", zap.String("member_id", d.TargetID), zap.Error(err))
	}
}

func (h *ReviewHandler) notify(text string) {
	if h.notifier != nil && !h.notifier.Enqueue(text) {
		h.logger.Warn("Decision not queued for notification")
	}
}

func (h *ReviewHandler) emit(eventType string, d Decision, detail map[string]string) {
	h.publisher.Publish(notifications.Event{
		Type:      eventType,
		MemberID:  d.TargetID,
		ActorID:   d.ModeratorID,
		ChannelID: d.ChannelID,
		Detail:    detail,
		Timestamp: h.now(),
	})
}

// Accept grants the verified role, then optionally the age and artist
// roles chosen by the same moderator.
func (h *ReviewHandler) Accept(ctx context.Context, d Decision) error {
	logger := h.logger.With(zap.String("member_id", d.TargetID), zap.String("moderator_id", d.ModeratorID))

	if err := h.authorize(ctx, d, "accept"); err != nil {
		return err
	}
	if err := h.claim(ctx, d); err != nil {
		return err
	}

	target, err := h.fetchTarget(ctx, d)
	if err != nil {
		if relErr := h.repo.Release(d.TargetID); relErr != nil {
			logger.Warn("Claim not released", zap.Error(relErr))
		}
		return err
	}

	if ref := h.config.Roles.Unverified; ref != "" {
		h.revoke(ctx, d, ref)
	}
	if ref := h.config.Roles.Verified; ref != "" {
		h.grant(ctx, d, ref)
	}

	guild := h.guildName(ctx, d.GuildID)
	h.dm(ctx, target.ID, fmt.Sprintf("Congratulations! Your verification on %s was accepted and your role was granted.", guild))
	h.say(ctx, d.ChannelID, fmt.Sprintf("✅ Verification accepted by <@%s>. Role applied to <@%s>.", d.ModeratorID, target.ID))

	applied := h.optionalRoles(ctx, d)
	summary := "no additional role"
	if len(applied) > 0 {
		summary = strings.Join(applied, ", ")
	}
	h.say(ctx, d.ChannelID, fmt.Sprintf("Verification complete. Roles applied for <@%s>: %s", target.ID, summary))

	now := h.now()
	h.finish(ctx, d, StatusAccepted, "", func(r *Record) {
		r.AcceptedAt = NewTimestamp(now)
		r.AcceptedBy = d.ModeratorID
	})
	h.notify(fmt.Sprintf("✅ Verification ACCEPTED\nMember: %s (%s)\nBy: %s\nGuild: %s", memberTag(target), target.ID, d.ModeratorID, d.GuildID))
	h.emit(notifications.EventVerificationAccepted, d, map[string]string{"roles": strings.Join(applied, ",")})
	logger.Info("Verification accepted", zap.Strings("extra_roles", applied))
	return nil
}

func (h *ReviewHandler) optionalRoles(ctx context.Context, d Decision) []string {
	var applied []string
	adult, minor, artist := h.config.Roles.Adult, h.config.Roles.Minor, h.config.Roles.Artist

	if adult != "" || minor != "" {
		prompt := fmt.Sprintf("<@%s> Is the member an **adult** or a **minor**? (adult / minor) You have %s.", d.ModeratorID, humanDuration(h.config.PromptTimeout))
		reply, ok := h.waitForModerator(ctx, d, prompt, h.config.PromptTimeout)
		if !ok {
			h.say(ctx, d.ChannelID, "No answer. Age role not assigned.")
		} else {
			answer := strings.ToLower(strings.TrimSpace(reply))
			var ref string
			switch {
			case hasAnyPrefix(answer, "adult", "majeur"):
				ref = adult
			case hasAnyPrefix(answer, "minor", "mineur"):
				ref = minor
			}
			if ref != "" {
				if name, ok := h.grant(ctx, d, ref); ok {
					applied = append(applied, name)
				}
			}
		}
	}

	if artist != "" {
		prompt := fmt.Sprintf("<@%s> Give the artist role to <@%s>? (yes / no) You have %s.", d.ModeratorID, d.TargetID, humanDuration(h.config.PromptTimeout))
		reply, ok := h.waitForModerator(ctx, d, prompt, h.config.PromptTimeout)
		if !ok {
			h.say(ctx, d.ChannelID, "No answer. Artist role not assigned.")
		} else if hasAnyPrefix(strings.ToLower(strings.TrimSpace(reply)), "yes", "oui") {
			if name, ok := h.grant(ctx, d, artist); ok {
				applied = append(applied, name)
				h.say(ctx, d.ChannelID, fmt.Sprintf("Role \"%s\" given to <@%s>.", name, d.TargetID))
			}
		}
	}
	return applied
}

// Reject asks the moderator for a justification, then records the
// rejection and forwards the reason to the member. Without a reply the
// record is left unchanged.
func (h *ReviewHandler) Reject(ctx context.Context, d Decision) error {
	if err := h.authorize(ctx, d, "reject"); err != nil {
		return err
	}
	if err := h.checkOpen(ctx, d); err != nil {
		return err
	}
	target, err := h.fetchTarget(ctx, d)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("<@%s> Please give a justification for the rejection by replying here. You have %s.", d.ModeratorID, humanDuration(h.config.JustificationTimeout))
	reason, ok := h.waitForModerator(ctx, d, prompt, h.config.JustificationTimeout)
	if !ok {
		h.say(ctx, d.ChannelID, "No justification given. Rejection abandoned.")
		return ErrNoJustification
	}

	if err := h.claim(ctx, d); err != nil {
		return err
	}

	h.dm(ctx, target.ID, fmt.Sprintf("Your verification on %s was rejected. Reason given by the team:\n\n%s", h.guildName(ctx, d.GuildID), reason))

	now := h.now()
	h.finish(ctx, d, StatusRejected, reason, func(r *Record) {
		r.RejectedAt = NewTimestamp(now)
		r.RejectedBy = d.ModeratorID
		r.RejectedReason = reason
	})
	h.say(ctx, d.ChannelID, fmt.Sprintf("Rejection recorded by <@%s> and sent to the member.", d.ModeratorID))
	h.notify(fmt.Sprintf("❌ Verification REJECTED\nMember: %s (%s)\nBy: %s\nReason: %s", memberTag(target), target.ID, d.ModeratorID, reason))
	h.emit(notifications.EventVerificationRejected, d, map[string]string{"reason": reason})
	h.logger.Info("Verification rejected", zap.String("member_id", d.TargetID), zap.String("moderator_id", d.ModeratorID))
	return nil
}

// Cancel asks for a reason, strips every role from the member, restores
// the unverified role and records the cancellation. Without a reply the
// cancellation is abandoned.
func (h *ReviewHandler) Cancel(ctx context.Context, d Decision) error {
	if err := h.authorize(ctx, d, "cancel"); err != nil {
		return err
	}
	if err := h.checkOpen(ctx, d); err != nil {
		return err
	}
	target, err := h.fetchTarget(ctx, d)
	if err != nil {
		return err
	}

	prompt := fmt.Sprintf("<@%s> You are about to cancel the verification and remove ALL roles from <@%s>. Type the reason within %s to notify the member.",
		d.ModeratorID, target.ID, humanDuration(h.config.JustificationTimeout))
	reason, ok := h.waitForModerator(ctx, d, prompt, h.config.JustificationTimeout)
	if !ok {
		h.say(ctx, d.ChannelID, "No reason given. Cancellation abandoned.")
		return ErrNoJustification
	}
	if strings.TrimSpace(reason) == "" {
		reason = "No reason given"
	}

	if err := h.claim(ctx, d); err != nil {
		return err
	}

	h.stripRoles(ctx, d, target)
	if ref := h.config.Roles.Unverified; ref != "" {
		h.grant(ctx, d, ref)
	}

	h.dm(ctx, target.ID, fmt.Sprintf("Your verification on %s was cancelled by the moderation team. Reason given:\n\n%s", h.guildName(ctx, d.GuildID), reason))

	now := h.now()
	h.finish(ctx, d, StatusCancelled, reason, func(r *Record) {
		r.CancelledAt = NewTimestamp(now)
		r.CancelledBy = d.ModeratorID
		r.CancelledReason = reason
	})
	h.say(ctx, d.ChannelID, fmt.Sprintf("✅ Verification cancelled by <@%s>; reason sent to the member.", d.ModeratorID))
	h.notify(fmt.Sprintf("❌ Verification CANCELLED\nMember: %s (%s)\nBy: %s\nReason: %s", memberTag(target), target.ID, d.ModeratorID, reason))
	h.emit(notifications.EventVerificationCancelled, d, map[string]string{"reason": reason})
	h.logger.Info("Verification cancelled", zap.String("member_id", d.TargetID), zap.String("moderator_id", d.ModeratorID))
	return nil
}

// stripRoles clears the member's roles in one call, falling back to one
// removal per role.
func (h *ReviewHandler) stripRoles(ctx context.Context, d Decision, target platform.Member) {
	ok := h.ops.Perform(ctx, func(ctx context.Context) error {
		return h.adapter.SetMemberRoles(ctx, d.GuildID, target.ID, nil)
	}, "remove all roles from "+target.ID, "")
	if ok {
		return
	}

	h.logger.Warn("Bulk role removal failed, removing roles one by one", zap.String("member_id", target.ID))
	for _, roleID := range target.RoleIDs {
		if roleID == d.GuildID {
			// the default role cannot be removed
			continue
		}
		roleID := roleID
		h.ops.Perform(ctx, func(ctx context.Context) error {
			return h.adapter.RemoveRole(ctx, d.GuildID, target.ID, roleID)
		}, "remove role "+roleID, d.ChannelID)
	}
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
