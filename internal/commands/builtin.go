package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"community-portal/verification-backend/internal/notifications"
	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/retry"
	"community-portal/verification-backend/internal/verification"
	"community-portal/verification-backend/pkg/storage"
	"community-portal/verification-backend/pkg/textsplit"
)

const (
	listChunkSize = 1800
	listItemSize  = 1000
)

// VerificationRequester starts member-requested verifications.
type VerificationRequester interface {
	OnVerificationRequest(ctx context.Context, member platform.Member) error
}

// DestinationResolver locates the review forum.
type DestinationResolver interface {
	ResolveDestination(ctx context.Context) (platform.Channel, error)
}

// Deps are the services the built-in commands act on.
type Deps struct {
	Adapter     platform.Adapter
	Queue       *notifications.Queue
	Requests    VerificationRequester
	Destination DestinationResolver
	Authorizer  *verification.Authorizer
	Repo        verification.Repository
	Backuper    *verification.Backuper
	Ops         *retry.Operation
	// DataDir receives thread backups under thread-backups/.
	DataDir string
	// OwnerID may use say without being an administrator.
	OwnerID string
	Logger  *zap.Logger
}

type builtins struct {
	Deps
}

// RegisterBuiltins registers every command the bot ships with.
func RegisterBuiltins(r *Registry, deps Deps) error {
	b := &builtins{Deps: deps}
	for _, cmd := range []Command{
		{Name: "ping", Description: "Replies pong 🏓", Handler: b.ping},
		{Name: "liste", Description: "Lists the messages waiting in the notification queue (administrators)", Handler: b.list},
		{Name: "flush-telegram", Description: "Sends the notification queue now (administrators)", Handler: b.flushQueue},
		{Name: "testtg", Description: "Queues a test notification (administrators)", Handler: b.testNotification},
		{Name: "msgverif", Description: "Posts the verification request notice", Handler: b.postNotice},
		{Name: "verif", Description: "Receive the verification questions in DM", Handler: b.requestVerification},
		{Name: "flushforum", Description: "Backs up and deletes every verification thread, then clears the store", Handler: b.flushForum},
		{
			Name:        "say",
			Description: "Makes the bot say something",
			Options: []Option{
				{Name: "message", Description: "Text to post", Type: OptionString, Required: true},
				{Name: "as_message", Description: "Post as a plain channel message", Type: OptionBoolean},
			},
			Handler: b.say,
		},
	} {
		if err := r.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (b *builtins) ping(ctx context.Context, in Interaction) (Reply, error) {
	return Public("Pong 🏓"), nil
}

func (b *builtins) list(ctx context.Context, in Interaction) (Reply, error) {
	if !in.Member.IsAdministrator() {
		return Private("You must be an administrator to use this command."), nil
	}
	pending := b.Queue.Snapshot()
	if len(pending) == 0 {
		return Private("✅ No message waiting in the notification queue."), nil
	}

	lines := make([]string, len(pending))
	for i, msg := range pending {
		head, _ := textsplit.Head(strings.ReplaceAll(msg, "\n", " "), listItemSize)
		lines[i] = fmt.Sprintf("%d. %s", i+1, head)
	}
	return Reply{Messages: textsplit.Split(strings.Join(lines, "\n"), listChunkSize), Ephemeral: true}, nil
}

func (b *builtins) flushQueue(ctx context.Context, in Interaction) (Reply, error) {
	if !in.Member.IsAdministrator() {
		return Private("You must be an administrator to use this command."), nil
	}
	if !b.Queue.Enabled() {
		return Private("The notification queue is not configured on this server."), nil
	}
	if err := b.Queue.Flush(ctx); err != nil {
		return Private(fmt.Sprintf("Notification flush failed: %v", err)), nil
	}
	return Private(fmt.Sprintf("Notification queue flushed, %d message(s) pending.", b.Queue.Len())), nil
}

func (b *builtins) testNotification(ctx context.Context, in Interaction) (Reply, error) {
	if !in.Member.IsAdministrator() {
		return Private("You must be an administrator to use this command."), nil
	}
	text := fmt.Sprintf("Notification test from Discord by %s", in.Member.DisplayName())
	if !b.Queue.Enqueue(text) {
		return Private("Failed: notifications are not configured or the message could not be stored. Check TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID."), nil
	}
	return Private("Test message queued for the notification channel."), nil
}

func (b *builtins) postNotice(ctx context.Context, in Interaction) (Reply, error) {
	if !b.Authorizer.Allowed(ctx, in.Member) {
		return Private("You are not allowed to use this command."), nil
	}
	if in.ChannelID == "" {
		return Private("Cannot post the verification notice here."), nil
	}
	notice := "Use the `/verif` command to receive the verification questions in DM."
	if _, err := b.Adapter.SendMessage(ctx, in.ChannelID, notice); err != nil {
		b.Logger.Warn("Verification notice not posted", zap.String("channel_id", in.ChannelID), zap.Error(err))
		return Private("Error while posting the verification notice."), nil
	}
	return Private("Verification notice posted."), nil
}

func (b *builtins) requestVerification(ctx context.Context, in Interaction) (Reply, error) {
	if in.GuildID == "" {
		return Private("This command only works in a server."), nil
	}
	member := in.Member
	member.GuildID = in.GuildID

	err := b.Requests.OnVerificationRequest(ctx, member)
	var cooldown *verification.CooldownError
	switch {
	case errors.As(err, &cooldown):
		return Private(fmt.Sprintf("Please wait %s before asking again.", cooldown.Remaining.Round(time.Second))), nil
	case err != nil:
		return Reply{}, err
	}
	return Private("Verification started, check your DMs."), nil
}

type threadBackup struct {
	ThreadID   string `json:"threadId"`
	ThreadName string `json:"threadName"`
	Starter    string `json:"starter"`
}

func (b *builtins) flushForum(ctx context.Context, in Interaction) (Reply, error) {
	if !b.Authorizer.Allowed(ctx, in.Member) {
		return Private("You need the verifier role or administrator rights to use this command."), nil
	}
	forum, err := b.Destination.ResolveDestination(ctx)
	if err != nil {
		return Private("Cannot locate the verification forum."), nil
	}

	backup, err := b.Backuper.Backup(ctx)
	if err != nil && backup.LocalPath == "" {
		b.Logger.Error("Store backup failed, forum left untouched", zap.Error(err))
		return Private("Error: could not back up the verification store. Operation cancelled."), nil
	}
	if err != nil {
		b.Logger.Warn("Store backup not uploaded", zap.Error(err))
	}

	threads, err := b.Adapter.ListThreads(ctx, forum.ID)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to list forum threads: %w", err)
	}

	deleted := 0
	for _, thread := range threads {
		b.backupThread(ctx, thread)
		if b.Ops.Perform(ctx, func(ctx context.Context) error {
			return b.Adapter.DeleteChannel(ctx, thread.ID)
		}, "delete thread "+thread.Name, "") {
			deleted++
		}
	}

	if err := b.Repo.Reset(); err != nil {
		b.Logger.Error("Failed to persist cleared store", zap.Error(err))
	}
	b.Logger.Info("Verification forum flushed",
		zap.String("forum_id", forum.ID),
		zap.Int("threads", len(threads)),
		zap.Int("deleted", deleted),
		zap.String("backup", backup.LocalPath))
	return Public(fmt.Sprintf("Forum flushed: %d/%d thread(s) deleted. Store backup: %s", deleted, len(threads), filepath.Base(backup.LocalPath))), nil
}

// backupThread stores the thread's starter message before deletion.
// Failures are logged and do not block the deletion.
func (b *builtins) backupThread(ctx context.Context, thread platform.Channel) {
	entry := threadBackup{ThreadID: thread.ID, ThreadName: thread.Name}
	if starter, err := b.Adapter.FetchMessage(ctx, thread.ID, thread.ID); err == nil {
		entry.Starter = starter.Content
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return
	}
	name := thread.ID + ".json"
	local := filepath.Join(b.DataDir, "thread-backups", name)
	if err := storage.WriteFileAtomic(local, data, 0o644); err != nil {
		b.Logger.Warn("Thread backup not written", zap.String("thread_id", thread.ID), zap.Error(err))
		return
	}
	if _, err := b.Backuper.UploadFile(ctx, local, "thread-backups/"+name); err != nil {
		b.Logger.Warn("Thread backup not uploaded", zap.String("thread_id", thread.ID), zap.Error(err))
	}
}

func (b *builtins) say(ctx context.Context, in Interaction) (Reply, error) {
	isOwner := b.OwnerID != "" && in.Member.ID == b.OwnerID
	if !isOwner && !in.Member.IsAdministrator() {
		return Private("You are not allowed to use this command."), nil
	}
	text := in.String("message")
	if strings.TrimSpace(text) == "" {
		return Private("Nothing to say."), nil
	}
	if !in.Bool("as_message") {
		return Public(text), nil
	}
	if _, err := b.Adapter.SendMessage(ctx, in.ChannelID, text); err != nil {
		return Private(fmt.Sprintf("Error while sending: %v", err)), nil
	}
	return Private("Message sent."), nil
}
