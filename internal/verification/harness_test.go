package verification

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/platform/fake"
	"community-portal/verification-backend/internal/retry"
	"community-portal/verification-backend/internal/roles"
)

const (
	guildID     = "g1"
	forumID     = "900"
	threadID    = "901"
	targetID    = "123456789012345678"
	moderatorID = "555"
	adminID     = "556"
	strangerID  = "557"

	roleUnverified = "100"
	roleVerified   = "200"
	roleAdult      = "300"
	roleMinor      = "400"
	roleArtist     = "500"
	roleVerifier   = "600"
	roleOther      = "700"
)

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Enqueue(text string) bool {
	if text == "" {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return true
}

func (n *recordingNotifier) Texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

// replyRule answers the first bot message containing trigger in channel.
type replyRule struct {
	channelID string
	trigger   string
	reply     platform.Message
	used      bool
}

type harness struct {
	t           *testing.T
	ctx         context.Context
	adapter     *fake.Adapter
	waiter      *platform.Waiter
	repo        *FileRepository
	notifier    *recordingNotifier
	audit       *MemoryAuditLog
	coordinator *Coordinator
	reviews     *ReviewHandler
	listener    *Listener
	config      Config

	mu    sync.Mutex
	rules []*replyRule
}

func testConfig() Config {
	return Config{
		Questions:   append([]string(nil), DefaultQuestions...),
		Destination: forumID,
		Roles: RoleConfig{
			Unverified: roleUnverified,
			Verified:   "Peluche",
			Adult:      roleAdult,
			Minor:      roleMinor,
			Artist:     "<@&" + roleArtist + ">",
			Verifier:   "Verifier",
		},
		AnswerTimeout:        100 * time.Millisecond,
		JustificationTimeout: 100 * time.Millisecond,
		PromptTimeout:        100 * time.Millisecond,
		RequestCooldown:      3 * time.Minute,
	}
}

func newHarness(t *testing.T, configure func(*Config)) *harness {
	t.Helper()

	config := testConfig()
	if configure != nil {
		configure(&config)
	}

	adapter := fake.NewAdapter()
	adapter.SetGuildName(guildID, "Plush Club")
	for _, role := range []platform.Role{
		{ID: roleUnverified, Name: "Non vérifié"},
		{ID: roleVerified, Name: "Peluche"},
		{ID: roleAdult, Name: "Adult"},
		{ID: roleMinor, Name: "Minor"},
		{ID: roleArtist, Name: "Artiste"},
		{ID: roleVerifier, Name: "Verifier"},
		{ID: roleOther, Name: "2024"},
	} {
		adapter.DefineRole(guildID, role)
	}
	adapter.AddChannel(platform.Channel{ID: forumID, GuildID: guildID, Name: "verifications", Kind: platform.ChannelKindForum})
	adapter.AddChannel(platform.Channel{ID: threadID, GuildID: guildID, ParentID: forumID, Name: "newbie", Topic: TopicTag(targetID), Kind: platform.ChannelKindThread})
	adapter.AddMember(platform.Member{ID: targetID, GuildID: guildID, Username: "newbie", RoleIDs: []string{roleUnverified}})
	adapter.AddMember(platform.Member{ID: moderatorID, GuildID: guildID, Username: "mod", RoleIDs: []string{roleVerifier}})
	adapter.AddMember(platform.Member{ID: adminID, GuildID: guildID, Username: "admin", Permissions: platform.PermissionAdministrator})
	adapter.AddMember(platform.Member{ID: strangerID, GuildID: guildID, Username: "stranger"})

	logger := zap.NewNop()
	waiter := platform.NewWaiter()
	repo := NewFileRepository(t.TempDir()+"/verifications.json", logger)
	resolver := roles.NewResolver(adapter)
	ops := retry.New(adapter, logger, time.Millisecond, time.Millisecond, time.Millisecond)
	notifier := &recordingNotifier{}
	audit := NewMemoryAuditLog()

	h := &harness{
		t:        t,
		ctx:      context.Background(),
		adapter:  adapter,
		waiter:   waiter,
		repo:     repo,
		notifier: notifier,
		audit:    audit,
		config:   config,
	}
	h.coordinator = NewCoordinator(CoordinatorDeps{
		Adapter:  adapter,
		Waiter:   waiter,
		Repo:     repo,
		Resolver: resolver,
		Ops:      ops,
		Notifier: notifier,
		Logger:   logger,
	}, config)
	h.reviews = NewReviewHandler(ReviewDeps{
		Adapter:    adapter,
		Waiter:     waiter,
		Repo:       repo,
		Resolver:   resolver,
		Authorizer: NewAuthorizer(resolver, config.Roles.Verifier),
		Ops:        ops,
		Notifier:   notifier,
		Audit:      audit,
		Logger:     logger,
	}, config)
	h.listener = NewListener(h.coordinator, h.reviews, waiter, NewReactionTargetResolver(adapter, repo), "bot", logger)
	adapter.OnSend = h.onSend
	return h
}

func (h *harness) onSend(msg platform.Message) {
	h.mu.Lock()
	var reply *platform.Message
	for _, rule := range h.rules {
		if rule.used || rule.channelID != msg.ChannelID || !strings.Contains(msg.Content, rule.trigger) {
			continue
		}
		rule.used = true
		r := rule.reply
		reply = &r
		break
	}
	h.mu.Unlock()

	if reply != nil {
		h.listener.OnMessage(h.ctx, *reply)
	}
}

// replyWhen makes authorID answer text in channelID once a bot message
// containing trigger is posted there.
func (h *harness) replyWhen(channelID, trigger, authorID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := platform.Message{
		ID:        "reply-" + trigger,
		ChannelID: channelID,
		AuthorID:  authorID,
		Content:   text,
	}
	if !strings.HasPrefix(channelID, "dm-") {
		msg.GuildID = guildID
	}
	h.rules = append(h.rules, &replyRule{channelID: channelID, trigger: trigger, reply: msg})
}

func (h *harness) seedAwaiting() {
	h.t.Helper()
	err := h.repo.Put(Record{
		MemberID:           targetID,
		GuildID:            guildID,
		ThreadID:           threadID,
		ChannelID:          forumID,
		MessageID:          threadID,
		Status:             StatusAwaitingValidation,
		AwaitingValidation: true,
		CreatedAt:          NewTimestamp(time.Now()),
	})
	if err != nil {
		h.t.Fatalf("seed record: %v", err)
	}
}

func (h *harness) decision(moderator string) Decision {
	return Decision{GuildID: guildID, ChannelID: threadID, ModeratorID: moderator, TargetID: targetID}
}

func (h *harness) status() string {
	rec, _ := h.repo.Get(targetID)
	return rec.EffectiveStatus()
}

func containsText(texts []string, substr string) bool {
	for _, t := range texts {
		if strings.Contains(t, substr) {
			return true
		}
	}
	return false
}
