// Package fake provides an in-memory platform.Adapter for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"community-portal/verification-backend/internal/platform"
)

// RoleOp records a role mutation.
type RoleOp struct {
	Op      string
	GuildID string
	UserID  string
	RoleID  string
	RoleIDs []string
}

// Adapter is a goroutine-safe in-memory platform.
type Adapter struct {
	mu sync.Mutex

	members    map[string]platform.Member
	roles      map[string][]platform.Role
	channels   map[string]platform.Channel
	messages   map[string]platform.Message
	guildNames map[string]string
	dmClosed   map[string]bool
	failures   map[string][]error

	sent    []platform.Message
	roleOps []RoleOp
	deleted []string
	nextID  int

	// ThreadsUnsupported makes CreateThread return platform.ErrUnsupported.
	ThreadsUnsupported bool
	// ThreadStartFails posts the first chunk in the parent channel and
	// returns a *platform.StarterPostedError.
	ThreadStartFails bool
	// OnSend runs after every successful SendMessage/CreateThread, outside
	// the adapter lock.
	OnSend func(platform.Message)
}

func NewAdapter() *Adapter {
	return &Adapter{
		members:    make(map[string]platform.Member),
		roles:      make(map[string][]platform.Role),
		channels:   make(map[string]platform.Channel),
		messages:   make(map[string]platform.Message),
		guildNames: make(map[string]string),
		dmClosed:   make(map[string]bool),
		failures:   make(map[string][]error),
		nextID:     1000,
	}
}

func (a *Adapter) AddMember(m platform.Member) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.members[m.ID] = m
}

// DefineRole seeds a guild role.
func (a *Adapter) DefineRole(guildID string, role platform.Role) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.roles[guildID] = append(a.roles[guildID], role)
}

func (a *Adapter) AddChannel(ch platform.Channel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels[ch.ID] = ch
}

func (a *Adapter) AddMessage(msg platform.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages[msg.ID] = msg
}

func (a *Adapter) SetGuildName(guildID, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.guildNames[guildID] = name
}

// CloseDMs makes OpenPrivateChannel fail for userID.
func (a *Adapter) CloseDMs(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dmClosed[userID] = true
}

// FailNext queues errors returned by the next calls of op (method name).
func (a *Adapter) FailNext(op string, errs ...error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures[op] = append(a.failures[op], errs...)
}

// Member returns the current state of a member.
func (a *Adapter) Member(userID string) platform.Member {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.members[userID]
}

// Sent returns every posted message in order.
func (a *Adapter) Sent() []platform.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]platform.Message(nil), a.sent...)
}

// SentTo returns the contents posted to channelID in order.
func (a *Adapter) SentTo(channelID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, m := range a.sent {
		if m.ChannelID == channelID {
			out = append(out, m.Content)
		}
	}
	return out
}

func (a *Adapter) RoleOps() []RoleOp {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]RoleOp(nil), a.roleOps...)
}

func (a *Adapter) Deleted() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.deleted...)
}

// DMChannelID is the private channel id OpenPrivateChannel returns.
func DMChannelID(userID string) string {
	return "dm-" + userID
}

func (a *Adapter) popFailure(op string) error {
	queue := a.failures[op]
	if len(queue) == 0 {
		return nil
	}
	a.failures[op] = queue[1:]
	return queue[0]
}

func (a *Adapter) newID() string {
	a.nextID++
	return strconv.Itoa(a.nextID)
}

func (a *Adapter) OpenPrivateChannel(ctx context.Context, userID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("OpenPrivateChannel"); err != nil {
		return "", err
	}
	if a.dmClosed[userID] {
		return "", fmt.Errorf("cannot open dm with %s: %w", userID, platform.ErrForbidden)
	}
	id := DMChannelID(userID)
	a.channels[id] = platform.Channel{ID: id, Kind: platform.ChannelKindPrivate}
	return id, nil
}

func (a *Adapter) SendMessage(ctx context.Context, channelID, content string) (platform.Message, error) {
	a.mu.Lock()
	if err := a.popFailure("SendMessage"); err != nil {
		a.mu.Unlock()
		return platform.Message{}, err
	}
	ch, ok := a.channels[channelID]
	if !ok {
		a.mu.Unlock()
		return platform.Message{}, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	msg := platform.Message{ID: a.newID(), ChannelID: channelID, GuildID: ch.GuildID, AuthorID: "bot", AuthorBot: true, Content: content}
	a.messages[msg.ID] = msg
	a.sent = append(a.sent, msg)
	hook := a.OnSend
	a.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return msg, nil
}

func (a *Adapter) CreateThread(ctx context.Context, channelID, title, topic, firstChunk string) (platform.Channel, error) {
	a.mu.Lock()
	if a.ThreadsUnsupported {
		a.mu.Unlock()
		return platform.Channel{}, platform.ErrUnsupported
	}
	if a.ThreadStartFails {
		parent := a.channels[channelID]
		msg := platform.Message{ID: a.newID(), ChannelID: channelID, GuildID: parent.GuildID, AuthorID: "bot", AuthorBot: true, Content: firstChunk}
		a.messages[msg.ID] = msg
		a.sent = append(a.sent, msg)
		hook := a.OnSend
		a.mu.Unlock()

		if hook != nil {
			hook(msg)
		}
		return platform.Channel{}, &platform.StarterPostedError{Starter: msg, Err: platform.ErrForbidden}
	}
	if err := a.popFailure("CreateThread"); err != nil {
		a.mu.Unlock()
		return platform.Channel{}, err
	}
	parent, ok := a.channels[channelID]
	if !ok {
		a.mu.Unlock()
		return platform.Channel{}, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	thread := platform.Channel{
		ID:       a.newID(),
		GuildID:  parent.GuildID,
		ParentID: channelID,
		Name:     title,
		Topic:    topic,
		Kind:     platform.ChannelKindThread,
	}
	a.channels[thread.ID] = thread
	// the starter message shares the thread id
	msg := platform.Message{ID: thread.ID, ChannelID: thread.ID, GuildID: parent.GuildID, AuthorID: "bot", AuthorBot: true, Content: firstChunk}
	a.messages[msg.ID] = msg
	a.sent = append(a.sent, msg)
	hook := a.OnSend
	a.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	return thread, nil
}

func (a *Adapter) FetchMember(ctx context.Context, guildID, userID string) (platform.Member, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("FetchMember"); err != nil {
		return platform.Member{}, err
	}
	m, ok := a.members[userID]
	if !ok {
		return platform.Member{}, fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	m.RoleIDs = append([]string(nil), m.RoleIDs...)
	return m, nil
}

func (a *Adapter) ListRoles(ctx context.Context, guildID string) ([]platform.Role, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("ListRoles"); err != nil {
		return nil, err
	}
	return append([]platform.Role(nil), a.roles[guildID]...), nil
}

func (a *Adapter) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("AddRole"); err != nil {
		return err
	}
	m, ok := a.members[userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	if !m.HasRole(roleID) {
		m.RoleIDs = append(m.RoleIDs, roleID)
	}
	a.members[userID] = m
	a.roleOps = append(a.roleOps, RoleOp{Op: "add", GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

func (a *Adapter) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("RemoveRole"); err != nil {
		return err
	}
	m, ok := a.members[userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	kept := m.RoleIDs[:0:0]
	for _, id := range m.RoleIDs {
		if id != roleID {
			kept = append(kept, id)
		}
	}
	m.RoleIDs = kept
	a.members[userID] = m
	a.roleOps = append(a.roleOps, RoleOp{Op: "remove", GuildID: guildID, UserID: userID, RoleID: roleID})
	return nil
}

func (a *Adapter) SetMemberRoles(ctx context.Context, guildID, userID string, roleIDs []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("SetMemberRoles"); err != nil {
		return err
	}
	m, ok := a.members[userID]
	if !ok {
		return fmt.Errorf("member %s: %w", userID, platform.ErrNotFound)
	}
	m.RoleIDs = append([]string(nil), roleIDs...)
	a.members[userID] = m
	a.roleOps = append(a.roleOps, RoleOp{Op: "set", GuildID: guildID, UserID: userID, RoleIDs: append([]string(nil), roleIDs...)})
	return nil
}

func (a *Adapter) FetchChannel(ctx context.Context, channelID string) (platform.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("FetchChannel"); err != nil {
		return platform.Channel{}, err
	}
	ch, ok := a.channels[channelID]
	if !ok {
		return platform.Channel{}, fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	return ch, nil
}

func (a *Adapter) FindChannelByName(ctx context.Context, name string) (platform.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.channels))
	for id := range a.channels {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if a.channels[id].Name == name {
			return a.channels[id], nil
		}
	}
	return platform.Channel{}, fmt.Errorf("channel named %q: %w", name, platform.ErrNotFound)
}

func (a *Adapter) FetchMessage(ctx context.Context, channelID, messageID string) (platform.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("FetchMessage"); err != nil {
		return platform.Message{}, err
	}
	msg, ok := a.messages[messageID]
	if !ok || msg.ChannelID != channelID {
		return platform.Message{}, fmt.Errorf("message %s: %w", messageID, platform.ErrNotFound)
	}
	return msg, nil
}

func (a *Adapter) ListThreads(ctx context.Context, channelID string) ([]platform.Channel, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("ListThreads"); err != nil {
		return nil, err
	}
	var threads []platform.Channel
	for _, ch := range a.channels {
		if ch.Kind == platform.ChannelKindThread && ch.ParentID == channelID {
			threads = append(threads, ch)
		}
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].ID < threads[j].ID })
	return threads, nil
}

func (a *Adapter) DeleteChannel(ctx context.Context, channelID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.popFailure("DeleteChannel"); err != nil {
		return err
	}
	if _, ok := a.channels[channelID]; !ok {
		return fmt.Errorf("channel %s: %w", channelID, platform.ErrNotFound)
	}
	delete(a.channels, channelID)
	a.deleted = append(a.deleted, channelID)
	return nil
}

func (a *Adapter) GuildName(ctx context.Context, guildID string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if name, ok := a.guildNames[guildID]; ok {
		return name, nil
	}
	return "", fmt.Errorf("guild %s: %w", guildID, platform.ErrNotFound)
}

var _ platform.Adapter = (*Adapter)(nil)
