// Package roles resolves configured role references against a guild's
// role set.
package roles

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"community-portal/verification-backend/internal/platform"
)

var mentionPattern = regexp.MustCompile(`^<@&(\d+)>$`)

// ParseReference strips the role mention syntax (<@&id>) and surrounding
// whitespace from ref.
func ParseReference(ref string) string {
	ref = strings.TrimSpace(ref)
	if m := mentionPattern.FindStringSubmatch(ref); m != nil {
		return m[1]
	}
	return ref
}

func isNumeric(s string) bool {
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

// Resolve finds the role referenced by ref: a numeric id, a role mention or
// a display name (exact match first, then case-insensitive).
func Resolve(roles []platform.Role, ref string) (platform.Role, bool) {
	ref = ParseReference(ref)
	if ref == "" {
		return platform.Role{}, false
	}

	if isNumeric(ref) {
		for _, r := range roles {
			if r.ID == ref {
				return r, true
			}
		}
	}
	for _, r := range roles {
		if r.Name == ref {
			return r, true
		}
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, ref) {
			return r, true
		}
	}
	return platform.Role{}, false
}

// Resolver looks roles up through the platform.
type Resolver struct {
	adapter platform.Adapter
}

func NewResolver(adapter platform.Adapter) *Resolver {
	return &Resolver{adapter: adapter}
}

// ResolveInGuild lists the guild's roles and resolves ref among them.
func (r *Resolver) ResolveInGuild(ctx context.Context, guildID, ref string) (platform.Role, error) {
	if strings.TrimSpace(ref) == "" {
		return platform.Role{}, fmt.Errorf("empty role reference: %w", platform.ErrNotFound)
	}
	roles, err := r.adapter.ListRoles(ctx, guildID)
	if err != nil {
		return platform.Role{}, fmt.Errorf("failed to list roles of guild %s: %w", guildID, err)
	}
	role, ok := Resolve(roles, ref)
	if !ok {
		return platform.Role{}, fmt.Errorf("role %q: %w", ref, platform.ErrNotFound)
	}
	return role, nil
}

// MemberHolds reports whether member holds the role referenced by ref.
func (r *Resolver) MemberHolds(ctx context.Context, member platform.Member, ref string) bool {
	role, err := r.ResolveInGuild(ctx, member.GuildID, ref)
	if err != nil {
		return false
	}
	return member.HasRole(role.ID)
}
