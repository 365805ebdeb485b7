package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/platform/fake"
)

var guildRoles = []platform.Role{
	{ID: "111", Name: "Non vérifié"},
	{ID: "222", Name: "Peluche"},
	{ID: "333", Name: "Artiste"},
	{ID: "444", Name: "2024"},
}

func TestParseReference(t *testing.T) {
	assert.Equal(t, "333", ParseReference("<@&333>"))
	assert.Equal(t, "Artiste", ParseReference("  Artiste "))
	assert.Equal(t, "<@333>", ParseReference("<@333>"))
}

func TestResolve(t *testing.T) {
	cases := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"222", "222", true},
		{"<@&333>", "333", true},
		{"Peluche", "222", true},
		{"peluche", "222", true},
		{"2024", "444", true},
		{"999", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			role, ok := Resolve(guildRoles, tc.ref)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, role.ID)
		})
	}
}

func TestResolverResolveInGuild(t *testing.T) {
	adapter := fake.NewAdapter()
	for _, r := range guildRoles {
		adapter.DefineRole("g1", r)
	}
	resolver := NewResolver(adapter)

	role, err := resolver.ResolveInGuild(context.Background(), "g1", "Artiste")
	require.NoError(t, err)
	assert.Equal(t, "333", role.ID)

	_, err = resolver.ResolveInGuild(context.Background(), "g1", "Missing")
	assert.True(t, errors.Is(err, platform.ErrNotFound))

	adapter.FailNext("ListRoles", platform.ErrForbidden)
	_, err = resolver.ResolveInGuild(context.Background(), "g1", "Artiste")
	assert.ErrorIs(t, err, platform.ErrForbidden)
}

func TestMemberHolds(t *testing.T) {
	adapter := fake.NewAdapter()
	for _, r := range guildRoles {
		adapter.DefineRole("g1", r)
	}
	resolver := NewResolver(adapter)
	member := platform.Member{ID: "u1", GuildID: "g1", RoleIDs: []string{"222"}}

	assert.True(t, resolver.MemberHolds(context.Background(), member, "Peluche"))
	assert.False(t, resolver.MemberHolds(context.Background(), member, "Artiste"))
	assert.False(t, resolver.MemberHolds(context.Background(), member, ""))
}
