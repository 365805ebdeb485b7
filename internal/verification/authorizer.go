package verification

import (
	"context"

	"community-portal/verification-backend/internal/platform"
	"community-portal/verification-backend/internal/roles"
)

// Authorizer decides who may review verifications: administrators,
// members able to manage the guild, and holders of the verifier role.
type Authorizer struct {
	resolver     *roles.Resolver
	verifierRole string
}

func NewAuthorizer(resolver *roles.Resolver, verifierRole string) *Authorizer {
	return &Authorizer{
		resolver:     resolver,
		verifierRole: verifierRole,
	}
}

// Allowed reports whether member may accept, reject or cancel.
func (a *Authorizer) Allowed(ctx context.Context, member platform.Member) bool {
	if member.CanManageGuild() {
		return true
	}
	if a.verifierRole == "" {
		return false
	}
	return a.resolver.MemberHolds(ctx, member, a.verifierRole)
}
