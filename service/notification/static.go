package notification

import (
	"context"
	"strings"
)

// StaticResolver resolves approvers from a fixed directory. It backs tests
// and embedded deployments; production platforms supply their own Resolver
// over the directory service.
type StaticResolver struct {
	users map[string]ApproverInfo
	roles map[string][]string // role -> user ids
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		users: make(map[string]ApproverInfo),
		roles: make(map[string][]string),
	}
}

// AddUser registers a recipient.
func (r *StaticResolver) AddUser(info ApproverInfo) *StaticResolver {
	r.users[info.UserID] = info
	return r
}

// AddRole maps a role to explicit user ids.
func (r *StaticResolver) AddRole(role string, userIDs ...string) *StaticResolver {
	key := strings.ToLower(role)
	r.roles[key] = append(r.roles[key], userIDs...)
	return r
}

// ResolveApprovers expands roles and user lists into unique recipients,
// preserving first-seen order. Unknown user ids resolve to a bare
// ApproverInfo so that delivery can still be attempted on default channels.
func (r *StaticResolver) ResolveApprovers(_ context.Context, roles, users []string, _ string) ([]ApproverInfo, error) {
	var out []ApproverInfo
	seen := make(map[string]bool)
	appendUser := func(userID string) {
		if userID == "" || seen[userID] {
			return
		}
		seen[userID] = true
		if info, ok := r.users[userID]; ok {
			out = append(out, info)
			return
		}
		out = append(out, ApproverInfo{UserID: userID})
	}
	for _, role := range roles {
		for _, userID := range r.roles[strings.ToLower(role)] {
			appendUser(userID)
		}
	}
	for _, userID := range users {
		appendUser(userID)
	}
	return out, nil
}

var _ Resolver = (*StaticResolver)(nil)
