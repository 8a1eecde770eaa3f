// Package history defines the invocation-history contract consumed by the
// approval trigger path. How history is computed is up to the host platform;
// the memory sub-package ships a recorder sufficient for tests and embedded
// deployments.
package history

import (
	"context"
	"time"
)

// Provider supplies invocation facts about an external agent.
type Provider interface {
	// InvocationCount returns how many times the user invoked the agent
	// within the trailing window.
	InvocationCount(ctx context.Context, agentID, userID, organizationID string, window time.Duration) (int, error)

	// IsFirstInvocation reports whether the user has never invoked the
	// agent before.
	IsFirstInvocation(ctx context.Context, agentID, userID, organizationID string) (bool, error)

	// IsNewAgent reports whether the agent has never been invoked by anyone
	// in the organization.
	IsNewAgent(ctx context.Context, agentID, organizationID string) (bool, error)
}
