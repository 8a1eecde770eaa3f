package approval

import (
	"context"
)

// Store persists approval requests; it is the system of record. The manager
// performs load → mutate → persist without an explicit compare-and-swap, so
// implementations must serialize writes per request id (a version check or a
// per-id lock) to keep concurrent decisions from exceeding the quorum.
type Store interface {
	// Save persists or overwrites a request.
	Save(ctx context.Context, r *Request) error

	// Get returns a request by id, nil when absent.
	Get(ctx context.Context, id string) (*Request, error)

	// PendingForAgent returns PENDING requests for the agent within the
	// organization.
	PendingForAgent(ctx context.Context, agentID, organizationID string) ([]*Request, error)

	// PendingForApprover returns PENDING requests awaiting the approver.
	// Empty organizationID matches all organizations.
	PendingForApprover(ctx context.Context, approverID, organizationID string) ([]*Request, error)

	// Expired returns PENDING requests whose deadline has passed. Requests
	// stop appearing here once their status leaves PENDING, which makes the
	// expiration sweep idempotent.
	Expired(ctx context.Context) ([]*Request, error)
}

// Notifier fans approval notifications out to approvers and requestors.
// Implementations live in service/notification; delivery is best-effort and
// must never affect approval-state correctness.
type Notifier interface {
	// NotifyApprovers informs the approval audience about a new or
	// escalated request. It returns a per-approver delivery success map.
	NotifyApprovers(ctx context.Context, r *Request, approverRoles, approverUsers []string) (map[string]bool, error)

	// NotifyRequestor informs the requestor about a decision on their
	// request.
	NotifyRequestor(ctx context.Context, r *Request, decision, reason string) (bool, error)
}
