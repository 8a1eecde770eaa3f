package approval

import (
	"time"
)

// Status represents the lifecycle state of an approval request. PENDING is
// the only non-terminal state; no transition is reversible.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
	StatusEscalated Status = "ESCALATED"
)

// Decision kinds recorded in a request's decision trail. DecisionExpired is
// never stored – it only labels the notification sent when a request lapses
// without an auto-decision.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
	DecisionExpired = "expired"
)

// SystemApprover marks decisions appended by the expiration sweep rather
// than a human actor.
const SystemApprover = "system"

// Decision is a single approve/reject entry in a request's decision trail.
type Decision struct {
	ApproverID string                 `json:"approverId"`
	Decision   string                 `json:"decision"` // approve | reject
	Reason     string                 `json:"reason,omitempty"`
	DecidedAt  time.Time              `json:"decidedAt"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Request represents one pending or resolved admission-control decision for
// an external agent invocation. Requests are never deleted – the decision
// trail doubles as the audit record.
type Request struct {
	ID              string `json:"id"` // apr-<12 hex>, primary key
	OrganizationID  string `json:"organizationId"`
	ExternalAgentID string `json:"externalAgentId"`

	RequestedByUserID string `json:"requestedByUserId"`
	RequestedByTeamID string `json:"requestedByTeamId,omitempty"`

	TriggerReason     string                 `json:"triggerReason"`
	InvocationContext map[string]interface{} `json:"invocationContext,omitempty"` // sanitized payload
	PayloadSummary    string                 `json:"payloadSummary,omitempty"`
	EstimatedCost     float64                `json:"estimatedCost,omitempty"`
	EstimatedTokens   int                    `json:"estimatedTokens,omitempty"`

	Status            Status    `json:"status"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
	RequiredApprovals int       `json:"requiredApprovals"` // quorum, >= 1

	Approvals  []*Decision `json:"approvals,omitempty"`
	Rejections []*Decision `json:"rejections,omitempty"`
}

// IsPending reports whether the request still awaits a decision.
func (r *Request) IsPending() bool { return r.Status == StatusPending }

// IsExpired reports whether the request deadline has passed at the supplied
// instant. Expiry is a data property, not a call-level deadline.
func (r *Request) IsExpired(now time.Time) bool { return now.After(r.ExpiresAt) }

// HasApproved reports whether approverID already appears in the approval
// trail.
func (r *Request) HasApproved(approverID string) bool {
	for _, d := range r.Approvals {
		if d.ApproverID == approverID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so that a store snapshot cannot be mutated via a
// caller-held pointer.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Approvals = cloneDecisions(r.Approvals)
	clone.Rejections = cloneDecisions(r.Rejections)
	if r.InvocationContext != nil {
		ctx := make(map[string]interface{}, len(r.InvocationContext))
		for k, v := range r.InvocationContext {
			ctx[k] = v
		}
		clone.InvocationContext = ctx
	}
	return &clone
}

func cloneDecisions(decisions []*Decision) []*Decision {
	if decisions == nil {
		return nil
	}
	out := make([]*Decision, len(decisions))
	for i, d := range decisions {
		copied := *d
		out[i] = &copied
	}
	return out
}

// Event envelope published to the lifecycle queue after every persisted
// transition.
type Event struct {
	Topic   string            `json:"topic"`
	Request *Request          `json:"request"`
	Headers map[string]string `json:"headers,omitempty"` // tenant, correlation-id etc.
}

// Standard event topics.
const (
	TopicRequestCreated   = "request.created"
	TopicRequestDecided   = "request.decided"
	TopicRequestExpired   = "request.expired"
	TopicRequestEscalated = "request.escalated"
)
