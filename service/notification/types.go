// Package notification implements best-effort fan-out of approval requests
// and decisions to approvers and requestors. Delivery tries each recipient's
// channels in order and stops at the first success; failures are logged and
// never affect approval-state correctness.
package notification

import (
	"context"

	"github.com/vantus/warden/service/approval"
)

// DefaultChannel is used when a recipient declares no channel preference.
const DefaultChannel = "email"

// Message kinds delivered through channels.
const (
	KindApprovalRequested = "approval.requested"
	KindApprovalDecided   = "approval.decided"
	KindApprovalEscalated = "approval.escalated"
)

// ApproverInfo identifies a notification recipient.
type ApproverInfo struct {
	UserID string `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	// Channels is tried in order; empty defaults to [DefaultChannel].
	Channels []string `json:"channels,omitempty"`
}

// Resolver resolves approver roles and explicit user lists to concrete
// recipients. Role-to-user resolution belongs to the host platform; the
// static resolver in this package covers embedded deployments and tests.
type Resolver interface {
	ResolveApprovers(ctx context.Context, roles, users []string, organizationID string) ([]ApproverInfo, error)
}

// Message is the channel-independent notification payload.
type Message struct {
	Kind           string                 `json:"kind"`
	RequestID      string                 `json:"requestId"`
	AgentID        string                 `json:"agentId"`
	OrganizationID string                 `json:"organizationId"`
	Subject        string                 `json:"subject"`
	Body           string                 `json:"body"`
	Decision       string                 `json:"decision,omitempty"`
	Reason         string                 `json:"reason,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"` // sanitized invocation context
}

// Channel delivers a message to a single recipient over one transport.
type Channel interface {
	// Name returns the channel key recipients reference (e.g. "email").
	Name() string

	// Send delivers the message, returning an error on failure.
	Send(ctx context.Context, recipient ApproverInfo, message *Message) error
}

var _ approval.Notifier = (*Service)(nil)
