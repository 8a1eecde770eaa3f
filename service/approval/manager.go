package approval

import (
	"context"
	"fmt"
	"log"

	"github.com/vantus/warden/internal/clock"
	"github.com/vantus/warden/internal/idgen"
	"github.com/vantus/warden/policy"
	"github.com/vantus/warden/service/history"
	"github.com/vantus/warden/service/messaging"
	"github.com/vantus/warden/tracing"
)

// CheckInput describes an invocation about to happen.
type CheckInput struct {
	AgentID         string
	Payload         map[string]interface{}
	UserID          string
	OrganizationID  string
	EstimatedCost   float64
	EstimatedTokens int
	Environment     string // defaults to "production"
	IsAdmin         bool
}

// CheckResult is the outcome of CheckRequired. It is ephemeral.
type CheckResult struct {
	Required bool
	Reason   string
	Matched  []string
	// Existing points at a pending request already authored by the same
	// user for the same agent, when one exists.
	Existing *Request
}

// CreateInput describes a new approval request.
type CreateInput struct {
	AgentID         string
	Payload         map[string]interface{}
	UserID          string
	TeamID          string
	OrganizationID  string
	TriggerReason   string
	EstimatedCost   float64
	EstimatedTokens int
}

// Manager orchestrates the approval lifecycle: check, create, approve,
// reject, escalate and the expiration sweep. It holds no state of its own –
// concurrency correctness rests on the store's per-id write serialization.
type Manager struct {
	workflow  WorkflowConfig
	evaluator *Evaluator
	admission *policy.Policy
	store     Store
	history   history.Provider
	notifier  Notifier
	events    messaging.Queue[Event]
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithHistory attaches the invocation history provider used by the first
// invocation, new-agent and rate triggers.
func WithHistory(provider history.Provider) ManagerOption {
	return func(m *Manager) { m.history = provider }
}

// WithNotifier attaches the notification fan-out. Without it every
// notification step is skipped.
func WithNotifier(notifier Notifier) ManagerOption {
	return func(m *Manager) { m.notifier = notifier }
}

// WithEvents attaches a queue receiving a lifecycle Event after every
// persisted transition.
func WithEvents(queue messaging.Queue[Event]) ManagerOption {
	return func(m *Manager) { m.events = queue }
}

// WithAdmission overrides the admission policy derived from the workflow
// configuration.
func WithAdmission(p *policy.Policy) ManagerOption {
	return func(m *Manager) { m.admission = p }
}

// NewManager creates a Manager governed by the supplied configurations.
// Multiple managers with different policies can coexist in one process.
func NewManager(trigger TriggerConfig, workflow WorkflowConfig, store Store, options ...ManagerOption) *Manager {
	ret := &Manager{
		workflow:  workflow,
		evaluator: NewEvaluator(trigger),
		store:     store,
	}
	for _, option := range options {
		option(ret)
	}
	if ret.admission == nil {
		ret.admission = &policy.Policy{
			TrustedUsers:     workflow.AutoApproveTrustedUsers,
			AdminAutoApprove: workflow.AutoApproveForAdmins,
		}
	}
	return ret
}

// CheckRequired decides whether the invocation must be held for approval.
// It is read-only – no request is created and nothing is persisted.
func (m *Manager) CheckRequired(ctx context.Context, input CheckInput) (result *CheckResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.check", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"agent.id": input.AgentID, "user.id": input.UserID})

	admission := policy.FromContext(ctx)
	if admission == nil {
		admission = m.admission
	}
	if admission.IsAutoApproved(input.UserID, input.IsAdmin) {
		return &CheckResult{Required: false, Reason: "auto-approved"}, nil
	}
	if admission != nil && admission.Mode == policy.ModeHold {
		return &CheckResult{Required: true, Reason: "held by admission policy", Matched: []string{"policy_hold"}}, nil
	}

	if input.Environment == "" {
		input.Environment = "production"
	}
	triggerCtx := TriggerContext{
		AgentID:         input.AgentID,
		UserID:          input.UserID,
		OrganizationID:  input.OrganizationID,
		Payload:         input.Payload,
		EstimatedCost:   input.EstimatedCost,
		EstimatedTokens: input.EstimatedTokens,
		Environment:     input.Environment,
	}
	if m.history != nil {
		config := m.evaluator.Config()
		// the invocation count is fetched only when a rate trigger is
		// configured
		if config.RateCount > 0 {
			triggerCtx.InvocationCount, err = m.history.InvocationCount(ctx, input.AgentID, input.UserID, input.OrganizationID, config.RateWindow())
			if err != nil {
				return nil, err
			}
		}
		triggerCtx.IsFirstInvocation, err = m.history.IsFirstInvocation(ctx, input.AgentID, input.UserID, input.OrganizationID)
		if err != nil {
			return nil, err
		}
		if config.RequireNewAgent {
			triggerCtx.IsNewAgent, err = m.history.IsNewAgent(ctx, input.AgentID, input.OrganizationID)
			if err != nil {
				return nil, err
			}
		}
	}

	evaluated := m.evaluator.Evaluate(triggerCtx)
	if !evaluated.Triggered {
		return &CheckResult{Required: false}, nil
	}

	result = &CheckResult{Required: true, Reason: evaluated.Reason, Matched: evaluated.Matched}
	pending, err := m.store.PendingForAgent(ctx, input.AgentID, input.OrganizationID)
	if err != nil {
		return nil, err
	}
	for _, candidate := range pending {
		if candidate.RequestedByUserID == input.UserID {
			result.Existing = candidate
			break
		}
	}
	return result, nil
}

// Create builds, persists and announces a new PENDING approval request.
// A notification failure is logged and swallowed – it never fails creation.
func (m *Manager) Create(ctx context.Context, input CreateInput) (request *Request, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.create", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	now := clock.Now()
	request = &Request{
		ID:                idgen.New(),
		OrganizationID:    input.OrganizationID,
		ExternalAgentID:   input.AgentID,
		RequestedByUserID: input.UserID,
		RequestedByTeamID: input.TeamID,
		TriggerReason:     input.TriggerReason,
		InvocationContext: Sanitize(input.Payload),
		PayloadSummary:    Summarize(input.Payload),
		EstimatedCost:     input.EstimatedCost,
		EstimatedTokens:   input.EstimatedTokens,
		Status:            StatusPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(m.workflow.Timeout()),
		RequiredApprovals: m.workflow.Quorum(),
	}
	if err = m.store.Save(ctx, request); err != nil {
		return nil, err
	}
	m.publish(ctx, TopicRequestCreated, request)

	if m.workflow.NotifyOnCreate && m.notifier != nil {
		if _, nErr := m.notifier.NotifyApprovers(ctx, request, m.workflow.ApproverRoles, m.workflow.ApproverUsers); nErr != nil {
			log.Printf("approval: failed to notify approvers for %v: %v", request.ID, nErr)
		}
	}
	return request, nil
}

// Approve records an approve decision. The request transitions to APPROVED
// once the quorum of distinct approvers is reached. Approving twice with the
// same approver id is a no-op.
func (m *Manager) Approve(ctx context.Context, id, approverID, reason string, metadata map[string]interface{}) (request *Request, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.approve", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"request.id": id, "approver.id": approverID})

	request, err = m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, &AlreadyDecidedError{RequestID: id, Status: request.Status}
	}
	if request.IsExpired(clock.Now()) {
		// expiry discovered lazily at decision time, not only by the sweep
		request.Status = StatusExpired
		if err = m.store.Save(ctx, request); err != nil {
			return nil, err
		}
		m.publish(ctx, TopicRequestExpired, request)
		return nil, &ExpiredError{RequestID: id}
	}
	if !m.workflow.AllowSelfApproval && approverID == request.RequestedByUserID {
		return nil, &SelfApprovalError{RequestID: id, UserID: approverID}
	}
	if !m.canApprove(approverID) {
		return nil, &UnauthorizedApproverError{RequestID: id, ApproverID: approverID}
	}
	if request.HasApproved(approverID) {
		return request, nil
	}

	request.Approvals = append(request.Approvals, &Decision{
		ApproverID: approverID,
		Decision:   DecisionApprove,
		Reason:     reason,
		DecidedAt:  clock.Now(),
		Metadata:   metadata,
	})
	if len(request.Approvals) == request.RequiredApprovals {
		request.Status = StatusApproved
	}
	if err = m.store.Save(ctx, request); err != nil {
		return nil, err
	}
	if request.Status == StatusApproved {
		m.publish(ctx, TopicRequestDecided, request)
		if m.workflow.NotifyOnDecision {
			m.notifyRequestor(ctx, request, DecisionApprove, reason)
		}
	}
	return request, nil
}

// Reject records a reject decision. A single authorized rejection is
// decisive regardless of quorum and prior approvals. Unlike Approve there is
// no expiry or self-rejection check – a rejection is always safe to honour.
func (m *Manager) Reject(ctx context.Context, id, approverID, reason string) (request *Request, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.reject", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"request.id": id, "approver.id": approverID})

	if reason == "" {
		return nil, fmt.Errorf("reject reason is required")
	}
	request, err = m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return nil, &AlreadyDecidedError{RequestID: id, Status: request.Status}
	}
	if !m.canApprove(approverID) {
		return nil, &UnauthorizedApproverError{RequestID: id, ApproverID: approverID}
	}

	request.Rejections = append(request.Rejections, &Decision{
		ApproverID: approverID,
		Decision:   DecisionReject,
		Reason:     reason,
		DecidedAt:  clock.Now(),
	})
	request.Status = StatusRejected
	if err = m.store.Save(ctx, request); err != nil {
		return nil, err
	}
	m.publish(ctx, TopicRequestDecided, request)
	if m.workflow.NotifyOnDecision {
		m.notifyRequestor(ctx, request, DecisionReject, reason)
	}
	return request, nil
}

// Escalate hands a stuck PENDING request to the configured escalation
// audience. Escalating a non-PENDING request is a no-op, not an error.
func (m *Manager) Escalate(ctx context.Context, id string) (request *Request, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.escalate", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"request.id": id})

	request, err = m.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !request.IsPending() {
		return request, nil
	}
	request.Status = StatusEscalated
	if err = m.store.Save(ctx, request); err != nil {
		return nil, err
	}
	m.publish(ctx, TopicRequestEscalated, request)

	if len(m.workflow.EscalationTo) > 0 && m.notifier != nil {
		if _, nErr := m.notifier.NotifyApprovers(ctx, request, nil, m.workflow.EscalationTo); nErr != nil {
			log.Printf("approval: failed to notify escalation audience for %v: %v", request.ID, nErr)
		}
	}
	return request, nil
}

// ProcessExpired applies the configured timeout policy to every request the
// store reports as expired-but-pending and returns the processed requests.
// It is intended to run as a recurring background task and is idempotent per
// request because the store stops returning a request once its status leaves
// PENDING.
func (m *Manager) ProcessExpired(ctx context.Context) (processed []*Request, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.processExpired", "INTERNAL")
	defer func() { tracing.EndSpan(span, err) }()

	expired, err := m.store.Expired(ctx)
	if err != nil {
		return nil, err
	}
	for _, request := range expired {
		decision := DecisionExpired
		switch {
		case m.workflow.AutoRejectOnTimeout:
			request.Status = StatusExpired
			request.Rejections = append(request.Rejections, &Decision{
				ApproverID: SystemApprover,
				Decision:   DecisionReject,
				Reason:     "timeout",
				DecidedAt:  clock.Now(),
			})
			decision = DecisionReject
		case m.workflow.AutoApproveOnTimeout:
			// dangerous but supported mode
			request.Status = StatusApproved
			request.Approvals = append(request.Approvals, &Decision{
				ApproverID: SystemApprover,
				Decision:   DecisionApprove,
				Reason:     "timeout",
				DecidedAt:  clock.Now(),
			})
			decision = DecisionApprove
		default:
			request.Status = StatusExpired
		}
		if err = m.store.Save(ctx, request); err != nil {
			return processed, err
		}
		m.publish(ctx, TopicRequestExpired, request)
		if m.workflow.NotifyOnExpiration {
			m.notifyRequestor(ctx, request, decision, "timeout")
		}
		processed = append(processed, request)
	}
	return processed, nil
}

// Get returns a request by id.
func (m *Manager) Get(ctx context.Context, id string) (*Request, error) {
	return m.load(ctx, id)
}

// PendingForApprover lists PENDING requests awaiting the approver. Empty
// organizationID matches all organizations.
func (m *Manager) PendingForApprover(ctx context.Context, approverID, organizationID string) ([]*Request, error) {
	return m.store.PendingForApprover(ctx, approverID, organizationID)
}

func (m *Manager) load(ctx context.Context, id string) (*Request, error) {
	request, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, &NotFoundError{ID: id}
	}
	return request, nil
}

// canApprove is the final, coarse safety net: when an explicit approver list
// is configured only its members may decide; otherwise any caller that made
// it past the upstream role checks is accepted.
func (m *Manager) canApprove(approverID string) bool {
	if len(m.workflow.ApproverUsers) == 0 {
		return true
	}
	for _, user := range m.workflow.ApproverUsers {
		if user == approverID {
			return true
		}
	}
	return false
}

func (m *Manager) publish(ctx context.Context, topic string, request *Request) {
	if m.events == nil {
		return
	}
	event := &Event{Topic: topic, Request: request.Clone()}
	if err := m.events.Publish(ctx, event); err != nil {
		log.Printf("approval: failed to publish %v event for %v: %v", topic, request.ID, err)
	}
}

func (m *Manager) notifyRequestor(ctx context.Context, request *Request, decision, reason string) {
	if m.notifier == nil {
		return
	}
	if _, err := m.notifier.NotifyRequestor(ctx, request, decision, reason); err != nil {
		log.Printf("approval: failed to notify requestor for %v: %v", request.ID, err)
	}
}
