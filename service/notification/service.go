package notification

import (
	"context"
	"fmt"
	"log"

	"github.com/vantus/warden/service/approval"
)

// Service fans notifications out across an explicit channel registry. The
// registry maps channel names to adapters; per recipient, channels are tried
// in declared order until one delivery succeeds.
type Service struct {
	resolver Resolver
	channels map[string]Channel
}

// Option customises a Service.
type Option func(*Service)

// WithChannel registers a channel adapter under its name.
func WithChannel(channel Channel) Option {
	return func(s *Service) { s.channels[channel.Name()] = channel }
}

// New creates a notification service backed by the supplied resolver.
func New(resolver Resolver, options ...Option) *Service {
	ret := &Service{
		resolver: resolver,
		channels: make(map[string]Channel),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// NotifyApprovers resolves the approval audience and delivers a request
// notification to each member. The result maps user id to delivery success;
// a failed recipient never aborts the others.
func (s *Service) NotifyApprovers(ctx context.Context, r *approval.Request, approverRoles, approverUsers []string) (map[string]bool, error) {
	approvers, err := s.resolver.ResolveApprovers(ctx, approverRoles, approverUsers, r.OrganizationID)
	if err != nil {
		return nil, err
	}
	message := requestMessage(r)
	result := make(map[string]bool, len(approvers))
	for _, approver := range approvers {
		result[approver.UserID] = s.deliver(ctx, approver, message)
	}
	return result, nil
}

// NotifyRequestor delivers a decision notification to the requestor.
func (s *Service) NotifyRequestor(ctx context.Context, r *approval.Request, decision, reason string) (bool, error) {
	recipients, err := s.resolver.ResolveApprovers(ctx, nil, []string{r.RequestedByUserID}, r.OrganizationID)
	if err != nil {
		return false, err
	}
	if len(recipients) == 0 {
		return false, fmt.Errorf("requestor %v could not be resolved", r.RequestedByUserID)
	}
	return s.deliver(ctx, recipients[0], decisionMessage(r, decision, reason)), nil
}

// deliver tries the recipient's channels in order, stopping at the first
// success. Per-channel failures are logged and do not abort the remaining
// channels.
func (s *Service) deliver(ctx context.Context, recipient ApproverInfo, message *Message) bool {
	channels := recipient.Channels
	if len(channels) == 0 {
		channels = []string{DefaultChannel}
	}
	for _, name := range channels {
		channel, ok := s.channels[name]
		if !ok {
			log.Printf("notification: no %q channel registered for %v", name, recipient.UserID)
			continue
		}
		if err := channel.Send(ctx, recipient, message); err != nil {
			log.Printf("notification: %v delivery to %v failed: %v", name, recipient.UserID, err)
			continue
		}
		return true
	}
	return false
}

func requestMessage(r *approval.Request) *Message {
	kind := KindApprovalRequested
	if r.Status == approval.StatusEscalated {
		kind = KindApprovalEscalated
	}
	return &Message{
		Kind:           kind,
		RequestID:      r.ID,
		AgentID:        r.ExternalAgentID,
		OrganizationID: r.OrganizationID,
		Subject:        fmt.Sprintf("Approval required for agent %v", r.ExternalAgentID),
		Body: fmt.Sprintf("%v requested invocation of agent %v: %v (expires %v)",
			r.RequestedByUserID, r.ExternalAgentID, r.TriggerReason, r.ExpiresAt.Format("2006-01-02 15:04:05 MST")),
		Context: r.InvocationContext,
	}
}

func decisionMessage(r *approval.Request, decision, reason string) *Message {
	return &Message{
		Kind:           KindApprovalDecided,
		RequestID:      r.ID,
		AgentID:        r.ExternalAgentID,
		OrganizationID: r.OrganizationID,
		Subject:        fmt.Sprintf("Approval request %v is %v", r.ID, r.Status),
		Body:           fmt.Sprintf("Your request to invoke agent %v is now %v", r.ExternalAgentID, r.Status),
		Decision:       decision,
		Reason:         reason,
	}
}
