package notification_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vantus/warden/service/approval"
	"github.com/vantus/warden/service/notification"
	nmemory "github.com/vantus/warden/service/notification/memory"
)

func newRequest() *approval.Request {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &approval.Request{
		ID:                "apr-000000000001",
		OrganizationID:    "org-1",
		ExternalAgentID:   "agent-1",
		RequestedByUserID: "u1",
		TriggerReason:     "estimated cost 150.00 exceeds threshold 100.00",
		Status:            approval.StatusPending,
		CreatedAt:         now,
		ExpiresAt:         now.Add(time.Hour),
	}
}

func TestNotifyApprovers(t *testing.T) {
	ctx := context.Background()

	resolver := notification.NewStaticResolver().
		AddUser(notification.ApproverInfo{UserID: "a1", Email: "a1@example.com", Channels: []string{"email"}}).
		AddUser(notification.ApproverInfo{UserID: "a2", Channels: []string{"slack", "email"}}).
		AddUser(notification.ApproverInfo{UserID: "a3", Channels: []string{"slack"}}).
		AddRole("approver", "a1", "a2")

	email := nmemory.New("email")
	slack := nmemory.New("slack").FailAll(true)
	svc := notification.New(resolver, notification.WithChannel(email), notification.WithChannel(slack))

	result, err := svc.NotifyApprovers(ctx, newRequest(), []string{"approver"}, []string{"a3"})
	assert.NoError(t, err)

	// a1 direct on email, a2 falls back from failing slack to email, a3 has
	// no usable channel
	assert.EqualValues(t, map[string]bool{"a1": true, "a2": true, "a3": false}, result)
	assert.Len(t, email.Deliveries(), 2)

	for _, delivery := range email.Deliveries() {
		assert.Equal(t, notification.KindApprovalRequested, delivery.Message.Kind)
		assert.Equal(t, "apr-000000000001", delivery.Message.RequestID)
	}
}

func TestNotifyApproversDeduplicates(t *testing.T) {
	ctx := context.Background()
	resolver := notification.NewStaticResolver().
		AddUser(notification.ApproverInfo{UserID: "a1"}).
		AddRole("approver", "a1")

	email := nmemory.New("email")
	svc := notification.New(resolver, notification.WithChannel(email))

	// a1 appears via both the role and the explicit list
	result, err := svc.NotifyApprovers(ctx, newRequest(), []string{"approver"}, []string{"a1"})
	assert.NoError(t, err)
	assert.EqualValues(t, map[string]bool{"a1": true}, result)
	assert.Len(t, email.Deliveries(), 1)
}

func TestNotifyRequestor(t *testing.T) {
	ctx := context.Background()
	resolver := notification.NewStaticResolver().
		AddUser(notification.ApproverInfo{UserID: "u1", Channels: []string{"email"}})
	email := nmemory.New("email")
	svc := notification.New(resolver, notification.WithChannel(email))

	request := newRequest()
	request.Status = approval.StatusRejected

	ok, err := svc.NotifyRequestor(ctx, request, approval.DecisionReject, "too expensive")
	assert.NoError(t, err)
	assert.True(t, ok)

	deliveries := email.Deliveries()
	assert.Len(t, deliveries, 1)
	assert.Equal(t, notification.KindApprovalDecided, deliveries[0].Message.Kind)
	assert.Equal(t, approval.DecisionReject, deliveries[0].Message.Decision)
	assert.Equal(t, "too expensive", deliveries[0].Message.Reason)

	// delivery failure reports false without an error
	email.FailAll(true)
	ok, err = svc.NotifyRequestor(ctx, request, approval.DecisionReject, "too expensive")
	assert.NoError(t, err)
	assert.False(t, ok)
}
