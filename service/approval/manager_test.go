package approval_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vantus/warden/internal/clock"
	"github.com/vantus/warden/policy"
	"github.com/vantus/warden/service/approval"
	amemory "github.com/vantus/warden/service/approval/memory"
	"github.com/vantus/warden/service/history"
	hmemory "github.com/vantus/warden/service/history/memory"
	"github.com/vantus/warden/service/notification"
	nmemory "github.com/vantus/warden/service/notification/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func freezeClock(t *testing.T) {
	t.Helper()
	clock.NowFunc = clock.Fixed(testNow)
	t.Cleanup(func() { clock.NowFunc = time.Now })
}

// countingHistory wraps the memory provider and tracks how often the
// invocation count is fetched.
type countingHistory struct {
	history.Provider
	countCalls int
}

func (h *countingHistory) InvocationCount(ctx context.Context, agentID, userID, organizationID string, window time.Duration) (int, error) {
	h.countCalls++
	return h.Provider.InvocationCount(ctx, agentID, userID, organizationID, window)
}

// failingNotifier always errors; the manager must log and swallow.
type failingNotifier struct{}

func (failingNotifier) NotifyApprovers(context.Context, *approval.Request, []string, []string) (map[string]bool, error) {
	return nil, errors.New("notification backend down")
}

func (failingNotifier) NotifyRequestor(context.Context, *approval.Request, string, string) (bool, error) {
	return false, errors.New("notification backend down")
}

func newNotifier(channel *nmemory.Channel, users ...string) *notification.Service {
	resolver := notification.NewStaticResolver()
	for _, user := range users {
		resolver.AddUser(notification.ApproverInfo{UserID: user, Channels: []string{"email"}})
	}
	return notification.New(resolver, notification.WithChannel(channel))
}

func threshold(v float64) *float64 { return &v }

func createRequest(t *testing.T, m *approval.Manager, userID string) *approval.Request {
	t.Helper()
	request, err := m.Create(context.Background(), approval.CreateInput{
		AgentID:        "agent-1",
		Payload:        map[string]interface{}{"action": "transfer", "amount": 250},
		UserID:         userID,
		OrganizationID: "org-1",
		TriggerReason:  "estimated cost 150.00 exceeds threshold 100.00",
		EstimatedCost:  150,
	})
	assert.NoError(t, err)
	return request
}

func TestManagerCheckRequired(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()

	t.Run("cost threshold", func(t *testing.T) {
		m := approval.NewManager(
			approval.TriggerConfig{CostThreshold: threshold(100)},
			approval.DefaultWorkflowConfig(),
			amemory.New())

		result, err := m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1", EstimatedCost: 150,
		})
		assert.NoError(t, err)
		assert.True(t, result.Required)
		assert.Contains(t, result.Reason, "threshold 100.00")
		assert.Equal(t, []string{approval.TriggerCostThreshold}, result.Matched)

		result, err = m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1", EstimatedCost: 50,
		})
		assert.NoError(t, err)
		assert.False(t, result.Required)
	})

	t.Run("trusted user is auto-approved before triggers", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.AutoApproveTrustedUsers = []string{"u1"}
		m := approval.NewManager(
			approval.TriggerConfig{CostThreshold: threshold(100)},
			workflow,
			amemory.New())

		result, err := m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1", EstimatedCost: 10000,
		})
		assert.NoError(t, err)
		assert.False(t, result.Required)
		assert.Equal(t, "auto-approved", result.Reason)
	})

	t.Run("admin auto-approve policy", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.AutoApproveForAdmins = true
		m := approval.NewManager(
			approval.TriggerConfig{CostThreshold: threshold(100)},
			workflow,
			amemory.New())

		result, err := m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "admin", OrganizationID: "org-1", EstimatedCost: 10000, IsAdmin: true,
		})
		assert.NoError(t, err)
		assert.False(t, result.Required)
	})

	t.Run("hold mode forces approval regardless of triggers", func(t *testing.T) {
		m := approval.NewManager(
			approval.TriggerConfig{CostThreshold: threshold(100)},
			approval.DefaultWorkflowConfig(),
			amemory.New(),
			approval.WithAdmission(&policy.Policy{Mode: policy.ModeHold}))

		result, err := m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1", EstimatedCost: 1,
		})
		assert.NoError(t, err)
		assert.True(t, result.Required)
	})

	t.Run("invocation count fetched only when rate trigger configured", func(t *testing.T) {
		recorder := &countingHistory{Provider: hmemory.New()}
		m := approval.NewManager(
			approval.TriggerConfig{CostThreshold: threshold(100)},
			approval.DefaultWorkflowConfig(),
			amemory.New(),
			approval.WithHistory(recorder))

		_, err := m.CheckRequired(ctx, approval.CheckInput{AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1"})
		assert.NoError(t, err)
		assert.Equal(t, 0, recorder.countCalls)

		rated := approval.NewManager(
			approval.TriggerConfig{RateCount: 5, RateWindowSeconds: 60},
			approval.DefaultWorkflowConfig(),
			amemory.New(),
			approval.WithHistory(recorder))
		_, err = rated.CheckRequired(ctx, approval.CheckInput{AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1"})
		assert.NoError(t, err)
		assert.Equal(t, 1, recorder.countCalls)
	})

	t.Run("first invocation trigger uses history", func(t *testing.T) {
		provider := hmemory.New()
		m := approval.NewManager(
			approval.TriggerConfig{RequireFirstInvocation: true},
			approval.DefaultWorkflowConfig(),
			amemory.New(),
			approval.WithHistory(provider))

		result, err := m.CheckRequired(ctx, approval.CheckInput{AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1"})
		assert.NoError(t, err)
		assert.True(t, result.Required)

		provider.RecordAt("agent-1", "u1", "org-1", testNow.Add(-time.Hour))
		result, err = m.CheckRequired(ctx, approval.CheckInput{AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1"})
		assert.NoError(t, err)
		assert.False(t, result.Required)
	})

	t.Run("existing pending request by the same user is attached", func(t *testing.T) {
		m := approval.NewManager(
			approval.TriggerConfig{CostThreshold: threshold(100)},
			approval.DefaultWorkflowConfig(),
			amemory.New())

		created := createRequest(t, m, "u1")
		result, err := m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1", EstimatedCost: 150,
		})
		assert.NoError(t, err)
		assert.True(t, result.Required)
		if assert.NotNil(t, result.Existing) {
			assert.Equal(t, created.ID, result.Existing.ID)
		}

		// another user's pending request is not attached
		result, err = m.CheckRequired(ctx, approval.CheckInput{
			AgentID: "agent-1", UserID: "u2", OrganizationID: "org-1", EstimatedCost: 150,
		})
		assert.NoError(t, err)
		assert.Nil(t, result.Existing)
	})
}

func TestManagerCreate(t *testing.T) {
	freezeClock(t)
	workflow := approval.DefaultWorkflowConfig()
	workflow.TimeoutSeconds = 1800
	workflow.RequiredApprovals = 2
	workflow.ApproverUsers = []string{"a1"}

	email := nmemory.New("email")
	m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New(),
		approval.WithNotifier(newNotifier(email, "a1")))

	request, err := m.Create(context.Background(), approval.CreateInput{
		AgentID:        "agent-1",
		Payload:        map[string]interface{}{"action": "transfer", "token": "abc"},
		UserID:         "u1",
		OrganizationID: "org-1",
		TriggerReason:  "first invocation",
	})
	assert.NoError(t, err)

	assert.Regexp(t, "^apr-[0-9a-f]{12}$", request.ID)
	assert.Equal(t, approval.StatusPending, request.Status)
	assert.Equal(t, testNow, request.CreatedAt)
	assert.Equal(t, testNow.Add(30*time.Minute), request.ExpiresAt)
	assert.Equal(t, 2, request.RequiredApprovals)
	assert.Equal(t, approval.RedactedMarker, request.InvocationContext["token"])
	assert.Equal(t, "action=transfer", request.PayloadSummary)

	// persisted and announced
	stored, err := m.Get(context.Background(), request.ID)
	assert.NoError(t, err)
	assert.Equal(t, approval.StatusPending, stored.Status)
	assert.Len(t, email.Deliveries(), 1)
}

func TestManagerCreateNotificationFailureIsSwallowed(t *testing.T) {
	freezeClock(t)
	m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New(),
		approval.WithNotifier(failingNotifier{}))

	request, err := m.Create(context.Background(), approval.CreateInput{
		AgentID: "agent-1", UserID: "u1", OrganizationID: "org-1", TriggerReason: "r",
	})
	assert.NoError(t, err)
	assert.NotNil(t, request)
}

func TestManagerApprove(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()

	t.Run("quorum of two", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.RequiredApprovals = 2
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
		request := createRequest(t, m, "u1")

		request, err := m.Approve(ctx, request.ID, "a1", "", nil)
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusPending, request.Status)
		assert.Len(t, request.Approvals, 1)

		request, err = m.Approve(ctx, request.ID, "a2", "looks fine", nil)
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusApproved, request.Status)
		assert.Len(t, request.Approvals, 2)
	})

	t.Run("idempotent approver", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.RequiredApprovals = 2
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
		request := createRequest(t, m, "u1")

		request, err := m.Approve(ctx, request.ID, "a1", "", nil)
		assert.NoError(t, err)
		request, err = m.Approve(ctx, request.ID, "a1", "", nil)
		assert.NoError(t, err)
		assert.Len(t, request.Approvals, 1)
		assert.Equal(t, approval.StatusPending, request.Status)
	})

	t.Run("self approval disallowed by default", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")

		_, err := m.Approve(ctx, request.ID, "u1", "", nil)
		var selfErr *approval.SelfApprovalError
		assert.ErrorAs(t, err, &selfErr)
	})

	t.Run("self approval permitted when configured", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.AllowSelfApproval = true
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
		request := createRequest(t, m, "u1")

		request, err := m.Approve(ctx, request.ID, "u1", "", nil)
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusApproved, request.Status)
	})

	t.Run("unauthorized approver", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.ApproverUsers = []string{"a1"}
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
		request := createRequest(t, m, "u1")

		_, err := m.Approve(ctx, request.ID, "intruder", "", nil)
		var unauthorized *approval.UnauthorizedApproverError
		assert.ErrorAs(t, err, &unauthorized)
	})

	t.Run("not found", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		_, err := m.Approve(ctx, "apr-ffffffffffff", "a1", "", nil)
		var notFound *approval.NotFoundError
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("already decided carries current status", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")
		_, err := m.Approve(ctx, request.ID, "a1", "", nil)
		assert.NoError(t, err)

		_, err = m.Approve(ctx, request.ID, "a2", "", nil)
		var decided *approval.AlreadyDecidedError
		assert.ErrorAs(t, err, &decided)
		assert.Equal(t, approval.StatusApproved, decided.Status)
	})

	t.Run("lazy expiry at decision time", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
		request := createRequest(t, m, "u1")

		clock.NowFunc = clock.Fixed(testNow.Add(2 * time.Hour))
		defer func() { clock.NowFunc = clock.Fixed(testNow) }()

		_, err := m.Approve(ctx, request.ID, "a1", "", nil)
		var expired *approval.ExpiredError
		assert.ErrorAs(t, err, &expired)

		stored, gErr := m.Get(ctx, request.ID)
		assert.NoError(t, gErr)
		assert.Equal(t, approval.StatusExpired, stored.Status)
	})
}

func TestManagerReject(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()

	t.Run("single rejection is decisive despite prior approvals", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.RequiredApprovals = 3
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
		request := createRequest(t, m, "u1")

		_, err := m.Approve(ctx, request.ID, "a1", "", nil)
		assert.NoError(t, err)

		request, err = m.Reject(ctx, request.ID, "a2", "too risky")
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusRejected, request.Status)
		assert.Len(t, request.Rejections, 1)
		assert.Equal(t, "too risky", request.Rejections[0].Reason)
	})

	t.Run("reason is required", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")
		_, err := m.Reject(ctx, request.ID, "a1", "")
		assert.Error(t, err)
	})

	t.Run("rejection honoured past expiry", func(t *testing.T) {
		// unlike Approve there is no expiry gate on Reject
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")

		clock.NowFunc = clock.Fixed(testNow.Add(2 * time.Hour))
		defer func() { clock.NowFunc = clock.Fixed(testNow) }()

		request, err := m.Reject(ctx, request.ID, "a1", "stale")
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusRejected, request.Status)
	})

	t.Run("rejection is final", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")

		_, err := m.Reject(ctx, request.ID, "a1", "no")
		assert.NoError(t, err)

		_, err = m.Reject(ctx, request.ID, "a2", "me too")
		var decided *approval.AlreadyDecidedError
		assert.ErrorAs(t, err, &decided)
		assert.Equal(t, approval.StatusRejected, decided.Status)
	})
}

func TestManagerEscalate(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()

	t.Run("pending request escalates and notifies the escalation audience", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.EscalationTo = []string{"chief"}
		email := nmemory.New("email")
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New(),
			approval.WithNotifier(newNotifier(email, "chief")))
		request := createRequest(t, m, "u1")

		request, err := m.Escalate(ctx, request.ID)
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusEscalated, request.Status)

		deliveries := email.Deliveries()
		assert.Len(t, deliveries, 1)
		assert.Equal(t, "chief", deliveries[0].Recipient.UserID)
		assert.Equal(t, notification.KindApprovalEscalated, deliveries[0].Message.Kind)
	})

	t.Run("non pending request is a no-op", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")
		_, err := m.Approve(ctx, request.ID, "a1", "", nil)
		assert.NoError(t, err)

		escalated, err := m.Escalate(ctx, request.ID)
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusApproved, escalated.Status)
	})

	t.Run("escalation is terminal", func(t *testing.T) {
		m := approval.NewManager(approval.TriggerConfig{}, approval.DefaultWorkflowConfig(), amemory.New())
		request := createRequest(t, m, "u1")
		_, err := m.Escalate(ctx, request.ID)
		assert.NoError(t, err)

		_, err = m.Approve(ctx, request.ID, "a1", "", nil)
		var decided *approval.AlreadyDecidedError
		assert.ErrorAs(t, err, &decided)
		assert.Equal(t, approval.StatusEscalated, decided.Status)
	})
}

func TestManagerProcessExpired(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()

	expire := func() func() {
		clock.NowFunc = clock.Fixed(testNow.Add(2 * time.Hour))
		return func() { clock.NowFunc = clock.Fixed(testNow) }
	}

	type testCase struct {
		name           string
		configure      func(*approval.WorkflowConfig)
		expectStatus   approval.Status
		expectApproval bool
		expectReject   bool
		expectDecision string
	}

	tests := []testCase{
		{
			name:           "default policy expires without decision",
			configure:      func(*approval.WorkflowConfig) {},
			expectStatus:   approval.StatusExpired,
			expectDecision: approval.DecisionExpired,
		},
		{
			name:           "auto reject on timeout",
			configure:      func(c *approval.WorkflowConfig) { c.AutoRejectOnTimeout = true },
			expectStatus:   approval.StatusExpired,
			expectReject:   true,
			expectDecision: approval.DecisionReject,
		},
		{
			name:           "auto approve on timeout",
			configure:      func(c *approval.WorkflowConfig) { c.AutoApproveOnTimeout = true },
			expectStatus:   approval.StatusApproved,
			expectApproval: true,
			expectDecision: approval.DecisionApprove,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			workflow := approval.DefaultWorkflowConfig()
			workflow.NotifyOnExpiration = true
			tc.configure(&workflow)
			email := nmemory.New("email")
			m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New(),
				approval.WithNotifier(newNotifier(email, "u1")))
			request := createRequest(t, m, "u1")

			restore := expire()
			defer restore()

			processed, err := m.ProcessExpired(ctx)
			assert.NoError(t, err)
			assert.Len(t, processed, 1)
			assert.Equal(t, tc.expectStatus, processed[0].Status)

			if tc.expectReject {
				assert.Len(t, processed[0].Rejections, 1)
				assert.Equal(t, approval.SystemApprover, processed[0].Rejections[0].ApproverID)
				assert.Equal(t, "timeout", processed[0].Rejections[0].Reason)
			}
			if tc.expectApproval {
				assert.Len(t, processed[0].Approvals, 1)
				assert.Equal(t, approval.SystemApprover, processed[0].Approvals[0].ApproverID)
			}

			stored, err := m.Get(ctx, request.ID)
			assert.NoError(t, err)
			assert.Equal(t, tc.expectStatus, stored.Status)

			// the requestor is told how their request ended
			deliveries := email.Deliveries()
			if assert.Len(t, deliveries, 1) {
				assert.Equal(t, "u1", deliveries[0].Recipient.UserID)
				assert.Equal(t, tc.expectDecision, deliveries[0].Message.Decision)
				assert.Equal(t, "timeout", deliveries[0].Message.Reason)
			}

			// a processed request is excluded from the next sweep
			processed, err = m.ProcessExpired(ctx)
			assert.NoError(t, err)
			assert.Empty(t, processed)
		})
	}

	t.Run("notifier failure does not abort the sweep", func(t *testing.T) {
		workflow := approval.DefaultWorkflowConfig()
		workflow.NotifyOnExpiration = true
		m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New(),
			approval.WithNotifier(failingNotifier{}))
		request := createRequest(t, m, "u1")

		restore := expire()
		defer restore()

		processed, err := m.ProcessExpired(ctx)
		assert.NoError(t, err)
		assert.Len(t, processed, 1)

		stored, err := m.Get(ctx, request.ID)
		assert.NoError(t, err)
		assert.Equal(t, approval.StatusExpired, stored.Status)
	})
}

func TestManagerInvariants(t *testing.T) {
	freezeClock(t)
	ctx := context.Background()

	// approvals never exceed the quorum and APPROVED holds exactly at quorum
	workflow := approval.DefaultWorkflowConfig()
	workflow.RequiredApprovals = 2
	m := approval.NewManager(approval.TriggerConfig{}, workflow, amemory.New())
	request := createRequest(t, m, "u1")

	approvers := []string{"a1", "a2", "a3"}
	for _, approver := range approvers {
		updated, err := m.Approve(ctx, request.ID, approver, "", nil)
		if err != nil {
			var decided *approval.AlreadyDecidedError
			assert.ErrorAs(t, err, &decided)
			continue
		}
		assert.LessOrEqual(t, len(updated.Approvals), updated.RequiredApprovals)
		assert.Equal(t, updated.Status == approval.StatusApproved,
			len(updated.Approvals) == updated.RequiredApprovals,
			fmt.Sprintf("status %v with %d approvals", updated.Status, len(updated.Approvals)))
	}
}
