package approval

import (
	"fmt"
	"time"
)

// TriggerConfig enables the independent approval triggers. Every trigger is
// optional; any matched trigger forces the invocation through approval.
type TriggerConfig struct {
	// CostThreshold triggers when estimated cost exceeds the value. Nil
	// disables the trigger (zero is a valid threshold).
	CostThreshold *float64 `json:"costThreshold,omitempty" yaml:"costThreshold,omitempty"`

	// RequireFirstInvocation triggers on the user's first invocation of an
	// agent.
	RequireFirstInvocation bool `json:"requireFirstInvocation,omitempty" yaml:"requireFirstInvocation,omitempty"`

	// RequireNewAgent triggers when nobody in the organization has invoked
	// the agent before.
	RequireNewAgent bool `json:"requireNewAgent,omitempty" yaml:"requireNewAgent,omitempty"`

	// RateCount triggers when the invocation count within RateWindowSeconds
	// reaches the value. Zero disables the trigger.
	RateCount         int `json:"rateCount,omitempty" yaml:"rateCount,omitempty"`
	RateWindowSeconds int `json:"rateWindowSec,omitempty" yaml:"rateWindowSec,omitempty"`

	// PayloadPatterns trigger when any pattern occurs as a case-insensitive
	// substring of a top-level payload string value.
	PayloadPatterns []string `json:"payloadPatterns,omitempty" yaml:"payloadPatterns,omitempty"`
}

// RateWindow returns the rate trigger window as a duration.
func (c *TriggerConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// WorkflowConfig drives the approval request lifecycle.
type WorkflowConfig struct {
	// TimeoutSeconds sets expiresAt = createdAt + timeout. Defaults to one
	// hour.
	TimeoutSeconds int `json:"timeoutSec,omitempty" yaml:"timeoutSec,omitempty"`

	// ApproverRoles and ApproverUsers define the notification audience for
	// new requests. Role resolution happens in the notification layer.
	ApproverRoles []string `json:"approverRoles,omitempty" yaml:"approverRoles,omitempty"`
	ApproverUsers []string `json:"approverUsers,omitempty" yaml:"approverUsers,omitempty"`

	// RequiredApprovals is the quorum of distinct approve decisions needed
	// to transition a request to APPROVED. Minimum 1.
	RequiredApprovals int `json:"requiredApprovals,omitempty" yaml:"requiredApprovals,omitempty"`

	// AllowSelfApproval permits the requestor to approve their own request.
	AllowSelfApproval bool `json:"allowSelfApproval,omitempty" yaml:"allowSelfApproval,omitempty"`

	// AutoApproveTrustedUsers bypass trigger evaluation entirely.
	AutoApproveTrustedUsers []string `json:"autoApproveTrustedUsers,omitempty" yaml:"autoApproveTrustedUsers,omitempty"`
	AutoApproveForAdmins    bool     `json:"autoApproveForAdmins,omitempty" yaml:"autoApproveForAdmins,omitempty"`

	NotifyOnCreate     bool `json:"notifyOnCreate,omitempty" yaml:"notifyOnCreate,omitempty"`
	NotifyOnDecision   bool `json:"notifyOnDecision,omitempty" yaml:"notifyOnDecision,omitempty"`
	NotifyOnExpiration bool `json:"notifyOnExpiration,omitempty" yaml:"notifyOnExpiration,omitempty"`

	// Timeout policies are mutually exclusive. AutoApproveOnTimeout is a
	// dangerous but supported mode.
	AutoRejectOnTimeout  bool `json:"autoRejectOnTimeout,omitempty" yaml:"autoRejectOnTimeout,omitempty"`
	AutoApproveOnTimeout bool `json:"autoApproveOnTimeout,omitempty" yaml:"autoApproveOnTimeout,omitempty"`

	// EscalationTo is the explicit user list notified when a request is
	// escalated; it replaces the original approver audience.
	EscalationTo []string `json:"escalationTo,omitempty" yaml:"escalationTo,omitempty"`
}

// DefaultWorkflowConfig returns a WorkflowConfig with the package defaults.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		TimeoutSeconds:    3600,
		RequiredApprovals: 1,
		NotifyOnCreate:    true,
		NotifyOnDecision:  true,
	}
}

// Timeout returns the request lifetime as a duration.
func (c *WorkflowConfig) Timeout() time.Duration {
	seconds := c.TimeoutSeconds
	if seconds <= 0 {
		seconds = 3600
	}
	return time.Duration(seconds) * time.Second
}

// Quorum returns RequiredApprovals clamped to the minimum of 1.
func (c *WorkflowConfig) Quorum() int {
	if c.RequiredApprovals < 1 {
		return 1
	}
	return c.RequiredApprovals
}

// Validate returns an aggregated error describing invalid settings or nil.
func (c *WorkflowConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("workflow.timeoutSec must be >= 0")
	}
	if c.RequiredApprovals < 0 {
		return fmt.Errorf("workflow.requiredApprovals must be >= 0")
	}
	if c.AutoRejectOnTimeout && c.AutoApproveOnTimeout {
		return fmt.Errorf("workflow.autoRejectOnTimeout and autoApproveOnTimeout are mutually exclusive")
	}
	return nil
}

// Validate returns an error describing invalid trigger settings or nil.
func (c *TriggerConfig) Validate() error {
	if c.CostThreshold != nil && *c.CostThreshold < 0 {
		return fmt.Errorf("trigger.costThreshold must be >= 0")
	}
	if c.RateCount < 0 || c.RateWindowSeconds < 0 {
		return fmt.Errorf("trigger.rateCount and rateWindowSec must be >= 0")
	}
	if c.RateCount > 0 && c.RateWindowSeconds == 0 {
		return fmt.Errorf("trigger.rateWindowSec is required when rateCount is set")
	}
	return nil
}
