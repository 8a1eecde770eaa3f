package approval

import "fmt"

// All request-level failures are recoverable by the caller and detected via
// errors.As. Notification failures are never surfaced through these – they
// are logged and suppressed at the manager boundary.

// NotFoundError indicates the request id is unknown to the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("approval request %v not found", e.ID)
}

// UnauthorizedApproverError indicates the actor is not permitted to decide
// this request.
type UnauthorizedApproverError struct {
	RequestID  string
	ApproverID string
}

func (e *UnauthorizedApproverError) Error() string {
	return fmt.Sprintf("approver %v is not authorized to decide request %v", e.ApproverID, e.RequestID)
}

// SelfApprovalError indicates the requestor attempted to approve their own
// request under a restrictive policy.
type SelfApprovalError struct {
	RequestID string
	UserID    string
}

func (e *SelfApprovalError) Error() string {
	return fmt.Sprintf("user %v cannot approve own request %v", e.UserID, e.RequestID)
}

// ExpiredError indicates a decision was attempted after the request
// deadline. Raising it transitions the stored request to EXPIRED.
type ExpiredError struct {
	RequestID string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("approval request %v has expired", e.RequestID)
}

// AlreadyDecidedError indicates a decision was attempted on a non-PENDING
// request. It carries the current status for caller diagnostics.
type AlreadyDecidedError struct {
	RequestID string
	Status    Status
}

func (e *AlreadyDecidedError) Error() string {
	return fmt.Sprintf("approval request %v already decided: %v", e.RequestID, e.Status)
}
