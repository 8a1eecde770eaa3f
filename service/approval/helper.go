package approval

import (
	"context"
	"time"
)

// DecisionFunc decides what to do with a pending request.
// Return (true,  "") to approve
//
//	(false, "…") to reject with reason; an empty reject reason
//	defaults to "auto-rejected".
type DecisionFunc func(r *Request) (approved bool, reason string)

// AutoDecider starts a goroutine that polls the manager for requests pending
// for approverID and applies fn to each. It returns stop() – call it (or
// cancel ctx) to exit.
func AutoDecider(ctx context.Context,
	manager *Manager,
	approverID string,
	fn DecisionFunc,
	interval time.Duration) (stop func()) {

	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				requests, _ := manager.PendingForApprover(ctx, approverID, "")
				for _, r := range requests {
					if ok, reason := fn(r); ok {
						_, _ = manager.Approve(ctx, r.ID, approverID, reason, nil)
					} else {
						if reason == "" {
							// Reject requires a reason
							reason = "auto-rejected"
						}
						_, _ = manager.Reject(ctx, r.ID, approverID, reason)
					}
				}
			}
		}
	}()
	return func() { close(done) }
}

// AutoApprove automatically approves all requests pending for approverID.
func AutoApprove(ctx context.Context,
	manager *Manager,
	approverID string,
	interval time.Duration) func() {
	return AutoDecider(ctx, manager, approverID,
		func(*Request) (bool, string) { return true, "" }, interval)
}

// AutoReject automatically rejects all requests pending for approverID with
// the given reason.
func AutoReject(ctx context.Context,
	manager *Manager,
	approverID string,
	reason string,
	interval time.Duration) func() {
	return AutoDecider(ctx, manager, approverID,
		func(*Request) (bool, string) { return false, reason }, interval)
}

// SweepExpired runs ProcessExpired on the supplied interval – the recurring
// background task role of the expiration sweep. It returns stop().
func SweepExpired(ctx context.Context, manager *Manager, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = time.Minute
	}
	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				_, _ = manager.ProcessExpired(ctx)
			}
		}
	}()
	return func() { close(done) }
}
