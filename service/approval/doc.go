// Package approval implements the human-in-the-loop admission-control layer
// for external agent invocations. It decides whether a sensitive invocation
// must be held for approval, tracks the resulting request through its
// lifecycle and notifies the right people at each step.
package approval
