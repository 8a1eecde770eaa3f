// Package warden implements an approval governance engine for external AI
// agents. It decides – based on configurable triggers such as cost, rate and
// first invocation – whether a sensitive agent invocation must be held for
// human approval, tracks the resulting request through a multi-approver
// lifecycle and notifies the right audience at each step.
//
// The engine is a library: persistence, role resolution and concrete
// delivery transports are injected collaborators behind small interfaces,
// with in-memory reference implementations shipped for embedded use and
// tests.
package warden
