// Package policy provides the coarse admission pre-check applied before any
// approval trigger is evaluated. It is deliberately decoupled from the rest
// of warden so that using it is entirely opt-in – callers that do not embed
// a Policy in their context keep the configuration-driven behaviour.
package policy
