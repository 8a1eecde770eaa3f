package policy

import (
	"context"
	"strings"
)

// Admission modes recognised by the manager.
const (
	ModeAuto = "auto" // evaluate configured triggers (default)
	ModeHold = "hold" // force every invocation through approval
	ModeDeny = "deny" // never auto-approve, regardless of trust
)

// Policy represents the auto-approval settings for admission control.
//
//   - Mode controls the high-level behaviour (auto / hold / deny).
//   - TrustedUsers bypass trigger evaluation entirely.
//   - DenyUsers can never be auto-approved and has priority over trust.
//   - AdminAutoApprove extends the bypass to callers flagged as admins.
//
// A nil *Policy means "no bypass, no deny" and is therefore the zero-cost
// default.
type Policy struct {
	Mode             string   // auto / hold / deny (default = auto)
	TrustedUsers     []string // auto-approved user ids
	DenyUsers        []string // never auto-approved
	AdminAutoApprove bool
}

// Config represents the declarative, serialisable part of a Policy.
type Config struct {
	Mode             string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	TrustedUsers     []string `json:"trusted,omitempty" yaml:"trusted,omitempty"`
	DenyUsers        []string `json:"deny,omitempty" yaml:"deny,omitempty"`
	AdminAutoApprove bool     `json:"adminAutoApprove,omitempty" yaml:"adminAutoApprove,omitempty"`
}

// ToConfig converts a runtime Policy into a persistable Config.
func ToConfig(p *Policy) *Config {
	if p == nil {
		return nil
	}
	return &Config{
		Mode:             p.Mode,
		TrustedUsers:     append([]string(nil), p.TrustedUsers...),
		DenyUsers:        append([]string(nil), p.DenyUsers...),
		AdminAutoApprove: p.AdminAutoApprove,
	}
}

// FromConfig converts a stored Config back to a runtime Policy.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:             c.Mode,
		TrustedUsers:     append([]string(nil), c.TrustedUsers...),
		DenyUsers:        append([]string(nil), c.DenyUsers...),
		AdminAutoApprove: c.AdminAutoApprove,
	}
}

// IsAutoApproved reports whether the caller bypasses trigger evaluation.
// User ids match by exact, case-insensitive comparison. DenyUsers has
// priority; ModeHold and ModeDeny disable the bypass entirely.
func (p *Policy) IsAutoApproved(userID string, isAdmin bool) bool {
	if p == nil {
		return false
	}
	if p.Mode == ModeHold || p.Mode == ModeDeny {
		return false
	}

	normalized := strings.ToLower(userID)
	for _, d := range p.DenyUsers {
		if normalized == strings.ToLower(d) {
			return false
		}
	}
	if isAdmin && p.AdminAutoApprove {
		return true
	}
	for _, u := range p.TrustedUsers {
		if normalized == strings.ToLower(u) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

type ctxKeyT struct{}

var ctxKey ctxKeyT

// WithPolicy embeds policy in ctx.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey, p)
}

// FromContext extracts (*Policy, ok).
func FromContext(ctx context.Context) *Policy {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxKey).(*Policy); ok {
		return v
	}
	return nil
}
