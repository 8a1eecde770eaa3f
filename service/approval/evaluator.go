package approval

import (
	"fmt"
	"strings"

	"github.com/viant/toolbox"
)

// TriggerContext carries the invocation facts a trigger can match on. It is
// ephemeral and never persisted.
type TriggerContext struct {
	AgentID         string
	UserID          string
	OrganizationID  string
	Payload         map[string]interface{}
	EstimatedCost   float64
	EstimatedTokens int
	Environment     string

	IsFirstInvocation bool
	IsNewAgent        bool
	// InvocationCount is the count within the configured rate window.
	InvocationCount int
}

// TriggerResult is the outcome of evaluating all configured triggers.
type TriggerResult struct {
	Triggered bool
	// Reason is a human-readable join of all matched trigger reasons.
	Reason string
	// Matched lists the names of every matched trigger.
	Matched []string
}

// Trigger names reported in TriggerResult.Matched.
const (
	TriggerCostThreshold   = "cost_threshold"
	TriggerFirstInvocation = "first_invocation"
	TriggerNewAgent        = "new_agent"
	TriggerRate            = "rate"
	TriggerPayloadPattern  = "payload_pattern"
)

// Evaluator is a pure function of a trigger configuration and an invocation
// context. Triggers compose as an independent OR – any match forces the
// invocation through approval; no match means auto-permit.
type Evaluator struct {
	config TriggerConfig
}

// NewEvaluator returns an evaluator for the supplied configuration.
func NewEvaluator(config TriggerConfig) *Evaluator {
	return &Evaluator{config: config}
}

// Config returns the evaluated trigger configuration.
func (e *Evaluator) Config() TriggerConfig { return e.config }

// Evaluate runs every configured trigger against the context.
func (e *Evaluator) Evaluate(ctx TriggerContext) TriggerResult {
	var matched []string
	var reasons []string

	if e.config.CostThreshold != nil && ctx.EstimatedCost > *e.config.CostThreshold {
		matched = append(matched, TriggerCostThreshold)
		reasons = append(reasons, fmt.Sprintf("estimated cost %.2f exceeds threshold %.2f", ctx.EstimatedCost, *e.config.CostThreshold))
	}
	if e.config.RequireFirstInvocation && ctx.IsFirstInvocation {
		matched = append(matched, TriggerFirstInvocation)
		reasons = append(reasons, fmt.Sprintf("first invocation of agent %v by user %v", ctx.AgentID, ctx.UserID))
	}
	if e.config.RequireNewAgent && ctx.IsNewAgent {
		matched = append(matched, TriggerNewAgent)
		reasons = append(reasons, fmt.Sprintf("agent %v has not been invoked in this organization before", ctx.AgentID))
	}
	if e.config.RateCount > 0 && ctx.InvocationCount >= e.config.RateCount {
		matched = append(matched, TriggerRate)
		reasons = append(reasons, fmt.Sprintf("%d invocations within %ds reached the limit of %d", ctx.InvocationCount, e.config.RateWindowSeconds, e.config.RateCount))
	}
	if pattern := e.matchPayloadPattern(ctx.Payload); pattern != "" {
		matched = append(matched, TriggerPayloadPattern)
		reasons = append(reasons, fmt.Sprintf("payload matches pattern %q", pattern))
	}

	return TriggerResult{
		Triggered: len(matched) > 0,
		Reason:    strings.Join(reasons, "; "),
		Matched:   matched,
	}
}

// matchPayloadPattern returns the first configured pattern found as a
// case-insensitive substring of a top-level payload string value.
func (e *Evaluator) matchPayloadPattern(payload map[string]interface{}) string {
	if len(e.config.PayloadPatterns) == 0 || len(payload) == 0 {
		return ""
	}
	for _, value := range payload {
		text, ok := value.(string)
		if !ok {
			if toolbox.IsMap(value) || toolbox.IsSlice(value) {
				continue
			}
			text = toolbox.AsString(value)
		}
		lowered := strings.ToLower(text)
		for _, pattern := range e.config.PayloadPatterns {
			if pattern == "" {
				continue
			}
			if strings.Contains(lowered, strings.ToLower(pattern)) {
				return pattern
			}
		}
	}
	return ""
}
