package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vantus/warden/internal/clock"
)

func TestService(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock.NowFunc = clock.Fixed(now)
	defer func() { clock.NowFunc = time.Now }()

	ctx := context.Background()
	svc := New()

	first, err := svc.IsFirstInvocation(ctx, "agent-1", "u1", "org-1")
	assert.NoError(t, err)
	assert.True(t, first)

	newAgent, err := svc.IsNewAgent(ctx, "agent-1", "org-1")
	assert.NoError(t, err)
	assert.True(t, newAgent)

	svc.RecordAt("agent-1", "u1", "org-1", now.Add(-2*time.Hour))
	svc.RecordAt("agent-1", "u1", "org-1", now.Add(-30*time.Minute))
	svc.RecordAt("agent-1", "u2", "org-1", now.Add(-10*time.Minute))
	svc.RecordAt("agent-2", "u1", "org-1", now.Add(-5*time.Minute))

	first, err = svc.IsFirstInvocation(ctx, "agent-1", "u1", "org-1")
	assert.NoError(t, err)
	assert.False(t, first)

	newAgent, err = svc.IsNewAgent(ctx, "agent-1", "org-1")
	assert.NoError(t, err)
	assert.False(t, newAgent)

	// only invocations inside the trailing window are counted
	count, err := svc.InvocationCount(ctx, "agent-1", "u1", "org-1", time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = svc.InvocationCount(ctx, "agent-1", "u1", "org-1", 3*time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	// other users and agents do not leak into the count
	count, err = svc.InvocationCount(ctx, "agent-1", "u2", "org-1", 3*time.Hour)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
