package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vantus/warden/internal/clock"
	"github.com/vantus/warden/service/history"
)

// Invocation is a single recorded agent invocation.
type Invocation struct {
	AgentID        string
	UserID         string
	OrganizationID string
	At             time.Time
}

// Service is an in-memory history.Provider. It keeps every recorded
// invocation; the host platform is expected to supply a bounded
// implementation backed by its own telemetry store.
type Service struct {
	mu      sync.RWMutex
	records []Invocation
}

// New creates an empty in-memory history provider.
func New() *Service {
	return &Service{}
}

// Record registers an invocation at the current time.
func (s *Service) Record(_ context.Context, agentID, userID, organizationID string) {
	s.RecordAt(agentID, userID, organizationID, clock.Now())
}

// RecordAt registers an invocation at an explicit instant.
func (s *Service) RecordAt(agentID, userID, organizationID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Invocation{
		AgentID:        agentID,
		UserID:         userID,
		OrganizationID: organizationID,
		At:             at,
	})
}

func (s *Service) InvocationCount(_ context.Context, agentID, userID, organizationID string, window time.Duration) (int, error) {
	cutoff := clock.Now().Add(-window)
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, r := range s.records {
		if r.AgentID == agentID && r.UserID == userID && r.OrganizationID == organizationID && !r.At.Before(cutoff) {
			count++
		}
	}
	return count, nil
}

func (s *Service) IsFirstInvocation(_ context.Context, agentID, userID, organizationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.AgentID == agentID && r.UserID == userID && r.OrganizationID == organizationID {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) IsNewAgent(_ context.Context, agentID, organizationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.AgentID == agentID && r.OrganizationID == organizationID {
			return false, nil
		}
	}
	return true, nil
}

var _ history.Provider = (*Service)(nil)
