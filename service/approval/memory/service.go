// Package memory provides the reference in-memory approval.Store. Writes are
// serialized by the underlying store mutex and every Save/Get works on deep
// copies, which gives the manager the per-id read-modify-write isolation the
// store contract asks for.
package memory

import (
	"context"

	"github.com/vantus/warden/internal/clock"
	"github.com/vantus/warden/service/approval"
	"github.com/vantus/warden/service/dao"
	"github.com/vantus/warden/service/dao/store"
)

type service struct {
	requests *store.MemoryStore[string, approval.Request]
}

func requestKey(r *approval.Request) string { return r.ID }

// New creates an empty in-memory approval store.
func New() approval.Store {
	return &service{
		requests: store.NewMemoryStore[string, approval.Request](requestKey),
	}
}

func (s *service) Save(ctx context.Context, r *approval.Request) error {
	if r == nil {
		return dao.ErrNilEntity
	}
	if r.ID == "" {
		return dao.ErrInvalidID
	}
	return s.requests.Save(ctx, r.Clone())
}

func (s *service) Get(ctx context.Context, id string) (*approval.Request, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}
	r, err := s.requests.Load(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	return r.Clone(), nil
}

func (s *service) PendingForAgent(ctx context.Context, agentID, organizationID string) ([]*approval.Request, error) {
	matched, err := s.requests.Match(ctx, func(r *approval.Request) bool {
		return r.IsPending() && r.ExternalAgentID == agentID && r.OrganizationID == organizationID
	})
	return cloneAll(matched), err
}

// PendingForApprover returns the approver's inbox: pending requests in the
// organization not authored by the approver themselves.
func (s *service) PendingForApprover(ctx context.Context, approverID, organizationID string) ([]*approval.Request, error) {
	matched, err := s.requests.Match(ctx, func(r *approval.Request) bool {
		if !r.IsPending() || r.RequestedByUserID == approverID {
			return false
		}
		return organizationID == "" || r.OrganizationID == organizationID
	})
	return cloneAll(matched), err
}

func (s *service) Expired(ctx context.Context) ([]*approval.Request, error) {
	now := clock.Now()
	matched, err := s.requests.Match(ctx, func(r *approval.Request) bool {
		return r.IsPending() && r.IsExpired(now)
	})
	return cloneAll(matched), err
}

func cloneAll(requests []*approval.Request) []*approval.Request {
	out := make([]*approval.Request, len(requests))
	for i, r := range requests {
		out[i] = r.Clone()
	}
	return out
}

var _ approval.Store = (*service)(nil)
