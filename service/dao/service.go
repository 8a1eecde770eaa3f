package dao

import (
	"context"
)

// Service is the minimal persistence contract shared by warden entity
// stores. K is the entity key type (usually the ID field), T the entity.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context) ([]*T, error)
}
