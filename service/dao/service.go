package dao

import (
	"context"
)

// Service is the generic persistence contract shared by the vault stores.
// K is the key type (task and request IDs are filename stems), T the stored
// record.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context, parameters ...*Parameter) ([]*T, error)
}
