// Package repo defines a generic node repository and its Neo4j
// implementation. The graph store builds domain-specific operations on top;
// this package only knows labels, ids and property maps.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a lookup matches no node.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic CRUD interface over one node label.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Count(ctx context.Context, filter map[string]any) (int64, error)
	Create(ctx context.Context, entity T) (T, error)
	Update(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and filtering for List operations. Filter
// entries become exact property matches, conjoined.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
