// Package reqid tags contexts with the id of one execution so that start and
// finish events published from different goroutines can be paired.
package reqid

import (
	"context"

	"github.com/google/uuid"
)

type (
	key       struct{}
	parentKey struct{}
)

// NewContext returns a copy of parent with a new random ID stored.
// It also returns the generated ID. An ID already present in parent becomes
// the parent ID of the new one.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	ctx := parent
	if prev, ok := FromContext(parent); ok {
		ctx = context.WithValue(ctx, parentKey{}, prev)
	}
	return context.WithValue(ctx, key{}, id), id
}

// FromContext extracts the ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}

// ParentFromContext returns the ID that was current when the ID in ctx was
// created.
func ParentFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(parentKey{}).(string)
	return id, ok
}
