package database

import "context"

type contextKey string

const (
	// PartitionScopeKey is the context key for storing the partition-scoped
	// database connection.
	PartitionScopeKey contextKey = "partitionScope"
)

// GetPartitionScope retrieves the partition-scoped database connection from
// context. Returns nil and false if not present.
func GetPartitionScope(ctx context.Context) (*PartitionScope, bool) {
	scope, ok := ctx.Value(PartitionScopeKey).(*PartitionScope)
	return scope, ok
}

// SetPartitionScope stores the partition-scoped database connection in
// context.
func SetPartitionScope(ctx context.Context, scope *PartitionScope) context.Context {
	return context.WithValue(ctx, PartitionScopeKey, scope)
}
