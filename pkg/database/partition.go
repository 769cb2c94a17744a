package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaNamePattern constrains partition schema names to identifiers that
// can never escape quoting. Usage account ids are digit strings, so the
// derived names are prefix + digits.
var schemaNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// PartitionSchemaName derives the schema name for an account's partition.
// Returns an error if the result is not a safe identifier.
func PartitionSchemaName(prefix, usageAccountID string) (string, error) {
	name := prefix + usageAccountID
	if !schemaNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid partition schema name %q", name)
	}
	return name, nil
}

// PartitionScope wraps a connection pinned to one account's schema. All
// unqualified SQL executed on Conn resolves inside that schema only, which
// makes cross-tenant queries structurally impossible rather than merely
// filtered out.
type PartitionScope struct {
	UsageAccountID string
	Schema         string
	Conn           *pgxpool.Conn
}

// Close resets the search path and releases the connection to the pool.
// This MUST be called to prevent the partition pin from leaking to the next
// request that draws the same connection.
func (s *PartitionScope) Close() {
	if s.Conn == nil {
		return
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET search_path")
	s.Conn.Release()
}

// WithPartition acquires a connection and pins its search path to the given
// partition schema. The returned PartitionScope MUST be closed with
// defer scope.Close().
func (db *DB) WithPartition(ctx context.Context, usageAccountID, schema string) (*PartitionScope, error) {
	if !schemaNamePattern.MatchString(schema) {
		return nil, fmt.Errorf("invalid partition schema name %q", schema)
	}

	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	_, err = conn.Exec(ctx, "SELECT set_config('search_path', $1, false)", schema)
	if err != nil {
		conn.Release()
		return nil, err
	}

	return &PartitionScope{
		UsageAccountID: usageAccountID,
		Schema:         schema,
		Conn:           conn,
	}, nil
}
