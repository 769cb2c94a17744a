package services

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/database"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
)

// partitionDDL is the full recommendation table structure for one account
// partition. It is idempotent and runs on a partition-pinned connection, so
// the unqualified names land in that partition's schema.
const partitionDDL = `
	CREATE TABLE IF NOT EXISTS cost_recommendations (
		id BIGSERIAL PRIMARY KEY,
		usage_account_id TEXT NOT NULL,
		query_title TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		year TEXT NOT NULL,
		month TEXT NOT NULL,
		payer_account_id TEXT NOT NULL DEFAULT '',
		payer_account_name TEXT NOT NULL DEFAULT '',
		usage_account_name TEXT NOT NULL DEFAULT '',
		product_code TEXT NOT NULL DEFAULT '',
		source TEXT,
		potential_savings_usd NUMERIC(12,2) NOT NULL DEFAULT 0,
		potentials_saving_percentage NUMERIC(12,2) NOT NULL DEFAULT 0,
		unblended_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		amortized_cost NUMERIC(12,2) NOT NULL DEFAULT 0,
		achieved_savings_usd NUMERIC(12,2) NOT NULL DEFAULT 0,
		current_config JSONB,
		recommended_config JSONB,
		implementation_details JSONB,
		query_date TIMESTAMPTZ,
		last_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT cost_recommendations_natural_key
			UNIQUE (usage_account_id, query_title, resource_id, year, month)
	)`

// TenantPartitioner routes account-scoped recommendation traffic to the
// account's isolated storage partition and keeps the partition's schema
// present. It owns partition routing exclusively; stores never decide where
// rows live.
type TenantPartitioner interface {
	// Resolve returns a partition scope for the account. Fails with
	// apperrors.ErrUnknownTenant for ids missing from the account directory
	// and apperrors.ErrPartitionUnavailable when the partition's storage
	// cannot be reached. The scope MUST be closed by the caller.
	Resolve(ctx context.Context, usageAccountID string) (*database.PartitionScope, error)

	// EnsureSchema idempotently creates the recommendation table structure
	// for the partition if absent.
	EnsureSchema(ctx context.Context, scope *database.PartitionScope) error
}

type tenantPartitioner struct {
	db           *database.DB
	accounts     repositories.AccountRepository
	schemaPrefix string
	logger       *zap.Logger

	mu      sync.Mutex
	ensured map[string]bool // schemas with DDL applied this process
	created map[string]bool // schemas known to exist this process
}

// NewTenantPartitioner creates a new TenantPartitioner.
func NewTenantPartitioner(
	db *database.DB,
	accounts repositories.AccountRepository,
	schemaPrefix string,
	logger *zap.Logger,
) TenantPartitioner {
	return &tenantPartitioner{
		db:           db,
		accounts:     accounts,
		schemaPrefix: schemaPrefix,
		logger:       logger.Named("tenant-partitioner"),
		ensured:      make(map[string]bool),
		created:      make(map[string]bool),
	}
}

var _ TenantPartitioner = (*tenantPartitioner)(nil)

func (p *tenantPartitioner) Resolve(ctx context.Context, usageAccountID string) (*database.PartitionScope, error) {
	account, err := p.accounts.Get(ctx, usageAccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account %s: %w", usageAccountID, err)
	}
	if account == nil || !account.Active {
		return nil, fmt.Errorf("account %s: %w", usageAccountID, apperrors.ErrUnknownTenant)
	}

	schema, err := database.PartitionSchemaName(p.schemaPrefix, usageAccountID)
	if err != nil {
		return nil, err
	}

	if err := p.createSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("create partition schema for account %s: %v: %w",
			usageAccountID, err, apperrors.ErrPartitionUnavailable)
	}

	scope, err := p.db.WithPartition(ctx, usageAccountID, schema)
	if err != nil {
		return nil, fmt.Errorf("acquire partition connection for account %s: %v: %w",
			usageAccountID, err, apperrors.ErrPartitionUnavailable)
	}
	return scope, nil
}

func (p *tenantPartitioner) EnsureSchema(ctx context.Context, scope *database.PartitionScope) error {
	p.mu.Lock()
	done := p.ensured[scope.Schema]
	p.mu.Unlock()
	if done {
		return nil
	}

	if _, err := scope.Conn.Exec(ctx, partitionDDL); err != nil {
		return fmt.Errorf("ensure partition tables in %s: %v: %w",
			scope.Schema, err, apperrors.ErrPartitionUnavailable)
	}

	p.mu.Lock()
	p.ensured[scope.Schema] = true
	p.mu.Unlock()

	p.logger.Info("Ensured partition schema",
		zap.String("usage_account_id", scope.UsageAccountID),
		zap.String("schema", scope.Schema),
	)
	return nil
}

// createSchema makes sure the partition's schema exists before a connection
// pins its search path to it. Cached per process; CREATE SCHEMA IF NOT
// EXISTS keeps it idempotent across instances.
func (p *tenantPartitioner) createSchema(ctx context.Context, schema string) error {
	p.mu.Lock()
	done := p.created[schema]
	p.mu.Unlock()
	if done {
		return nil
	}

	if _, err := p.db.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schema)); err != nil {
		return err
	}

	p.mu.Lock()
	p.created[schema] = true
	p.mu.Unlock()
	return nil
}
