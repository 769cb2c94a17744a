package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trucost-labs/trucost-engine/pkg/database"
	"github.com/trucost-labs/trucost-engine/pkg/models"
)

// AccountRepository is the tenant directory: the set of usage accounts the
// partitioner may route recommendation traffic for. Rows are maintained by
// the billing sync as it discovers accounts.
type AccountRepository interface {
	// Upsert inserts or refreshes a directory entry.
	Upsert(ctx context.Context, account *models.Account) error

	// Get returns the account for a usage account id, or nil if unknown.
	Get(ctx context.Context, usageAccountID string) (*models.Account, error)

	List(ctx context.Context) ([]*models.Account, error)
}

type accountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository backed by the central
// database pool.
func NewAccountRepository(db *database.DB) AccountRepository {
	return &accountRepository{db: db}
}

var _ AccountRepository = (*accountRepository)(nil)

func (r *accountRepository) Upsert(ctx context.Context, account *models.Account) error {
	now := time.Now()

	query := `
		INSERT INTO accounts (
			usage_account_id, usage_account_name, payer_account_id,
			payer_account_name, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (usage_account_id) DO UPDATE SET
			usage_account_name = EXCLUDED.usage_account_name,
			payer_account_id = EXCLUDED.payer_account_id,
			payer_account_name = EXCLUDED.payer_account_name,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		account.UsageAccountID,
		account.UsageAccountName,
		account.PayerAccountID,
		account.PayerAccountName,
		account.Active,
		now,
	).Scan(&account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, usageAccountID string) (*models.Account, error) {
	query := `
		SELECT usage_account_id, usage_account_name, payer_account_id,
			payer_account_name, active, created_at, updated_at
		FROM accounts
		WHERE usage_account_id = $1`

	var account models.Account
	err := r.db.QueryRow(ctx, query, usageAccountID).Scan(
		&account.UsageAccountID,
		&account.UsageAccountName,
		&account.PayerAccountID,
		&account.PayerAccountName,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Account not in the directory
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `
		SELECT usage_account_id, usage_account_name, payer_account_id,
			payer_account_name, active, created_at, updated_at
		FROM accounts
		ORDER BY usage_account_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		var account models.Account
		if err := rows.Scan(
			&account.UsageAccountID,
			&account.UsageAccountName,
			&account.PayerAccountID,
			&account.PayerAccountName,
			&account.Active,
			&account.CreatedAt,
			&account.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}
