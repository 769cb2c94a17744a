package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/database"
	"github.com/trucost-labs/trucost-engine/pkg/models"
)

// ListTagsOptions controls pagination and filtering for tag listings.
type ListTagsOptions struct {
	Offset    int
	Limit     int
	UpdatedBy models.TagSource // optional; empty matches all writers
}

// ResourceTagRepository provides data access for resource tag records in the
// central database. UpdateWithLock is the only write path for tag state: it
// serializes concurrent reconcile-and-write cycles per resource id with a
// row lock so read-then-write is never interleaved for the same id.
type ResourceTagRepository interface {
	// Get returns the record for a resource id, or nil if none exists.
	Get(ctx context.Context, resourceID string) (*models.ResourceTagRecord, error)

	// UpdateWithLock reads the current record under a row lock, hands it to
	// mutate, and writes back the returned record in the same transaction.
	// mutate receives nil when no record exists yet and may return nil to
	// signal that nothing should be written (a discarded stale update).
	// Returns true when a record was written.
	UpdateWithLock(ctx context.Context, resourceID string, mutate func(existing *models.ResourceTagRecord) (*models.ResourceTagRecord, error)) (bool, error)

	// Delete removes a record. Deletion is an explicit decommission
	// operation; it is never performed automatically.
	Delete(ctx context.Context, resourceID string) error

	List(ctx context.Context, opts ListTagsOptions) ([]*models.ResourceTagRecord, int, error)

	// Facets returns the distinct non-null values per tag column, for
	// building filter UIs.
	Facets(ctx context.Context) (map[string][]string, error)
}

type resourceTagRepository struct {
	db *database.DB
}

// NewResourceTagRepository creates a new ResourceTagRepository backed by the
// central database pool.
func NewResourceTagRepository(db *database.DB) ResourceTagRepository {
	return &resourceTagRepository{db: db}
}

var _ ResourceTagRepository = (*resourceTagRepository)(nil)

const resourceTagColumns = `
	resource_id,
	system_app, system_business_unit, system_environment, system_owner, system_name,
	user_app, user_business_unit, user_environment, user_owner, user_name,
	last_system_sync, last_user_update, updated_by`

func (r *resourceTagRepository) Get(ctx context.Context, resourceID string) (*models.ResourceTagRecord, error) {
	query := `SELECT ` + resourceTagColumns + `
		FROM resource_tag_mappings
		WHERE resource_id = $1`

	record, err := scanResourceTagRecord(r.db.QueryRow(ctx, query, resourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No record yet for this resource
		}
		return nil, err
	}
	return record, nil
}

func (r *resourceTagRepository) UpdateWithLock(ctx context.Context, resourceID string, mutate func(existing *models.ResourceTagRecord) (*models.ResourceTagRecord, error)) (bool, error) {
	for {
		written, err := r.lockAndWrite(ctx, resourceID, mutate)
		if err != nil && isUniqueViolation(err) {
			// Lost the race to create the row. The winner has committed by
			// the time the conflict surfaces, so the next pass finds the
			// row and takes the lock path.
			continue
		}
		return written, err
	}
}

// lockAndWrite runs one locked read-modify-write cycle. A missing row is
// created with a plain INSERT so that a concurrent first write for the same
// resource id fails with a unique violation instead of clobbering the
// winner's columns.
func (r *resourceTagRepository) lockAndWrite(ctx context.Context, resourceID string, mutate func(existing *models.ResourceTagRecord) (*models.ResourceTagRecord, error)) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin tag update transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `SELECT ` + resourceTagColumns + `
		FROM resource_tag_mappings
		WHERE resource_id = $1
		FOR UPDATE`

	existing, err := scanResourceTagRecord(tx.QueryRow(ctx, query, resourceID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return false, err
		}
		existing = nil
	}

	record, err := mutate(existing)
	if err != nil {
		return false, err
	}
	if record == nil {
		// Nothing to write; the row lock is released by the rollback.
		return false, nil
	}

	var write string
	if existing == nil {
		write = `
			INSERT INTO resource_tag_mappings (` + resourceTagColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	} else {
		write = `
			UPDATE resource_tag_mappings SET
				system_app = $2,
				system_business_unit = $3,
				system_environment = $4,
				system_owner = $5,
				system_name = $6,
				user_app = $7,
				user_business_unit = $8,
				user_environment = $9,
				user_owner = $10,
				user_name = $11,
				last_system_sync = $12,
				last_user_update = $13,
				updated_by = $14
			WHERE resource_id = $1`
	}

	_, err = tx.Exec(ctx, write,
		record.ResourceID,
		record.SystemTags.App,
		record.SystemTags.BusinessUnit,
		record.SystemTags.Environment,
		record.SystemTags.Owner,
		record.SystemTags.Name,
		record.UserTags.App,
		record.UserTags.BusinessUnit,
		record.UserTags.Environment,
		record.UserTags.Owner,
		record.UserTags.Name,
		record.LastSystemSync,
		record.LastUserUpdate,
		string(record.UpdatedBy),
	)
	if err != nil {
		return false, fmt.Errorf("failed to write resource tag record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit tag update: %w", err)
	}
	return true, nil
}

func (r *resourceTagRepository) Delete(ctx context.Context, resourceID string) error {
	result, err := r.db.Exec(ctx, `DELETE FROM resource_tag_mappings WHERE resource_id = $1`, resourceID)
	if err != nil {
		return fmt.Errorf("failed to delete resource tag record: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *resourceTagRepository) List(ctx context.Context, opts ListTagsOptions) ([]*models.ResourceTagRecord, int, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	where := ""
	args := []any{}
	if opts.UpdatedBy != "" {
		where = "WHERE updated_by = $1"
		args = append(args, string(opts.UpdatedBy))
	}

	countQuery := `SELECT COUNT(*) FROM resource_tag_mappings ` + where
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count resource tag records: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+resourceTagColumns+`
		FROM resource_tag_mappings
		%s
		ORDER BY resource_id
		OFFSET $%d LIMIT $%d`, where, len(args)+1, len(args)+2)
	args = append(args, opts.Offset, opts.Limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query resource tag records: %w", err)
	}
	defer rows.Close()

	var records []*models.ResourceTagRecord
	for rows.Next() {
		record, err := scanResourceTagRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating resource tag records: %w", err)
	}

	return records, total, nil
}

// tagFacetColumns are the columns surfaced as filter facets.
var tagFacetColumns = []string{
	"system_app", "system_business_unit", "system_environment", "system_owner", "system_name",
	"user_app", "user_business_unit", "user_environment", "user_owner", "user_name",
}

func (r *resourceTagRepository) Facets(ctx context.Context) (map[string][]string, error) {
	facets := make(map[string][]string, len(tagFacetColumns))
	for _, column := range tagFacetColumns {
		// Column names come from the fixed list above, never from input.
		query := fmt.Sprintf(`SELECT DISTINCT %s FROM resource_tag_mappings WHERE %s IS NOT NULL ORDER BY %s`, column, column, column)
		rows, err := r.db.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query facet %s: %w", column, err)
		}

		values := []string{}
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan facet %s: %w", column, err)
			}
			if v != "" {
				values = append(values, v)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating facet %s: %w", column, err)
		}
		facets[column] = values
	}
	return facets, nil
}

func scanResourceTagRecord(row pgx.Row) (*models.ResourceTagRecord, error) {
	var rec models.ResourceTagRecord
	var updatedBy string

	err := row.Scan(
		&rec.ResourceID,
		&rec.SystemTags.App,
		&rec.SystemTags.BusinessUnit,
		&rec.SystemTags.Environment,
		&rec.SystemTags.Owner,
		&rec.SystemTags.Name,
		&rec.UserTags.App,
		&rec.UserTags.BusinessUnit,
		&rec.UserTags.Environment,
		&rec.UserTags.Owner,
		&rec.UserTags.Name,
		&rec.LastSystemSync,
		&rec.LastUserUpdate,
		&updatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan resource tag record: %w", err)
	}

	rec.UpdatedBy = models.TagSource(updatedBy)
	return &rec, nil
}
