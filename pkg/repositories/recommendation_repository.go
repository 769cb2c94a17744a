package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/database"
	"github.com/trucost-labs/trucost-engine/pkg/models"
)

// ListRecommendationsOptions controls pagination and filtering for
// recommendation listings within one partition.
type ListRecommendationsOptions struct {
	Offset      int
	Limit       int
	QueryTitle  string
	ProductCode string
	Year        string
	Month       string
}

// RecommendationRepository provides data access for cost-optimization
// recommendation records. Every method requires a partition scope in the
// context; all SQL is unqualified and resolves inside the pinned schema, so
// a query can never cross tenant partitions.
type RecommendationRepository interface {
	// GetByKey returns the record for a natural key, or nil if none exists.
	GetByKey(ctx context.Context, key models.RecommendationKey) (*models.RecommendationRecord, error)

	// Upsert inserts the record or, when the natural key already exists,
	// replaces every field except achieved_savings_usd. last_updated is set
	// on every write. Returns true when a new row was created. Concurrent
	// upserts for the same key serialize on the row lock.
	Upsert(ctx context.Context, rec *models.RecommendationRecord) (bool, error)

	// SetAchievedSavings sets achieved_savings_usd directly. This is the
	// only path that mutates it after creation.
	SetAchievedSavings(ctx context.Context, key models.RecommendationKey, amount decimal.Decimal) error

	List(ctx context.Context, opts ListRecommendationsOptions) ([]*models.RecommendationRecord, int, *models.CostSummary, error)

	// Facets returns distinct values per filterable column.
	Facets(ctx context.Context) (map[string][]string, error)
}

type recommendationRepository struct{}

// NewRecommendationRepository creates a new RecommendationRepository.
func NewRecommendationRepository() RecommendationRepository {
	return &recommendationRepository{}
}

var _ RecommendationRepository = (*recommendationRepository)(nil)

// Monetary columns are exchanged as text so decimal values round-trip
// without float conversion.
const recommendationColumns = `
	id, usage_account_id, query_title, resource_id, year, month,
	payer_account_id, payer_account_name, usage_account_name, product_code, source,
	potential_savings_usd::text, potentials_saving_percentage::text,
	unblended_cost::text, amortized_cost::text, achieved_savings_usd::text,
	current_config, recommended_config, implementation_details,
	query_date, last_updated`

const naturalKeyWhere = `
	usage_account_id = $1 AND query_title = $2 AND resource_id = $3
	AND year = $4 AND month = $5`

func (r *recommendationRepository) GetByKey(ctx context.Context, key models.RecommendationKey) (*models.RecommendationRecord, error) {
	scope, ok := database.GetPartitionScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no partition scope in context")
	}

	query := `SELECT ` + recommendationColumns + `
		FROM cost_recommendations
		WHERE ` + naturalKeyWhere

	rec, err := scanRecommendation(scope.Conn.QueryRow(ctx, query,
		key.UsageAccountID, key.QueryTitle, key.ResourceID, key.Year, key.Month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // No recommendation for this key
		}
		return nil, err
	}
	return rec, nil
}

func (r *recommendationRepository) Upsert(ctx context.Context, rec *models.RecommendationRecord) (bool, error) {
	for {
		created, err := r.upsertOnce(ctx, rec)
		if err != nil && isUniqueViolation(err) {
			// A concurrent first ingestion created the row between our key
			// lookup and the insert. It is committed now, so the next pass
			// locks it and takes the update path.
			continue
		}
		return created, err
	}
}

func (r *recommendationRepository) upsertOnce(ctx context.Context, rec *models.RecommendationRecord) (bool, error) {
	scope, ok := database.GetPartitionScope(ctx)
	if !ok {
		return false, fmt.Errorf("no partition scope in context")
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin recommendation upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var existingID int64
	err = tx.QueryRow(ctx,
		`SELECT id FROM cost_recommendations WHERE `+naturalKeyWhere+` FOR UPDATE`,
		rec.UsageAccountID, rec.QueryTitle, rec.ResourceID, rec.Year, rec.Month,
	).Scan(&existingID)

	now := time.Now()
	created := false

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		insert := `
			INSERT INTO cost_recommendations (
				usage_account_id, query_title, resource_id, year, month,
				payer_account_id, payer_account_name, usage_account_name, product_code, source,
				potential_savings_usd, potentials_saving_percentage,
				unblended_cost, amortized_cost, achieved_savings_usd,
				current_config, recommended_config, implementation_details,
				query_date, last_updated
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
			RETURNING id`

		err = tx.QueryRow(ctx, insert,
			rec.UsageAccountID, rec.QueryTitle, rec.ResourceID, rec.Year, rec.Month,
			rec.PayerAccountID, rec.PayerAccountName, rec.UsageAccountName, rec.ProductCode, rec.Source,
			rec.PotentialSavingsUSD.String(), rec.PotentialSavingsPercentage.String(),
			rec.UnblendedCost.String(), rec.AmortizedCost.String(), rec.AchievedSavingsUSD.String(),
			jsonbOrNull(rec.CurrentConfig), jsonbOrNull(rec.RecommendedConfig), jsonbOrNull(rec.ImplementationDetails),
			rec.QueryDate, now,
		).Scan(&rec.ID)
		if err != nil {
			return false, fmt.Errorf("failed to insert recommendation: %w", err)
		}
		created = true

	case err != nil:
		return false, fmt.Errorf("failed to lock recommendation row: %w", err)

	default:
		// Replace everything except achieved_savings_usd, which is only
		// mutated through SetAchievedSavings.
		update := `
			UPDATE cost_recommendations SET
				payer_account_id = $2, payer_account_name = $3,
				usage_account_name = $4, product_code = $5, source = $6,
				potential_savings_usd = $7, potentials_saving_percentage = $8,
				unblended_cost = $9, amortized_cost = $10,
				current_config = $11, recommended_config = $12,
				implementation_details = $13,
				query_date = $14, last_updated = $15
			WHERE id = $1`

		_, err = tx.Exec(ctx, update,
			existingID,
			rec.PayerAccountID, rec.PayerAccountName, rec.UsageAccountName, rec.ProductCode, rec.Source,
			rec.PotentialSavingsUSD.String(), rec.PotentialSavingsPercentage.String(),
			rec.UnblendedCost.String(), rec.AmortizedCost.String(),
			jsonbOrNull(rec.CurrentConfig), jsonbOrNull(rec.RecommendedConfig), jsonbOrNull(rec.ImplementationDetails),
			rec.QueryDate, now,
		)
		if err != nil {
			return false, fmt.Errorf("failed to update recommendation: %w", err)
		}
		rec.ID = existingID
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit recommendation upsert: %w", err)
	}

	rec.LastUpdated = now
	return created, nil
}

func (r *recommendationRepository) SetAchievedSavings(ctx context.Context, key models.RecommendationKey, amount decimal.Decimal) error {
	scope, ok := database.GetPartitionScope(ctx)
	if !ok {
		return fmt.Errorf("no partition scope in context")
	}

	result, err := scope.Conn.Exec(ctx,
		`UPDATE cost_recommendations
		SET achieved_savings_usd = $6, last_updated = $7
		WHERE `+naturalKeyWhere,
		key.UsageAccountID, key.QueryTitle, key.ResourceID, key.Year, key.Month,
		amount.String(), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record achieved savings: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *recommendationRepository) List(ctx context.Context, opts ListRecommendationsOptions) ([]*models.RecommendationRecord, int, *models.CostSummary, error) {
	scope, ok := database.GetPartitionScope(ctx)
	if !ok {
		return nil, 0, nil, fmt.Errorf("no partition scope in context")
	}

	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	var conditions []string
	var args []any
	addFilter := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	addFilter("query_title", opts.QueryTitle)
	addFilter("product_code", opts.ProductCode)
	addFilter("year", opts.Year)
	addFilter("month", opts.Month)

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := scope.Conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM cost_recommendations `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, nil, fmt.Errorf("failed to count recommendations: %w", err)
	}

	var potentialStr, achievedStr string
	if err := scope.Conn.QueryRow(ctx,
		`SELECT COALESCE(SUM(potential_savings_usd), 0)::text,
			COALESCE(SUM(achieved_savings_usd), 0)::text
		FROM cost_recommendations `+where, args...,
	).Scan(&potentialStr, &achievedStr); err != nil {
		return nil, 0, nil, fmt.Errorf("failed to aggregate cost summary: %w", err)
	}
	summary, err := parseCostSummary(potentialStr, achievedStr)
	if err != nil {
		return nil, 0, nil, err
	}

	query := fmt.Sprintf(`SELECT `+recommendationColumns+`
		FROM cost_recommendations
		%s
		ORDER BY query_title, resource_id, year, month
		OFFSET $%d LIMIT $%d`, where, len(args)+1, len(args)+2)
	args = append(args, opts.Offset, opts.Limit)

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var records []*models.RecommendationRecord
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, 0, nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, nil, fmt.Errorf("error iterating recommendations: %w", err)
	}

	return records, total, summary, nil
}

// recommendationFacetColumns are the columns surfaced as filter facets.
var recommendationFacetColumns = []string{
	"query_title", "resource_id", "product_code", "year", "month", "source",
}

func (r *recommendationRepository) Facets(ctx context.Context) (map[string][]string, error) {
	scope, ok := database.GetPartitionScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no partition scope in context")
	}

	facets := make(map[string][]string, len(recommendationFacetColumns))
	for _, column := range recommendationFacetColumns {
		// Column names come from the fixed list above, never from input.
		query := fmt.Sprintf(`SELECT DISTINCT %s FROM cost_recommendations WHERE %s IS NOT NULL ORDER BY %s`, column, column, column)
		rows, err := scope.Conn.Query(ctx, query)
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

func scanRecommendation(row pgx.Row) (*models.RecommendationRecord, error) {
	var rec models.RecommendationRecord
	var potential, percentage, unblended, amortized, achieved string
	var source *string
	var currentConfig, recommendedConfig, implementationDetails []byte

	err := row.Scan(
		&rec.ID,
		&rec.UsageAccountID,
		&rec.QueryTitle,
		&rec.ResourceID,
		&rec.Year,
		&rec.Month,
		&rec.PayerAccountID,
		&rec.PayerAccountName,
		&rec.UsageAccountName,
		&rec.ProductCode,
		&source,
		&potential,
		&percentage,
		&unblended,
		&amortized,
		&achieved,
		&currentConfig,
		&recommendedConfig,
		&implementationDetails,
		&rec.QueryDate,
		&rec.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan recommendation: %w", err)
	}

	if source != nil {
		rec.Source = *source
	}
	rec.CurrentConfig = currentConfig
	rec.RecommendedConfig = recommendedConfig
	rec.ImplementationDetails = implementationDetails

	for _, amount := range []struct {
		text string
		dst  *decimal.Decimal
	}{
		{potential, &rec.PotentialSavingsUSD},
		{percentage, &rec.PotentialSavingsPercentage},
		{unblended, &rec.UnblendedCost},
		{amortized, &rec.AmortizedCost},
		{achieved, &rec.AchievedSavingsUSD},
	} {
		d, err := decimal.NewFromString(amount.text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse monetary column %q: %w", amount.text, err)
		}
		*amount.dst = d
	}

	return &rec, nil
}

func parseCostSummary(potential, achieved string) (*models.CostSummary, error) {
	p, err := decimal.NewFromString(potential)
	if err != nil {
		return nil, fmt.Errorf("failed to parse potential savings sum: %w", err)
	}
	a, err := decimal.NewFromString(achieved)
	if err != nil {
		return nil, fmt.Errorf("failed to parse achieved savings sum: %w", err)
	}
	return &models.CostSummary{
		TotalPotentialSavings: p,
		TotalAchievedSavings:  a,
	}, nil
}

// jsonbOrNull stores NULL for absent config payloads instead of an empty
// byte string, which jsonb would reject.
func jsonbOrNull(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
