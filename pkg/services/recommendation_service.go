package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/audit"
	"github.com/trucost-labs/trucost-engine/pkg/database"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
)

// RecommendationService exposes per-account recommendation ingestion and
// reads. Every operation resolves the account's partition first; no call
// ever spans partitions.
type RecommendationService interface {
	// Upsert ingests a recommendation into the account's partition,
	// idempotent on the natural key. Returns true when a new row was
	// created, false when an existing one was refreshed.
	Upsert(ctx context.Context, usageAccountID string, rec *models.RecommendationRecord) (bool, error)

	// RecordAchievedSavings sets achieved_savings_usd for an existing
	// recommendation. This is the only mutation path for that field.
	RecordAchievedSavings(ctx context.Context, usageAccountID string, key models.RecommendationKey, amount decimal.Decimal) error

	// Get returns the recommendation for a natural key, or ErrNotFound
	// when the partition has no row for it.
	Get(ctx context.Context, usageAccountID string, key models.RecommendationKey) (*models.RecommendationRecord, error)

	List(ctx context.Context, usageAccountID string, opts repositories.ListRecommendationsOptions) ([]*models.RecommendationRecord, int, *models.CostSummary, error)

	Facets(ctx context.Context, usageAccountID string) (map[string][]string, error)
}

type recommendationService struct {
	partitioner TenantPartitioner
	recRepo     repositories.RecommendationRepository
	trail       *audit.Trail
	logger      *zap.Logger
}

// NewRecommendationService creates a new RecommendationService.
func NewRecommendationService(
	partitioner TenantPartitioner,
	recRepo repositories.RecommendationRepository,
	trail *audit.Trail,
	logger *zap.Logger,
) RecommendationService {
	return &recommendationService{
		partitioner: partitioner,
		recRepo:     recRepo,
		trail:       trail,
		logger:      logger.Named("recommendation-service"),
	}
}

var _ RecommendationService = (*recommendationService)(nil)

// withPartition resolves the account's partition, ensures its schema, and
// runs fn with the scope placed in the context the way repositories expect.
func (s *recommendationService) withPartition(ctx context.Context, usageAccountID string, fn func(ctx context.Context) error) error {
	scope, err := s.partitioner.Resolve(ctx, usageAccountID)
	if err != nil {
		return err
	}
	defer scope.Close()

	if err := s.partitioner.EnsureSchema(ctx, scope); err != nil {
		return err
	}

	return fn(database.SetPartitionScope(ctx, scope))
}

func (s *recommendationService) Upsert(ctx context.Context, usageAccountID string, rec *models.RecommendationRecord) (bool, error) {
	if rec.UsageAccountID == "" {
		rec.UsageAccountID = usageAccountID
	}
	if rec.UsageAccountID != usageAccountID {
		return false, fmt.Errorf("recommendation account %s does not match target account %s: %w",
			rec.UsageAccountID, usageAccountID, apperrors.ErrInvalidInput)
	}
	if err := rec.Validate(); err != nil {
		return false, err
	}

	var created bool
	err := s.withPartition(ctx, usageAccountID, func(ctx context.Context) error {
		var err error
		created, err = s.recRepo.Upsert(ctx, rec)
		return err
	})
	if err != nil {
		return false, err
	}

	s.logger.Debug("Upserted recommendation",
		zap.String("usage_account_id", usageAccountID),
		zap.String("query_title", rec.QueryTitle),
		zap.String("resource_id", rec.ResourceID),
		zap.Bool("created", created),
	)
	return created, nil
}

func (s *recommendationService) RecordAchievedSavings(ctx context.Context, usageAccountID string, key models.RecommendationKey, amount decimal.Decimal) error {
	if key.UsageAccountID == "" {
		key.UsageAccountID = usageAccountID
	}
	if err := key.Validate(); err != nil {
		return err
	}
	if err := models.ValidateAmount(amount); err != nil {
		return fmt.Errorf("achieved_savings_usd: %w", err)
	}

	err := s.withPartition(ctx, usageAccountID, func(ctx context.Context) error {
		return s.recRepo.SetAchievedSavings(ctx, key, amount)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Recorded achieved savings",
		zap.String("usage_account_id", usageAccountID),
		zap.String("query_title", key.QueryTitle),
		zap.String("resource_id", key.ResourceID),
		zap.String("amount", amount.String()),
	)
	s.trail.Record(audit.Event{
		EventType:      audit.EventAchievedSavingsRecorded,
		UsageAccountID: usageAccountID,
		ResourceID:     key.ResourceID,
		Details: map[string]string{
			"query_title": key.QueryTitle,
			"amount":      amount.String(),
		},
	})
	return nil
}

func (s *recommendationService) Get(ctx context.Context, usageAccountID string, key models.RecommendationKey) (*models.RecommendationRecord, error) {
	if key.UsageAccountID == "" {
		key.UsageAccountID = usageAccountID
	}

	var rec *models.RecommendationRecord
	err := s.withPartition(ctx, usageAccountID, func(ctx context.Context) error {
		var err error
		rec, err = s.recRepo.GetByKey(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.ErrNotFound
	}
	return rec, nil
}

func (s *recommendationService) List(ctx context.Context, usageAccountID string, opts repositories.ListRecommendationsOptions) ([]*models.RecommendationRecord, int, *models.CostSummary, error) {
	var (
		records []*models.RecommendationRecord
		total   int
		summary *models.CostSummary
	)
	err := s.withPartition(ctx, usageAccountID, func(ctx context.Context) error {
		var err error
		records, total, summary, err = s.recRepo.List(ctx, opts)
		return err
	})
	if err != nil {
		return nil, 0, nil, err
	}
	return records, total, summary, nil
}

func (s *recommendationService) Facets(ctx context.Context, usageAccountID string) (map[string][]string, error) {
	var facets map[string][]string
	err := s.withPartition(ctx, usageAccountID, func(ctx context.Context) error {
		var err error
		facets, err = s.recRepo.Facets(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return facets, nil
}
