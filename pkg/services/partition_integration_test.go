package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/audit"
	"github.com/trucost-labs/trucost-engine/pkg/models"
	"github.com/trucost-labs/trucost-engine/pkg/repositories"
	"github.com/trucost-labs/trucost-engine/pkg/testhelpers"
)

// Exercises the full partition path against a real database: directory
// lookup, schema creation, search_path pinning, and the recommendation
// store inside the partition.
func TestRecommendationService_Integration(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()

	accountRepo := repositories.NewAccountRepository(db.DB)
	recRepo := repositories.NewRecommendationRepository()
	partitioner := NewTenantPartitioner(db.DB, accountRepo, "acct_", logger)
	trail := audit.NewTrail(logger)
	accountSvc := NewAccountService(accountRepo, trail, logger)
	svc := NewRecommendationService(partitioner, recRepo, trail, logger)

	require.NoError(t, accountSvc.Register(ctx, &models.Account{
		UsageAccountID: "555500001111",
		Active:         true,
	}))
	require.NoError(t, accountSvc.Register(ctx, &models.Account{
		UsageAccountID: "555500002222",
		Active:         true,
	}))
	require.NoError(t, accountSvc.Register(ctx, &models.Account{
		UsageAccountID: "555500003333",
		Active:         false,
	}))

	rec := &models.RecommendationRecord{
		RecommendationKey: models.RecommendationKey{
			UsageAccountID: "555500001111",
			QueryTitle:     "idle_ec2_instances",
			ResourceID:     "i-0abc123",
			Year:           "2026",
			Month:          "03",
		},
		ProductCode:         "AmazonEC2",
		PotentialSavingsUSD: decimal.RequireFromString("142.50"),
		UnblendedCost:       decimal.RequireFromString("310.00"),
		CurrentConfig:       json.RawMessage(`{"instance_type": "m5.4xlarge"}`),
		RecommendedConfig:   json.RawMessage(`{"instance_type": "m5.xlarge"}`),
		QueryDate:           time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("upsert creates partition and row", func(t *testing.T) {
		created, err := svc.Upsert(ctx, "555500001111", rec)
		require.NoError(t, err)
		assert.True(t, created)
		assert.NotZero(t, rec.ID)
	})

	t.Run("reingestion preserves achieved savings", func(t *testing.T) {
		achieved := decimal.RequireFromString("55.25")
		require.NoError(t, svc.RecordAchievedSavings(ctx, "555500001111",
			rec.RecommendationKey, achieved))

		refresh := *rec
		refresh.ID = 0
		refresh.PotentialSavingsUSD = decimal.RequireFromString("120.00")
		created, err := svc.Upsert(ctx, "555500001111", &refresh)
		require.NoError(t, err)
		assert.False(t, created)

		got, err := svc.Get(ctx, "555500001111", rec.RecommendationKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.PotentialSavingsUSD.Equal(decimal.RequireFromString("120.00")))
		assert.True(t, got.AchievedSavingsUSD.Equal(achieved))
		assert.JSONEq(t, `{"instance_type": "m5.xlarge"}`, string(got.RecommendedConfig))
	})

	t.Run("partitions are isolated per account", func(t *testing.T) {
		other := *rec
		other.ID = 0
		other.UsageAccountID = "555500002222"
		created, err := svc.Upsert(ctx, "555500002222", &other)
		require.NoError(t, err)
		assert.True(t, created, "same natural key in another partition is a fresh row")

		_, total, _, err := svc.List(ctx, "555500002222", repositories.ListRecommendationsOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)

		_, total, _, err = svc.List(ctx, "555500001111", repositories.ListRecommendationsOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("list filters and summarizes", func(t *testing.T) {
		second := *rec
		second.ID = 0
		second.ResourceID = "i-0def456"
		second.PotentialSavingsUSD = decimal.RequireFromString("10.00")
		_, err := svc.Upsert(ctx, "555500001111", &second)
		require.NoError(t, err)

		records, total, summary, err := svc.List(ctx, "555500001111",
			repositories.ListRecommendationsOptions{QueryTitle: "idle_ec2_instances"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, records, 2)
		require.NotNil(t, summary)
		assert.True(t, summary.TotalPotentialSavings.Equal(decimal.RequireFromString("130.00")))
		assert.True(t, summary.TotalAchievedSavings.Equal(decimal.RequireFromString("55.25")))
	})

	t.Run("facets", func(t *testing.T) {
		facets, err := svc.Facets(ctx, "555500001111")
		require.NoError(t, err)
		assert.Contains(t, facets["query_title"], "idle_ec2_instances")
		assert.ElementsMatch(t, []string{"i-0abc123", "i-0def456"}, facets["resource_id"])
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		_, err := svc.Get(ctx, "999999999999", rec.RecommendationKey)
		assert.ErrorIs(t, err, apperrors.ErrUnknownTenant)
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		_, err := svc.Facets(ctx, "555500003333")
		assert.ErrorIs(t, err, apperrors.ErrUnknownTenant)
	})
}

// Two ingestions racing to create the same natural key must both succeed:
// exactly one creates the row, the other serializes into the update path.
func TestRecommendationService_Integration_ConcurrentFirstIngestion(t *testing.T) {
	db := testhelpers.GetTestDB(t)
	ctx := context.Background()
	logger := zap.NewNop()

	accountRepo := repositories.NewAccountRepository(db.DB)
	recRepo := repositories.NewRecommendationRepository()
	partitioner := NewTenantPartitioner(db.DB, accountRepo, "acct_", logger)
	trail := audit.NewTrail(logger)
	accountSvc := NewAccountService(accountRepo, trail, logger)
	svc := NewRecommendationService(partitioner, recRepo, trail, logger)

	require.NoError(t, accountSvc.Register(ctx, &models.Account{
		UsageAccountID: "555500004444",
		Active:         true,
	}))

	// Prime the partition so the race below is over the row, not the schema.
	primer := validRecommendation("555500004444")
	primer.ResourceID = "i-0primer"
	_, err := svc.Upsert(ctx, "555500004444", primer)
	require.NoError(t, err)

	type result struct {
		created bool
		err     error
	}

	results := make(chan result, 2)
	var wg sync.WaitGroup
	for _, savings := range []string{"80.00", "95.00"} {
		wg.Add(1)
		go func(savings string) {
			defer wg.Done()
			rec := validRecommendation("555500004444")
			rec.ResourceID = "i-0contended"
			rec.PotentialSavingsUSD = decimal.RequireFromString(savings)
			created, err := svc.Upsert(ctx, "555500004444", rec)
			results <- result{created: created, err: err}
		}(savings)
	}
	wg.Wait()
	close(results)

	createdCount := 0
	for res := range results {
		require.NoError(t, res.err)
		if res.created {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount)

	key := validRecommendation("555500004444").RecommendationKey
	key.ResourceID = "i-0contended"
	got, err := svc.Get(ctx, "555500004444", key)
	require.NoError(t, err)
	assert.True(t,
		got.PotentialSavingsUSD.Equal(decimal.RequireFromString("80.00")) ||
			got.PotentialSavingsUSD.Equal(decimal.RequireFromString("95.00")),
		"stored savings %s matches neither writer", got.PotentialSavingsUSD)
}
