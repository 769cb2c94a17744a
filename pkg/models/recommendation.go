package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
)

// maxAmount is the exclusive upper bound on monetary magnitude: 10^10.
// Together with the two-decimal scale check this matches NUMERIC(12,2).
var maxAmount = decimal.New(1, 10)

// ValidateAmount rejects monetary values that do not fit NUMERIC(12,2):
// magnitude of 10^10 or more, or more than two fractional digits.
func ValidateAmount(d decimal.Decimal) error {
	if d.Abs().Cmp(maxAmount) >= 0 {
		return fmt.Errorf("magnitude %s exceeds 10 integer digits: %w", d, apperrors.ErrInvalidAmount)
	}
	if !d.Equal(d.Round(2)) {
		return fmt.Errorf("%s has more than 2 decimal digits: %w", d, apperrors.ErrInvalidAmount)
	}
	return nil
}

// RecommendationKey is the natural key identifying one recommendation
// instance per reporting period within a tenant partition.
type RecommendationKey struct {
	UsageAccountID string `json:"usage_account_id"`
	QueryTitle     string `json:"query_title"`
	ResourceID     string `json:"resource_id"`
	Year           string `json:"year"`
	Month          string `json:"month"`
}

// Validate checks that every key component is present.
func (k RecommendationKey) Validate() error {
	if k.UsageAccountID == "" || k.QueryTitle == "" || k.ResourceID == "" ||
		k.Year == "" || k.Month == "" {
		return fmt.Errorf("incomplete recommendation key %+v: %w", k, apperrors.ErrInvalidInput)
	}
	return nil
}

// RecommendationRecord is one cost-saving opportunity for a resource in a
// reporting period. Cost and config fields are replaced wholesale on
// re-ingestion of the same key; AchievedSavingsUSD is only ever changed
// through RecordAchievedSavings.
type RecommendationRecord struct {
	ID int64 `json:"id"`

	RecommendationKey

	PayerAccountID   string `json:"payer_account_id"`
	PayerAccountName string `json:"payer_account_name"`
	UsageAccountName string `json:"usage_account_name"`
	ProductCode      string `json:"product_code"`
	Source           string `json:"source,omitempty"`

	PotentialSavingsUSD        decimal.Decimal `json:"potential_savings_usd"`
	PotentialSavingsPercentage decimal.Decimal `json:"potentials_saving_percentage"`
	UnblendedCost              decimal.Decimal `json:"unblended_cost"`
	AmortizedCost              decimal.Decimal `json:"amortized_cost"`
	AchievedSavingsUSD         decimal.Decimal `json:"achieved_savings_usd"`

	// Structured configuration payloads; schema varies per query_title and
	// product_code, stored opaque.
	CurrentConfig         json.RawMessage `json:"current_config,omitempty"`
	RecommendedConfig     json.RawMessage `json:"recommended_config,omitempty"`
	ImplementationDetails json.RawMessage `json:"implementation_details,omitempty"`

	QueryDate   time.Time `json:"query_date"`
	LastUpdated time.Time `json:"last_updated"`
}

// Validate checks the natural key and every monetary field.
func (r *RecommendationRecord) Validate() error {
	if err := r.RecommendationKey.Validate(); err != nil {
		return err
	}
	amounts := map[string]decimal.Decimal{
		"potential_savings_usd":        r.PotentialSavingsUSD,
		"potentials_saving_percentage": r.PotentialSavingsPercentage,
		"unblended_cost":               r.UnblendedCost,
		"amortized_cost":               r.AmortizedCost,
		"achieved_savings_usd":         r.AchievedSavingsUSD,
	}
	for field, amount := range amounts {
		if err := ValidateAmount(amount); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
	}
	return nil
}

// CostSummary aggregates savings figures over a filtered recommendation set.
type CostSummary struct {
	TotalPotentialSavings decimal.Decimal `json:"total_potential_savings"`
	TotalAchievedSavings  decimal.Decimal `json:"total_achieved_savings"`
}
