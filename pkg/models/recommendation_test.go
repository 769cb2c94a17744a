package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{name: "zero", amount: "0", wantErr: false},
		{name: "two decimal places", amount: "1234.56", wantErr: false},
		{name: "one decimal place", amount: "0.5", wantErr: false},
		{name: "negative", amount: "-9999999999.99", wantErr: false},
		{name: "largest valid", amount: "9999999999.99", wantErr: false},
		{name: "ten integer digits exactly", amount: "10000000000", wantErr: true},
		{name: "too large", amount: "10000000000.00", wantErr: true},
		{name: "too small", amount: "-10000000000.00", wantErr: true},
		{name: "three decimal places", amount: "1.005", wantErr: true},
		{name: "sub-cent precision", amount: "0.001", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAmount_TrailingZeroScale(t *testing.T) {
	// 1.50 and 1.5 are the same value; neither exceeds cent precision.
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("1.50")))
	assert.NoError(t, ValidateAmount(decimal.RequireFromString("1.500")))
}

func TestRecommendationKey_Validate(t *testing.T) {
	key := RecommendationKey{
		UsageAccountID: "123456789012",
		QueryTitle:     "idle_ec2_instances",
		ResourceID:     "i-0abc123",
		Year:           "2026",
		Month:          "03",
	}
	assert.NoError(t, key.Validate())

	incomplete := key
	incomplete.Year = ""
	assert.ErrorIs(t, incomplete.Validate(), apperrors.ErrInvalidInput)
}

func TestRecommendationRecord_Validate_NamesBadField(t *testing.T) {
	rec := RecommendationRecord{
		RecommendationKey: RecommendationKey{
			UsageAccountID: "123456789012",
			QueryTitle:     "idle_ec2_instances",
			ResourceID:     "i-0abc123",
			Year:           "2026",
			Month:          "03",
		},
		AmortizedCost: decimal.RequireFromString("3.333"),
	}

	err := rec.Validate()

	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	assert.Contains(t, err.Error(), "amortized_cost")
}
