package models

import "time"

// Account is one entry in the tenant directory: a usage account under a
// payer, entitled to an isolated recommendation partition. Rows are
// maintained by the billing sync as it discovers accounts.
type Account struct {
	UsageAccountID   string    `json:"usage_account_id"`
	UsageAccountName string    `json:"usage_account_name"`
	PayerAccountID   string    `json:"payer_account_id"`
	PayerAccountName string    `json:"payer_account_name"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
