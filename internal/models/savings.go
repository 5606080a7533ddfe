package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const SavingsStatusActive = 1

// SavingsAccount carries the balance columns touched when a savings account
// is the debit leg of a deposit credit or the payout leg of a closure.
// AvailableBalance is settled funds usable now; ClearBalance additionally
// nets uncleared instruments.
type SavingsAccount struct {
	AccountNumber    string          `json:"account_number" db:"account_number"`
	BranchID         int64           `json:"branch_id" db:"branch_id"`
	AvailableBalance decimal.Decimal `json:"available_balance" db:"available_balance"`
	ClearBalance     decimal.Decimal `json:"clear_balance" db:"clear_balance"`
	AccountStatus    int             `json:"accountstatus" db:"accountstatus"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}
