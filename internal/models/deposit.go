package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deposit account status codes as stored in deposit_account.accountstatus.
const (
	DepositStatusActive        = 1
	DepositStatusMatured       = 2
	DepositStatusClosed        = 3
	DepositStatusPremature     = 4
	DepositStatusMaturedUnpaid = 6
)

const (
	DepositTypeTerm      = "TERM"
	DepositTypeRecurring = "RECURRING"
	DepositTypePigmy     = "PIGMY"
)

// DepositAccount is the denormalized account header row. Column names keep
// the legacy schema's casing (clearbalance, accountstatus).
type DepositAccount struct {
	AccountNumber    string          `json:"account_number" db:"account_number"`
	BranchID         int64           `json:"branch_id" db:"branch_id"`
	MembershipNo     string          `json:"membership_no" db:"membership_no"`
	DepositType      string          `json:"deposit_type" db:"deposit_type"`
	SchemeID         int64           `json:"scheme_id" db:"scheme_id"`
	ClearBalance     decimal.Decimal `json:"clearbalance" db:"clearbalance"`
	UnclearBalance   decimal.Decimal `json:"unclearbalance" db:"unclearbalance"`
	AccountStatus    int             `json:"accountstatus" db:"accountstatus"`
	DepositGlAccount string          `json:"deposit_gl_account" db:"deposit_gl_account"`
	OpenedDate       time.Time       `json:"opened_date" db:"opened_date"`
}

// DepositDetail is the 1:1 extension row (term_deposit_details,
// recurring_deposit_details or pigmy_deposit_details depending on the
// account's deposit type). The posting core reads the same columns from all
// three tables; the installment fields are populated for recurring accounts
// only.
type DepositDetail struct {
	AccountNumber           string          `json:"account_number"`
	MaturityDate            time.Time       `json:"maturity_date"`
	MaturityAmount          decimal.Decimal `json:"maturity_amount"`
	InterestAccrued         decimal.Decimal `json:"interest_accrued"`
	InterestPaid            decimal.Decimal `json:"interest_paid"`
	PenalInterestRate       decimal.Decimal `json:"penal_interest_rate"`
	PrematureClosureAllowed bool            `json:"premature_closure_allowed"`
	InstallmentAmount       decimal.Decimal `json:"installment_amount"`
	InstallmentsPaid        int             `json:"numberofinstalmentspaid"`
	NextInstallmentDate     time.Time       `json:"nextinstalmentdate"`
}

// RdInstallment is one scheduled recurring-deposit installment. Rows are
// created at account opening and only ever mutated to "paid"; never deleted.
type RdInstallment struct {
	ID                int64           `json:"id" db:"id"`
	AccountNumber     string          `json:"account_number" db:"account_number"`
	InstallmentNumber int             `json:"installment_number" db:"installment_number"`
	InstallmentAmount decimal.Decimal `json:"installment_amount" db:"installment_amount"`
	DueDate           time.Time       `json:"due_date" db:"due_date"`
	PaidDate          *time.Time      `json:"installment_paid_date" db:"installment_paid_date"`
	VoucherNo         *int64          `json:"installment_voucher_no" db:"installment_voucher_no"`
	PenaltyCollected  decimal.Decimal `json:"penalty_collected" db:"penalty_collected"`
}
