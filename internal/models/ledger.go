package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	VoucherTypeCash     = "CASH"
	VoucherTypeTransfer = "TRANSFER"
)

const BatchStatusPending = "PENDING"

// GlBatch is the voucher header, unique per (branch_id, batch_id).
type GlBatch struct {
	BranchID    int64     `json:"branch_id" db:"branch_id"`
	BatchID     int64     `json:"batch_id" db:"batch_id"`
	VoucherID   int64     `json:"voucher_id" db:"voucher_id"`
	VoucherType string    `json:"voucher_type" db:"voucher_type"`
	Status      string    `json:"status" db:"status"`
	MakerID     string    `json:"maker_id" db:"maker_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// GlBatchLine is one append-only double-entry line. For any voucher_id the
// debit amounts must sum to the credit amounts; lines are never updated after
// insert.
type GlBatchLine struct {
	ID           int64           `json:"id" db:"id"`
	BranchID     int64           `json:"branch_id" db:"branch_id"`
	BatchID      int64           `json:"batch_id" db:"batch_id"`
	BusinessDate time.Time       `json:"business_date" db:"business_date"`
	AccountCode  string          `json:"account_code" db:"account_code"`
	RefAccountID string          `json:"ref_account_id" db:"ref_account_id"`
	DebitAmount  decimal.Decimal `json:"debit_amount" db:"debit_amount"`
	CreditAmount decimal.Decimal `json:"credit_amount" db:"credit_amount"`
	VoucherID    int64           `json:"voucher_id" db:"voucher_id"`
	Narration    string          `json:"narration" db:"narration"`
	CreatedBy    string          `json:"created_by" db:"created_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
