package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sahakari/backoffice/internal/middleware"
	"github.com/sahakari/backoffice/internal/models"
)

// Leg is one line of a voucher. Exactly one of Debit/Credit is non-zero.
// RefAccountID ties the GL line back to the customer account it concerns and
// is empty for cash and income legs.
type Leg struct {
	AccountCode  string
	RefAccountID string
	Debit        decimal.Decimal
	Credit       decimal.Decimal
}

// PostingService persists a balanced set of voucher legs. It never computes
// business amounts; callers hand it a leg set that already balances.
type PostingService struct{}

func NewPostingService() *PostingService {
	return &PostingService{}
}

// Post checks the double-entry invariant and appends one gl_batch_lines row
// per leg on the caller's transaction.
func (s *PostingService) Post(tx *sql.Tx, rc *middleware.RequestContext, batchID, voucherNo int64, legs []Leg, narration string) error {
	var totalDebit, totalCredit decimal.Decimal
	for _, leg := range legs {
		totalDebit = totalDebit.Add(leg.Debit)
		totalCredit = totalCredit.Add(leg.Credit)
	}

	if !totalDebit.Equal(totalCredit) {
		return fmt.Errorf("%w: debit=%s credit=%s",
			models.ErrUnbalancedVoucher, totalDebit.StringFixed(2), totalCredit.StringFixed(2))
	}

	for _, leg := range legs {
		_, err := tx.Exec(`
			INSERT INTO gl_batch_lines
				(branch_id, batch_id, business_date, account_code, ref_account_id, debit_amount, credit_amount, voucher_id, narration, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			rc.BranchID, batchID, rc.BusinessDate, leg.AccountCode, leg.RefAccountID,
			leg.Debit, leg.Credit, voucherNo, narration, rc.UserID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to insert batch line for %s: %w", leg.AccountCode, err)
		}
	}

	log.Printf("[POSTER] Voucher %d: %d legs, total %s", voucherNo, len(legs), totalDebit.StringFixed(2))
	return nil
}
