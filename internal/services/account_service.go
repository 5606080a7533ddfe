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

// AccountService applies the denormalized balance deltas that follow a
// posting: savings debits/credits, RD installment marking and the closure
// state transition. All methods run on the caller's transaction.
type AccountService struct{}

func NewAccountService() *AccountService {
	return &AccountService{}
}

// LockSavingsAccount reads a savings account under FOR UPDATE, serializing
// concurrent postings against it for the rest of the transaction.
func (s *AccountService) LockSavingsAccount(tx *sql.Tx, branchID int64, accountNumber string) (*models.SavingsAccount, error) {
	var acct models.SavingsAccount
	err := tx.QueryRow(`
		SELECT account_number, branch_id, available_balance, clear_balance, accountstatus
		FROM savings_accounts
		WHERE account_number = $1 AND branch_id = $2
		FOR UPDATE`,
		accountNumber, branchID).Scan(
		&acct.AccountNumber, &acct.BranchID, &acct.AvailableBalance, &acct.ClearBalance, &acct.AccountStatus)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrSavingsAccountNotFound, accountNumber)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// DebitSavings withdraws amount from a locked savings account. The overdraw
// check happens against the balance read at lock time, before any write.
func (s *AccountService) DebitSavings(tx *sql.Tx, acct *models.SavingsAccount, amount decimal.Decimal) (decimal.Decimal, error) {
	if acct.AccountStatus != models.SavingsStatusActive {
		return decimal.Zero, fmt.Errorf("%w: savings account %s", models.ErrInactiveAccount, acct.AccountNumber)
	}
	if amount.GreaterThan(acct.AvailableBalance) {
		return decimal.Zero, fmt.Errorf("%w: account %s has %s, requested %s",
			models.ErrInsufficientFunds, acct.AccountNumber,
			acct.AvailableBalance.StringFixed(2), amount.StringFixed(2))
	}

	_, err := tx.Exec(`
		UPDATE savings_accounts
		SET available_balance = available_balance - $1,
		    clear_balance = clear_balance - $1,
		    updated_at = $2
		WHERE account_number = $3 AND branch_id = $4`,
		amount, time.Now(), acct.AccountNumber, acct.BranchID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := acct.AvailableBalance.Sub(amount)
	log.Printf("[ACCOUNTS] Savings %s debited %s, available now %s",
		acct.AccountNumber, amount.StringFixed(2), newBalance.StringFixed(2))
	return newBalance, nil
}

// CreditSavings deposits amount into a locked savings account.
func (s *AccountService) CreditSavings(tx *sql.Tx, acct *models.SavingsAccount, amount decimal.Decimal) (decimal.Decimal, error) {
	_, err := tx.Exec(`
		UPDATE savings_accounts
		SET available_balance = available_balance + $1,
		    clear_balance = clear_balance + $1,
		    updated_at = $2
		WHERE account_number = $3 AND branch_id = $4`,
		amount, time.Now(), acct.AccountNumber, acct.BranchID)
	if err != nil {
		return decimal.Zero, err
	}

	newBalance := acct.AvailableBalance.Add(amount)
	log.Printf("[ACCOUNTS] Savings %s credited %s, available now %s",
		acct.AccountNumber, amount.StringFixed(2), newBalance.StringFixed(2))
	return newBalance, nil
}

// SelectedInstallment is one installment the teller picked for settlement.
type SelectedInstallment struct {
	ID                int64           `json:"id" validate:"required"`
	InstallmentNumber int             `json:"installment_number"`
	Penalty           decimal.Decimal `json:"penalty"`
}

// MarkInstallmentsPaid settles RD installments against a credit voucher.
// With an explicit selection each listed row is marked; otherwise the single
// lowest-numbered unpaid installment is marked with zero penalty. The paid
// count and next-installment date on recurring_deposit_details advance by
// the number of installments settled.
func (s *AccountService) MarkInstallmentsPaid(tx *sql.Tx, rc *middleware.RequestContext, accountNumber string, voucherNo int64, selected []SelectedInstallment) (int, error) {
	settled := 0

	if len(selected) == 0 {
		var id int64
		err := tx.QueryRow(`
			SELECT id FROM rd_installment_details
			WHERE account_number = $1 AND installment_paid_date IS NULL
			ORDER BY installment_number
			LIMIT 1
			FOR UPDATE`,
			accountNumber).Scan(&id)
		if err == sql.ErrNoRows {
			// All installments settled already; the credit still posts.
			return 0, nil
		}
		if err != nil {
			return 0, err
		}

		_, err = tx.Exec(`
			UPDATE rd_installment_details
			SET installment_paid_date = $1, installment_voucher_no = $2, penalty_collected = 0
			WHERE id = $3`,
			rc.BusinessDate, voucherNo, id)
		if err != nil {
			return 0, err
		}
		settled = 1
	} else {
		for _, sel := range selected {
			result, err := tx.Exec(`
				UPDATE rd_installment_details
				SET installment_paid_date = $1, installment_voucher_no = $2, penalty_collected = $3
				WHERE id = $4 AND account_number = $5 AND installment_paid_date IS NULL`,
				rc.BusinessDate, voucherNo, sel.Penalty, sel.ID, accountNumber)
			if err != nil {
				return 0, err
			}
			rows, err := result.RowsAffected()
			if err != nil {
				return 0, err
			}
			if rows == 0 {
				return 0, fmt.Errorf("%w: installment id %d", models.ErrInstallmentNotPayable, sel.ID)
			}
		}
		settled = len(selected)
	}

	if settled > 0 {
		_, err := tx.Exec(`
			UPDATE recurring_deposit_details
			SET numberofinstalmentspaid = numberofinstalmentspaid + $1,
			    nextinstalmentdate = nextinstalmentdate + make_interval(months => $1)
			WHERE account_number = $2`,
			settled, accountNumber)
		if err != nil {
			return 0, err
		}
	}

	log.Printf("[ACCOUNTS] RD %s: %d installment(s) marked paid under voucher %d", accountNumber, settled, voucherNo)
	return settled, nil
}

// CloseDepositAccount records the irreversible closure state transition.
func (s *AccountService) CloseDepositAccount(tx *sql.Tx, rc *middleware.RequestContext, accountNumber string, status int, voucherNo int64) error {
	result, err := tx.Exec(`
		UPDATE deposit_account
		SET accountstatus = $1, closure_date = $2, closure_voucher_no = $3
		WHERE account_number = $4 AND branch_id = $5`,
		status, rc.BusinessDate, voucherNo, accountNumber, rc.BranchID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", models.ErrAccountNotFound, accountNumber)
	}
	return nil
}
