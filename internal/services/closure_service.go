package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sahakari/backoffice/internal/middleware"
	"github.com/sahakari/backoffice/internal/models"
)

type ClosureService struct {
	db        *sql.DB
	sequencer *SequencerService
	poster    *PostingService
	accounts  *AccountService
	audit     *AuditLogger
	validator *ValidationHelper
	printer   *message.Printer

	cashGlAccount            string
	savingsGlAccount         string
	penaltyIncomeGlAccount   string
	interestPayableGlAccount string
}

func NewClosureService(db *sql.DB) *ClosureService {
	viper.SetDefault("gl.cash_account", "110001")
	viper.SetDefault("gl.savings_account", "210001")
	viper.SetDefault("gl.penalty_income_account", "410005")
	viper.SetDefault("gl.interest_payable_account", "220010")

	return &ClosureService{
		db:                       db,
		sequencer:                NewSequencerService(),
		poster:                   NewPostingService(),
		accounts:                 NewAccountService(),
		audit:                    NewAuditLogger(),
		validator:                NewValidationHelper(),
		printer:                  message.NewPrinter(language.MustParse("en-IN")),
		cashGlAccount:            viper.GetString("gl.cash_account"),
		savingsGlAccount:         viper.GetString("gl.savings_account"),
		penaltyIncomeGlAccount:   viper.GetString("gl.penalty_income_account"),
		interestPayableGlAccount: viper.GetString("gl.interest_payable_account"),
	}
}

// ClosureFigures are the settlement amounts for closing a deposit account.
type ClosureFigures struct {
	InterestDue decimal.Decimal `json:"interestDue"`
	Penalty     decimal.Decimal `json:"penalty"`
	Payout      decimal.Decimal `json:"payout"`
	IsPremature bool            `json:"isPremature"`
}

// ComputeClosure derives the default settlement figures. Interest accrual
// itself happens in a separate job; the accrued/paid figures on the
// extension row are inputs here. The penalty is a default the teller may
// override up to submission.
func ComputeClosure(acct *models.DepositAccount, detail *models.DepositDetail, now time.Time) ClosureFigures {
	figures := ClosureFigures{
		IsPremature: acct.AccountStatus == models.DepositStatusActive && now.Before(detail.MaturityDate),
	}

	figures.InterestDue = detail.InterestAccrued.Sub(detail.InterestPaid)
	if figures.InterestDue.IsNegative() {
		figures.InterestDue = decimal.Zero
	}

	if figures.IsPremature && detail.PrematureClosureAllowed {
		figures.Penalty = detail.InterestAccrued.
			Mul(detail.PenalInterestRate).
			Div(decimal.NewFromInt(100)).
			Round(2)
	}

	figures.Payout = acct.ClearBalance.Sub(figures.Penalty).Add(figures.InterestDue)
	return figures
}

// ClosureRequest is the POST /api/deposits/closure body. PayoutAmount and
// PenaltyAmount are what the teller confirmed on screen; the server
// recomputes the payout from its own figures and the submitted penalty and
// rejects on disagreement.
type ClosureRequest struct {
	AccountNumber  string               `json:"accountNumber" validate:"required"`
	PayoutAmount   decimal.Decimal      `json:"payoutAmount"`
	PenaltyAmount  decimal.Decimal      `json:"penaltyAmount"`
	Narration      string               `json:"narration" validate:"max=200"`
	VoucherType    string               `json:"voucherType" validate:"required,oneof=CASH TRANSFER"`
	SelectedBatch  int64                `json:"selectedBatch"`
	CreditAccounts []CreditAccountInput `json:"creditAccounts" validate:"omitempty,dive"`
}

type CreditAccountInput struct {
	AccountNumber string          `json:"accountNumber" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

// PreviewClosure handles GET /api/deposits/closure
// @Summary Preview closure settlement figures
// @Description Computes the default interest, penalty and payout for closing an account
// @Tags deposits
// @Produce json
// @Param account query string true "Deposit account number"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deposits/closure [get]
func (s *ClosureService) PreviewClosure(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromRequest(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accountNumber := r.URL.Query().Get("account")
	if accountNumber == "" {
		SendErrorResponse(w, "account query parameter is required", http.StatusBadRequest, nil)
		return
	}

	acct, detail, err := s.fetchAccountWithDetail(rc.BranchID, accountNumber)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[CLOSURE] Failed to fetch account %s: %v", accountNumber, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	figures := ComputeClosure(acct, detail, rc.BusinessDate)

	SendJSON(w, http.StatusOK, map[string]any{
		"account":     acct,
		"interestDue": figures.InterestDue,
		"penalty":     figures.Penalty,
		"payout":      figures.Payout,
		"isPremature": figures.IsPremature,
	})
}

// CloseAccount handles POST /api/deposits/closure
// @Summary Close a deposit account
// @Description Settles a deposit account with a balanced closure voucher and marks it closed
// @Tags deposits
// @Accept json
// @Produce json
// @Param request body ClosureRequest true "Closure request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /deposits/closure [post]
func (s *ClosureService) CloseAccount(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromRequest(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req ClosureRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}
	if !req.PayoutAmount.IsPositive() {
		SendErrorResponse(w, "Payout amount must be greater than zero", http.StatusBadRequest, nil)
		return
	}
	if req.PenaltyAmount.IsNegative() {
		SendErrorResponse(w, "Penalty amount cannot be negative", http.StatusBadRequest, nil)
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[CLOSURE] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process closure", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	acct, detail, err := s.lockAccountWithDetail(tx, rc.BranchID, req.AccountNumber)
	if err != nil {
		s.respondClosureError(w, rc, req.AccountNumber, err)
		return
	}

	switch acct.AccountStatus {
	case models.DepositStatusActive, models.DepositStatusMatured, models.DepositStatusMaturedUnpaid:
		// closeable
	default:
		s.respondClosureError(w, rc, req.AccountNumber,
			fmt.Errorf("%w: status %d does not permit closure", models.ErrInactiveAccount, acct.AccountStatus))
		return
	}

	figures := ComputeClosure(acct, detail, rc.BusinessDate)
	if figures.IsPremature && !detail.PrematureClosureAllowed {
		SendErrorResponse(w, "Premature closure is not permitted for this scheme", http.StatusBadRequest, nil)
		return
	}

	// The teller may override the default penalty; the payout must then be
	// balance - penalty + interestDue exactly, to the paisa.
	penalty := req.PenaltyAmount
	payout := acct.ClearBalance.Sub(penalty).Add(figures.InterestDue)
	if req.PayoutAmount.Sub(payout).Abs().GreaterThan(amountTolerance) {
		s.respondClosureError(w, rc, req.AccountNumber,
			fmt.Errorf("%w: submitted payout %s, computed %s",
				models.ErrAmountMismatch, req.PayoutAmount.StringFixed(2), payout.StringFixed(2)))
		return
	}

	if req.VoucherType == models.VoucherTypeTransfer {
		if len(req.CreditAccounts) == 0 {
			SendErrorResponse(w, "Transfer closures require at least one credit account", http.StatusBadRequest, nil)
			return
		}
		var creditTotal decimal.Decimal
		for _, ca := range req.CreditAccounts {
			if !ca.Amount.IsPositive() {
				SendErrorResponse(w, "Credit amounts must be greater than zero", http.StatusBadRequest, nil)
				return
			}
			creditTotal = creditTotal.Add(ca.Amount)
		}
		if !creditTotal.Equal(payout) {
			s.respondClosureError(w, rc, req.AccountNumber,
				fmt.Errorf("%w: credits total %s, payout %s",
					models.ErrAmountMismatch, creditTotal.StringFixed(2), payout.StringFixed(2)))
			return
		}
	}

	alloc, err := s.sequencer.Allocate(tx, rc, req.SelectedBatch, req.VoucherType)
	if err != nil {
		s.respondClosureError(w, rc, req.AccountNumber, err)
		return
	}

	// Closure leg set: the deposit liability is extinguished by balance, the
	// accrued interest owed is debited, and the proceeds split between the
	// payout leg(s) and penalty income. balance + interestDue = payout + penalty.
	legs := make([]Leg, 0, len(req.CreditAccounts)+3)
	legs = append(legs, Leg{AccountCode: acct.DepositGlAccount, RefAccountID: acct.AccountNumber, Debit: acct.ClearBalance})
	if figures.InterestDue.IsPositive() {
		legs = append(legs, Leg{AccountCode: s.interestPayableGlAccount, RefAccountID: acct.AccountNumber, Debit: figures.InterestDue})
	}
	if penalty.IsPositive() {
		legs = append(legs, Leg{AccountCode: s.penaltyIncomeGlAccount, RefAccountID: acct.AccountNumber, Credit: penalty})
	}
	if req.VoucherType == models.VoucherTypeCash {
		legs = append(legs, Leg{AccountCode: s.cashGlAccount, Credit: payout})
	} else {
		for _, ca := range req.CreditAccounts {
			savings, err := s.accounts.LockSavingsAccount(tx, rc.BranchID, ca.AccountNumber)
			if err != nil {
				s.respondClosureError(w, rc, req.AccountNumber, err)
				return
			}
			if _, err := s.accounts.CreditSavings(tx, savings, ca.Amount); err != nil {
				s.respondClosureError(w, rc, req.AccountNumber, err)
				return
			}
			legs = append(legs, Leg{AccountCode: s.savingsGlAccount, RefAccountID: ca.AccountNumber, Credit: ca.Amount})
		}
	}

	if err := s.poster.Post(tx, rc, alloc.BatchID, alloc.VoucherNo, legs, req.Narration); err != nil {
		s.respondClosureError(w, rc, req.AccountNumber, err)
		return
	}

	if figures.InterestDue.IsPositive() {
		if err := s.recordInterestPaid(tx, acct, figures.InterestDue); err != nil {
			s.respondClosureError(w, rc, req.AccountNumber, err)
			return
		}
	}

	closedStatus := models.DepositStatusClosed
	if figures.IsPremature {
		closedStatus = models.DepositStatusPremature
	}
	if err := s.accounts.CloseDepositAccount(tx, rc, acct.AccountNumber, closedStatus, alloc.VoucherNo); err != nil {
		s.respondClosureError(w, rc, req.AccountNumber, err)
		return
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[CLOSURE] Failed to commit voucher %d: %v", alloc.VoucherNo, err)
		s.audit.LogError(rc.BranchID, req.AccountNumber, err)
		SendErrorResponse(w, "Failed to process closure", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogClosure(rc.BranchID, alloc.BatchID, alloc.VoucherNo, acct.AccountNumber, payout, penalty)

	msg := s.printer.Sprintf("Account %s closed, INR %v paid out vide voucher no. %d",
		acct.AccountNumber,
		number.Decimal(payout.InexactFloat64(), number.MaxFractionDigits(2)),
		alloc.VoucherNo)

	SendJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"voucher_no": alloc.VoucherNo,
		"batch_id":   alloc.BatchID,
		"payout":     payout,
		"penalty":    penalty,
		"message":    msg,
	})
}

func (s *ClosureService) respondClosureError(w http.ResponseWriter, rc *middleware.RequestContext, accountNumber string, err error) {
	s.audit.LogError(rc.BranchID, accountNumber, err)

	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrSavingsAccountNotFound):
		SendErrorResponse(w, "Savings account not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrBatchNotFound):
		SendErrorResponse(w, "Selected batch not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrAmountMismatch),
		errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrUnbalancedVoucher),
		errors.Is(err, models.ErrInactiveAccount):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	default:
		log.Printf("[CLOSURE] Closure failed for %s: %v", accountNumber, err)
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
	}
}

// detailTable maps a deposit type to its 1:1 extension table.
func detailTable(depositType string) (string, error) {
	switch depositType {
	case models.DepositTypeTerm:
		return "term_deposit_details", nil
	case models.DepositTypeRecurring:
		return "recurring_deposit_details", nil
	case models.DepositTypePigmy:
		return "pigmy_deposit_details", nil
	default:
		return "", fmt.Errorf("unknown deposit type %q", depositType)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.DepositAccount, error) {
	var acct models.DepositAccount
	err := row.Scan(
		&acct.AccountNumber, &acct.BranchID, &acct.MembershipNo, &acct.DepositType, &acct.SchemeID,
		&acct.ClearBalance, &acct.UnclearBalance, &acct.AccountStatus, &acct.DepositGlAccount)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

const accountColumns = `account_number, branch_id, membership_no, deposit_type, scheme_id, clearbalance, unclearbalance, accountstatus, deposit_gl_account`

func (s *ClosureService) fetchAccountWithDetail(branchID int64, accountNumber string) (*models.DepositAccount, *models.DepositDetail, error) {
	row := s.db.QueryRow(`
		SELECT `+accountColumns+`
		FROM deposit_account
		WHERE account_number = $1 AND branch_id = $2`,
		accountNumber, branchID)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, nil, err
	}

	detail, err := s.fetchDetail(s.db.QueryRow, acct)
	if err != nil {
		return nil, nil, err
	}
	return acct, detail, nil
}

func (s *ClosureService) lockAccountWithDetail(tx *sql.Tx, branchID int64, accountNumber string) (*models.DepositAccount, *models.DepositDetail, error) {
	row := tx.QueryRow(`
		SELECT `+accountColumns+`
		FROM deposit_account
		WHERE account_number = $1 AND branch_id = $2
		FOR UPDATE`,
		accountNumber, branchID)
	acct, err := scanAccount(row)
	if err != nil {
		return nil, nil, err
	}

	detail, err := s.fetchDetail(tx.QueryRow, acct)
	if err != nil {
		return nil, nil, err
	}
	return acct, detail, nil
}

func (s *ClosureService) fetchDetail(queryRow func(query string, args ...any) *sql.Row, acct *models.DepositAccount) (*models.DepositDetail, error) {
	table, err := detailTable(acct.DepositType)
	if err != nil {
		return nil, err
	}

	var detail models.DepositDetail
	detail.AccountNumber = acct.AccountNumber
	err = queryRow(`
		SELECT maturity_date, maturity_amount, interest_accrued, interest_paid, penal_interest_rate, premature_closure_allowed
		FROM `+table+`
		WHERE account_number = $1`,
		acct.AccountNumber).Scan(
		&detail.MaturityDate, &detail.MaturityAmount, &detail.InterestAccrued,
		&detail.InterestPaid, &detail.PenalInterestRate, &detail.PrematureClosureAllowed)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: missing %s row for %s", models.ErrAccountNotFound, table, acct.AccountNumber)
	}
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

func (s *ClosureService) recordInterestPaid(tx *sql.Tx, acct *models.DepositAccount, interestDue decimal.Decimal) error {
	table, err := detailTable(acct.DepositType)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`
		UPDATE `+table+`
		SET interest_paid = interest_paid + $1
		WHERE account_number = $2`,
		interestDue, acct.AccountNumber)
	return err
}
