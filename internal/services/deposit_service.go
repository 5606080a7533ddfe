package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/sahakari/backoffice/internal/middleware"
	"github.com/sahakari/backoffice/internal/models"
)

// amountTolerance is the rounding slack allowed when matching the payout
// figure a teller confirmed on screen against the server's own computation.
// Leg sums are never given this slack; they must balance to the paisa.
var amountTolerance = decimal.New(1, -2)

type DepositService struct {
	db        *sql.DB
	sequencer *SequencerService
	poster    *PostingService
	accounts  *AccountService
	audit     *AuditLogger
	validator *ValidationHelper
	printer   *message.Printer

	cashGlAccount    string
	savingsGlAccount string
}

func NewDepositService(db *sql.DB) *DepositService {
	viper.SetDefault("gl.cash_account", "110001")
	viper.SetDefault("gl.savings_account", "210001")

	return &DepositService{
		db:               db,
		sequencer:        NewSequencerService(),
		poster:           NewPostingService(),
		accounts:         NewAccountService(),
		audit:            NewAuditLogger(),
		validator:        NewValidationHelper(),
		printer:          message.NewPrinter(language.MustParse("en-IN")),
		cashGlAccount:    viper.GetString("gl.cash_account"),
		savingsGlAccount: viper.GetString("gl.savings_account"),
	}
}

// DepositCreditRequest is the POST /api/deposits/transactions body. Optional
// fields are validated here at the boundary, not deep inside the posting
// flow.
type DepositCreditRequest struct {
	AccountNumber        string                `json:"accountNumber" validate:"required"`
	Amount               decimal.Decimal       `json:"amount"`
	Narration            string                `json:"narration" validate:"max=200"`
	VoucherType          string                `json:"voucherType" validate:"required,oneof=CASH TRANSFER"`
	SelectedBatch        int64                 `json:"selectedBatch"`
	DebitAccounts        []DebitAccountInput   `json:"debitAccounts" validate:"omitempty,dive"`
	SelectedInstallments []SelectedInstallment `json:"selectedInstallments" validate:"omitempty,dive"`
}

type DebitAccountInput struct {
	AccountNumber string          `json:"accountNumber" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
}

// ListTransactions handles GET /api/deposits/transactions
// @Summary List ledger activity for a deposit account
// @Description Returns the account snapshot, its GL batch lines and RD installment schedule
// @Tags deposits
// @Produce json
// @Param account query string true "Deposit account number"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /deposits/transactions [get]
func (s *DepositService) ListTransactions(w http.ResponseWriter, r *http.Request) {
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

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	acct, err := s.fetchDepositAccount(rc.BranchID, accountNumber)
	if err != nil {
		if errors.Is(err, models.ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[DEPOSITS] Failed to fetch account %s: %v", accountNumber, err)
			SendErrorResponse(w, "Failed to fetch account", http.StatusInternalServerError, nil)
		}
		return
	}

	transactions, total, err := s.fetchBatchLines(rc.BranchID, accountNumber, limit, offset)
	if err != nil {
		log.Printf("[DEPOSITS] Failed to fetch transactions for %s: %v", accountNumber, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	installments := []models.RdInstallment{}
	if acct.DepositType == models.DepositTypeRecurring {
		installments, err = s.fetchInstallments(accountNumber)
		if err != nil {
			log.Printf("[DEPOSITS] Failed to fetch installments for %s: %v", accountNumber, err)
			SendErrorResponse(w, "Failed to fetch installments", http.StatusInternalServerError, nil)
			return
		}
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"account":        acct,
		"transactions":   transactions,
		"total":          total,
		"rdInstallments": installments,
	})
}

// CreateTransaction handles POST /api/deposits/transactions
// @Summary Post a deposit credit
// @Description Records a balanced GL voucher for a deposit credit and applies the dependent balance updates in one transaction
// @Tags deposits
// @Accept json
// @Produce json
// @Param request body DepositCreditRequest true "Deposit credit request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /deposits/transactions [post]
func (s *DepositService) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromRequest(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req DepositCreditRequest
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
	if !req.Amount.IsPositive() {
		SendErrorResponse(w, "Amount must be greater than zero", http.StatusBadRequest, nil)
		return
	}
	for _, sel := range req.SelectedInstallments {
		if sel.Penalty.IsNegative() {
			SendErrorResponse(w, "Installment penalty cannot be negative", http.StatusBadRequest, nil)
			return
		}
	}
	if req.VoucherType == models.VoucherTypeTransfer {
		if len(req.DebitAccounts) == 0 {
			SendErrorResponse(w, "Transfer vouchers require at least one debit account", http.StatusBadRequest, nil)
			return
		}
		var debitTotal decimal.Decimal
		for _, da := range req.DebitAccounts {
			if !da.Amount.IsPositive() {
				SendErrorResponse(w, "Debit amounts must be greater than zero", http.StatusBadRequest, nil)
				return
			}
			debitTotal = debitTotal.Add(da.Amount)
		}
		if !debitTotal.Equal(req.Amount) {
			SendErrorResponse(w, "Debit accounts must sum to the transaction amount", http.StatusBadRequest, nil)
			return
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[DEPOSITS] Failed to begin transaction: %v", err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	acct, err := s.lockDepositAccount(tx, rc.BranchID, req.AccountNumber)
	if err != nil {
		s.respondPostingError(w, rc, req.AccountNumber, err)
		return
	}
	if acct.AccountStatus != models.DepositStatusActive {
		s.respondPostingError(w, rc, req.AccountNumber,
			fmt.Errorf("%w: deposit account %s", models.ErrInactiveAccount, acct.AccountNumber))
		return
	}

	alloc, err := s.sequencer.Allocate(tx, rc, req.SelectedBatch, req.VoucherType)
	if err != nil {
		s.respondPostingError(w, rc, req.AccountNumber, err)
		return
	}

	legs := make([]Leg, 0, len(req.DebitAccounts)+2)
	if req.VoucherType == models.VoucherTypeCash {
		legs = append(legs, Leg{AccountCode: s.cashGlAccount, Debit: req.Amount})
	} else {
		for _, da := range req.DebitAccounts {
			savings, err := s.accounts.LockSavingsAccount(tx, rc.BranchID, da.AccountNumber)
			if err != nil {
				s.respondPostingError(w, rc, req.AccountNumber, err)
				return
			}
			if _, err := s.accounts.DebitSavings(tx, savings, da.Amount); err != nil {
				s.respondPostingError(w, rc, req.AccountNumber, err)
				return
			}
			legs = append(legs, Leg{AccountCode: s.savingsGlAccount, RefAccountID: da.AccountNumber, Debit: da.Amount})
		}
	}
	legs = append(legs, Leg{AccountCode: acct.DepositGlAccount, RefAccountID: acct.AccountNumber, Credit: req.Amount})

	if err := s.poster.Post(tx, rc, alloc.BatchID, alloc.VoucherNo, legs, req.Narration); err != nil {
		s.respondPostingError(w, rc, req.AccountNumber, err)
		return
	}

	if acct.DepositType == models.DepositTypeRecurring {
		if _, err := s.accounts.MarkInstallmentsPaid(tx, rc, acct.AccountNumber, alloc.VoucherNo, req.SelectedInstallments); err != nil {
			s.respondPostingError(w, rc, req.AccountNumber, err)
			return
		}
	}

	// deposit_account.clearbalance is intentionally left untouched on an
	// ordinary credit: the figure shown to tellers comes from the scheme's
	// deposit/maturity amounts, and the ledger lines above are the source of
	// truth for the running balance.

	if err := tx.Commit(); err != nil {
		log.Printf("[DEPOSITS] Failed to commit voucher %d: %v", alloc.VoucherNo, err)
		s.audit.LogError(rc.BranchID, req.AccountNumber, err)
		SendErrorResponse(w, "Failed to process transaction", http.StatusInternalServerError, nil)
		return
	}

	s.audit.LogPosting(rc.BranchID, alloc.BatchID, alloc.VoucherNo, acct.AccountNumber, req.Amount, req.VoucherType)

	msg := s.printer.Sprintf("Deposit of INR %v credited to account %s vide voucher no. %d",
		number.Decimal(req.Amount.InexactFloat64(), number.MaxFractionDigits(2)),
		acct.AccountNumber, alloc.VoucherNo)

	SendJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"voucher_no": alloc.VoucherNo,
		"batch_id":   alloc.BatchID,
		"newBalance": acct.ClearBalance,
		"message":    msg,
	})
}

// respondPostingError rolls the HTTP response out of the posting error
// taxonomy. The surrounding sql.Tx is rolled back by the caller's defer.
func (s *DepositService) respondPostingError(w http.ResponseWriter, rc *middleware.RequestContext, accountNumber string, err error) {
	s.audit.LogError(rc.BranchID, accountNumber, err)

	switch {
	case errors.Is(err, models.ErrAccountNotFound):
		SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrSavingsAccountNotFound):
		SendErrorResponse(w, "Savings account not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrBatchNotFound):
		SendErrorResponse(w, "Selected batch not found", http.StatusNotFound, nil)
	case errors.Is(err, models.ErrInsufficientFunds),
		errors.Is(err, models.ErrInactiveAccount),
		errors.Is(err, models.ErrUnbalancedVoucher),
		errors.Is(err, models.ErrAmountMismatch),
		errors.Is(err, models.ErrInstallmentNotPayable):
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	default:
		log.Printf("[DEPOSITS] Posting failed for %s: %v", accountNumber, err)
		SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
	}
}

func (s *DepositService) lockDepositAccount(tx *sql.Tx, branchID int64, accountNumber string) (*models.DepositAccount, error) {
	var acct models.DepositAccount
	err := tx.QueryRow(`
		SELECT account_number, branch_id, membership_no, deposit_type, scheme_id, clearbalance, unclearbalance, accountstatus, deposit_gl_account
		FROM deposit_account
		WHERE account_number = $1 AND branch_id = $2
		FOR UPDATE`,
		accountNumber, branchID).Scan(
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

func (s *DepositService) fetchDepositAccount(branchID int64, accountNumber string) (*models.DepositAccount, error) {
	var acct models.DepositAccount
	err := s.db.QueryRow(`
		SELECT account_number, branch_id, membership_no, deposit_type, scheme_id, clearbalance, unclearbalance, accountstatus, deposit_gl_account, opened_date
		FROM deposit_account
		WHERE account_number = $1 AND branch_id = $2`,
		accountNumber, branchID).Scan(
		&acct.AccountNumber, &acct.BranchID, &acct.MembershipNo, &acct.DepositType, &acct.SchemeID,
		&acct.ClearBalance, &acct.UnclearBalance, &acct.AccountStatus, &acct.DepositGlAccount, &acct.OpenedDate)
	if err == sql.ErrNoRows {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s *DepositService) fetchBatchLines(branchID int64, accountNumber string, limit, offset int) ([]models.GlBatchLine, int, error) {
	var total int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM gl_batch_lines
		WHERE branch_id = $1 AND ref_account_id = $2`,
		branchID, accountNumber).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT id, branch_id, batch_id, business_date, account_code, ref_account_id, debit_amount, credit_amount, voucher_id, narration, created_by, created_at
		FROM gl_batch_lines
		WHERE branch_id = $1 AND ref_account_id = $2
		ORDER BY id DESC
		LIMIT $3 OFFSET $4`,
		branchID, accountNumber, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	lines := []models.GlBatchLine{}
	for rows.Next() {
		var line models.GlBatchLine
		if err := rows.Scan(
			&line.ID, &line.BranchID, &line.BatchID, &line.BusinessDate, &line.AccountCode,
			&line.RefAccountID, &line.DebitAmount, &line.CreditAmount, &line.VoucherID,
			&line.Narration, &line.CreatedBy, &line.CreatedAt); err != nil {
			return nil, 0, err
		}
		lines = append(lines, line)
	}
	return lines, total, rows.Err()
}

func (s *DepositService) fetchInstallments(accountNumber string) ([]models.RdInstallment, error) {
	rows, err := s.db.Query(`
		SELECT id, account_number, installment_number, installment_amount, due_date, installment_paid_date, installment_voucher_no, penalty_collected
		FROM rd_installment_details
		WHERE account_number = $1
		ORDER BY installment_number`,
		accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	installments := []models.RdInstallment{}
	for rows.Next() {
		var inst models.RdInstallment
		var paidDate sql.NullTime
		var voucherNo sql.NullInt64
		if err := rows.Scan(
			&inst.ID, &inst.AccountNumber, &inst.InstallmentNumber, &inst.InstallmentAmount,
			&inst.DueDate, &paidDate, &voucherNo, &inst.PenaltyCollected); err != nil {
			return nil, err
		}
		if paidDate.Valid {
			t := paidDate.Time
			inst.PaidDate = &t
		}
		if voucherNo.Valid {
			n := voucherNo.Int64
			inst.VoucherNo = &n
		}
		installments = append(installments, inst)
	}
	return installments, rows.Err()
}
