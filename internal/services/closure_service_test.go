package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sahakari/backoffice/internal/models"
)

func TestComputeClosure(t *testing.T) {
	now := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)

	t.Run("matured account pays balance plus interest due", func(t *testing.T) {
		acct := &models.DepositAccount{
			AccountStatus: models.DepositStatusMatured,
			ClearBalance:  decimal.NewFromInt(100000),
		}
		detail := &models.DepositDetail{
			MaturityDate:    now.AddDate(0, -1, 0),
			InterestAccrued: decimal.NewFromInt(8000),
			InterestPaid:    decimal.Zero,
		}

		figures := ComputeClosure(acct, detail, now)
		assert.False(t, figures.IsPremature)
		assert.True(t, figures.Penalty.IsZero())
		assert.True(t, figures.InterestDue.Equal(decimal.NewFromInt(8000)))
		assert.True(t, figures.Payout.Equal(decimal.NewFromInt(108000)))
	})

	t.Run("premature closure deducts penal interest", func(t *testing.T) {
		acct := &models.DepositAccount{
			AccountStatus: models.DepositStatusActive,
			ClearBalance:  decimal.NewFromInt(50000),
		}
		detail := &models.DepositDetail{
			MaturityDate:            now.AddDate(1, 0, 0),
			InterestAccrued:         decimal.NewFromInt(2000),
			InterestPaid:            decimal.Zero,
			PenalInterestRate:       decimal.NewFromInt(2),
			PrematureClosureAllowed: true,
		}

		figures := ComputeClosure(acct, detail, now)
		assert.True(t, figures.IsPremature)
		// 2% of 2000 earned interest.
		assert.True(t, figures.Penalty.Equal(decimal.NewFromInt(40)))
		assert.True(t, figures.Payout.Equal(decimal.NewFromInt(51960)))
	})

	t.Run("interest already paid out is clamped at zero", func(t *testing.T) {
		acct := &models.DepositAccount{
			AccountStatus: models.DepositStatusMatured,
			ClearBalance:  decimal.NewFromInt(10000),
		}
		detail := &models.DepositDetail{
			MaturityDate:    now.AddDate(0, -1, 0),
			InterestAccrued: decimal.NewFromInt(500),
			InterestPaid:    decimal.NewFromInt(700),
		}

		figures := ComputeClosure(acct, detail, now)
		assert.True(t, figures.InterestDue.IsZero())
		assert.True(t, figures.Payout.Equal(decimal.NewFromInt(10000)))
	})
}

func TestClosureService_CloseAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewClosureService(db)
	rc := testRequestContext()

	maturedAccountRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"account_number", "branch_id", "membership_no", "deposit_type", "scheme_id",
			"clearbalance", "unclearbalance", "accountstatus", "deposit_gl_account",
		}).AddRow("ACC100", rc.BranchID, "M001", "TERM", 5, "100000", "0", models.DepositStatusMatured, "230001")
	}

	maturedDetailRows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{
			"maturity_date", "maturity_amount", "interest_accrued", "interest_paid", "penal_interest_rate", "premature_closure_allowed",
		}).AddRow(rc.BusinessDate.AddDate(0, -1, 0), "108000", "8000", "0", "2", true)
	}

	t.Run("payout mismatch writes nothing", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC100", rc.BranchID).
			WillReturnRows(maturedAccountRows())
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC100").
			WillReturnRows(maturedDetailRows())
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC100",
			"payoutAmount":  99999,
			"penaltyAmount": 0,
			"voucherType":   "CASH",
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Contains(t, response.Error, "payout")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer credits must equal payout", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC100", rc.BranchID).
			WillReturnRows(maturedAccountRows())
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC100").
			WillReturnRows(maturedDetailRows())
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC100",
			"payoutAmount":  108000,
			"penaltyAmount": 0,
			"voucherType":   "TRANSFER",
			"creditAccounts": []map[string]any{
				{"accountNumber": "SAV200", "amount": 100000},
			},
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("successful matured cash closure", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC100", rc.BranchID).
			WillReturnRows(maturedAccountRows())
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC100").
			WillReturnRows(maturedDetailRows())
		mock.ExpectQuery("UPDATE gl_batch_sequences").
			WithArgs(rc.BranchID).
			WillReturnRows(sqlmock.NewRows([]string{"last_batch_id"}).AddRow(42))
		mock.ExpectQuery("INSERT INTO voucher_sequences").
			WithArgs(rc.BranchID, rc.BusinessDate).
			WillReturnRows(sqlmock.NewRows([]string{"last_voucher_no"}).AddRow(7))
		mock.ExpectExec("INSERT INTO gl_batches").
			WillReturnResult(sqlmock.NewResult(1, 1))
		// Debit deposit liability, debit interest payable, credit cash.
		mock.ExpectExec("INSERT INTO gl_batch_lines").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO gl_batch_lines").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("INSERT INTO gl_batch_lines").
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectExec("UPDATE term_deposit_details").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE deposit_account").
			WithArgs(models.DepositStatusClosed, rc.BusinessDate, int64(7), "ACC100", rc.BranchID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC100",
			"payoutAmount":  108000,
			"penaltyAmount": 0,
			"narration":     "maturity closure",
			"voucherType":   "CASH",
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["success"])
		assert.Equal(t, float64(7), response["voucher_no"])
		assert.Equal(t, "108000", response["payout"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("successful transfer closure credits savings", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC100", rc.BranchID).
			WillReturnRows(maturedAccountRows())
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC100").
			WillReturnRows(maturedDetailRows())
		mock.ExpectQuery("UPDATE gl_batch_sequences").
			WithArgs(rc.BranchID).
			WillReturnRows(sqlmock.NewRows([]string{"last_batch_id"}).AddRow(43))
		mock.ExpectQuery("INSERT INTO voucher_sequences").
			WithArgs(rc.BranchID, rc.BusinessDate).
			WillReturnRows(sqlmock.NewRows([]string{"last_voucher_no"}).AddRow(8))
		mock.ExpectExec("INSERT INTO gl_batches").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("SELECT account_number, branch_id, available_balance, clear_balance, accountstatus FROM savings_accounts").
			WithArgs("SAV200", rc.BranchID).
			WillReturnRows(sqlmock.NewRows([]string{"account_number", "branch_id", "available_balance", "clear_balance", "accountstatus"}).
				AddRow("SAV200", rc.BranchID, "30000", "30000", 1))
		mock.ExpectExec("UPDATE savings_accounts").
			WithArgs(decimal.NewFromInt(108000), sqlmock.AnyArg(), "SAV200", rc.BranchID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		// Debit deposit liability, debit interest payable, credit savings.
		mock.ExpectExec("INSERT INTO gl_batch_lines").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO gl_batch_lines").
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("INSERT INTO gl_batch_lines").
			WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectExec("UPDATE term_deposit_details").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE deposit_account").
			WithArgs(models.DepositStatusClosed, rc.BusinessDate, int64(8), "ACC100", rc.BranchID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC100",
			"payoutAmount":  108000,
			"penaltyAmount": 0,
			"narration":     "maturity proceeds to savings",
			"voucherType":   "TRANSFER",
			"creditAccounts": []map[string]any{
				{"accountNumber": "SAV200", "amount": 108000},
			},
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, true, response["success"])
		assert.Equal(t, float64(8), response["voucher_no"])
		assert.Equal(t, "108000", response["payout"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credits off by a paisa are rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC100", rc.BranchID).
			WillReturnRows(maturedAccountRows())
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC100").
			WillReturnRows(maturedDetailRows())
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC100",
			"payoutAmount":  108000,
			"penaltyAmount": 0,
			"voucherType":   "TRANSFER",
			"creditAccounts": []map[string]any{
				{"accountNumber": "SAV200", "amount": 107999.99},
			},
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Contains(t, response.Error, "credit")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("premature closure blocked when scheme disallows it", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC200", rc.BranchID).
			WillReturnRows(sqlmock.NewRows([]string{
				"account_number", "branch_id", "membership_no", "deposit_type", "scheme_id",
				"clearbalance", "unclearbalance", "accountstatus", "deposit_gl_account",
			}).AddRow("ACC200", rc.BranchID, "M002", "TERM", 5, "50000", "0", models.DepositStatusActive, "230001"))
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC200").
			WillReturnRows(sqlmock.NewRows([]string{
				"maturity_date", "maturity_amount", "interest_accrued", "interest_paid", "penal_interest_rate", "premature_closure_allowed",
			}).AddRow(rc.BusinessDate.AddDate(1, 0, 0), "55000", "1000", "0", "2", false))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC200",
			"payoutAmount":  51000,
			"penaltyAmount": 0,
			"voucherType":   "CASH",
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already closed account is rejected", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
			WithArgs("ACC300", rc.BranchID).
			WillReturnRows(sqlmock.NewRows([]string{
				"account_number", "branch_id", "membership_no", "deposit_type", "scheme_id",
				"clearbalance", "unclearbalance", "accountstatus", "deposit_gl_account",
			}).AddRow("ACC300", rc.BranchID, "M003", "TERM", 5, "0", "0", models.DepositStatusClosed, "230001"))
		mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
			WithArgs("ACC300").
			WillReturnRows(sqlmock.NewRows([]string{
				"maturity_date", "maturity_amount", "interest_accrued", "interest_paid", "penal_interest_rate", "premature_closure_allowed",
			}).AddRow(rc.BusinessDate.AddDate(0, -6, 0), "0", "0", "0", "0", true))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]any{
			"accountNumber": "ACC300",
			"payoutAmount":  1,
			"penaltyAmount": 0,
			"voucherType":   "CASH",
		})
		r := authedRequest(t, "POST", "/api/deposits/closure", body)
		w := httptest.NewRecorder()

		service.CloseAccount(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Contains(t, response.Error, "not active")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestClosureService_PreviewClosure(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewClosureService(db)
	rc := testRequestContext()

	mock.ExpectQuery("SELECT account_number, .+ FROM deposit_account").
		WithArgs("ACC100", rc.BranchID).
		WillReturnRows(sqlmock.NewRows([]string{
			"account_number", "branch_id", "membership_no", "deposit_type", "scheme_id",
			"clearbalance", "unclearbalance", "accountstatus", "deposit_gl_account",
		}).AddRow("ACC100", rc.BranchID, "M001", "TERM", 5, "100000", "0", models.DepositStatusMatured, "230001"))
	mock.ExpectQuery("SELECT maturity_date, .+ FROM term_deposit_details").
		WithArgs("ACC100").
		WillReturnRows(sqlmock.NewRows([]string{
			"maturity_date", "maturity_amount", "interest_accrued", "interest_paid", "penal_interest_rate", "premature_closure_allowed",
		}).AddRow(rc.BusinessDate.AddDate(0, -1, 0), "108000", "8000", "0", "2", true))

	r := authedRequest(t, "GET", "/api/deposits/closure?account=ACC100", nil)
	w := httptest.NewRecorder()

	service.PreviewClosure(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "8000", response["interestDue"])
	assert.Equal(t, "108000", response["payout"])
	assert.Equal(t, false, response["isPremature"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
