package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sahakari/backoffice/internal/models"
)

func TestPostingService_Post(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewPostingService()
	rc := testRequestContext()

	t.Run("balanced legs are persisted", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		legs := []Leg{
			{AccountCode: "210001", RefAccountID: "SAV200", Debit: decimal.NewFromInt(20000)},
			{AccountCode: "230001", RefAccountID: "ACC100", Credit: decimal.NewFromInt(20000)},
		}

		for _, leg := range legs {
			mock.ExpectExec("INSERT INTO gl_batch_lines").
				WithArgs(rc.BranchID, int64(42), rc.BusinessDate, leg.AccountCode, leg.RefAccountID,
					leg.Debit, leg.Credit, int64(7), "deposit credit", rc.UserID, sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(1, 1))
		}

		err := service.Post(tx, rc, 42, 7, legs, "deposit credit")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unbalanced legs are rejected before any write", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		legs := []Leg{
			{AccountCode: "210001", Debit: decimal.NewFromInt(20000)},
			{AccountCode: "230001", Credit: decimal.NewFromInt(19999)},
		}

		err := service.Post(tx, rc, 42, 7, legs, "")
		assert.ErrorIs(t, err, models.ErrUnbalancedVoucher)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("multi-leg voucher balances across several debits", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		legs := []Leg{
			{AccountCode: "210001", RefAccountID: "SAV200", Debit: decimal.RequireFromString("12500.50")},
			{AccountCode: "210001", RefAccountID: "SAV201", Debit: decimal.RequireFromString("7499.50")},
			{AccountCode: "230001", RefAccountID: "ACC100", Credit: decimal.NewFromInt(20000)},
		}

		for range legs {
			mock.ExpectExec("INSERT INTO gl_batch_lines").
				WillReturnResult(sqlmock.NewResult(1, 1))
		}

		err := service.Post(tx, rc, 42, 7, legs, "combined transfer")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
