package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/sahakari/backoffice/internal/models"
)

func TestBatchService_ListBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewBatchService(db)
	rc := testRequestContext()

	t.Run("missing session is rejected", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/api/gl/batches", nil)
		w := httptest.NewRecorder()

		service.ListBatches(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("defaults to pending batches for the branch", func(t *testing.T) {
		mock.ExpectQuery("SELECT branch_id, batch_id, voucher_id, voucher_type, status, maker_id, created_at FROM gl_batches").
			WithArgs(rc.BranchID, models.BatchStatusPending).
			WillReturnRows(sqlmock.NewRows([]string{"branch_id", "batch_id", "voucher_id", "voucher_type", "status", "maker_id", "created_at"}).
				AddRow(rc.BranchID, 42, 7, models.VoucherTypeCash, models.BatchStatusPending, rc.UserID, rc.BusinessDate).
				AddRow(rc.BranchID, 41, 6, models.VoucherTypeTransfer, models.BatchStatusPending, rc.UserID, rc.BusinessDate))

		r := authedRequest(t, "GET", "/api/gl/batches", nil)
		w := httptest.NewRecorder()

		service.ListBatches(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(2), response["count"])
		assert.Len(t, response["batches"], 2)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status filter is passed through", func(t *testing.T) {
		mock.ExpectQuery("SELECT branch_id, batch_id, voucher_id, voucher_type, status, maker_id, created_at FROM gl_batches").
			WithArgs(rc.BranchID, "POSTED").
			WillReturnRows(sqlmock.NewRows([]string{"branch_id", "batch_id", "voucher_id", "voucher_type", "status", "maker_id", "created_at"}))

		r := authedRequest(t, "GET", "/api/gl/batches?status=POSTED", nil)
		w := httptest.NewRecorder()

		service.ListBatches(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response map[string]any
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, float64(0), response["count"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
