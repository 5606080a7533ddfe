package services

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/sahakari/backoffice/internal/middleware"
	"github.com/sahakari/backoffice/internal/models"
)

// BatchService serves the open-batch listing the posting screens use to
// offer "add to existing batch" instead of opening a new voucher.
type BatchService struct {
	db *sql.DB
}

func NewBatchService(db *sql.DB) *BatchService {
	return &BatchService{db: db}
}

// ListBatches handles GET /api/gl/batches
// @Summary List GL batches for the caller's branch
// @Tags gl
// @Produce json
// @Param status query string false "Batch status filter (default PENDING)"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse
// @Router /gl/batches [get]
func (s *BatchService) ListBatches(w http.ResponseWriter, r *http.Request) {
	rc, ok := middleware.FromRequest(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	status := r.URL.Query().Get("status")
	if status == "" {
		status = models.BatchStatusPending
	}

	rows, err := s.db.Query(`
		SELECT branch_id, batch_id, voucher_id, voucher_type, status, maker_id, created_at
		FROM gl_batches
		WHERE branch_id = $1 AND status = $2
		ORDER BY batch_id DESC
		LIMIT 50`,
		rc.BranchID, status)
	if err != nil {
		log.Printf("[BATCHES] Failed to list batches for branch %d: %v", rc.BranchID, err)
		SendErrorResponse(w, "Failed to fetch batches", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	batches := []models.GlBatch{}
	for rows.Next() {
		var b models.GlBatch
		if err := rows.Scan(&b.BranchID, &b.BatchID, &b.VoucherID, &b.VoucherType, &b.Status, &b.MakerID, &b.CreatedAt); err != nil {
			log.Printf("[BATCHES] Failed to scan batch row: %v", err)
			SendErrorResponse(w, "Failed to fetch batches", http.StatusInternalServerError, nil)
			return
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		SendErrorResponse(w, "Failed to fetch batches", http.StatusInternalServerError, nil)
		return
	}

	SendJSON(w, http.StatusOK, map[string]any{
		"batches": batches,
		"count":   len(batches),
	})
}
