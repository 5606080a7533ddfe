package services

import (
	"database/sql"
	"log"
	"time"

	"github.com/sahakari/backoffice/internal/middleware"
	"github.com/sahakari/backoffice/internal/models"
)

// SequencerService allocates the (batch_id, voucher_no) pair identifying a
// voucher within a branch and business date. Every statement runs on the
// caller's open transaction, so a failed posting rolls the counter
// increments back along with everything else.
type SequencerService struct{}

func NewSequencerService() *SequencerService {
	return &SequencerService{}
}

type Allocation struct {
	BatchID    int64
	VoucherNo  int64
	IsNewBatch bool
}

// Allocate reuses an explicitly selected open batch, or atomically draws the
// next batch and voucher numbers and inserts a PENDING batch header.
func (s *SequencerService) Allocate(tx *sql.Tx, rc *middleware.RequestContext, existingBatchID int64, voucherType string) (*Allocation, error) {
	if existingBatchID != 0 {
		var voucherNo int64
		err := tx.QueryRow(`
			SELECT voucher_id FROM gl_batches
			WHERE branch_id = $1 AND batch_id = $2`,
			rc.BranchID, existingBatchID).Scan(&voucherNo)
		if err == sql.ErrNoRows {
			return nil, models.ErrBatchNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Allocation{BatchID: existingBatchID, VoucherNo: voucherNo}, nil
	}

	// The sequence row must be seeded when the branch is configured; a miss
	// here is a setup fault, not a business error.
	var batchID int64
	err := tx.QueryRow(`
		UPDATE gl_batch_sequences
		SET last_batch_id = last_batch_id + 1
		WHERE branch_id = $1
		RETURNING last_batch_id`,
		rc.BranchID).Scan(&batchID)
	if err == sql.ErrNoRows {
		return nil, models.ErrSequenceNotConfigured
	}
	if err != nil {
		return nil, err
	}

	var voucherNo int64
	err = tx.QueryRow(`
		INSERT INTO voucher_sequences (branch_id, business_date, last_voucher_no)
		VALUES ($1, $2, 1)
		ON CONFLICT (branch_id, business_date)
		DO UPDATE SET last_voucher_no = voucher_sequences.last_voucher_no + 1
		RETURNING last_voucher_no`,
		rc.BranchID, rc.BusinessDate).Scan(&voucherNo)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(`
		INSERT INTO gl_batches (branch_id, batch_id, voucher_id, voucher_type, status, maker_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rc.BranchID, batchID, voucherNo, voucherType, models.BatchStatusPending, rc.UserID, time.Now())
	if err != nil {
		return nil, err
	}

	log.Printf("[SEQUENCER] Allocated batch %d voucher %d for branch %d on %s",
		batchID, voucherNo, rc.BranchID, rc.BusinessDate.Format("2006-01-02"))

	return &Allocation{BatchID: batchID, VoucherNo: voucherNo, IsNewBatch: true}, nil
}
