package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AuditEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	BranchID      int64     `json:"branch_id"`
	VoucherNo     int64     `json:"voucher_no,omitempty"`
	BatchID       int64     `json:"batch_id,omitempty"`
	AccountNumber string    `json:"account_number"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogPosting(branchID, batchID, voucherNo int64, accountNumber string, amount decimal.Decimal, voucherType string) {
	event := AuditEvent{
		EventID:       uuid.NewString(),
		Timestamp:     time.Now(),
		EventType:     "DEPOSIT_CREDIT",
		BranchID:      branchID,
		VoucherNo:     voucherNo,
		BatchID:       batchID,
		AccountNumber: accountNumber,
		Amount:        amount.StringFixed(2),
		Status:        "SUCCESS",
		Details:       map[string]string{"voucher_type": voucherType},
	}
	a.log(event)
}

func (a *AuditLogger) LogClosure(branchID, batchID, voucherNo int64, accountNumber string, payout, penalty decimal.Decimal) {
	event := AuditEvent{
		EventID:       uuid.NewString(),
		Timestamp:     time.Now(),
		EventType:     "DEPOSIT_CLOSURE",
		BranchID:      branchID,
		VoucherNo:     voucherNo,
		BatchID:       batchID,
		AccountNumber: accountNumber,
		Amount:        payout.StringFixed(2),
		Status:        "SUCCESS",
		Details:       map[string]string{"penalty": penalty.StringFixed(2)},
	}
	a.log(event)
}

func (a *AuditLogger) LogError(branchID int64, accountNumber string, err error) {
	event := AuditEvent{
		EventID:       uuid.NewString(),
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		BranchID:      branchID,
		AccountNumber: accountNumber,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	}
	a.log(event)
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
