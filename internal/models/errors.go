package models

import "errors"

// Posting error taxonomy. Handlers map these to HTTP status codes with
// errors.Is; anything else is a 500 with the raw message.
var (
	ErrAccountNotFound        = errors.New("deposit account not found")
	ErrSavingsAccountNotFound = errors.New("savings account not found")
	ErrBatchNotFound          = errors.New("batch not found")
	ErrSequenceNotConfigured  = errors.New("batch sequence not configured for branch")
	ErrInactiveAccount        = errors.New("account is not active")
	ErrInsufficientFunds      = errors.New("insufficient balance")
	ErrUnbalancedVoucher      = errors.New("voucher debits and credits do not balance")
	ErrAmountMismatch         = errors.New("credit amounts do not match payout")
	ErrInstallmentNotPayable  = errors.New("installment already paid or does not belong to account")
)
