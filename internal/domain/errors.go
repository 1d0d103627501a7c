package domain

import "errors"

// Sentinel errors shared by the repositories and the services built on top
// of them. Callers branch on these with errors.Is.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientBalance means a conditional deduction found less than
	// the requested amount in the wallet.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrDuplicateReference means a payment with the same reference already
	// exists.
	ErrDuplicateReference = errors.New("duplicate payment reference")

	// ErrAlreadyDecided means the payment already reached a terminal status
	// and cannot be decided again.
	ErrAlreadyDecided = errors.New("payment already decided")
)
