package settlement

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNilState            = errors.New("settlement: state not configured")
	ErrNilRegistry         = errors.New("settlement: asset registry not configured")
	ErrZeroAddress         = errors.New("settlement: zero address")
	ErrZeroConfigValue     = errors.New("settlement: configuration value must be positive")
	ErrArrayLengthMismatch = errors.New("settlement: array length mismatch")
	ErrDenied              = errors.New("settlement: address denied")
	ErrPaused              = errors.New("settlement: harvests paused")
	ErrNotPaused           = errors.New("settlement: harvests not paused")
	ErrUnauthorized        = errors.New("settlement: caller is not the owner")
	ErrUnderfunded         = errors.New("settlement: ledger cannot cover payout")
	ErrReentrancy          = errors.New("settlement: reentrant call")
	ErrUnknownAsset        = errors.New("settlement: asset not registered")

	// ErrInsufficientPayment is the kind shared by every rejection of
	// the caller's attached native value, whether the exact fee was
	// missed or the net harvest amount fell below the configured
	// minimum.
	ErrInsufficientPayment = errors.New("settlement: insufficient payment")

	// ErrInsufficientLedgerBalance is the kind for withdrawals that
	// exceed what the ledger holds.
	ErrInsufficientLedgerBalance = errors.New("settlement: insufficient ledger balance")

	// ErrTransferRejected is the kind for any external native-coin or
	// asset transfer that reported failure.
	ErrTransferRejected = errors.New("settlement: external transfer rejected")
)

// InsufficientPaymentError reports the exact native value the operation
// required against what the caller attached.
type InsufficientPaymentError struct {
	Expected *big.Int
	Actual   *big.Int
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("settlement: insufficient payment: expected %s, got %s", bigString(e.Expected), bigString(e.Actual))
}

func (e *InsufficientPaymentError) Unwrap() error { return ErrInsufficientPayment }

// InsufficientLedgerBalanceError reports a withdrawal or payout that
// exceeds the ledger's holdings.
type InsufficientLedgerBalanceError struct {
	Available *big.Int
	Requested *big.Int
}

func (e *InsufficientLedgerBalanceError) Error() string {
	return fmt.Sprintf("settlement: insufficient ledger balance: available %s, requested %s", bigString(e.Available), bigString(e.Requested))
}

func (e *InsufficientLedgerBalanceError) Unwrap() error { return ErrInsufficientLedgerBalance }

// TransferRejectedError wraps the failure reported by an external
// native-coin or asset transfer call.
type TransferRejectedError struct {
	To    [20]byte
	Cause error
}

func (e *TransferRejectedError) Error() string {
	return fmt.Sprintf("settlement: external transfer to %x rejected: %v", e.To, e.Cause)
}

func (e *TransferRejectedError) Unwrap() error { return ErrTransferRejected }

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
