package enums

import "fmt"

// TransactionStatus tracks the lifecycle of a payment transaction.
type TransactionStatus string

const (
	TransactionStatusInitialized TransactionStatus = "initialized"
	TransactionStatusCaptured    TransactionStatus = "captured"
	TransactionStatusRefunded    TransactionStatus = "refunded"
	TransactionStatusFailed      TransactionStatus = "failed"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusInitialized,
	TransactionStatusCaptured,
	TransactionStatusRefunded,
	TransactionStatusFailed,
}

// Transitions are one-directional. REFUNDED and FAILED are terminal; a
// failed payment requires a fresh transaction.
var allowedTransactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusInitialized: {TransactionStatusCaptured, TransactionStatusFailed},
	TransactionStatusCaptured:    {TransactionStatusRefunded, TransactionStatusFailed},
	TransactionStatusRefunded:    {},
	TransactionStatusFailed:      {},
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s TransactionStatus) IsTerminal() bool {
	return len(allowedTransactionTransitions[s]) == 0 && s.IsValid()
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, candidate := range allowedTransactionTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
