package auction

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrEmptyBatch is returned when a run is given no labels.
	ErrEmptyBatch = errors.New("auction: empty batch")
	// ErrMalformedLabel is returned for labels that cannot be hashed.
	ErrMalformedLabel = errors.New("auction: malformed label")
	// ErrInconsistentBatch is matched by *InconsistentBatchError.
	ErrInconsistentBatch = errors.New("auction: labels are not in the same phase")
	// ErrUnknownPhase is returned for registrar state codes outside the enum.
	ErrUnknownPhase = errors.New("auction: unknown phase")
	// ErrNoAction is returned for phases with no handler.
	ErrNoAction = errors.New("auction: no action for phase")
	// ErrInsufficientFunds is matched by *InsufficientFundsError.
	ErrInsufficientFunds = errors.New("auction: insufficient token balance")
	// ErrSecretNotFound is returned when no bid record exists for a reveal.
	ErrSecretNotFound = errors.New("auction: bid secret not found")
	// ErrBidExists is returned when a bid record already exists for an
	// identifier; writing a second one would lose the first salt.
	ErrBidExists = errors.New("auction: bid record already exists")
	// ErrBidderMismatch is returned when a stored bid was sealed for a
	// different account than the one revealing it.
	ErrBidderMismatch = errors.New("auction: bid sealed by a different account")
	// ErrInterrupted marks identifiers skipped after the run was cancelled.
	ErrInterrupted = errors.New("auction: interrupted before submission")
)

// InconsistentBatchError names the first label whose phase differs from
// the first label's.
type InconsistentBatchError struct {
	Index int
	Want  Phase
	Got   Phase
}

func (e *InconsistentBatchError) Error() string {
	return fmt.Sprintf("%v: element %d is %s, element 0 is %s", ErrInconsistentBatch, e.Index, e.Got, e.Want)
}

func (e *InconsistentBatchError) Unwrap() error { return ErrInconsistentBatch }

// InsufficientFundsError reports the balance shortfall detected before
// any bid is submitted.
type InsufficientFundsError struct {
	Cost    *big.Int
	Balance *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("%v: cost %s, balance %s", ErrInsufficientFunds, e.Cost, e.Balance)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// BatchError collects the per-identifier failures of a run that otherwise
// went ahead.
type BatchError struct {
	Phase    Phase
	Total    int
	Failures []Outcome
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "auction: %s: %d of %d failed", e.Phase, len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.Label, f.Err)
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}
