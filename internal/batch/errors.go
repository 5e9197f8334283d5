package batch

import (
	"fmt"
	"math/big"
)

// SetupError covers unrecoverable configuration problems detected before any
// submission: a bad RPC endpoint, malformed address or missing credential.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("batch setup: %v", e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// PlanningError indicates the planned total exceeds the available balance.
// Like SetupError it aborts a run before any submission.
type PlanningError struct {
	Need *big.Int
	Have *big.Int
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planned total %s exceeds available balance %s", e.Need, e.Have)
}

// SubmissionError is returned when one item exhausted its retry budget.
type SubmissionError struct {
	Attempts int
	Err      error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
