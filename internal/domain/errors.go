package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed payloads rejected at the boundary.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks lookups of unknown ids within a tenant.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks cross-tenant access attempts.
	ErrForbidden = errors.New("tenant mismatch")
	// ErrInvalidTransition marks illegal review state-machine moves.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// DeterminismError reports a replay whose recomputed output hash differs from
// the recorded baseline. This is a computation defect, not a data problem, and
// is never folded into the ordinary error taxonomy.
type DeterminismError struct {
	ScenarioID   string
	BaselineRun  string
	ExpectedHash string
	ActualHash   string
}

func (e *DeterminismError) Error() string {
	return fmt.Sprintf("determinism violation: scenario %s replay produced %s, baseline run %s recorded %s",
		e.ScenarioID, e.ActualHash, e.BaselineRun, e.ExpectedHash)
}
