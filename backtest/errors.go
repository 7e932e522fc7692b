package backtest

import (
	"errors"
	"fmt"

	"github.com/pedropmedina/trailgrid/orders"
)

var (
	ErrInvalidParams   = errors.New("invalid backtest params")
	ErrShapeMismatch   = errors.New("input shape mismatch")
	ErrNegativeBalance = errors.New("balance dropped to zero or below")
	// ErrLadderOverflow is returned, wrapped in a RunError, when a ladder
	// would need more rungs than orders.MaxLadderRungs.
	ErrLadderOverflow = orders.ErrLadderOverflow
)

// RunError is a fatal condition hit while replaying. Symbol and Step point at
// where it happened so the run can be reproduced.
type RunError struct {
	Symbol string
	Step   int
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("backtest: symbol %s step %d: %v", e.Symbol, e.Step, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
