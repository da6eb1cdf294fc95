// Package step defines provisioning steps as data and the runner that executes them.
package step

import (
	"context"
	"io"

	"github.com/conn-castle/whisper-provision/internal/rollback"
)

// CheckFunc reports whether a step's effect is already in place.
type CheckFunc func(ctx context.Context) (bool, error)

// ActionFunc performs a step's forward action. Subprocess output goes to out.
type ActionFunc func(ctx context.Context, out io.Writer) error

// Step is a named unit of provisioning work.
type Step struct {
	Name string
	// Critical failures abort the session and trigger rollback.
	Critical bool
	// Forceable steps are redone under force-reinstall even when Check is satisfied.
	Forceable bool
	// Check is the idempotency predicate. Nil means never satisfied.
	Check CheckFunc
	// Action is the forward action.
	Action ActionFunc
	// Undo reverses Action. It is recorded for rollback after Action succeeds and runs
	// before Action when a satisfied Forceable step is forced. Nil marks a step with
	// nothing to compensate.
	Undo rollback.UndoFunc
	// UndoDescription says what Undo removes.
	UndoDescription string
}

// Outcome classifies a step run.
type Outcome int

const (
	Succeeded Outcome = iota
	Skipped
	SoftFailed
	HardFailed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Skipped:
		return "skipped"
	case SoftFailed:
		return "soft-failed"
	case HardFailed:
		return "hard-failed"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome is a failure of either kind.
func (o Outcome) Failed() bool {
	return o == SoftFailed || o == HardFailed
}
