// Package rollback tracks compensating actions for irreversible provisioning steps
// and unwinds them in reverse order when a session aborts.
package rollback

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/logging"
	"github.com/conn-castle/whisper-provision/internal/messages"
)

// UndoFunc reverses one completed irreversible action.
type UndoFunc func(ctx context.Context) error

// Entry is a completed irreversible action plus the closure that undoes it.
type Entry struct {
	// Step names the step that produced the action.
	Step string
	// Description says what Undo removes, for logs and console output.
	Description string
	Undo        UndoFunc
}

// Failure records a compensation that returned an error.
type Failure struct {
	Entry Entry
	Err   error
}

// Report summarizes an unwind.
type Report struct {
	// Undone lists the step names whose compensations ran, in execution order.
	Undone   []string
	Failures []Failure
}

// Tracker is a LIFO stack of compensating actions.
type Tracker struct {
	mu      sync.Mutex
	entries []Entry
	unwound bool
	once    sync.Once
	report  Report
	log     zerolog.Logger
	out     io.Writer
}

// New returns an empty tracker that logs to log and prints progress to out.
// A nil out discards progress output.
func New(log zerolog.Logger, out io.Writer) *Tracker {
	if out == nil {
		out = io.Discard
	}
	return &Tracker{log: log, out: out}
}

// Record appends an entry. Entries must be recorded in the order their forward
// actions completed. An entry recorded after Unwind is compensated immediately so
// nothing escapes the unwind.
func (t *Tracker) Record(ctx context.Context, entry Entry) {
	t.mu.Lock()
	if !t.unwound {
		t.entries = append(t.entries, entry)
		t.mu.Unlock()
		t.log.Debug().Str(logging.FieldStep, entry.Step).Str("undo", entry.Description).Msg("rollback entry recorded")
		return
	}
	t.mu.Unlock()

	t.log.Warn().Str(logging.FieldStep, entry.Step).Msg("rollback entry recorded after unwind; compensating now")
	if entry.Undo != nil {
		if err := entry.Undo(context.WithoutCancel(ctx)); err != nil {
			t.log.Error().Err(err).Str(logging.FieldStep, entry.Step).Msg("late compensation failed")
		}
	}
}

// Len returns the number of pending entries.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Entries returns a copy of the pending entries in record order.
func (t *Tracker) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Unwind runs every recorded compensation in reverse record order. A failing
// compensation is logged and the unwind continues. Only the first call does any work;
// later calls return the first call's report.
// Compensations run with a context detached from ctx's cancellation, since unwind
// usually follows an interrupt that already canceled it.
func (t *Tracker) Unwind(ctx context.Context) Report {
	t.once.Do(func() {
		t.mu.Lock()
		t.unwound = true
		entries := t.entries
		t.entries = nil
		t.mu.Unlock()

		ctx = context.WithoutCancel(ctx)
		if len(entries) == 0 {
			_, _ = fmt.Fprintln(t.out, messages.RollbackNothingToUndo)
			return
		}
		_, _ = fmt.Fprintf(t.out, messages.RollbackStartFmt, len(entries))
		for i := len(entries) - 1; i >= 0; i-- {
			entry := entries[i]
			t.report.Undone = append(t.report.Undone, entry.Step)
			if entry.Undo == nil {
				continue
			}
			_, _ = fmt.Fprintf(t.out, messages.RollbackEntryFmt, entry.Description)
			if err := entry.Undo(ctx); err != nil {
				t.report.Failures = append(t.report.Failures, Failure{Entry: entry, Err: err})
				t.log.Error().Err(err).Str(logging.FieldStep, entry.Step).Str("undo", entry.Description).Msg("compensation failed")
				_, _ = fmt.Fprintf(t.out, messages.RollbackEntryFailedFmt, entry.Description, err)
				continue
			}
			t.log.Info().Str(logging.FieldStep, entry.Step).Str("undo", entry.Description).Msg("compensation done")
		}
		if len(t.report.Failures) > 0 {
			_, _ = fmt.Fprintf(t.out, messages.RollbackIncompleteFmt, len(t.report.Failures))
			return
		}
		_, _ = fmt.Fprintln(t.out, messages.RollbackComplete)
	})
	return t.report
}

// Unwound reports whether Unwind has started.
func (t *Tracker) Unwound() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unwound
}
