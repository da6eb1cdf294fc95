package step

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/conn-castle/whisper-provision/internal/logging"
	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/process"
	"github.com/conn-castle/whisper-provision/internal/rollback"
)

// Result is the structured outcome of one step.
type Result struct {
	Step     string
	Outcome  Outcome
	Err      error
	Output   []byte
	Duration time.Duration
	// Forced reports that Undo ran before Action because of force-reinstall.
	Forced bool
}

// Options configures a Runner.
type Options struct {
	// Out receives step progress lines and, when Verbose, live step output.
	Out io.Writer
	// Verbose streams step output live instead of suppressing it.
	Verbose bool
	// Force redoes satisfied Forceable steps.
	Force bool
	// Timeout bounds each step's action. Zero means no timeout.
	Timeout time.Duration
	Log     zerolog.Logger
	Tracker *rollback.Tracker
	// Stage tags log lines.
	Stage string
}

// Runner executes steps one at a time.
type Runner struct {
	opts Options
}

// NewRunner returns a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Runner{opts: opts}
}

// WithStage returns a runner sharing r's settings that tags logs with stage.
func (r *Runner) WithStage(stage string) *Runner {
	opts := r.opts
	opts.Stage = stage
	return &Runner{opts: opts}
}

// Run executes s and classifies the outcome. A canceled context always yields
// HardFailed, whatever the step's criticality.
func (r *Runner) Run(ctx context.Context, s Step) Result {
	start := time.Now()
	log := r.opts.Log.With().Str(logging.FieldStage, r.opts.Stage).Str(logging.FieldStep, s.Name).Logger()
	res := Result{Step: s.Name}

	if err := ctx.Err(); err != nil {
		res.Outcome = HardFailed
		res.Err = err
		return res
	}

	_, _ = fmt.Fprintf(r.opts.Out, messages.StepStartFmt, s.Name)
	log.Info().Bool("critical", s.Critical).Msg("step started")

	satisfied := false
	if s.Check != nil {
		ok, err := s.Check(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("idempotency check failed; running action")
		}
		satisfied = ok && err == nil
	}

	if satisfied && !(r.opts.Force && s.Forceable) {
		res.Outcome = Skipped
		res.Duration = time.Since(start)
		_, _ = fmt.Fprintf(r.opts.Out, messages.StepSkippedFmt, color.New(color.FgCyan).Sprint(messages.StepStatusSkipped), s.Name)
		log.Info().Str(logging.FieldOutcome, res.Outcome.String()).Msg("already satisfied")
		return res
	}

	var captured bytes.Buffer
	var out io.Writer = &captured
	if r.opts.Verbose {
		out = io.MultiWriter(&captured, r.opts.Out)
	}

	actionCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	var err error
	if satisfied && s.Undo != nil {
		res.Forced = true
		log.Info().Msg("force reinstall: undoing existing state")
		err = s.Undo(actionCtx)
		if err != nil {
			err = fmt.Errorf(messages.StepForceUndoFailedFmt, err)
		}
	}
	if err == nil && s.Action != nil {
		err = s.Action(actionCtx, out)
	}
	res.Output = captured.Bytes()
	res.Duration = time.Since(start)

	if err == nil {
		res.Outcome = Succeeded
		if s.Undo != nil && r.opts.Tracker != nil {
			r.opts.Tracker.Record(ctx, rollback.Entry{Step: s.Name, Description: s.UndoDescription, Undo: s.Undo})
		}
		_, _ = fmt.Fprintf(r.opts.Out, messages.StepDoneFmt, color.New(color.FgGreen).Sprint(messages.StepStatusOK), s.Name)
		log.Info().Str(logging.FieldOutcome, res.Outcome.String()).Dur("duration", res.Duration).Msg("step finished")
		return res
	}

	res.Err = err
	interrupted := ctx.Err() != nil
	if s.Critical || interrupted {
		res.Outcome = HardFailed
	} else {
		res.Outcome = SoftFailed
	}
	if errors.Is(err, context.DeadlineExceeded) && !interrupted {
		res.Err = fmt.Errorf(messages.StepTimedOutFmt, r.opts.Timeout, err)
	}

	event := log.Warn()
	label := color.New(color.FgYellow).Sprint(messages.StepStatusWarn)
	if res.Outcome == HardFailed {
		event = log.Error()
		label = color.New(color.FgRed).Sprint(messages.StepStatusFail)
	}
	event.Err(res.Err).Str(logging.FieldOutcome, res.Outcome.String()).Str(logging.FieldOutput, string(res.Output)).Msg("step failed")
	_, _ = fmt.Fprintf(r.opts.Out, messages.StepFailedFmt, label, s.Name, res.Err)
	if !r.opts.Verbose && len(res.Output) > 0 && !interrupted {
		_, _ = fmt.Fprintf(r.opts.Out, messages.StepOutputTailFmt, process.Tail(res.Output, 10))
	}
	return res
}
