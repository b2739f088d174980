// Package build validates a candidate file set in a sandbox and repairs
// failing builds with a bounded number of fix cycles.
package build

import (
	"context"
	"fmt"

	"adorable/internal/events"
	"adorable/internal/files"
	"adorable/internal/logging"
	"adorable/internal/sandbox"
)

// DefaultFixAttempts is the number of fix cycles after a failed build.
const DefaultFixAttempts = 3

// Target is where candidates are built.
type Target interface {
	// Write replaces the target's files with set.
	Write(ctx context.Context, set files.FileSet) error
	Build(ctx context.Context) (sandbox.BuildResult, error)
}

// Fixer produces changes intended to make a failing build pass. It sees
// the current files and the latest build log only.
type Fixer interface {
	Fix(ctx context.Context, current files.FileSet, log string) ([]files.FileChange, error)
}

// FixerFunc adapts a function to Fixer.
type FixerFunc func(ctx context.Context, current files.FileSet, log string) ([]files.FileChange, error)

func (f FixerFunc) Fix(ctx context.Context, current files.FileSet, log string) ([]files.FileChange, error) {
	return f(ctx, current, log)
}

// Attempt is one build of the loop.
type Attempt struct {
	Number    int
	Files     files.FileSet
	Succeeded bool
	Log       string
}

// Outcome is the result of validation. Passed is false when the loop gave
// up; Files is then the last candidate.
type Outcome struct {
	Files     files.FileSet
	Passed    bool
	Attempts  []Attempt
	FixCycles int
}

// Validator runs the validate, fix, revalidate loop.
type Validator struct {
	fixer    Fixer
	merger   *files.Merger
	maxFixes int
	emitter  events.Emitter
	stop     <-chan struct{}
}

// Option configures a Validator.
type Option func(*Validator)

// WithMaxFixes sets the number of fix cycles.
func WithMaxFixes(n int) Option {
	return func(v *Validator) {
		if n >= 0 {
			v.maxFixes = n
		}
	}
}

// WithEmitter sets where status and warning events go.
func WithEmitter(e events.Emitter) Option {
	return func(v *Validator) {
		if e != nil {
			v.emitter = e
		}
	}
}

// WithStop sets a channel whose closing prevents further fix cycles. The
// cycle in flight completes.
func WithStop(stop <-chan struct{}) Option {
	return func(v *Validator) {
		v.stop = stop
	}
}

// WithMerger sets the merger fix changes are applied with.
func WithMerger(m *files.Merger) Option {
	return func(v *Validator) {
		if m != nil {
			v.merger = m
		}
	}
}

// NewValidator creates a validator using fixer for repairs.
func NewValidator(fixer Fixer, opts ...Option) *Validator {
	v := &Validator{
		fixer:    fixer,
		merger:   files.DefaultMerger(),
		maxFixes: DefaultFixAttempts,
		emitter:  events.Discard,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) stopped() bool {
	if v.stop == nil {
		return false
	}
	select {
	case <-v.stop:
		return true
	default:
		return false
	}
}

// Validate builds candidate in target and repairs it up to the configured
// number of times. Sandbox and fixer failures degrade to a warning and the
// current candidate; only context errors are returned.
func (v *Validator) Validate(ctx context.Context, target Target, candidate files.FileSet) (*Outcome, error) {
	out := &Outcome{Files: candidate.Clone()}
	current := out.Files

	v.emitter.Emit(events.Status("validating"))

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		res, err := v.buildOnce(ctx, target, current)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			logging.Warn("build validation aborted", "attempt", attempt, "error", err)
			v.emitter.Emit(events.Warning(fmt.Sprintf("Build validation could not run: %v. Saving the current files.", err)))
			return out, nil
		}

		out.Attempts = append(out.Attempts, Attempt{
			Number:    attempt,
			Files:     current,
			Succeeded: res.Passed,
			Log:       res.Log,
		})

		if res.Passed {
			out.Passed = true
			logging.Info("build passed", "attempt", attempt, "fix_cycles", out.FixCycles)
			return out, nil
		}

		if attempt >= v.maxFixes {
			logging.Warn("build still failing after fix cycles", "fix_cycles", out.FixCycles)
			v.emitter.Emit(events.Warning(fmt.Sprintf("Build still failing after %d fix attempts. Saving the last version.", out.FixCycles)))
			return out, nil
		}
		if v.stopped() {
			logging.Info("client gone, not scheduling further fixes", "attempt", attempt)
			return out, nil
		}

		v.emitter.Emit(events.Status(fmt.Sprintf("fixing attempt %d/%d", attempt+1, v.maxFixes)))

		changes, err := v.fixer.Fix(ctx, current, res.Log)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			logging.Warn("fix agent failed", "attempt", attempt+1, "error", err)
			v.emitter.Emit(events.Warning(fmt.Sprintf("Automatic fix failed: %v. Saving the current files.", err)))
			return out, nil
		}

		next, warnings := v.merger.Apply(current, changes)
		for _, w := range warnings {
			logging.Debug("fix change dropped", "path", w.Path, "reason", w.Reason)
		}
		current = next
		out.Files = current
		out.FixCycles++
	}
}

func (v *Validator) buildOnce(ctx context.Context, target Target, set files.FileSet) (sandbox.BuildResult, error) {
	if err := target.Write(ctx, set); err != nil {
		return sandbox.BuildResult{}, fmt.Errorf("write candidate: %w", err)
	}
	res, err := target.Build(ctx)
	if err != nil {
		return sandbox.BuildResult{}, fmt.Errorf("build: %w", err)
	}
	return res, nil
}
